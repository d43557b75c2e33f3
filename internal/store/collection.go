package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// Collection emulates a Mongo-style document collection on top of a SQLite
// table: every row carries an opaque JSON blob (the document) plus a fixed
// set of indexed scalar columns extracted from it for filtering and sorting.
// This is how market points, factor points, task records, log entries and
// result bundles are all stored: one Collection per logical collection name,
// sharing the PRAGMA-tuned *DB underneath.
type Collection struct {
	db      *DB
	name    string
	keyCol  string
	columns []string // indexed column names, keyCol first
}

// IndexedColumn describes a column projected out of the JSON document for
// use in WHERE/ORDER BY clauses.
type IndexedColumn struct {
	Name string // SQL column name
	Type string // SQL column type, e.g. "TEXT", "REAL", "INTEGER"
}

// NewCollection returns a handle to a collection, creating its backing table
// and indexes if they do not already exist. keyCol must be the first entry
// in columns and is used as the TEXT primary key.
func NewCollection(db *DB, name string, columns []IndexedColumn) (*Collection, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("store: collection %s needs at least a key column", name)
	}
	keyCol := columns[0].Name

	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE IF NOT EXISTS %s (\n", name)
	fmt.Fprintf(&sb, "  %s TEXT PRIMARY KEY,\n", keyCol)
	for _, col := range columns[1:] {
		fmt.Fprintf(&sb, "  %s %s,\n", col.Name, col.Type)
	}
	sb.WriteString("  doc TEXT NOT NULL\n)")

	if err := db.ApplySchema(sb.String()); err != nil {
		return nil, err
	}

	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = col.Name
		if i == 0 {
			continue
		}
		idxName := fmt.Sprintf("idx_%s_%s", name, col.Name)
		ddl := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", idxName, name, col.Name)
		if err := db.ApplySchema(ddl); err != nil {
			return nil, err
		}
	}

	return &Collection{db: db, name: name, keyCol: keyCol, columns: names}, nil
}

// Put upserts a document. values must align 1:1 with the columns the
// collection was created with (key column first).
func (c *Collection) Put(values []any, doc any) error {
	if len(values) != len(c.columns) {
		return fmt.Errorf("store: put into %s: expected %d values, got %d", c.name, len(c.columns), len(values))
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: marshal document for %s: %w", c.name, err)
	}

	cols := append(append([]string{}, c.columns...), "doc")
	args := append(append([]any{}, values...), string(body))
	placeholders := make([]string, len(cols))
	for i := range placeholders {
		placeholders[i] = "?"
	}

	query := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		c.name, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	if _, err := c.db.conn.Exec(query, args...); err != nil {
		return fmt.Errorf("store: put into %s: %w", c.name, err)
	}
	return nil
}

// Get fetches a document by key and unmarshals it into dest.
func (c *Collection) Get(key string, dest any) (bool, error) {
	row := c.db.conn.QueryRow(fmt.Sprintf("SELECT doc FROM %s WHERE %s = ?", c.name, c.keyCol), key)
	var body string
	if err := row.Scan(&body); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("store: get from %s: %w", c.name, err)
	}
	if err := json.Unmarshal([]byte(body), dest); err != nil {
		return false, fmt.Errorf("store: unmarshal document from %s: %w", c.name, err)
	}
	return true, nil
}

// Delete removes a document by key.
func (c *Collection) Delete(key string) error {
	_, err := c.db.conn.Exec(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", c.name, c.keyCol), key)
	if err != nil {
		return fmt.Errorf("store: delete from %s: %w", c.name, err)
	}
	return nil
}

// Query runs an arbitrary WHERE/ORDER/LIMIT fragment against the indexed
// columns and returns the matching documents' JSON bodies in order. Callers
// unmarshal each body themselves; this keeps Collection type-agnostic.
func (c *Collection) Query(whereAndOrder string, args ...any) ([]string, error) {
	query := fmt.Sprintf("SELECT doc FROM %s %s", c.name, whereAndOrder)
	rows, err := c.db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query %s: %w", c.name, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("store: scan row from %s: %w", c.name, err)
		}
		out = append(out, body)
	}
	return out, rows.Err()
}

// Count returns the number of documents matching an optional WHERE fragment.
func (c *Collection) Count(whereClause string, args ...any) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", c.name, whereClause)
	var n int
	if err := c.db.conn.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count %s: %w", c.name, err)
	}
	return n, nil
}
