// Package resultstore is the result store & query surface (C8): factor and
// task record persistence, the result-bundle collection, and the
// paginated/sorted factor listing query.
package resultstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/errs"
	"github.com/aristath/factorlab/internal/store"
	"github.com/google/uuid"
)

// FactorStore persists user_factors: one document per factor_id, with a
// unique (user_id, factor_name) constraint enforced at the Go layer since
// Collection only supports a single-column primary key.
type FactorStore struct {
	factors *store.Collection
}

// NewFactorStore opens (creating if necessary) the user_factors collection.
func NewFactorStore(db *store.DB) (*FactorStore, error) {
	factors, err := store.NewCollection(db, "user_factors", []store.IndexedColumn{
		{Name: "factor_id", Type: "TEXT"},
		{Name: "user_id", Type: "TEXT"},
		{Name: "factor_name", Type: "TEXT"},
		{Name: "updated_at", Type: "TEXT"},
		{Name: "created_at", Type: "TEXT"},
	})
	if err != nil {
		return nil, err
	}
	return &FactorStore{factors: factors}, nil
}

// Create inserts a new factor, rejecting a duplicate (user_id, factor_name).
func (s *FactorStore) Create(_ context.Context, f domain.Factor) (domain.Factor, error) {
	existing, err := s.ByUserAndName(context.Background(), f.UserID, f.FactorName)
	if err != nil {
		return domain.Factor{}, err
	}
	if existing != nil {
		return domain.Factor{}, errs.Validation("factor %q already exists for this user", f.FactorName)
	}

	now := time.Now()
	f.FactorID = uuid.NewString()
	f.Status = domain.FactorStatusIdle
	f.CreatedAt = now
	f.UpdatedAt = now

	if err := s.put(f); err != nil {
		return domain.Factor{}, err
	}
	return f, nil
}

// Update overwrites an existing factor's mutable fields. Missing id is a
// DataAvailability error (callers map this to 404).
func (s *FactorStore) Update(ctx context.Context, factorID string, mutate func(*domain.Factor) error) (domain.Factor, error) {
	f, err := s.Get(ctx, factorID)
	if err != nil {
		return domain.Factor{}, err
	}
	if f == nil {
		return domain.Factor{}, errs.DataAvailability("factor %s not found", factorID)
	}

	if mutate != nil {
		if err := mutate(f); err != nil {
			return domain.Factor{}, err
		}
	}

	if dup, err := s.ByUserAndName(ctx, f.UserID, f.FactorName); err != nil {
		return domain.Factor{}, err
	} else if dup != nil && dup.FactorID != f.FactorID {
		return domain.Factor{}, errs.Validation("factor %q already exists for this user", f.FactorName)
	}

	f.UpdatedAt = time.Now()
	if err := s.put(*f); err != nil {
		return domain.Factor{}, err
	}
	return *f, nil
}

// Delete removes a factor by id.
func (s *FactorStore) Delete(_ context.Context, factorID string) error {
	return s.factors.Delete(factorID)
}

// Get fetches a factor by id, returning nil if absent.
func (s *FactorStore) Get(_ context.Context, factorID string) (*domain.Factor, error) {
	var f domain.Factor
	ok, err := s.factors.Get(factorID, &f)
	if err != nil || !ok {
		return nil, err
	}
	return &f, nil
}

// ByUserAndName looks up a factor by its unique (user_id, factor_name) pair,
// returning nil if none exists.
func (s *FactorStore) ByUserAndName(_ context.Context, userID, factorName string) (*domain.Factor, error) {
	bodies, err := s.factors.Query("WHERE user_id = ? AND factor_name = ?", userID, factorName)
	if err != nil {
		return nil, err
	}
	if len(bodies) == 0 {
		return nil, nil
	}
	var f domain.Factor
	if err := json.Unmarshal([]byte(bodies[0]), &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// ByUser lists every factor owned by userID, unordered; callers apply
// sorting/pagination (see List in query.go).
func (s *FactorStore) ByUser(_ context.Context, userID string) ([]domain.Factor, error) {
	bodies, err := s.factors.Query("WHERE user_id = ?", userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Factor, 0, len(bodies))
	for _, body := range bodies {
		var f domain.Factor
		if err := json.Unmarshal([]byte(body), &f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// SetCurrentTask mirrors the factor's running task id and status.
func (s *FactorStore) SetCurrentTask(ctx context.Context, factorID, taskID string, status domain.FactorStatus) error {
	f, err := s.Get(ctx, factorID)
	if err != nil {
		return err
	}
	if f == nil {
		return errs.DataAvailability("factor %s not found", factorID)
	}
	f.CurrentTaskID = taskID
	f.Status = status
	f.UpdatedAt = time.Now()
	return s.put(*f)
}

func (s *FactorStore) put(f domain.Factor) error {
	return s.factors.Put([]any{
		f.FactorID, f.UserID, f.FactorName,
		f.UpdatedAt.Format(time.RFC3339Nano), f.CreatedAt.Format(time.RFC3339Nano),
	}, f)
}
