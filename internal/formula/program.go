package formula

import (
	"strings"

	"github.com/aristath/factorlab/internal/errs"
)

// parseProgram compiles the program dialect: one statement per non-blank
// line, each either "NAME = expr" (binding an intermediate series under
// NAME for later lines to reference) or a bare trailing expr, whose value
// is the program's result. Comments starting with '#' are stripped.
type program struct {
	assignments []assignment
	result      Node
}

type assignment struct {
	name string
	expr Node
}

func parseProgram(src string) (*program, error) {
	lines := strings.Split(src, "\n")
	var p program
	var last Node
	sawStatement := false

	for _, raw := range lines {
		line := stripComment(raw)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if eq := findTopLevelAssign(line); eq >= 0 {
			name := strings.ToUpper(strings.TrimSpace(line[:eq]))
			if name == "" {
				return nil, errs.Validation("program: empty assignment target in %q", line)
			}
			expr, err := parseExpr(line[eq+1:])
			if err != nil {
				return nil, err
			}
			p.assignments = append(p.assignments, assignment{name: name, expr: expr})
			last = identNode{name: name}
			sawStatement = true
			continue
		}
		expr, err := parseExpr(line)
		if err != nil {
			return nil, err
		}
		last = expr
		sawStatement = true
	}

	if !sawStatement {
		return nil, errs.Validation("program: no statements")
	}
	p.result = last
	return &p, nil
}

// findTopLevelAssign returns the index of a top-level '=' (an assignment,
// not part of a nested expression) or -1 if the line has none.
func findTopLevelAssign(line string) int {
	depth := 0
	for i, r := range line {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case '=':
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}

// Eval runs every assignment in order, populating env.Vars, then evaluates
// the final expression.
func (p *program) Eval(env *Env) (*Table, error) {
	for _, a := range p.assignments {
		t, err := a.expr.Eval(env)
		if err != nil {
			return nil, err
		}
		env.Vars[a.name] = t
	}
	return p.result.Eval(env)
}
