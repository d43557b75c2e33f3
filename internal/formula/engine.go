package formula

import (
	"context"
	"math"

	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/errs"
)

// compiled is a compiled factor definition, either dialect.
type compiled interface {
	Eval(env *Env) (*Table, error)
}

// Compile parses code under the named dialect into an evaluable tree.
func Compile(code string, codeType domain.CodeType) (compiled, error) {
	switch codeType {
	case domain.CodeTypeFormula:
		return parseExpr(code)
	case domain.CodeTypeProgram:
		return parseProgram(code)
	default:
		return nil, errs.Validation("unknown code_type %q", codeType)
	}
}

// Validate structurally checks code without evaluating it: every
// identifier resolves to a known column or an already-declared program
// variable, and every call resolves to a known operator with a compatible
// argument count.
func Validate(code string, codeType domain.CodeType) error {
	switch codeType {
	case domain.CodeTypeFormula:
		n, err := parseExpr(code)
		if err != nil {
			return err
		}
		return validateNode(n, map[string]bool{})
	case domain.CodeTypeProgram:
		p, err := parseProgram(code)
		if err != nil {
			return err
		}
		declared := map[string]bool{}
		for _, a := range p.assignments {
			if err := validateNode(a.expr, declared); err != nil {
				return err
			}
			declared[a.name] = true
		}
		return validateNode(p.result, declared)
	default:
		return errs.Validation("unknown code_type %q", codeType)
	}
}

func validateNode(n Node, declared map[string]bool) error {
	switch v := n.(type) {
	case numberNode:
		return nil
	case identNode:
		if knownColumns[v.name] || declared[v.name] {
			return nil
		}
		return errs.Validation("unknown identifier %q", v.name)
	case unaryNode:
		return validateNode(v.operand, declared)
	case binaryNode:
		if err := validateNode(v.left, declared); err != nil {
			return err
		}
		return validateNode(v.right, declared)
	case callNode:
		op, ok := operators[v.name]
		if !ok {
			return errs.Validation("unknown operator %q", v.name)
		}
		if len(v.args) < op.minArgs || (op.maxArgs >= 0 && len(v.args) > op.maxArgs) {
			return errs.Validation("operator %q takes %d-%d args, got %d", v.name, op.minArgs, op.maxArgs, len(v.args))
		}
		for _, a := range v.args {
			if err := validateNode(a, declared); err != nil {
				return err
			}
		}
		return nil
	default:
		return errs.Internal("formula: unhandled node type %T", n)
	}
}

// Engine evaluates factor definitions against loaded market/base-factor
// data. It implements the marketdata FactorComputer boundary so C1 can
// resolve on-demand custom factors without importing this package's
// internals directly.
type Engine struct{}

// NewEngine returns a stateless Engine; factor code is recompiled on every
// Compute call since it is neither cached nor expected to be large.
func NewEngine() *Engine { return &Engine{} }

// Compute implements marketdata.FactorComputer.
func (e *Engine) Compute(_ context.Context, def domain.Factor, market []domain.MarketPoint, base []domain.BaseFactorPoint) ([]domain.CustomFactorPoint, error) {
	if err := Validate(def.Code, def.CodeType); err != nil {
		return nil, err
	}
	node, err := Compile(def.Code, def.CodeType)
	if err != nil {
		return nil, err
	}

	env := BuildEnv(market, base)
	table, err := node.Eval(env)
	if err != nil {
		return nil, err
	}

	var out []domain.CustomFactorPoint
	for _, d := range env.Dates {
		for _, s := range env.Symbols {
			v := table.Get(s, d)
			if math.IsNaN(v) {
				continue
			}
			out = append(out, domain.CustomFactorPoint{Date: d, Symbol: s, Value: v})
		}
	}
	return out, nil
}
