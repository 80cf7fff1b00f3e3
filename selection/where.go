package selection

import (
	"strings"

	"github.com/cockroachdb/errors"
	goeval "github.com/edisonguo/govaluate"

	"github.com/nci/eoselect/model"
	"github.com/nci/eoselect/query"
)

var ErrInvalidExpression = errors.New("invalid where expression")

// Variables always available to a where expression. Every other variable
// names an entity attribute.
const (
	VarIdentifier = "identifier"
	VarKind       = "kind"
	VarBegin      = "begin"
	VarEnd        = "end"
)

// Where is a boolean attribute expression such as
// "cloud_cover < 20 && platform == 'landsat-8'". Date literals compare
// against begin and end as unix seconds.
type Where struct {
	source    string
	expr      *goeval.EvaluableExpression
	variables []string
}

func ParseWhere(src string) (*Where, error) {
	if len(strings.TrimSpace(src)) == 0 {
		return nil, errors.Wrap(ErrInvalidExpression, "empty expression")
	}

	expr, err := goeval.NewEvaluableExpression(src)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidExpression, "%q: %v", src, err)
	}

	w := &Where{source: src, expr: expr}
	seen := map[string]struct{}{}
	for _, token := range expr.Tokens() {
		if token.Kind != goeval.VARIABLE {
			continue
		}
		varName, ok := token.Value.(string)
		if !ok {
			return nil, errors.Wrapf(ErrInvalidExpression, "variable token '%v' failed to cast string", token.Value)
		}
		if _, found := seen[varName]; !found {
			seen[varName] = struct{}{}
			w.variables = append(w.variables, varName)
		}
	}
	return w, nil
}

func (w *Where) String() string {
	return w.source
}

// Variables lists the variables the expression refers to, in order of
// first use.
func (w *Where) Variables() []string {
	return append([]string(nil), w.variables...)
}

// Match evaluates the expression against e. Entities lacking a referenced
// attribute, or for which the expression does not yield a boolean, do not
// match.
func (w *Where) Match(e *model.Entity) bool {
	parameters := make(map[string]interface{}, len(e.Attributes)+4)
	for k, v := range e.Attributes {
		parameters[k] = numeric(v)
	}
	parameters[VarIdentifier] = e.Identifier
	parameters[VarKind] = e.Kind.String()
	if e.BeginTime != nil {
		parameters[VarBegin] = float64(e.BeginTime.Unix())
	}
	if e.EndTime != nil {
		parameters[VarEnd] = float64(e.EndTime.Unix())
	}

	for _, v := range w.variables {
		if _, found := parameters[v]; !found {
			return false
		}
	}

	result, err := w.expr.Evaluate(parameters)
	if err != nil {
		return false
	}
	val, ok := result.(bool)
	return ok && val
}

// Predicate wraps the expression for in-memory evaluation by a store.
func (w *Where) Predicate() query.Predicate {
	return query.Func{Name: "where " + w.source, Test: w.Match}
}

// numeric widens integer attributes to float64, the only number type the
// evaluator compares.
func numeric(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	}
	return v
}
