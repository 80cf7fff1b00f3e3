package query

import (
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/nci/eoselect/model"
)

// Orderable fields.
const (
	FieldIdentifier = "identifier"
	FieldBegin      = "begin"
	FieldEnd        = "end"
)

var ErrInvalidOrder = errors.New("invalid order")

type Order struct {
	Field string
	Desc  bool
}

// ParseOrder reads "begin", "-begin", "end", "+end", "identifier"...
// A leading '-' sorts descending.
func ParseOrder(s string) (Order, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	var o Order
	switch {
	case strings.HasPrefix(s, "-"):
		o.Desc = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	switch s {
	case FieldIdentifier, FieldBegin, FieldEnd:
		o.Field = s
	case "begin_time":
		o.Field = FieldBegin
	case "end_time":
		o.Field = FieldEnd
	default:
		return o, errors.Wrapf(ErrInvalidOrder, "unknown field %q", s)
	}
	return o, nil
}

func (o Order) String() string {
	if o.Desc {
		return "-" + o.Field
	}
	return o.Field
}

// Query is a conjunction of predicates with an optional ordering. Query
// values are never mutated in place; Where and OrderBy return copies.
type Query struct {
	Predicates []Predicate
	Orders     []Order
	Limit      int
}

func New(preds ...Predicate) Query {
	return Query{Predicates: append([]Predicate(nil), preds...)}
}

func (q Query) Where(preds ...Predicate) Query {
	out := q
	out.Predicates = make([]Predicate, 0, len(q.Predicates)+len(preds))
	out.Predicates = append(out.Predicates, q.Predicates...)
	out.Predicates = append(out.Predicates, preds...)
	return out
}

func (q Query) OrderBy(orders ...Order) Query {
	out := q
	out.Orders = append(append([]Order(nil), q.Orders...), orders...)
	return out
}

// Match evaluates every predicate of q against e.
func (q Query) Match(e *model.Entity, parents ParentLookup) bool {
	for _, p := range q.Predicates {
		if !Eval(p, e, parents) {
			return false
		}
	}
	return true
}

// Sort orders entities in place. Unbounded times sort before any bounded
// time, ties fall back to the identifier.
func Sort(entities []*model.Entity, orders []Order) {
	if len(orders) == 0 {
		return
	}
	sort.SliceStable(entities, func(i, j int) bool {
		for _, o := range orders {
			c := compareField(entities[i], entities[j], o.Field)
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareField(a, b *model.Entity, field string) int {
	switch field {
	case FieldBegin:
		return compareTimes(a.BeginTime == nil, b.BeginTime == nil, func() int {
			return compareTime(*a.BeginTime, *b.BeginTime)
		})
	case FieldEnd:
		return compareTimes(a.EndTime == nil, b.EndTime == nil, func() int {
			return compareTime(*a.EndTime, *b.EndTime)
		})
	}
	return strings.Compare(a.Identifier, b.Identifier)
}

func compareTimes(aNil, bNil bool, cmp func() int) int {
	switch {
	case aNil && bNil:
		return 0
	case aNil:
		return -1
	case bNil:
		return 1
	}
	return cmp()
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}
