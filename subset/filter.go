package subset

import (
	"strings"

	"github.com/nci/eoselect/model"
	"github.com/nci/eoselect/query"
)

// Filter is a set of subsets applied together. The zero value matches
// everything.
type Filter struct {
	subsets []Subset
}

func NewFilter(subsets ...Subset) Filter {
	return Filter{subsets: append([]Subset(nil), subsets...)}
}

// With returns a filter with s added.
func (f Filter) With(s Subset) Filter {
	return Filter{subsets: append(append([]Subset(nil), f.subsets...), s)}
}

func (f Filter) Subsets() []Subset {
	return append([]Subset(nil), f.subsets...)
}

func (f Filter) IsEmpty() bool {
	return len(f.subsets) == 0
}

// Apply restricts q to entities whose extent overlaps or lies within every
// subset. q itself is left untouched.
func (f Filter) Apply(q query.Query, mode Mode) query.Query {
	if len(f.subsets) == 0 {
		return q
	}
	preds := make([]query.Predicate, 0, len(f.subsets))
	for _, s := range f.subsets {
		preds = append(preds, s.Predicate(mode))
	}
	return q.Where(preds...)
}

// Match evaluates the filter against a single entity.
func (f Filter) Match(e *model.Entity, mode Mode) bool {
	for _, s := range f.subsets {
		if !s.Predicate(mode).Match(e) {
			return false
		}
	}
	return true
}

func (f Filter) String() string {
	parts := make([]string, len(f.subsets))
	for i, s := range f.subsets {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}
