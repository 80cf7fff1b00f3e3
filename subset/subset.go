// Package subset implements dimension subsets (trims and slices on named
// axes) and the filter applying them to entity queries.
package subset

import (
	"math"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/nci/eoselect/model"
	"github.com/nci/eoselect/query"
)

var ErrInvalidSubset = errors.New("invalid subset")

// Mode controls whether an entity must lie inside a subset or only touch it.
type Mode = query.Containment

const (
	Overlaps = query.Overlaps
	Contains = query.Contains
)

// ParseMode accepts "overlaps", "intersects", "contains" and "within".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "overlaps", "intersects":
		return Overlaps, nil
	case "contains", "within":
		return Contains, nil
	}
	return Overlaps, errors.Newf("unknown containment mode %q", s)
}

var axisAliases = map[string]string{
	"t":              model.AxisTime,
	"time":           model.AxisTime,
	"phenomenontime": model.AxisTime,
	"x":              model.AxisX,
	"lon":            model.AxisX,
	"long":           model.AxisX,
	"e":              model.AxisX,
	"easting":        model.AxisX,
	"y":              model.AxisY,
	"lat":            model.AxisY,
	"n":              model.AxisY,
	"northing":       model.AxisY,
}

// NormalizeAxis maps the common axis labels onto t, x and y. Other names
// are returned unchanged.
func NormalizeAxis(axis string) string {
	axis = strings.TrimSpace(axis)
	if a, ok := axisAliases[strings.ToLower(axis)]; ok {
		return a
	}
	return axis
}

// Subset is a constraint on one axis. Nil bounds are open.
type Subset struct {
	axis string
	low  *model.Value
	high *model.Value
}

// New validates and builds a trim on axis.
func New(axis string, low, high *model.Value) (Subset, error) {
	axis = NormalizeAxis(axis)
	if axis == "" {
		return Subset{}, errors.Wrap(ErrInvalidSubset, "empty axis name")
	}
	for _, v := range []*model.Value{low, high} {
		if v == nil {
			continue
		}
		if axis == model.AxisTime && !v.IsTime() {
			return Subset{}, errors.Wrapf(ErrInvalidSubset, "axis %s requires timestamps, got %v", axis, v)
		}
		if f := v.Float(); !v.IsTime() && (math.IsNaN(f) || math.IsInf(f, 0)) {
			return Subset{}, errors.Wrapf(ErrInvalidSubset, "axis %s: bound %v is not finite", axis, f)
		}
	}
	if low != nil && high != nil {
		c, ok := low.Compare(*high)
		if !ok {
			return Subset{}, errors.Wrapf(ErrInvalidSubset, "axis %s mixes timestamps and numbers", axis)
		}
		if c > 0 {
			return Subset{}, errors.Wrapf(ErrInvalidSubset, "axis %s: lower bound %v is after upper bound %v", axis, low, high)
		}
	}
	return Subset{axis: axis, low: copyValue(low), high: copyValue(high)}, nil
}

// Slice builds a subset pinned to a single position.
func Slice(axis string, at model.Value) (Subset, error) {
	return New(axis, &at, &at)
}

func (s Subset) Axis() string {
	return s.axis
}

func (s Subset) Low() *model.Value {
	return copyValue(s.low)
}

func (s Subset) High() *model.Value {
	return copyValue(s.high)
}

func (s Subset) IsSlice() bool {
	if s.low == nil || s.high == nil {
		return false
	}
	c, ok := s.low.Compare(*s.high)
	return ok && c == 0
}

// Predicate returns the query form of the subset under mode.
func (s Subset) Predicate(mode Mode) query.AxisRange {
	return query.AxisRange{Axis: s.axis, Low: copyValue(s.low), High: copyValue(s.high), Mode: mode}
}

func (s Subset) String() string {
	bound := func(v *model.Value) string {
		if v == nil {
			return "*"
		}
		return v.String()
	}
	if s.IsSlice() {
		return s.axis + "(" + bound(s.low) + ")"
	}
	return s.axis + "(" + bound(s.low) + "," + bound(s.high) + ")"
}

func copyValue(v *model.Value) *model.Value {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
