// Package model holds the entities a selection runs over: collections that
// aggregate other entities and coverages that are the leaves of the
// hierarchy.
package model

import (
	"time"

	"github.com/paulmach/orb"
)

// Axis names with a built-in meaning.
const (
	AxisTime = "t"
	AxisX    = "x"
	AxisY    = "y"
)

type Kind int

const (
	KindCoverage Kind = iota
	KindCollection
)

func (k Kind) String() string {
	switch k {
	case KindCollection:
		return "collection"
	case KindCoverage:
		return "coverage"
	}
	return "unknown"
}

// ParseKind accepts the names produced by Kind.String.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "collection":
		return KindCollection, true
	case "coverage":
		return KindCoverage, true
	}
	return KindCoverage, false
}

// Extent is the closed range an entity covers on one axis. A nil bound is
// unbounded on that side.
type Extent struct {
	Low  *Value
	High *Value
}

// Entity is an addressable object of the archive. Entities are immutable
// once a store hands them out; their lifecycle belongs to the store.
type Entity struct {
	// Key is the store primary key. Two entities are the same entity when
	// their keys are equal.
	Key        int64
	Identifier string
	Kind       Kind

	// BeginTime and EndTime are inclusive; nil means unbounded.
	BeginTime *time.Time
	EndTime   *time.Time

	// Footprint is expressed in lon/lat (EPSG:4326).
	Footprint orb.Geometry

	// GeoTransform follows the GDAL affine convention for gridded coverages.
	GeoTransform *[6]float64

	Extents    map[string]Extent
	Attributes map[string]interface{}
}

func (e *Entity) IsCollection() bool {
	return e.Kind == KindCollection
}

// Extent returns the entity's range on axis. The time axis comes from the
// begin/end times, x and y from the footprint bounding box, anything else
// from Extents. Entities without a value on an axis are unbounded on it.
func (e *Entity) Extent(axis string) Extent {
	switch axis {
	case AxisTime:
		var ext Extent
		if e.BeginTime != nil {
			v := Time(*e.BeginTime)
			ext.Low = &v
		}
		if e.EndTime != nil {
			v := Time(*e.EndTime)
			ext.High = &v
		}
		return ext
	case AxisX, AxisY:
		if e.Footprint == nil {
			return Extent{}
		}
		b := e.Footprint.Bound()
		lo, hi := Number(b.Min.X()), Number(b.Max.X())
		if axis == AxisY {
			lo, hi = Number(b.Min.Y()), Number(b.Max.Y())
		}
		return Extent{Low: &lo, High: &hi}
	}
	if ext, ok := e.Extents[axis]; ok {
		return ext
	}
	return Extent{}
}
