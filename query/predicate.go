// Package query describes entity queries as plain predicate values. Stores
// translate them into their own query language or evaluate them in memory
// with Eval; callers never depend on a store's query builder.
package query

import (
	"github.com/nci/eoselect/model"
)

// Predicate is one condition on an entity. The set of predicates is closed:
// stores switch on the concrete types below.
type Predicate interface {
	predicate()
}

// Containment selects how an entity's extent is tested against a range.
type Containment int

const (
	// Overlaps matches when begin <= upper and end >= lower.
	Overlaps Containment = iota
	// Contains matches when begin >= lower and end <= upper.
	Contains
)

func (c Containment) String() string {
	if c == Contains {
		return "contains"
	}
	return "overlaps"
}

type IdentifierIn struct {
	Identifiers []string
}

type KeyIn struct {
	Keys []int64
}

// ParentIn matches entities that are direct members of one of the
// collections.
type ParentIn struct {
	Keys []int64
}

type KindIs struct {
	Kind model.Kind
}

// AxisRange restricts the entity extent on Axis to [Low, High]. Nil bounds
// leave that side open.
type AxisRange struct {
	Axis string
	Low  *model.Value
	High *model.Value
	Mode Containment
}

// Spatial is a geometry test. WKT describes the test geometry for stores
// able to evaluate it natively; Test is authoritative.
type Spatial struct {
	Relation string
	WKT      string
	Test     func(*model.Entity) bool
}

// Func is an opaque test, always evaluated in memory.
type Func struct {
	Name string
	Test func(*model.Entity) bool
}

type Not struct {
	P Predicate
}

type And []Predicate

type Or []Predicate

func (IdentifierIn) predicate() {}
func (KeyIn) predicate()        {}
func (ParentIn) predicate()     {}
func (KindIs) predicate()       {}
func (AxisRange) predicate()    {}
func (Spatial) predicate()      {}
func (Func) predicate()         {}
func (Not) predicate()          {}
func (And) predicate()          {}
func (Or) predicate()           {}

// ParentLookup returns the keys of the collections directly holding key.
type ParentLookup func(key int64) []int64

// Eval evaluates p against e. parents may be nil, in which case ParentIn
// never matches.
func Eval(p Predicate, e *model.Entity, parents ParentLookup) bool {
	switch p := p.(type) {
	case IdentifierIn:
		for _, id := range p.Identifiers {
			if id == e.Identifier {
				return true
			}
		}
		return false
	case KeyIn:
		for _, k := range p.Keys {
			if k == e.Key {
				return true
			}
		}
		return false
	case ParentIn:
		if parents == nil {
			return false
		}
		for _, pk := range parents(e.Key) {
			for _, k := range p.Keys {
				if k == pk {
					return true
				}
			}
		}
		return false
	case KindIs:
		return e.Kind == p.Kind
	case AxisRange:
		return p.Match(e)
	case Spatial:
		return p.Test == nil || p.Test(e)
	case Func:
		return p.Test == nil || p.Test(e)
	case Not:
		return !Eval(p.P, e, parents)
	case And:
		for _, sub := range p {
			if !Eval(sub, e, parents) {
				return false
			}
		}
		return true
	case Or:
		for _, sub := range p {
			if Eval(sub, e, parents) {
				return true
			}
		}
		return false
	}
	return false
}

// Match tests the entity extent on the range axis.
func (r AxisRange) Match(e *model.Entity) bool {
	ext := e.Extent(r.Axis)
	if r.Mode == Contains {
		if r.Low != nil {
			if ext.Low == nil {
				return false
			}
			if c, ok := ext.Low.Compare(*r.Low); !ok || c < 0 {
				return false
			}
		}
		if r.High != nil {
			if ext.High == nil {
				return false
			}
			if c, ok := ext.High.Compare(*r.High); !ok || c > 0 {
				return false
			}
		}
		return true
	}

	if r.High != nil && ext.Low != nil {
		if c, ok := ext.Low.Compare(*r.High); !ok || c > 0 {
			return false
		}
	}
	if r.Low != nil && ext.High != nil {
		if c, ok := ext.High.Compare(*r.Low); !ok || c < 0 {
			return false
		}
	}
	return true
}
