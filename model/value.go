package model

import (
	"strconv"
	"time"
)

// ISOFormat is the layout used to print timestamps.
const ISOFormat = "2006-01-02T15:04:05.000Z"

type valueKind uint8

const (
	numberValue valueKind = iota
	timeValue
)

// Value is a scalar position on an axis: either a timestamp or a number.
// Values of different kinds do not compare.
type Value struct {
	kind valueKind
	t    time.Time
	f    float64
}

func Time(t time.Time) Value {
	return Value{kind: timeValue, t: t.UTC()}
}

func Number(f float64) Value {
	return Value{kind: numberValue, f: f}
}

func (v Value) IsTime() bool {
	return v.kind == timeValue
}

func (v Value) Time() time.Time {
	return v.t
}

func (v Value) Float() float64 {
	return v.f
}

// Compare returns -1, 0 or +1. ok is false when the two values are of
// different kinds.
func (v Value) Compare(o Value) (c int, ok bool) {
	if v.kind != o.kind {
		return 0, false
	}
	if v.kind == timeValue {
		switch {
		case v.t.Before(o.t):
			return -1, true
		case v.t.After(o.t):
			return 1, true
		}
		return 0, true
	}
	switch {
	case v.f < o.f:
		return -1, true
	case v.f > o.f:
		return 1, true
	}
	return 0, true
}

func (v Value) String() string {
	if v.kind == timeValue {
		return v.t.Format(ISOFormat)
	}
	return strconv.FormatFloat(v.f, 'g', -1, 64)
}
