package subset

import (
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/nci/eoselect/model"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	model.ISOFormat,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime accepts RFC3339 and the shorter ISO forms used in KVP requests.
// Timestamps without a zone are UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Wrapf(ErrInvalidSubset, "unrecognised timestamp %q", s)
}

// Parse reads a KVP subset expression:
//
//	t("2020-01-01","2020-01-31")
//	x,http://www.opengis.net/def/crs/EPSG/0/4326(10,20)
//	t(*,"2020-01-31")
//	t("2020-01-01")
//
// A single argument is a slice. The CRS qualifier is accepted and ignored.
func Parse(expr string) (Subset, error) {
	expr = strings.TrimSpace(expr)
	open := strings.Index(expr, "(")
	if open <= 0 || !strings.HasSuffix(expr, ")") {
		return Subset{}, errors.Wrapf(ErrInvalidSubset, "malformed subset %q", expr)
	}

	axis := expr[:open]
	if i := strings.Index(axis, ","); i >= 0 {
		axis = axis[:i]
	}
	axis = NormalizeAxis(axis)

	args, err := splitArgs(expr[open+1 : len(expr)-1])
	if err != nil {
		return Subset{}, errors.Wrapf(err, "subset %q", expr)
	}

	switch len(args) {
	case 1:
		v, err := parseBound(axis, args[0])
		if err != nil {
			return Subset{}, err
		}
		if v == nil {
			return Subset{}, errors.Wrapf(ErrInvalidSubset, "slice on %s cannot be open", axis)
		}
		return Slice(axis, *v)
	case 2:
		low, err := parseBound(axis, args[0])
		if err != nil {
			return Subset{}, err
		}
		high, err := parseBound(axis, args[1])
		if err != nil {
			return Subset{}, err
		}
		return New(axis, low, high)
	}
	return Subset{}, errors.Wrapf(ErrInvalidSubset, "subset %q takes one or two bounds, got %d", expr, len(args))
}

// ParseAll parses every expression into one filter. Two subsets on the same
// axis are rejected.
func ParseAll(exprs []string) (Filter, error) {
	var f Filter
	seen := make(map[string]struct{})
	for _, expr := range exprs {
		if strings.TrimSpace(expr) == "" {
			continue
		}
		s, err := Parse(expr)
		if err != nil {
			return Filter{}, err
		}
		if _, dup := seen[s.Axis()]; dup {
			return Filter{}, errors.Wrapf(ErrInvalidSubset, "axis %s subset more than once", s.Axis())
		}
		seen[s.Axis()] = struct{}{}
		f = f.With(s)
	}
	return f, nil
}

// splitArgs splits on commas that are not inside double quotes.
func splitArgs(body string) ([]string, error) {
	var args []string
	var cur strings.Builder
	quoted := false
	for _, r := range body {
		switch {
		case r == '"':
			quoted = !quoted
			cur.WriteRune(r)
		case r == ',' && !quoted:
			args = append(args, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if quoted {
		return nil, errors.Wrap(ErrInvalidSubset, "unterminated quote")
	}
	args = append(args, strings.TrimSpace(cur.String()))
	for _, a := range args {
		if a == "" {
			return nil, errors.Wrap(ErrInvalidSubset, "empty bound")
		}
	}
	return args, nil
}

func parseBound(axis, raw string) (*model.Value, error) {
	if raw == "*" {
		return nil, nil
	}
	quoted := len(raw) >= 2 && strings.HasPrefix(raw, `"`) && strings.HasSuffix(raw, `"`)
	s := strings.Trim(raw, `"`)

	if axis == model.AxisTime {
		t, err := ParseTime(s)
		if err != nil {
			return nil, err
		}
		v := model.Time(t)
		return &v, nil
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		v := model.Number(f)
		return &v, nil
	}
	if quoted {
		if t, err := ParseTime(s); err == nil {
			v := model.Time(t)
			return &v, nil
		}
	}
	return nil, errors.Wrapf(ErrInvalidSubset, "axis %s: cannot parse bound %s", axis, raw)
}
