package store

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v2"

	"github.com/nci/eoselect/model"
	"github.com/nci/eoselect/spatial"
	"github.com/nci/eoselect/subset"
)

// Fixture is the YAML description of a hierarchy:
//
//	collections:
//	  - identifier: A
//	    begin: 2020-01-01
//	    members: [B, C]
//	coverages:
//	  - identifier: D
//	    begin: 2020-01-10
//	    end: 2020-01-10T23:59:59Z
//	    footprint: POLYGON((0 0,1 0,1 1,0 1,0 0))
//	    geotransform: [0, 0.01, 0, 1, 0, -0.01]
//	    extents: {band: [1, 3]}
//	    attributes: {cloud_cover: 12}
type Fixture struct {
	Collections []FixtureEntity `yaml:"collections"`
	Coverages   []FixtureEntity `yaml:"coverages"`
}

type FixtureEntity struct {
	Identifier   string                 `yaml:"identifier"`
	Begin        string                 `yaml:"begin"`
	End          string                 `yaml:"end"`
	Footprint    string                 `yaml:"footprint"`
	GeoTransform []float64              `yaml:"geotransform"`
	Extents      map[string][]*float64  `yaml:"extents"`
	Attributes   map[string]interface{} `yaml:"attributes"`
	Members      []string               `yaml:"members"`
}

// LoadFixtureFile reads a YAML fixture into a new MemoryStore.
func LoadFixtureFile(path string) (*MemoryStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading fixture %s", path)
	}
	s, err := LoadFixture(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "fixture %s", path)
	}
	return s, nil
}

// LoadFixture parses YAML fixture data into a new MemoryStore.
func LoadFixture(raw []byte) (*MemoryStore, error) {
	var fx Fixture
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		return nil, errors.Wrap(err, "parsing fixture yaml")
	}
	return fx.Build()
}

// Build creates the store: all entities first, then membership links, so
// members may be declared in any order.
func (fx *Fixture) Build() (*MemoryStore, error) {
	s := NewMemoryStore()
	groups := []struct {
		kind model.Kind
		list []FixtureEntity
	}{
		{model.KindCollection, fx.Collections},
		{model.KindCoverage, fx.Coverages},
	}
	for _, g := range groups {
		for i := range g.list {
			e, err := g.list[i].entity(g.kind)
			if err != nil {
				return nil, err
			}
			if err := s.Add(e); err != nil {
				return nil, err
			}
		}
	}

	for _, c := range fx.Collections {
		for _, m := range c.Members {
			if err := s.Link(c.Identifier, m); err != nil {
				return nil, errors.Wrapf(err, "collection %s", c.Identifier)
			}
		}
	}
	for _, c := range fx.Coverages {
		if len(c.Members) > 0 {
			return nil, errors.Wrapf(ErrNotACollection, "coverage %s lists members", c.Identifier)
		}
	}
	return s, nil
}

func (fe *FixtureEntity) entity(kind model.Kind) (*model.Entity, error) {
	if strings.TrimSpace(fe.Identifier) == "" {
		return nil, errors.Newf("%s without identifier", kind)
	}
	e := &model.Entity{Identifier: fe.Identifier, Kind: kind}

	var err error
	if e.BeginTime, err = optionalTime(fe.Begin); err != nil {
		return nil, errors.Wrapf(err, "%s begin", fe.Identifier)
	}
	if e.EndTime, err = optionalTime(fe.End); err != nil {
		return nil, errors.Wrapf(err, "%s end", fe.Identifier)
	}
	if e.BeginTime != nil && e.EndTime != nil && e.EndTime.Before(*e.BeginTime) {
		return nil, errors.Newf("%s ends before it begins", fe.Identifier)
	}

	if len(strings.TrimSpace(fe.Footprint)) > 0 {
		geom, err := spatial.ParseWKT(fe.Footprint)
		if err != nil {
			return nil, errors.Wrapf(err, "%s footprint", fe.Identifier)
		}
		e.Footprint = geom
	}

	switch len(fe.GeoTransform) {
	case 0:
	case 6:
		var gt [6]float64
		copy(gt[:], fe.GeoTransform)
		e.GeoTransform = &gt
	default:
		return nil, errors.Newf("%s geotransform needs 6 coefficients, got %d", fe.Identifier, len(fe.GeoTransform))
	}

	if len(fe.Extents) > 0 {
		e.Extents = make(map[string]model.Extent, len(fe.Extents))
		for axis, bounds := range fe.Extents {
			if len(bounds) != 2 {
				return nil, errors.Newf("%s extent %s needs [low, high]", fe.Identifier, axis)
			}
			e.Extents[subset.NormalizeAxis(axis)] = model.Extent{Low: number(bounds[0]), High: number(bounds[1])}
		}
	}

	if len(fe.Attributes) > 0 {
		e.Attributes = make(map[string]interface{}, len(fe.Attributes))
		for k, v := range fe.Attributes {
			e.Attributes[k] = normaliseYAML(v)
		}
	}
	return e, nil
}

func optionalTime(s string) (*time.Time, error) {
	if len(strings.TrimSpace(s)) == 0 {
		return nil, nil
	}
	t, err := subset.ParseTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func number(f *float64) *model.Value {
	if f == nil {
		return nil
	}
	v := model.Number(*f)
	return &v
}

// normaliseYAML turns the map[interface{}]interface{} values yaml.v2
// produces into JSON-friendly maps.
func normaliseYAML(v interface{}) interface{} {
	switch v := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(v))
		for k, val := range v {
			m[fmt.Sprint(k)] = normaliseYAML(val)
		}
		return m
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = normaliseYAML(val)
		}
		return out
	case int:
		return float64(v)
	}
	return v
}
