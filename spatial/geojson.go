package spatial

import (
	"encoding/json"
	"os"

	"github.com/cockroachdb/errors"
	geo "github.com/nci/geometry"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ParseGeoJSON reads a GeoJSON Feature, FeatureCollection or bare geometry.
// Features carry Point, Polygon or MultiPolygon geometries; a collection
// becomes an orb.Collection of its feature geometries.
func ParseGeoJSON(raw []byte) (orb.Geometry, error) {
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, errors.Wrapf(ErrInvalidGeometry, "geojson: %v", err)
	}

	switch header.Type {
	case "Feature":
		var feat geo.Feature
		if err := json.Unmarshal(raw, &feat); err != nil {
			return nil, errors.Wrapf(ErrInvalidGeometry, "geojson feature: %v", err)
		}
		return featureGeometry(feat.Geometry)
	case "FeatureCollection":
		var fc geo.FeatureCollection
		if err := json.Unmarshal(raw, &fc); err != nil {
			return nil, errors.Wrapf(ErrInvalidGeometry, "geojson feature collection: %v", err)
		}
		if len(fc.Features) == 0 {
			return nil, errors.Wrap(ErrInvalidGeometry, "feature collection without features")
		}
		var out orb.Collection
		for _, f := range fc.Features {
			g, err := featureGeometry(f.Geometry)
			if err != nil {
				return nil, err
			}
			out = append(out, g)
		}
		if len(out) == 1 {
			return out[0], nil
		}
		return out, nil
	case "":
		return nil, errors.Wrap(ErrInvalidGeometry, "geojson without type")
	}

	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidGeometry, "geojson geometry: %v", err)
	}
	if g.Geometry() == nil {
		return nil, errors.Wrapf(ErrUnsupportedGeometry, "geojson type %s", header.Type)
	}
	return g.Geometry(), nil
}

// LoadGeoJSONFile reads a GeoJSON document from path.
func LoadGeoJSONFile(path string) (orb.Geometry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	g, err := ParseGeoJSON(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return g, nil
}

func featureGeometry(g geo.Geometry) (orb.Geometry, error) {
	switch g.(type) {
	case *geo.Point, *geo.Polygon, *geo.MultiPolygon:
	case nil:
		return nil, errors.Wrap(ErrInvalidGeometry, "feature without geometry")
	default:
		return nil, errors.Wrapf(ErrUnsupportedGeometry,
			"feature geometry %T, only Point, Polygon and MultiPolygon are available", g)
	}
	return ParseWKT(g.MarshalWKT())
}
