// Package spatial is the geometry service of the selector. It builds the
// spatial predicates coverages are filtered with (point, bounding box and
// arbitrary geometry intersection against the entity footprint), reads
// GeoJSON and WKT input, and maps coordinates onto a raster grid.
package spatial

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"

	"github.com/nci/eoselect/model"
	"github.com/nci/eoselect/query"
)

const RelationIntersects = "intersects"

var (
	ErrUnsupportedGeometry = errors.New("unsupported geometry")
	ErrInvalidGeometry     = errors.New("invalid geometry")
)

// ParseWKT reads a WKT geometry. Runs of whitespace are collapsed first, the
// orb parser expects single spaces between ordinates.
func ParseWKT(s string) (orb.Geometry, error) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return nil, errors.Wrap(ErrInvalidGeometry, "empty wkt")
	}
	g, err := wkt.Unmarshal(s)
	if errors.Is(err, wkt.ErrUnsupportedGeometry) {
		return nil, errors.Wrapf(ErrUnsupportedGeometry, "%.40s", s)
	}
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidGeometry, "%.40s: %v", s, err)
	}
	return g, nil
}

// Point matches entities whose footprint covers (x, y).
func Point(x, y float64) query.Spatial {
	p, _ := Intersecting(orb.Point{x, y})
	return p
}

// BBox is the polygon of a bounding box.
func BBox(minX, minY, maxX, maxY float64) (orb.Polygon, error) {
	if minX > maxX || minY > maxY {
		return nil, errors.Wrapf(ErrInvalidGeometry, "bbox %g,%g,%g,%g has min above max", minX, minY, maxX, maxY)
	}
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}.ToPolygon(), nil
}

// Intersecting matches entities whose footprint intersects g. Entities
// without a footprint, or with one that cannot be compared, never match.
func Intersecting(g orb.Geometry) (query.Spatial, error) {
	target, err := decompose(g)
	if err != nil {
		return query.Spatial{}, err
	}
	bound := g.Bound()
	return query.Spatial{
		Relation: RelationIntersects,
		WKT:      wkt.MarshalString(g),
		Test: func(e *model.Entity) bool {
			if e.Footprint == nil || !bound.Intersects(e.Footprint.Bound()) {
				return false
			}
			fp, err := decompose(e.Footprint)
			if err != nil {
				return false
			}
			return fp.intersects(target)
		},
	}, nil
}

// Area is the planar area of g in squared degrees.
func Area(g orb.Geometry) float64 {
	if g == nil {
		return 0
	}
	return planar.Area(g)
}

type line struct {
	flat   orb.LineString
	sphere *s2.Polyline
}

type polygon struct {
	flat   orb.Polygon
	sphere *s2.Polygon
}

// shape is a geometry split into its parts. Vertices are located with
// planar point-in-polygon tests, boundaries included. Edges and interiors
// are compared with s2.
type shape struct {
	points []orb.Point
	lines  []line
	polys  []polygon
}

func decompose(g orb.Geometry) (shape, error) {
	var s shape
	if err := s.add(g); err != nil {
		return shape{}, err
	}
	return s, nil
}

func (s *shape) add(g orb.Geometry) error {
	switch g := g.(type) {
	case orb.Point:
		s.points = append(s.points, g)
	case orb.MultiPoint:
		s.points = append(s.points, g...)
	case orb.LineString:
		if len(g) == 0 {
			return errors.Wrap(ErrInvalidGeometry, "empty linestring")
		}
		s.lines = append(s.lines, line{flat: g, sphere: toPolyline(g)})
	case orb.MultiLineString:
		for _, l := range g {
			if err := s.add(l); err != nil {
				return err
			}
		}
	case orb.Ring:
		return s.add(orb.Polygon{g})
	case orb.Polygon:
		if len(g) == 0 {
			return errors.Wrap(ErrInvalidGeometry, "polygon without rings")
		}
		sp, err := toPolygon(g)
		if err != nil {
			return err
		}
		s.polys = append(s.polys, polygon{flat: g, sphere: sp})
	case orb.MultiPolygon:
		for _, p := range g {
			if err := s.add(p); err != nil {
				return err
			}
		}
	case orb.Bound:
		return s.add(g.ToPolygon())
	case orb.Collection:
		for _, sub := range g {
			if err := s.add(sub); err != nil {
				return err
			}
		}
	default:
		return errors.Wrapf(ErrUnsupportedGeometry, "%T", g)
	}
	return nil
}

func toPoint(p orb.Point) s2.Point {
	return s2.PointFromLatLng(s2.LatLngFromDegrees(p[1], p[0]))
}

func toPolyline(l orb.LineString) *s2.Polyline {
	pts := make(s2.Polyline, len(l))
	for i, p := range l {
		pts[i] = toPoint(p)
	}
	return &pts
}

func toPolygon(p orb.Polygon) (*s2.Polygon, error) {
	loops := make([]*s2.Loop, 0, len(p))
	for _, r := range p {
		if n := len(r); n > 1 && r[0] == r[n-1] {
			r = r[:n-1]
		}
		if len(r) < 3 {
			return nil, errors.Wrapf(ErrInvalidGeometry, "ring with %d vertices", len(r))
		}
		pts := make([]s2.Point, len(r))
		for i, v := range r {
			pts[i] = toPoint(v)
		}
		loop := s2.LoopFromPoints(pts)
		loop.Normalize()
		loops = append(loops, loop)
	}
	return s2.PolygonFromLoops(loops), nil
}

func (s shape) vertices() []orb.Point {
	out := append([]orb.Point(nil), s.points...)
	for _, l := range s.lines {
		out = append(out, l.flat...)
	}
	for _, p := range s.polys {
		for _, r := range p.flat {
			out = append(out, r...)
		}
	}
	return out
}

// covers reports whether p lies in s, boundaries included.
func (s shape) covers(p orb.Point) bool {
	for _, q := range s.points {
		if q == p {
			return true
		}
	}
	for _, l := range s.lines {
		if planar.DistanceFrom(l.flat, p) == 0 {
			return true
		}
	}
	for _, poly := range s.polys {
		if planar.PolygonContains(poly.flat, p) {
			return true
		}
	}
	return false
}

func (s shape) intersects(o shape) bool {
	for _, p := range s.vertices() {
		if o.covers(p) {
			return true
		}
	}
	for _, p := range o.vertices() {
		if s.covers(p) {
			return true
		}
	}

	for _, a := range s.polys {
		for _, b := range o.polys {
			if a.sphere.Intersects(b.sphere) {
				return true
			}
		}
		for _, l := range o.lines {
			if polygonCrossesPolyline(a.sphere, l.sphere) {
				return true
			}
		}
	}
	for _, l := range s.lines {
		for _, b := range o.polys {
			if polygonCrossesPolyline(b.sphere, l.sphere) {
				return true
			}
		}
		for _, m := range o.lines {
			if l.sphere.Intersects(m.sphere) {
				return true
			}
		}
	}
	return false
}

// polygonCrossesPolyline reports whether an edge of b crosses a loop of a.
func polygonCrossesPolyline(a *s2.Polygon, b *s2.Polyline) bool {
	if len(*b) < 2 {
		return false
	}
	for _, loop := range a.Loops() {
		for i := 0; i < loop.NumEdges(); i++ {
			edge := loop.Edge(i)
			crosser := s2.NewChainEdgeCrosser(edge.V0, edge.V1, (*b)[0])
			for _, next := range (*b)[1:] {
				if crosser.ChainCrossingSign(next) != s2.DoNotCross {
					return true
				}
			}
		}
	}
	return false
}
