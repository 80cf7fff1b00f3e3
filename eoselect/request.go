package main

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"

	"github.com/nci/eoselect/metrics"
	"github.com/nci/eoselect/query"
	"github.com/nci/eoselect/selection"
	"github.com/nci/eoselect/spatial"
	"github.com/nci/eoselect/subset"
	"github.com/nci/eoselect/utils"
)

var errGeometryTooLarge = errors.New("spatial filter exceeds the maximum area")

func isInvalidRequest(err error) bool {
	for _, target := range []error{
		utils.ErrInvalidParam,
		subset.ErrInvalidSubset,
		selection.ErrInvalidExpression,
		query.ErrInvalidOrder,
		spatial.ErrInvalidGeometry,
		spatial.ErrUnsupportedGeometry,
		errGeometryTooLarge,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// request is a checked selection ready to run.
type request struct {
	roots  []string
	filter subset.Filter
	opts   []selection.SelectOption
}

// buildRequest turns checked parameters into selector arguments and fills
// in the selection part of the metrics record.
func (a *app) buildRequest(params utils.SelectionParams, info *metrics.SelectionInfo) (*request, error) {
	if len(params.Coverages) == 0 {
		return nil, errors.Wrap(utils.ErrInvalidParam, "no coverage given")
	}
	info.Roots = params.Coverages
	info.Subsets = params.Subsets

	filter, err := subset.ParseAll(params.Subsets)
	if err != nil {
		return nil, err
	}
	req := &request{roots: params.Coverages, filter: filter}

	if params.Mode != nil {
		mode, err := subset.ParseMode(*params.Mode)
		if err != nil {
			return nil, errors.Wrapf(utils.ErrInvalidParam, "%v", err)
		}
		info.Mode = mode.String()
		req.opts = append(req.opts, selection.WithMode(mode))
	}

	g, err := a.spatialGeometry(params)
	if err != nil {
		return nil, err
	}
	if g != nil {
		sp, err := spatial.Intersecting(g)
		if err != nil {
			return nil, err
		}
		area := spatial.Area(g)
		info.Geometry = sp.WKT
		info.GeometryArea = area
		if limit := a.config.Selection.MaxArea; limit > 0 && area > limit {
			return nil, errors.Wrapf(errGeometryTooLarge, "%g > %g", area, limit)
		}
		req.opts = append(req.opts, selection.WithSpatial(sp))
	}

	if params.Where != nil {
		where, err := selection.ParseWhere(*params.Where)
		if err != nil {
			return nil, err
		}
		req.opts = append(req.opts, selection.WithWhere(where))
	}
	if len(params.Order) > 0 {
		req.opts = append(req.opts, selection.WithOrder(params.Order...))
	}
	if params.Min != nil {
		req.opts = append(req.opts, selection.WithMinCount(*params.Min))
	}
	if params.Limit != nil {
		req.opts = append(req.opts, selection.WithLimit(*params.Limit))
	}
	return req, nil
}

// spatialGeometry returns the geometry coverages must intersect, nil when
// the request has no spatial filter.
func (a *app) spatialGeometry(params utils.SelectionParams) (orb.Geometry, error) {
	switch {
	case len(params.Point) == 2:
		return orb.Point{params.Point[0], params.Point[1]}, nil
	case len(params.BBox) == 4:
		return spatial.BBox(params.BBox[0], params.BBox[1], params.BBox[2], params.BBox[3])
	case params.Geometry != nil:
		return a.parseGeometry(*params.Geometry)
	}
	return nil, nil
}

// parseGeometry accepts inline GeoJSON, a GeoJSON file or WKT.
func (a *app) parseGeometry(s string) (orb.Geometry, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "{"):
		return spatial.ParseGeoJSON([]byte(s))
	case strings.HasSuffix(strings.ToLower(s), "json"):
		path, err := a.files.Resolve(s)
		if err != nil {
			return nil, errors.Wrapf(spatial.ErrInvalidGeometry, "%v", err)
		}
		return spatial.LoadGeoJSONFile(path)
	}
	return spatial.ParseWKT(s)
}
