package spatial

import (
	"math"

	"github.com/cockroachdb/errors"
)

var ErrOutsideRaster = errors.New("point outside raster")

// PixelIndex maps (x, y) onto the grid described by a GDAL style
// geotransform. Rotated grids are not supported: gt[2] and gt[4] are
// ignored.
func PixelIndex(gt [6]float64, x, y float64) (px, py int, err error) {
	if gt[1] == 0 || gt[5] == 0 {
		return 0, 0, errors.Wrap(ErrOutsideRaster, "degenerate geotransform")
	}
	fx := (x - gt[0]) / gt[1]
	fy := (y - gt[3]) / gt[5]
	if math.IsNaN(fx) || math.IsNaN(fy) || fx < 0 || fy < 0 ||
		fx >= math.MaxInt32 || fy >= math.MaxInt32 {
		return 0, 0, errors.Wrapf(ErrOutsideRaster, "(%g, %g) maps to pixel (%g, %g)", x, y, fx, fy)
	}
	return int(fx), int(fy), nil
}
