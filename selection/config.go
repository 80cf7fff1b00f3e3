package selection

import (
	"github.com/cockroachdb/errors"

	"github.com/nci/eoselect/subset"
	"github.com/nci/eoselect/utils"
)

// Config is fixed when a Resolver or Selector is built.
type Config struct {
	// DefaultMode applies to coverages when a selection gives no mode.
	// Collections are always expanded with Overlaps.
	DefaultMode subset.Mode
	// MinCoverages is the default minimum result size, 0 for none.
	MinCoverages int
	// MaxDepth bounds expansion below the roots, 0 for unbounded.
	MaxDepth int
}

func DefaultConfig() Config {
	return Config{DefaultMode: subset.Overlaps}
}

// ConfigFrom converts the selection section of the configuration file.
func ConfigFrom(c utils.SelectionConfig) (Config, error) {
	mode, err := subset.ParseMode(c.DefaultMode)
	if err != nil {
		return Config{}, errors.Wrap(err, "selection default mode")
	}
	if c.MinCoverages < 0 || c.MaxDepth < 0 {
		return Config{}, errors.Newf("selection limits must not be negative: min %d, depth %d", c.MinCoverages, c.MaxDepth)
	}
	return Config{
		DefaultMode:  mode,
		MinCoverages: c.MinCoverages,
		MaxDepth:     c.MaxDepth,
	}, nil
}
