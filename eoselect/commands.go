package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/nci/eoselect/model"
	"github.com/nci/eoselect/query"
	"github.com/nci/eoselect/selection"
	"github.com/nci/eoselect/spatial"
	"github.com/nci/eoselect/subset"
	"github.com/nci/eoselect/utils"
)

func newResolveCmd(root *rootOptions) *cobra.Command {
	var subsets []string
	cmd := &cobra.Command{
		Use:   "resolve COLLECTION...",
		Short: "List the collections reachable from the given identifiers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root.confPath, root.verbose)
			if err != nil {
				return err
			}
			defer a.close()

			mc := a.newCollector()
			mc.Info.URL.RawURL = "/resolve?" + url.Values{"coverage": {strings.Join(args, ",")}, "subset": subsets}.Encode()
			mc.Info.Selection.Roots = args
			mc.Info.Selection.Subsets = subsets

			err = func() error {
				filter, err := subset.ParseAll(subsets)
				if err != nil {
					return err
				}
				start := time.Now()
				set, err := a.selector.Resolver().Resolve(cmd.Context(), args, filter)
				if err != nil {
					return err
				}
				mc.Info.Selection.Duration = time.Since(start)
				mc.Info.Selection.NumCollections = set.Len()
				mc.Info.Selection.NumCycles = len(set.Warnings)

				out := newJSONLines(cmd.OutOrStdout())
				if err := out.entities(set.Collections()); err != nil {
					return err
				}
				return out.warnings(set.Warnings)
			}()
			a.finish(mc, err)
			return err
		},
	}
	cmd.Flags().StringArrayVar(&subsets, "subset", nil, `Dimension subset, e.g. t("2020-01-01","2020-01-31"). Repeatable.`)
	return cmd
}

type selectFlags struct {
	query    string
	subsets  []string
	mode     string
	point    string
	bbox     string
	geometry string
	where    string
	order    string
	min      int
	limit    int
}

func newSelectCmd(root *rootOptions) *cobra.Command {
	f := &selectFlags{}
	cmd := &cobra.Command{
		Use:   "select [COVERAGE|COLLECTION]...",
		Short: "Select the coverages of collections and coverages",
		Long: `
  Select the coverages named on the command line together with the members
  of every collection reachable from them. A whole request may be given as
  a KVP query string with --query; flags override its parameters.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root.confPath, root.verbose)
			if err != nil {
				return err
			}
			defer a.close()

			mc := a.newCollector()
			err = func() error {
				params, raw, err := selectParams(cmd, f, args)
				mc.Info.URL.RawURL = "/select?" + raw
				if err != nil {
					return err
				}
				req, err := a.buildRequest(params, mc.Info.Selection)
				if err != nil {
					return err
				}

				start := time.Now()
				res, err := a.selector.Select(cmd.Context(), req.roots, req.filter, req.opts...)
				mc.Info.Selection.Duration = time.Since(start)
				if err != nil {
					return err
				}
				mc.Info.Selection.NumCollections = res.Collections.Len()
				mc.Info.Selection.NumCoverages = len(res.Coverages)
				mc.Info.Selection.NumCycles = len(res.Warnings)

				out := newJSONLines(cmd.OutOrStdout())
				if err := out.entities(res.Coverages); err != nil {
					return err
				}
				return out.warnings(res.Warnings)
			}()
			a.finish(mc, err)
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.query, "query", "", "KVP request, e.g. coverage=A&subset=t(\"2020-01-01\")&min=2.")
	flags.StringArrayVar(&f.subsets, "subset", nil, "Dimension subset. Repeatable.")
	flags.StringVar(&f.mode, "mode", "", "Containment mode of coverages: overlaps or contains.")
	flags.StringVar(&f.point, "point", "", "Coverages must cover the point x,y.")
	flags.StringVar(&f.bbox, "bbox", "", "Coverages must intersect minx,miny,maxx,maxy.")
	flags.StringVar(&f.geometry, "geometry", "", "Coverages must intersect a WKT geometry, inline GeoJSON or a GeoJSON file.")
	flags.StringVar(&f.where, "where", "", "Attribute expression, e.g. \"cloud_cover < 20\".")
	flags.StringVar(&f.order, "order", "", "Comma separated order fields, '-' for descending.")
	flags.IntVar(&f.min, "min", 0, "Fail unless at least this many coverages are selected.")
	flags.IntVar(&f.limit, "limit", 0, "Return at most this many coverages.")
	return cmd
}

// selectParams merges --query, positional identifiers and flags and checks
// the result. raw is the merged request in KVP form.
func selectParams(cmd *cobra.Command, f *selectFlags, args []string) (utils.SelectionParams, string, error) {
	params := url.Values{}
	if f.query != "" {
		parsed, err := utils.ParseQuery(f.query)
		if err != nil {
			return utils.SelectionParams{}, f.query, errors.Wrapf(utils.ErrInvalidParam, "%v", err)
		}
		params = parsed
	}

	if len(args) > 0 {
		coverages := args
		if existing := params.Get("coverage"); existing != "" {
			coverages = append(strings.Split(existing, ","), args...)
		}
		params.Set("coverage", strings.Join(coverages, ","))
	}

	changed := cmd.Flags().Changed
	if changed("subset") {
		params["subset"] = f.subsets
	}
	for key, value := range map[string]string{
		"mode":     f.mode,
		"point":    f.point,
		"bbox":     f.bbox,
		"geometry": f.geometry,
		"where":    f.where,
		"order":    f.order,
	} {
		if changed(key) {
			params.Set(key, value)
		}
	}
	if changed("min") {
		params.Set("min", strconv.Itoa(f.min))
	}
	if changed("limit") {
		params.Set("limit", strconv.Itoa(f.limit))
	}

	raw := params.Encode()
	selParams, err := utils.SelectionParamsChecker(params, reSelectionMap)
	return selParams, raw, err
}

type sampleFlags struct {
	begin string
	end   string
	x     float64
	y     float64
}

func newSampleCmd(root *rootOptions) *cobra.Command {
	f := &sampleFlags{}
	cmd := &cobra.Command{
		Use:   "sample COLLECTION",
		Short: "Locate a point in every coverage of a collection within a time range",
		Long: `
  Select the coverages of COLLECTION overlapping [begin, end] and covering
  the point x,y, and report the pixel and line of the point in each of them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root.confPath, root.verbose)
			if err != nil {
				return err
			}
			defer a.close()

			mc := a.newCollector()
			mc.Info.URL.RawURL = "/sample?" + url.Values{
				"coverage": {args[0]},
				"begin":    {f.begin},
				"end":      {f.end},
				"point":    {fmt.Sprintf("%g,%g", f.x, f.y)},
			}.Encode()
			mc.Info.Selection.Roots = args

			err = func() error {
				filter, err := timeFilter(f.begin, f.end)
				if err != nil {
					return err
				}
				mc.Info.Selection.Subsets = []string{filter.String()}
				point := spatial.Point(f.x, f.y)
				mc.Info.Selection.Geometry = point.WKT

				start := time.Now()
				res, err := a.selector.Select(cmd.Context(), args, filter,
					selection.WithMode(subset.Overlaps),
					selection.WithSpatial(point),
					selection.WithOrder(query.FieldBegin))
				mc.Info.Selection.Duration = time.Since(start)
				if err != nil {
					return err
				}
				mc.Info.Selection.NumCollections = res.Collections.Len()
				mc.Info.Selection.NumCoverages = len(res.Coverages)
				mc.Info.Selection.NumCycles = len(res.Warnings)

				out := newJSONLines(cmd.OutOrStdout())
				for _, c := range res.Coverages {
					if err := out.write(newSampleRecord(c, f.x, f.y)); err != nil {
						return err
					}
				}
				return nil
			}()
			a.finish(mc, err)
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.begin, "begin", "", "Start of the time range.")
	flags.StringVar(&f.end, "end", "", "End of the time range.")
	flags.Float64Var(&f.x, "x", 0, "Longitude of the point.")
	flags.Float64Var(&f.y, "y", 0, "Latitude of the point.")
	_ = cmd.MarkFlagRequired("begin")
	_ = cmd.MarkFlagRequired("end")
	_ = cmd.MarkFlagRequired("x")
	_ = cmd.MarkFlagRequired("y")
	return cmd
}

func timeFilter(begin, end string) (subset.Filter, error) {
	b, err := subset.ParseTime(begin)
	if err != nil {
		return subset.Filter{}, err
	}
	e, err := subset.ParseTime(end)
	if err != nil {
		return subset.Filter{}, err
	}
	low, high := model.Time(b), model.Time(e)
	s, err := subset.New(model.AxisTime, &low, &high)
	if err != nil {
		return subset.Filter{}, err
	}
	return subset.NewFilter(s), nil
}

func newSampleRecord(c *model.Entity, x, y float64) sampleRecord {
	rec := sampleRecord{
		Identifier: c.Identifier,
		Begin:      formatTime(c.BeginTime),
		End:        formatTime(c.EndTime),
	}
	if c.GeoTransform == nil {
		rec.Error = "coverage has no geotransform"
		return rec
	}
	px, py, err := spatial.PixelIndex(*c.GeoTransform, x, y)
	if err != nil {
		rec.Error = err.Error()
		return rec
	}
	rec.Pixel = []int{px, py}
	return rec
}

func newCheckConfCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-conf",
		Short: "Validate the config file and print the effective config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config := &utils.Config{}
			if err := config.LoadConfigFile(root.confPath); err != nil {
				return err
			}
			out, err := utils.DumpConfig(config)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}
