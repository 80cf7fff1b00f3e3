package selection

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/nci/eoselect/model"
	"github.com/nci/eoselect/query"
	"github.com/nci/eoselect/store"
	"github.com/nci/eoselect/subset"
	"github.com/nci/eoselect/utils"
)

type selectOptions struct {
	mode     *subset.Mode
	spatial  *query.Spatial
	where    *Where
	orders   []string
	limit    int
	minCount *int
}

type SelectOption func(*selectOptions)

// WithMode sets how coverages are matched against the subsets.
func WithMode(mode subset.Mode) SelectOption {
	return func(o *selectOptions) {
		o.mode = &mode
	}
}

func WithSpatial(p query.Spatial) SelectOption {
	return func(o *selectOptions) {
		o.spatial = &p
	}
}

func WithWhere(w *Where) SelectOption {
	return func(o *selectOptions) {
		o.where = w
	}
}

// WithOrder takes fields as accepted by query.ParseOrder, most significant
// first.
func WithOrder(fields ...string) SelectOption {
	return func(o *selectOptions) {
		o.orders = append(o.orders, fields...)
	}
}

func WithLimit(n int) SelectOption {
	return func(o *selectOptions) {
		o.limit = n
	}
}

// WithMinCount overrides Config.MinCoverages for one selection.
func WithMinCount(n int) SelectOption {
	return func(o *selectOptions) {
		o.minCount = &n
	}
}

// Result of a selection. Coverages are unique by key.
type Result struct {
	Coverages   []*model.Entity
	Collections *CollectionSet
	Warnings    []CyclicHierarchyWarning
}

type Selector struct {
	resolver *Resolver
	store    store.Store
	config   Config
	logger   *zap.SugaredLogger
}

func NewSelector(s store.Store, config Config, logger *zap.SugaredLogger) *Selector {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Selector{
		resolver: NewResolver(s, config, logger),
		store:    s,
		config:   config,
		logger:   logger,
	}
}

func (sel *Selector) Resolver() *Resolver {
	return sel.resolver
}

// Select returns the coverages named in roots together with the direct
// members of every collection reachable from them, filtered by the subsets
// under the selection mode and by the optional spatial and where tests.
func (sel *Selector) Select(ctx context.Context, roots []string, filter subset.Filter, opts ...SelectOption) (*Result, error) {
	start := time.Now()
	o := selectOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	mode := sel.config.DefaultMode
	if o.mode != nil {
		mode = *o.mode
	}
	minCount := sel.config.MinCoverages
	if o.minCount != nil {
		minCount = *o.minCount
	}
	if o.limit < 0 || minCount < 0 {
		return nil, errors.Newf("limit and minimum must not be negative: limit %d, min %d", o.limit, minCount)
	}

	orders := make([]query.Order, 0, len(o.orders))
	for _, f := range o.orders {
		order, err := query.ParseOrder(f)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	collections, err := sel.resolver.Resolve(ctx, roots, filter)
	if err != nil {
		return nil, err
	}

	ids := dedupe(roots)
	candidates := query.Or{query.IdentifierIn{Identifiers: ids}}
	if collections.Len() > 0 {
		candidates = append(candidates, query.ParentIn{Keys: collections.Keys()})
	}
	q := filter.Apply(query.New(query.KindIs{Kind: model.KindCoverage}, candidates), mode)
	if o.spatial != nil {
		q = q.Where(*o.spatial)
	}
	if o.where != nil {
		q = q.Where(o.where.Predicate())
	}
	q = q.OrderBy(orders...)
	q.Limit = o.limit

	found, err := sel.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(found))
	coverages := make([]*model.Entity, 0, len(found))
	for _, e := range found {
		if _, dup := seen[e.Key]; dup {
			continue
		}
		seen[e.Key] = struct{}{}
		coverages = append(coverages, e)
	}

	sel.logger.Debugw("selected coverages",
		utils.FieldIdentifiers, ids,
		utils.FieldSubset, filter.String(),
		utils.FieldMode, mode.String(),
		utils.FieldCount, len(coverages),
		utils.FieldDurationMS, time.Since(start).Milliseconds())

	if len(coverages) < minCount {
		return nil, errors.WithStack(&InsufficientResultsError{Found: len(coverages), Required: minCount})
	}
	return &Result{
		Coverages:   coverages,
		Collections: collections,
		Warnings:    collections.Warnings,
	}, nil
}
