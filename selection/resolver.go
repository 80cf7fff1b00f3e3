// Package selection resolves collection containment and selects the
// coverages a request refers to.
//
// A Resolver expands root identifiers into every collection reachable
// through membership whose extent overlaps the subset filter. A Selector
// then returns the coverages that are either named directly or are direct
// members of one of those collections, filtered by the subsets under the
// requested containment mode.
package selection

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/nci/eoselect/model"
	"github.com/nci/eoselect/query"
	"github.com/nci/eoselect/store"
	"github.com/nci/eoselect/subset"
	"github.com/nci/eoselect/utils"
)

// CollectionSet is the result of an expansion: every reachable collection
// once, in discovery order.
type CollectionSet struct {
	collections []*model.Entity
	index       map[int64]int
	Warnings    []CyclicHierarchyWarning
}

func newCollectionSet() *CollectionSet {
	return &CollectionSet{index: make(map[int64]int)}
}

func (cs *CollectionSet) add(e *model.Entity) bool {
	if _, found := cs.index[e.Key]; found {
		return false
	}
	cs.index[e.Key] = len(cs.collections)
	cs.collections = append(cs.collections, e)
	return true
}

func (cs *CollectionSet) Collections() []*model.Entity {
	return append([]*model.Entity(nil), cs.collections...)
}

func (cs *CollectionSet) Keys() []int64 {
	keys := make([]int64, len(cs.collections))
	for i, c := range cs.collections {
		keys[i] = c.Key
	}
	return keys
}

func (cs *CollectionSet) Identifiers() []string {
	ids := make([]string, len(cs.collections))
	for i, c := range cs.collections {
		ids[i] = c.Identifier
	}
	return ids
}

func (cs *CollectionSet) Contains(key int64) bool {
	_, found := cs.index[key]
	return found
}

func (cs *CollectionSet) Len() int {
	return len(cs.collections)
}

type Resolver struct {
	store  store.Store
	config Config
	logger *zap.SugaredLogger
}

func NewResolver(s store.Store, config Config, logger *zap.SugaredLogger) *Resolver {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Resolver{store: s, config: config, logger: logger}
}

// Resolve expands roots into the set of collections reachable from them.
// Every root must exist; all missing identifiers are reported together in
// an UnknownIdentifierError. Root coverages are accepted and contribute no
// collections. Collections, roots included, are kept when they overlap
// filter. Store failures are returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, roots []string, filter subset.Filter) (*CollectionSet, error) {
	ids := dedupe(roots)
	if err := r.lookup(ctx, ids); err != nil {
		return nil, err
	}

	set := newCollectionSet()
	if len(ids) == 0 {
		return set, nil
	}

	q := filter.Apply(query.New(
		query.IdentifierIn{Identifiers: ids},
		query.KindIs{Kind: model.KindCollection},
	), subset.Overlaps)
	seeds, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*model.Entity, len(seeds))
	for _, s := range seeds {
		byID[s.Identifier] = s
	}
	x := &expansion{
		resolver: r,
		filter:   filter,
		set:      set,
		depth:    make(map[int64]int),
		onPath:   make(map[int64]bool),
		warned:   make(map[[2]int64]bool),
	}
	var ordered []*model.Entity
	for _, id := range ids {
		if s, found := byID[id]; found && set.add(s) {
			x.depth[s.Key] = 0
			ordered = append(ordered, s)
		}
	}

	for _, s := range ordered {
		if err := x.visit(ctx, s, 0); err != nil {
			return nil, err
		}
	}

	r.logger.Debugw("resolved collections",
		utils.FieldIdentifiers, ids,
		utils.FieldSubset, filter.String(),
		utils.FieldCount, set.Len())
	return set, nil
}

// lookup fetches every identifier and fails with all missing ones.
func (r *Resolver) lookup(ctx context.Context, ids []string) error {
	var missing, known []string
	for _, id := range ids {
		e, err := r.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if e == nil {
			missing = append(missing, id)
			continue
		}
		known = append(known, id)
	}
	if len(missing) > 0 {
		r.logger.Debugw("unknown identifiers", utils.FieldMissing, missing)
		return errors.WithStack(&UnknownIdentifierError{Missing: missing, Known: known})
	}
	return nil
}

// expansion is the state of one depth first traversal. depth holds the
// shallowest depth each collection was reached at; under a depth limit a
// collection found again on a shorter path is expanded again. onPath holds
// the collections of the current branch.
type expansion struct {
	resolver *Resolver
	filter   subset.Filter
	set      *CollectionSet
	depth    map[int64]int
	onPath   map[int64]bool
	warned   map[[2]int64]bool
}

func (x *expansion) visit(ctx context.Context, c *model.Entity, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	limit := x.resolver.config.MaxDepth
	if limit > 0 && depth >= limit {
		return nil
	}

	x.onPath[c.Key] = true
	defer delete(x.onPath, c.Key)

	children, err := x.resolver.store.Children(ctx, c.Key)
	if err != nil {
		return err
	}
	for _, child := range children {
		if !child.IsCollection() {
			continue
		}
		if x.onPath[child.Key] {
			x.warn(c, child, depth)
			continue
		}
		if !x.filter.Match(child, subset.Overlaps) {
			continue
		}
		if d, seen := x.depth[child.Key]; seen && (limit == 0 || d <= depth+1) {
			continue
		}
		x.depth[child.Key] = depth + 1
		x.set.add(child)
		if err := x.visit(ctx, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (x *expansion) warn(c, child *model.Entity, depth int) {
	edge := [2]int64{c.Key, child.Key}
	if x.warned[edge] {
		return
	}
	x.warned[edge] = true
	x.set.Warnings = append(x.set.Warnings, CyclicHierarchyWarning{Collection: c.Identifier, Child: child.Identifier})
	x.resolver.logger.Warnw("membership cycle",
		utils.FieldCollection, c.Identifier,
		utils.FieldChild, child.Identifier,
		utils.FieldDepth, depth)
}

// dedupe drops repeated identifiers, keeping the first occurrence.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, found := seen[id]; found {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
