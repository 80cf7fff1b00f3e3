package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nci/eoselect/model"
	"github.com/nci/eoselect/query"
)

func day(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func identifiers(entities []*model.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.Identifier
	}
	return out
}

func newTestStore(t *testing.T) *MemoryStore {
	s := NewMemoryStore()
	require.NoError(t, s.Add(&model.Entity{Identifier: "A", Kind: model.KindCollection}))
	require.NoError(t, s.Add(&model.Entity{Identifier: "B", Kind: model.KindCollection}))
	require.NoError(t, s.Add(&model.Entity{Identifier: "D", BeginTime: day("2020-01-10"), EndTime: day("2020-01-11")}))
	require.NoError(t, s.Add(&model.Entity{Identifier: "E", BeginTime: day("2020-03-01"), EndTime: day("2020-03-02")}))
	require.NoError(t, s.Add(&model.Entity{Identifier: "F"}))
	require.NoError(t, s.Link("A", "B"))
	require.NoError(t, s.Link("B", "D"))
	require.NoError(t, s.Link("B", "E"))
	return s
}

func TestMemoryStoreAdd(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, 5, s.Len())

	err := s.Add(&model.Entity{Identifier: "A"})
	assert.ErrorIs(t, err, ErrDuplicateIdentifier)

	err = s.Add(&model.Entity{Key: 1, Identifier: "Z"})
	assert.Error(t, err)

	e := &model.Entity{Key: 42, Identifier: "K"}
	require.NoError(t, s.Add(e))
	next := &model.Entity{Identifier: "L"}
	require.NoError(t, s.Add(next))
	assert.Equal(t, int64(43), next.Key)
}

func TestMemoryStoreLink(t *testing.T) {
	s := newTestStore(t)

	assert.ErrorIs(t, s.Link("D", "E"), ErrNotACollection)
	assert.ErrorIs(t, s.Link("A", "nope"), ErrUnknownEntity)
	assert.ErrorIs(t, s.Link("nope", "A"), ErrUnknownEntity)

	require.NoError(t, s.Link("B", "D"))
	require.NoError(t, s.Link("B", "A"))

	ctx := context.Background()
	b, err := s.Get(ctx, "B")
	require.NoError(t, err)
	children, err := s.Children(ctx, b.Key)
	require.NoError(t, err)
	assert.Equal(t, []string{"D", "E", "A"}, identifiers(children))
}

func TestMemoryStoreGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e, err := s.Get(ctx, "D")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "D", e.Identifier)

	e, err = s.Get(ctx, "missing")
	assert.NoError(t, err)
	assert.Nil(t, e)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Get(cancelled, "D")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStoreQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b, err := s.Get(ctx, "B")
	require.NoError(t, err)

	q := query.New(
		query.KindIs{Kind: model.KindCoverage},
		query.Or{
			query.IdentifierIn{Identifiers: []string{"F"}},
			query.ParentIn{Keys: []int64{b.Key}},
		},
	)
	got, err := s.Query(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"D", "E", "F"}, identifiers(got))

	got, err = s.Query(ctx, q.OrderBy(query.Order{Field: query.FieldBegin, Desc: true}))
	require.NoError(t, err)
	assert.Equal(t, []string{"E", "D", "F"}, identifiers(got))

	limited := q.OrderBy(query.Order{Field: query.FieldBegin})
	limited.Limit = 2
	got, err = s.Query(ctx, limited)
	require.NoError(t, err)
	assert.Equal(t, []string{"F", "D"}, identifiers(got))

	got, err = s.Query(ctx, query.New(query.IdentifierIn{}))
	require.NoError(t, err)
	assert.Empty(t, got)
}
