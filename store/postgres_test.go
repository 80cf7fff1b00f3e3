package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/lib/pq"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nci/eoselect/model"
	"github.com/nci/eoselect/query"
)

var entityColumns = []string{
	"id", "identifier", "kind", "begin_time", "end_time",
	"st_astext", "geotransform", "extents", "attributes",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, nil), mock
}

func TestPostgresGet(t *testing.T) {
	s, mock := newMockStore(t)
	begin := time.Date(2020, 1, 10, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(entityColumns).AddRow(
		7, "D", "coverage", begin, nil,
		"POLYGON((130 -30,131 -30,131 -29,130 -29,130 -30))",
		"{130,0.01,0,-29,0,-0.01}",
		`{"band": [1, null]}`,
		`{"cloud_cover": 12}`,
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM eo_object o WHERE o.identifier = $1")).
		WithArgs("D").
		WillReturnRows(rows)

	e, err := s.Get(context.Background(), "D")
	require.NoError(t, err)
	require.NotNil(t, e)

	assert.Equal(t, int64(7), e.Key)
	assert.Equal(t, model.KindCoverage, e.Kind)
	assert.Equal(t, begin, *e.BeginTime)
	assert.Nil(t, e.EndTime)
	_, ok := e.Footprint.(orb.Polygon)
	assert.True(t, ok)
	require.NotNil(t, e.GeoTransform)
	assert.Equal(t, -0.01, e.GeoTransform[5])
	assert.Equal(t, 1.0, e.Extent("band").Low.Float())
	assert.Nil(t, e.Extent("band").High)
	assert.Equal(t, 12.0, e.Attributes["cloud_cover"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetMissing(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("FROM eo_object").
		WithArgs("X").
		WillReturnRows(sqlmock.NewRows(entityColumns))

	e, err := s.Get(context.Background(), "X")
	assert.NoError(t, err)
	assert.Nil(t, e)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUnavailable(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("FROM eo_object").
		WithArgs("D").
		WillReturnError(sql.ErrConnDone)

	_, err := s.Get(context.Background(), "D")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, sql.ErrConnDone)

	var unavailableErr *StoreUnavailableError
	require.True(t, errors.As(err, &unavailableErr))
	assert.Equal(t, "get", unavailableErr.Op)
}

func TestPostgresCorruptRecord(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("FROM eo_object").
		WithArgs("D").
		WillReturnRows(sqlmock.NewRows(entityColumns).
			AddRow(7, "D", "galaxy", nil, nil, nil, nil, nil, nil))

	_, err := s.Get(context.Background(), "D")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptEntity)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)

	for _, row := range [][]driver.Value{
		{8, "E", "coverage", nil, nil, "POLYGON((130 -30,", nil, nil, nil},
		{9, "F", "coverage", nil, nil, nil, nil, `{"band": 1}`, nil},
		{10, "G", "coverage", nil, nil, nil, nil, nil, `[1, 2]`},
	} {
		mock.ExpectQuery("FROM eo_object").
			WillReturnRows(sqlmock.NewRows(entityColumns).AddRow(row...))

		_, err = s.Query(context.Background(), query.New())
		require.Error(t, err, row[1])
		assert.ErrorIs(t, err, ErrCorruptEntity, row[1])
		assert.NotErrorIs(t, err, ErrStoreUnavailable, row[1])
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresChildren(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows(entityColumns).
		AddRow(2, "B", "collection", nil, nil, nil, nil, nil, nil).
		AddRow(3, "C", "collection", nil, nil, nil, nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("JOIN eo_collection_member m ON m.member_id = o.id WHERE m.collection_id = $1")).
		WithArgs(1).
		WillReturnRows(rows)

	children, err := s.Children(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, identifiers(children))
	assert.True(t, children[0].IsCollection())
	assert.Nil(t, children[0].Footprint)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueryPushdown(t *testing.T) {
	s, mock := newMockStore(t)
	low := model.Time(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	high := model.Time(time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC))

	q := query.New(
		query.KindIs{Kind: model.KindCoverage},
		query.Or{
			query.IdentifierIn{Identifiers: []string{"F"}},
			query.ParentIn{Keys: []int64{1, 2}},
		},
		query.AxisRange{Axis: model.AxisTime, Low: &low, High: &high},
	).OrderBy(query.Order{Field: query.FieldBegin, Desc: true})
	q.Limit = 2

	mock.ExpectQuery(regexp.QuoteMeta(
		`WHERE o.kind = $1 AND (o.identifier = ANY($2) OR ` +
			`o.id IN (SELECT member_id FROM eo_collection_member WHERE collection_id = ANY($3))) AND ` +
			`(o.begin_time IS NULL OR o.begin_time <= $4) AND (o.end_time IS NULL OR o.end_time >= $5) ` +
			`ORDER BY o.begin_time DESC NULLS LAST, o.id LIMIT $6`)).
		WithArgs("coverage", pq.Array([]string{"F"}), pq.Array([]int64{1, 2}),
			sqlmock.AnyArg(), sqlmock.AnyArg(), 2).
		WillReturnRows(sqlmock.NewRows(entityColumns).
			AddRow(4, "D", "coverage", nil, nil, nil, nil, nil, nil))

	got, err := s.Query(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []string{"D"}, identifiers(got))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueryContainsOnExtentAxis(t *testing.T) {
	s, mock := newMockStore(t)
	low, high := model.Number(1), model.Number(3)

	mock.ExpectQuery(regexp.QuoteMeta(
		`WHERE ((o.extents->($1::text)->>0)::float8 IS NOT NULL AND (o.extents->($1::text)->>0)::float8 >= $2) AND ` +
			`((o.extents->($1::text)->>1)::float8 IS NOT NULL AND (o.extents->($1::text)->>1)::float8 <= $3) ORDER BY o.id`)).
		WithArgs("band", 1.0, 3.0).
		WillReturnRows(sqlmock.NewRows(entityColumns))

	got, err := s.Query(context.Background(), query.New(
		query.AxisRange{Axis: "band", Low: &low, High: &high, Mode: query.Contains},
	))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueryResidual(t *testing.T) {
	s, mock := newMockStore(t)
	evenKeys := query.Func{Name: "even", Test: func(e *model.Entity) bool { return e.Key%2 == 0 }}

	q := query.New(
		query.KindIs{Kind: model.KindCoverage},
		query.Or{evenKeys, query.ParentIn{Keys: []int64{9}}},
		query.Spatial{Relation: "intersects", WKT: "POINT(130.5 -29.5)", Test: func(*model.Entity) bool { return true }},
	)
	q.Limit = 2

	mock.ExpectQuery(regexp.QuoteMeta(
		`WHERE o.kind = $1 AND ST_Intersects(o.footprint, ST_GeomFromText($2, 4326)) ORDER BY o.id`)).
		WithArgs("coverage", "POINT(130.5 -29.5)").
		WillReturnRows(sqlmock.NewRows(entityColumns).
			AddRow(3, "C3", "coverage", nil, nil, nil, nil, nil, nil).
			AddRow(4, "C4", "coverage", nil, nil, nil, nil, nil, nil).
			AddRow(5, "C5", "coverage", nil, nil, nil, nil, nil, nil).
			AddRow(6, "C6", "coverage", nil, nil, nil, nil, nil, nil))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT member_id, collection_id FROM eo_collection_member WHERE member_id = ANY($1)`)).
		WithArgs(pq.Array([]int64{3, 4, 5, 6})).
		WillReturnRows(sqlmock.NewRows([]string{"member_id", "collection_id"}).AddRow(3, 9))

	got, err := s.Query(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []string{"C3", "C4"}, identifiers(got))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueryIncomparableBoundStaysInMemory(t *testing.T) {
	s, mock := newMockStore(t)
	n := model.Number(5)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM eo_object o ORDER BY o.id`)).
		WillReturnRows(sqlmock.NewRows(entityColumns).
			AddRow(1, "open", "coverage", nil, nil, nil, nil, nil, nil).
			AddRow(2, "dated", "coverage", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), nil, nil, nil, nil, nil))

	got, err := s.Query(context.Background(), query.New(
		query.AxisRange{Axis: model.AxisTime, High: &n},
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"open"}, identifiers(got))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderClause(t *testing.T) {
	assert.Equal(t, "o.id", orderClause(nil))
	assert.Equal(t, `o.identifier COLLATE "C" ASC NULLS FIRST, o.end_time DESC NULLS LAST, o.id`,
		orderClause([]query.Order{{Field: query.FieldIdentifier}, {Field: query.FieldEnd, Desc: true}}))
}
