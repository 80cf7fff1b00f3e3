package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lib/pq"
	"github.com/paulmach/orb/encoding/wkt"
	"go.uber.org/zap"

	"github.com/nci/eoselect/model"
	"github.com/nci/eoselect/query"
	"github.com/nci/eoselect/utils"
)

// The archive schema:
//
//	eo_object(id bigserial, identifier text unique, kind text,
//	          begin_time timestamptz, end_time timestamptz,
//	          footprint geometry(Geometry, 4326), geotransform float8[],
//	          extents jsonb, attributes jsonb)
//	eo_collection_member(collection_id bigint, member_id bigint)
//
// extents maps an axis name to a two element [low, high] array, null for an
// open side.
const selectColumns = `o.id, o.identifier, o.kind, o.begin_time, o.end_time,
	ST_AsText(o.footprint), o.geotransform, o.extents, o.attributes`

// OpenPostgres opens a pooled connection to the archive database.
func OpenPostgres(dsn string, pool, limit int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening postgres")
	}
	db.SetMaxIdleConns(pool)
	db.SetMaxOpenConns(limit)
	return db, nil
}

// PostgresStore reads entities from a PostGIS metadata archive. Predicates
// that have an SQL form are pushed into the WHERE clause, the rest are
// evaluated on the returned rows.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

func NewPostgresStore(db *sql.DB, logger *zap.SugaredLogger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) Get(ctx context.Context, identifier string) (*model.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM eo_object o WHERE o.identifier = $1`, identifier)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	return e, nil
}

func (s *PostgresStore) Children(ctx context.Context, collectionKey int64) ([]*model.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM eo_object o
		JOIN eo_collection_member m ON m.member_id = o.id
		WHERE m.collection_id = $1 ORDER BY o.id`, collectionKey)
	if err != nil {
		return nil, unavailable("children", err)
	}
	out, err := scanEntities(rows)
	if err != nil {
		return nil, unavailable("children", err)
	}
	return out, nil
}

func (s *PostgresStore) Query(ctx context.Context, q query.Query) ([]*model.Entity, error) {
	var qb queryBuilder
	var residual []query.Predicate
	for _, p := range q.Predicates {
		clause, exact := qb.compile(p)
		if clause != "" {
			qb.addClause(clause)
		}
		if !exact {
			residual = append(residual, p)
		}
	}

	stmt := `SELECT ` + selectColumns + ` FROM eo_object o`
	if where := qb.build(); where != "" {
		stmt += ` WHERE ` + where
	}
	stmt += ` ORDER BY ` + orderClause(q.Orders)
	if q.Limit > 0 && len(residual) == 0 {
		stmt += ` LIMIT ` + qb.arg(q.Limit)
	}

	s.logger.Debugw("querying entities",
		utils.FieldSQL, stmt,
		utils.FieldArgs, len(qb.args),
		utils.FieldResidual, len(residual))

	rows, err := s.db.QueryContext(ctx, stmt, qb.args...)
	if err != nil {
		return nil, unavailable("query", err)
	}
	out, err := scanEntities(rows)
	if err != nil {
		return nil, unavailable("query", err)
	}
	if len(residual) == 0 {
		return out, nil
	}

	var parents query.ParentLookup
	if needsParents(residual) {
		if parents, err = s.parentLookup(ctx, out); err != nil {
			return nil, err
		}
	}
	filtered := out[:0]
	for _, e := range out {
		if query.New(residual...).Match(e, parents) {
			filtered = append(filtered, e)
		}
	}
	if q.Limit > 0 && len(filtered) > q.Limit {
		filtered = filtered[:q.Limit]
	}
	return filtered, nil
}

// parentLookup loads the memberships of the given entities.
func (s *PostgresStore) parentLookup(ctx context.Context, entities []*model.Entity) (query.ParentLookup, error) {
	keys := make([]int64, len(entities))
	for i, e := range entities {
		keys[i] = e.Key
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT member_id, collection_id FROM eo_collection_member WHERE member_id = ANY($1)`,
		pq.Array(keys))
	if err != nil {
		return nil, unavailable("memberships", err)
	}
	defer rows.Close()

	parents := make(map[int64][]int64)
	for rows.Next() {
		var member, collection int64
		if err := rows.Scan(&member, &collection); err != nil {
			return nil, unavailable("memberships", err)
		}
		parents[member] = append(parents[member], collection)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("memberships", err)
	}
	return func(key int64) []int64 { return parents[key] }, nil
}

func needsParents(preds []query.Predicate) bool {
	for _, p := range preds {
		switch p := p.(type) {
		case query.ParentIn:
			return true
		case query.Not:
			if needsParents([]query.Predicate{p.P}) {
				return true
			}
		case query.And:
			if needsParents(p) {
				return true
			}
		case query.Or:
			if needsParents(p) {
				return true
			}
		}
	}
	return false
}

// queryBuilder accumulates WHERE clauses and their positional arguments.
type queryBuilder struct {
	whereClauses []string
	args         []interface{}
}

func (qb *queryBuilder) addClause(clause string) {
	qb.whereClauses = append(qb.whereClauses, clause)
}

// arg registers v and returns its placeholder.
func (qb *queryBuilder) arg(v interface{}) string {
	qb.args = append(qb.args, v)
	return fmt.Sprintf("$%d", len(qb.args))
}

func (qb *queryBuilder) build() string {
	return strings.Join(qb.whereClauses, " AND ")
}

// compile returns the SQL form of p. exact is false when the clause is only
// a necessary condition (or empty) and p must also be evaluated in memory.
func (qb *queryBuilder) compile(p query.Predicate) (clause string, exact bool) {
	switch p := p.(type) {
	case query.IdentifierIn:
		if len(p.Identifiers) == 0 {
			return "FALSE", true
		}
		return "o.identifier = ANY(" + qb.arg(pq.Array(p.Identifiers)) + ")", true
	case query.KeyIn:
		if len(p.Keys) == 0 {
			return "FALSE", true
		}
		return "o.id = ANY(" + qb.arg(pq.Array(p.Keys)) + ")", true
	case query.ParentIn:
		if len(p.Keys) == 0 {
			return "FALSE", true
		}
		return "o.id IN (SELECT member_id FROM eo_collection_member WHERE collection_id = ANY(" +
			qb.arg(pq.Array(p.Keys)) + "))", true
	case query.KindIs:
		return "o.kind = " + qb.arg(p.Kind.String()), true
	case query.AxisRange:
		return qb.compileRange(p)
	case query.Spatial:
		if p.WKT == "" {
			return "", p.Test == nil
		}
		clause := "ST_Intersects(o.footprint, ST_GeomFromText(" + qb.arg(p.WKT) + ", 4326))"
		return clause, p.Test == nil
	case query.Func:
		return "", p.Test == nil
	case query.Not:
		mark := len(qb.args)
		inner, exact := qb.compile(p.P)
		if !exact || inner == "" {
			qb.args = qb.args[:mark]
			return "", false
		}
		return "NOT (" + inner + ")", true
	case query.And:
		var parts []string
		exact := true
		for _, sub := range p {
			c, ok := qb.compile(sub)
			if c != "" {
				parts = append(parts, c)
			}
			exact = exact && ok
		}
		if len(parts) == 0 {
			return "", exact
		}
		return "(" + strings.Join(parts, " AND ") + ")", exact
	case query.Or:
		if len(p) == 0 {
			return "FALSE", true
		}
		mark := len(qb.args)
		parts := make([]string, 0, len(p))
		for _, sub := range p {
			c, ok := qb.compile(sub)
			if !ok || c == "" {
				qb.args = qb.args[:mark]
				return "", false
			}
			parts = append(parts, c)
		}
		return "(" + strings.Join(parts, " OR ") + ")", true
	}
	return "", false
}

// compileRange mirrors AxisRange.Match. A missing entity bound is NULL in
// SQL and unbounded in the model, hence the IS NULL guards.
func (qb *queryBuilder) compileRange(r query.AxisRange) (string, bool) {
	var lo, hi string
	wantTime := false
	switch r.Axis {
	case model.AxisTime:
		lo, hi, wantTime = "o.begin_time", "o.end_time", true
	case model.AxisX:
		lo, hi = "ST_XMin(o.footprint)", "ST_XMax(o.footprint)"
	case model.AxisY:
		lo, hi = "ST_YMin(o.footprint)", "ST_YMax(o.footprint)"
	}
	for _, b := range []*model.Value{r.Low, r.High} {
		if b != nil && b.IsTime() != wantTime {
			// Incomparable bound kinds are resolved by the in-memory test.
			return "", false
		}
	}
	if lo == "" {
		name := qb.arg(r.Axis)
		lo = fmt.Sprintf("(o.extents->(%s::text)->>0)::float8", name)
		hi = fmt.Sprintf("(o.extents->(%s::text)->>1)::float8", name)
	}

	var parts []string
	if r.Mode == query.Contains {
		if r.Low != nil {
			parts = append(parts, fmt.Sprintf("(%s IS NOT NULL AND %s >= %s)", lo, lo, qb.arg(boundArg(r.Low))))
		}
		if r.High != nil {
			parts = append(parts, fmt.Sprintf("(%s IS NOT NULL AND %s <= %s)", hi, hi, qb.arg(boundArg(r.High))))
		}
	} else {
		if r.High != nil {
			parts = append(parts, fmt.Sprintf("(%s IS NULL OR %s <= %s)", lo, lo, qb.arg(boundArg(r.High))))
		}
		if r.Low != nil {
			parts = append(parts, fmt.Sprintf("(%s IS NULL OR %s >= %s)", hi, hi, qb.arg(boundArg(r.Low))))
		}
	}
	if len(parts) == 0 {
		return "TRUE", true
	}
	return strings.Join(parts, " AND "), true
}

func boundArg(v *model.Value) interface{} {
	if v.IsTime() {
		return v.Time()
	}
	return v.Float()
}

func orderClause(orders []query.Order) string {
	var parts []string
	for _, o := range orders {
		var col string
		switch o.Field {
		case query.FieldBegin:
			col = "o.begin_time"
		case query.FieldEnd:
			col = "o.end_time"
		default:
			col = `o.identifier COLLATE "C"`
		}
		if o.Desc {
			parts = append(parts, col+" DESC NULLS LAST")
		} else {
			parts = append(parts, col+" ASC NULLS FIRST")
		}
	}
	return strings.Join(append(parts, "o.id"), ", ")
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntities(rows *sql.Rows) ([]*model.Entity, error) {
	defer rows.Close()
	var out []*model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntity(row scanner) (*model.Entity, error) {
	var (
		e          model.Entity
		kind       string
		begin, end sql.NullTime
		footprint  sql.NullString
		gt         pq.Float64Array
		extents    []byte
		attributes []byte
	)
	if err := row.Scan(&e.Key, &e.Identifier, &kind, &begin, &end, &footprint, &gt, &extents, &attributes); err != nil {
		return nil, err
	}

	k, ok := model.ParseKind(kind)
	if !ok {
		return nil, errors.Wrapf(ErrCorruptEntity, "entity %s has unknown kind %q", e.Identifier, kind)
	}
	e.Kind = k
	e.BeginTime = nullTime(begin)
	e.EndTime = nullTime(end)

	if footprint.Valid && footprint.String != "" {
		geom, err := wkt.Unmarshal(footprint.String)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "entity %s footprint", e.Identifier), ErrCorruptEntity)
		}
		e.Footprint = geom
	}

	if len(gt) == 6 {
		var t [6]float64
		copy(t[:], gt)
		e.GeoTransform = &t
	}

	if len(extents) > 0 {
		var raw map[string][2]*float64
		if err := json.Unmarshal(extents, &raw); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "entity %s extents", e.Identifier), ErrCorruptEntity)
		}
		e.Extents = make(map[string]model.Extent, len(raw))
		for axis, b := range raw {
			e.Extents[axis] = model.Extent{Low: number(b[0]), High: number(b[1])}
		}
	}

	if len(attributes) > 0 {
		if err := json.Unmarshal(attributes, &e.Attributes); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "entity %s attributes", e.Identifier), ErrCorruptEntity)
		}
	}
	return &e, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
