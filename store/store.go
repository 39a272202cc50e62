// Package store compiles relay connection queries, node lookups and
// mutations into parameterized PostgreSQL statements and executes them.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/relaypg/relaypg/relay"
	"github.com/relaypg/relaypg/schema"
)

// Row keys reserved for plumbing values that ride alongside the selected
// fields. They are stripped from responses by the executor's field selection.
const (
	rowTypename = "__typename"
	rowKey      = "__key"
	fkPrefix    = "__fk_"
	refPrefix   = "__ref_"
)

// ErrNotFound is returned by Update when the targeted row does not exist.
var ErrNotFound = errors.New("row not found")

// badInputError marks an error as caused by the request rather than the
// database. The executor reads the code off the chain when building the
// response error.
type badInputError struct {
	err error
}

func (e *badInputError) Error() string       { return e.err.Error() }
func (e *badInputError) Unwrap() error       { return e.err }
func (e *badInputError) GraphQLCode() string { return "BAD_USER_INPUT" }

func badInput(err error) error {
	if err == nil {
		return nil
	}
	return &badInputError{err: err}
}

// Querier is the subset of pgxpool.Pool the store needs. pgxmock implements
// it as well, which is what the tests run against.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store executes schema-driven queries against a PostgreSQL database.
type Store struct {
	q      Querier
	schema *schema.Schema
	sb     sq.StatementBuilderType
	logger *slog.Logger
}

// New builds a store over the given connection. logger may be nil.
func New(q Querier, sc *schema.Schema, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		q:      q,
		schema: sc,
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		logger: logger,
	}
}

// Schema returns the schema the store was built with.
func (s *Store) Schema() *schema.Schema { return s.schema }

// ConnectionQuery describes one connection field resolution.
type ConnectionQuery struct {
	Model     string
	Fields    []string
	Relations []string
	Filter    map[string]any
	Order     []any
	Args      relay.Args
	NeedTotal bool
}

// Connection resolves a connection field: it computes the pagination window,
// compiles filter and order into SQL, fetches one row beyond the window and
// assembles the relay connection.
func (s *Store) Connection(ctx context.Context, q ConnectionQuery) (*relay.Connection, error) {
	model, ok := s.schema.Registry().Model(q.Model)
	if !ok {
		return nil, fmt.Errorf("unknown model %q", q.Model)
	}

	window, err := q.Args.Plan()
	if err != nil {
		return nil, badInput(err)
	}

	pred := sq.Sqlizer(sq.Expr("TRUE"))
	if len(q.Filter) > 0 {
		pred, err = CompileFilter(model, q.Filter)
		if err != nil {
			return nil, badInput(err)
		}
	}

	order, err := CompileOrder(model, q.Order)
	if err != nil {
		return nil, badInput(err)
	}

	total := -1
	if q.NeedTotal || window.NeedTotal {
		total, err = s.count(ctx, model, pred)
		if err != nil {
			return nil, err
		}
	}
	window.Resolve(total)

	var nodes []any
	if !window.Bounded() || window.Size() > 0 {
		builder := s.sb.
			Select(selectColumns(model, q.Fields, q.Relations)...).
			From(model.Table).
			Where(pred).
			OrderBy(order...)
		if window.Start > 0 {
			builder = builder.Offset(uint64(window.Start))
		}
		if limit := window.FetchLimit(); limit > 0 {
			builder = builder.Limit(uint64(limit))
		}

		rows, err := s.selectRows(ctx, model, builder)
		if err != nil {
			return nil, err
		}
		nodes = make([]any, len(rows))
		for i, r := range rows {
			nodes[i] = r
		}
	}

	return relay.Build(window, nodes, total)
}

// ByID fetches a single row by global or raw id. A missing row resolves to
// nil rather than an error, matching the nullable field type.
func (s *Store) ByID(ctx context.Context, modelName, id string, fields, relations []string) (map[string]any, error) {
	model, ok := s.schema.Registry().Model(modelName)
	if !ok {
		return nil, fmt.Errorf("unknown model %q", modelName)
	}
	key, err := s.rawKey(model, id)
	if err != nil {
		return nil, err
	}
	return s.fetchOne(ctx, model, key, fields, relations)
}

// Node resolves the Query.node field: the concrete type is carried by the
// global id itself. All scalar fields are selected since the caller cannot
// narrow them before the type is known.
func (s *Store) Node(ctx context.Context, globalID string) (map[string]any, error) {
	typeName, key, err := relay.DecodeGlobalID(globalID)
	if err != nil {
		return nil, badInput(err)
	}
	model, ok := s.schema.Registry().Model(typeName)
	if !ok || !model.Node {
		return nil, badInput(fmt.Errorf("id %q does not reference a node type", globalID))
	}

	var fields, relations []string
	for _, f := range model.Fields {
		fields = append(fields, f.Name)
	}
	for _, r := range model.Relations {
		relations = append(relations, r.Name)
	}
	return s.fetchOne(ctx, model, key, fields, relations)
}

// Create inserts a row from a create input and returns it.
func (s *Store) Create(ctx context.Context, modelName string, input map[string]any) (map[string]any, error) {
	model, ok := s.schema.Registry().Model(modelName)
	if !ok {
		return nil, fmt.Errorf("unknown model %q", modelName)
	}

	cols, vals, err := s.assignments(model, input)
	if err != nil {
		return nil, err
	}

	builder := s.sb.
		Insert(model.Table).
		Columns(cols...).
		Values(vals...).
		Suffix("RETURNING " + strings.Join(returningColumns(model), ", "))

	rows, err := s.queryMaps(ctx, builder)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert into %s returned no row", model.Table)
	}
	s.decorate(model, rows[0])
	return rows[0], nil
}

// Update applies an update input to the row with the given id and returns the
// updated row, or ErrNotFound when it does not exist.
func (s *Store) Update(ctx context.Context, modelName, id string, input map[string]any) (map[string]any, error) {
	model, ok := s.schema.Registry().Model(modelName)
	if !ok {
		return nil, fmt.Errorf("unknown model %q", modelName)
	}
	key, err := s.rawKey(model, id)
	if err != nil {
		return nil, err
	}

	cols, vals, err := s.assignments(model, input)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return s.fetchOne(ctx, model, key, allFieldNames(model), nil)
	}

	builder := s.sb.Update(model.Table)
	for i, col := range cols {
		builder = builder.Set(col, vals[i])
	}
	idField, _ := model.IDField()
	builder = builder.
		Where(sq.Eq{idField.Column: key}).
		Suffix("RETURNING " + strings.Join(returningColumns(model), ", "))

	rows, err := s.queryMaps(ctx, builder)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	s.decorate(model, rows[0])
	return rows[0], nil
}

// Delete removes the row with the given id and reports whether a row was
// deleted.
func (s *Store) Delete(ctx context.Context, modelName, id string) (bool, error) {
	model, ok := s.schema.Registry().Model(modelName)
	if !ok {
		return false, fmt.Errorf("unknown model %q", modelName)
	}
	key, err := s.rawKey(model, id)
	if err != nil {
		return false, err
	}
	idField, _ := model.IDField()

	query, args, err := s.sb.
		Delete(model.Table).
		Where(sq.Eq{idField.Column: key}).
		ToSql()
	if err != nil {
		return false, err
	}
	s.logger.Debug("executing delete", "sql", query)

	tag, err := s.q.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) count(ctx context.Context, model *schema.Model, pred sq.Sqlizer) (int, error) {
	query, args, err := s.sb.
		Select("COUNT(*)").
		From(model.Table).
		Where(pred).
		ToSql()
	if err != nil {
		return 0, err
	}
	s.logger.Debug("executing count", "sql", query)

	var total int
	if err := s.q.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) fetchOne(ctx context.Context, model *schema.Model, key any, fields, relations []string) (map[string]any, error) {
	idField, ok := model.IDField()
	if !ok {
		return nil, fmt.Errorf("model %s has no id field", model.Name)
	}

	builder := s.sb.
		Select(selectColumns(model, fields, relations)...).
		From(model.Table).
		Where(sq.Eq{idField.Column: key}).
		Limit(1)

	rows, err := s.selectRows(ctx, model, builder)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// selectRows runs a select and decorates each row with its typename and
// globalized id.
func (s *Store) selectRows(ctx context.Context, model *schema.Model, builder sq.SelectBuilder) ([]map[string]any, error) {
	rows, err := s.queryMaps(ctx, builder)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		s.decorate(model, r)
	}
	return rows, nil
}

type sqlizer interface {
	ToSql() (string, []any, error)
}

func (s *Store) queryMaps(ctx context.Context, builder sqlizer) ([]map[string]any, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	s.logger.Debug("executing query", "sql", query)

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	if err := pgxscan.ScanAll(&out, rows); err != nil {
		return nil, err
	}
	return out, nil
}

// decorate stamps the row with its concrete type and swaps the raw primary
// key for the global id the schema exposes.
func (s *Store) decorate(model *schema.Model, row map[string]any) {
	row[rowTypename] = model.Name
	if raw, ok := row["id"]; ok {
		row[rowKey] = raw
		row["id"] = relay.EncodeGlobalID(model.Name, fmt.Sprint(raw))
	}
}

// rawKey unwraps a global id to the underlying key, accepting raw keys too.
func (s *Store) rawKey(model *schema.Model, id string) (any, error) {
	typeName, raw, err := relay.DecodeGlobalID(id)
	if err != nil {
		return id, nil
	}
	if typeName != model.Name {
		return nil, badInput(fmt.Errorf("id %q does not reference a %s", id, model.Name))
	}
	return raw, nil
}

// assignments maps a create or update input onto table columns, coercing
// values per field kind.
func (s *Store) assignments(model *schema.Model, input map[string]any) ([]string, []any, error) {
	var cols []string
	var vals []any

	for _, key := range mapKeys(input) {
		field, ok := model.Field(key)
		if !ok {
			return nil, nil, badInput(fmt.Errorf("unknown field %q on %s", key, model.Name))
		}
		if field.Kind == schema.KindID {
			return nil, nil, badInput(fmt.Errorf("field %q is not assignable", key))
		}
		v, err := coerceValue(model, field, input[key])
		if err != nil {
			return nil, nil, badInput(err)
		}
		cols = append(cols, field.Column)
		vals = append(vals, v)
	}
	return cols, vals, nil
}

// selectColumns renders the column list for a node selection. Every column is
// aliased to the field name it backs so rows scan straight into response
// maps, and relation keys ride along under reserved aliases.
func selectColumns(model *schema.Model, fields, relations []string) []string {
	seen := map[string]bool{}
	var cols []string

	add := func(col, alias string) {
		if seen[alias] {
			return
		}
		seen[alias] = true
		cols = append(cols, fmt.Sprintf("%s AS %q", col, alias))
	}

	if id, ok := model.IDField(); ok {
		add(id.Column, "id")
	}
	for _, name := range fields {
		if f, ok := model.Field(name); ok {
			add(f.Column, f.Name)
		}
	}
	for _, name := range relations {
		rel, ok := model.Relation(name)
		if !ok {
			continue
		}
		switch rel.Kind {
		case schema.BelongsTo:
			add(rel.Column, fkPrefix+rel.Name)
		default:
			add(rel.References, refPrefix+rel.Name)
		}
	}
	return cols
}

func returningColumns(model *schema.Model) []string {
	cols := make([]string, len(model.Fields))
	for i, f := range model.Fields {
		cols[i] = fmt.Sprintf("%s AS %q", f.Column, f.Name)
	}
	return cols
}

func allFieldNames(model *schema.Model) []string {
	out := make([]string, len(model.Fields))
	for i, f := range model.Fields {
		out[i] = f.Name
	}
	return out
}
