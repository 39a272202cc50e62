package store

import (
	"context"
	"errors"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaypg/relaypg/relay"
	"github.com/relaypg/relaypg/schema"
)

func testStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()

	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(&schema.Model{
		Name:  "Author",
		Table: "authors",
		Node:  true,
		Fields: []schema.Field{
			{Name: "id", Kind: schema.KindID, Filterable: true, Orderable: true},
			{Name: "name", Kind: schema.KindString, Filterable: true, Orderable: true},
			{Name: "email", Kind: schema.KindString, Nullable: true, Filterable: true},
		},
		Relations: []schema.Relation{
			{Name: "posts", Kind: schema.HasMany, Target: "Post", Column: "author_id"},
		},
	}))
	require.NoError(t, reg.Register(&schema.Model{
		Name:  "Post",
		Table: "posts",
		Node:  true,
		Fields: []schema.Field{
			{Name: "id", Kind: schema.KindID, Filterable: true, Orderable: true},
			{Name: "title", Kind: schema.KindString, Filterable: true, Orderable: true},
		},
		Relations: []schema.Relation{
			{Name: "author", Kind: schema.BelongsTo, Target: "Author", Column: "author_id"},
		},
	}))

	sc, err := schema.Load(reg)
	require.NoError(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return New(mock, sc, nil), mock
}

func intPtr(v int) *int { return &v }

func TestConnectionFirstPage(t *testing.T) {
	st, mock := testStore(t)

	// One row beyond the window signals a next page.
	mock.ExpectQuery(`SELECT .+ FROM authors .*ORDER BY id ASC LIMIT 3`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).
			AddRow("1", "Ann").
			AddRow("2", "Ben").
			AddRow("3", "Cay"))

	conn, err := st.Connection(context.Background(), ConnectionQuery{
		Model:  "Author",
		Fields: []string{"name"},
		Args:   relay.Args{First: intPtr(2)},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, conn.Edges, 2)
	assert.True(t, conn.PageInfo.HasNextPage)
	assert.False(t, conn.PageInfo.HasPreviousPage)

	first, ok := conn.Edges[0].Node.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Author", first["__typename"])
	assert.Equal(t, relay.EncodeGlobalID("Author", "1"), first["id"])
	assert.Equal(t, "Ann", first["name"])
}

func TestConnectionWithTotalCount(t *testing.T) {
	st, mock := testStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM authors`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(`SELECT .+ FROM authors`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).
			AddRow("1", "Ann").
			AddRow("2", "Ben"))

	conn, err := st.Connection(context.Background(), ConnectionQuery{
		Model:     "Author",
		Fields:    []string{"name"},
		Args:      relay.Args{First: intPtr(2)},
		NeedTotal: true,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 7, conn.TotalCount)
	assert.True(t, conn.PageInfo.HasNextPage)
}

func TestConnectionLastResolvesAgainstCount(t *testing.T) {
	st, mock := testStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM authors`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(5))
	// last: 2 of 5 selects rows 3 and 4.
	mock.ExpectQuery(`SELECT .+ FROM authors .*OFFSET 3`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).
			AddRow("4", "Dee").
			AddRow("5", "Eli"))

	conn, err := st.Connection(context.Background(), ConnectionQuery{
		Model:  "Author",
		Fields: []string{"name"},
		Args:   relay.Args{Last: intPtr(2)},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, conn.Edges, 2)
	assert.False(t, conn.PageInfo.HasNextPage)
	assert.True(t, conn.PageInfo.HasPreviousPage)
	assert.Equal(t, relay.EncodeCursor(3), conn.Edges[0].Cursor)
}

func TestConnectionFilterAndOrderReachSQL(t *testing.T) {
	st, mock := testStore(t)

	mock.ExpectQuery(`SELECT .+ FROM authors WHERE \(name ILIKE \$1\) ORDER BY name DESC, id ASC`).
		WithArgs("%an%").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).AddRow("1", "Ann"))

	_, err := st.Connection(context.Background(), ConnectionQuery{
		Model:  "Author",
		Fields: []string{"name"},
		Filter: map[string]any{"nameIContains": "an"},
		Order:  []any{map[string]any{"field": "NAME", "direction": "DESC"}},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectionFirstZeroSkipsSelect(t *testing.T) {
	st, mock := testStore(t)

	conn, err := st.Connection(context.Background(), ConnectionQuery{
		Model: "Author",
		Args:  relay.Args{First: intPtr(0)},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, conn.Edges)
}

func TestConnectionBadArgsAreUserErrors(t *testing.T) {
	st, _ := testStore(t)

	_, err := st.Connection(context.Background(), ConnectionQuery{
		Model: "Author",
		Args:  relay.Args{First: intPtr(-1)},
	})
	require.Error(t, err)
	var coded interface{ GraphQLCode() string }
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, "BAD_USER_INPUT", coded.GraphQLCode())

	_, err = st.Connection(context.Background(), ConnectionQuery{
		Model:  "Author",
		Filter: map[string]any{"nope": 1},
	})
	require.Error(t, err)
	require.ErrorAs(t, err, &coded)
}

func TestByID(t *testing.T) {
	st, mock := testStore(t)

	mock.ExpectQuery(`SELECT .+ FROM authors WHERE id = \$1 LIMIT 1`).
		WithArgs("9").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).AddRow("9", "Zoe"))

	row, err := st.ByID(context.Background(), "Author", relay.EncodeGlobalID("Author", "9"), []string{"name"}, nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.NotNil(t, row)
	assert.Equal(t, "Zoe", row["name"])
	assert.Equal(t, relay.EncodeGlobalID("Author", "9"), row["id"])
	assert.Equal(t, "9", row["__key"])
}

func TestByIDMissingRowIsNil(t *testing.T) {
	st, mock := testStore(t)

	mock.ExpectQuery(`SELECT .+ FROM authors`).
		WithArgs("9").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}))

	row, err := st.ByID(context.Background(), "Author", "9", []string{"name"}, nil)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestByIDRejectsForeignGlobalID(t *testing.T) {
	st, _ := testStore(t)

	_, err := st.ByID(context.Background(), "Author", relay.EncodeGlobalID("Post", "9"), nil, nil)
	require.Error(t, err)
	var coded interface{ GraphQLCode() string }
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, "BAD_USER_INPUT", coded.GraphQLCode())
}

func TestNodeDispatchesOnGlobalID(t *testing.T) {
	st, mock := testStore(t)

	mock.ExpectQuery(`SELECT .+ FROM posts WHERE id = \$1 LIMIT 1`).
		WithArgs("3").
		WillReturnRows(pgxmock.NewRows([]string{"id", "title", "__fk_author"}).
			AddRow("3", "Intro", "1"))

	row, err := st.Node(context.Background(), relay.EncodeGlobalID("Post", "3"))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.NotNil(t, row)
	assert.Equal(t, "Post", row["__typename"])
	assert.Equal(t, "Intro", row["title"])
}

func TestNodeRejectsBadIDs(t *testing.T) {
	st, _ := testStore(t)

	var coded interface{ GraphQLCode() string }

	_, err := st.Node(context.Background(), "not-a-global-id")
	require.Error(t, err)
	require.ErrorAs(t, err, &coded)

	_, err = st.Node(context.Background(), relay.EncodeGlobalID("Missing", "1"))
	require.Error(t, err)
	require.ErrorAs(t, err, &coded)
}

func TestCreate(t *testing.T) {
	st, mock := testStore(t)

	mock.ExpectQuery(`INSERT INTO authors \(email,name\) VALUES \(\$1,\$2\) RETURNING .+`).
		WithArgs("ann@example.com", "Ann").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "email"}).
			AddRow("10", "Ann", "ann@example.com"))

	row, err := st.Create(context.Background(), "Author", map[string]any{
		"name":  "Ann",
		"email": "ann@example.com",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, relay.EncodeGlobalID("Author", "10"), row["id"])
	assert.Equal(t, "Ann", row["name"])
}

func TestCreateRejectsUnknownAndIDFields(t *testing.T) {
	st, _ := testStore(t)

	_, err := st.Create(context.Background(), "Author", map[string]any{"nope": 1})
	require.Error(t, err)

	_, err = st.Create(context.Background(), "Author", map[string]any{"id": "5"})
	require.Error(t, err)
	var coded interface{ GraphQLCode() string }
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, "BAD_USER_INPUT", coded.GraphQLCode())
}

func TestUpdate(t *testing.T) {
	st, mock := testStore(t)

	mock.ExpectQuery(`UPDATE authors SET name = \$1 WHERE id = \$2 RETURNING .+`).
		WithArgs("Anna", "10").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "email"}).
			AddRow("10", "Anna", nil))

	row, err := st.Update(context.Background(), "Author", "10", map[string]any{"name": "Anna"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, "Anna", row["name"])
}

func TestUpdateMissingRowIsNotFound(t *testing.T) {
	st, mock := testStore(t)

	mock.ExpectQuery(`UPDATE authors`).
		WithArgs("Anna", "10").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "email"}))

	_, err := st.Update(context.Background(), "Author", "10", map[string]any{"name": "Anna"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateEmptyInputFetchesRow(t *testing.T) {
	st, mock := testStore(t)

	mock.ExpectQuery(`SELECT .+ FROM authors WHERE id = \$1 LIMIT 1`).
		WithArgs("10").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "email"}).
			AddRow("10", "Ann", nil))

	row, err := st.Update(context.Background(), "Author", "10", map[string]any{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, "Ann", row["name"])
}

func TestDelete(t *testing.T) {
	st, mock := testStore(t)

	mock.ExpectExec(`DELETE FROM authors WHERE id = \$1`).
		WithArgs("10").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	ok, err := st.Delete(context.Background(), "Author", "10")
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec(`DELETE FROM authors`).
		WithArgs("11").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	ok, err = st.Delete(context.Background(), "Author", "11")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletePropagatesDatabaseErrors(t *testing.T) {
	st, mock := testStore(t)

	mock.ExpectExec(`DELETE FROM authors`).
		WithArgs("10").
		WillReturnError(errors.New("connection reset"))

	_, err := st.Delete(context.Background(), "Author", "10")
	require.Error(t, err)
}
