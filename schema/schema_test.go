package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadSchema(t *testing.T) *Schema {
	t.Helper()
	sc, err := Load(testRegistry(t))
	require.NoError(t, err)
	return sc
}

func TestLoadParsesGeneratedSDL(t *testing.T) {
	sc := loadSchema(t)

	require.NotNil(t, sc.Doc())
	require.NotNil(t, sc.Doc().Query)
	require.NotNil(t, sc.Doc().Mutation)
	assert.NotEmpty(t, sc.SDL())
}

func TestQueryBindings(t *testing.T) {
	sc := loadSchema(t)

	tests := []struct {
		field string
		op    Op
		model string
	}{
		{"node", OpNode, ""},
		{"author", OpByID, "Author"},
		{"authors", OpConnection, "Author"},
		{"post", OpByID, "Post"},
		{"posts", OpConnection, "Post"},
	}
	for _, tc := range tests {
		b, ok := sc.QueryBinding(tc.field)
		require.True(t, ok, tc.field)
		assert.Equal(t, tc.op, b.Op, tc.field)
		if tc.model == "" {
			assert.Nil(t, b.Model)
		} else {
			require.NotNil(t, b.Model)
			assert.Equal(t, tc.model, b.Model.Name)
		}
	}

	_, ok := sc.QueryBinding("unknown")
	assert.False(t, ok)
}

func TestMutationBindings(t *testing.T) {
	sc := loadSchema(t)

	for field, op := range map[string]Op{
		"createAuthor": OpCreate,
		"updateAuthor": OpUpdate,
		"deleteAuthor": OpDelete,
		"createPost":   OpCreate,
	} {
		b, ok := sc.MutationBinding(field)
		require.True(t, ok, field)
		assert.Equal(t, op, b.Op, field)
		require.NotNil(t, b.Model)
	}
}

func TestFieldTypeName(t *testing.T) {
	sc := loadSchema(t)

	assert.Equal(t, "AuthorConnection", sc.FieldTypeName("Query", "authors"))
	assert.Equal(t, "AuthorEdge", sc.FieldTypeName("AuthorConnection", "edges"))
	assert.Equal(t, "Author", sc.FieldTypeName("AuthorEdge", "node"))
	assert.Equal(t, "Post", sc.FieldTypeName("Author", "posts"))
	assert.Equal(t, "String", sc.FieldTypeName("Author", "name"))
	assert.Equal(t, "", sc.FieldTypeName("Author", "missing"))
	assert.Equal(t, "", sc.FieldTypeName("Missing", "name"))
}

func TestImplements(t *testing.T) {
	sc := loadSchema(t)

	assert.True(t, sc.Implements("Author", "Node"))
	assert.True(t, sc.Implements("Post", "Node"))
	assert.False(t, sc.Implements("PageInfo", "Node"))
	assert.False(t, sc.Implements("Missing", "Node"))
}

func TestModelLookup(t *testing.T) {
	sc := loadSchema(t)

	m, ok := sc.Model("Author")
	require.True(t, ok)
	assert.Equal(t, "authors", m.Table)

	_, ok = sc.Model("PageInfo")
	assert.False(t, ok)
}
