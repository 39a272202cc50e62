package relaypg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaypg/relaypg/schema"
)

func writeModels(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadModels(t *testing.T) {
	path := writeModels(t, `
models:
  - name: Author
    table: authors
    fields:
      - name: id
        kind: ID
      - name: name
        kind: String
      - name: bio
        kind: String
        nullable: true
        orderable: false
    relations:
      - name: posts
        kind: hasMany
        target: Post
        column: author_id
  - name: Post
    table: posts
    node: false
    fields:
      - name: id
        kind: ID
      - name: status
        kind: Enum
        enum: PostStatus
        enum_values: [DRAFT, PUBLISHED]
    relations:
      - name: author
        kind: belongsTo
        target: Author
        column: author_id
`)

	reg, err := LoadModels(path)
	require.NoError(t, err)

	author, ok := reg.Model("Author")
	require.True(t, ok)
	assert.True(t, author.Node)

	bio, ok := author.Field("bio")
	require.True(t, ok)
	assert.True(t, bio.Nullable)
	assert.True(t, bio.Filterable)
	assert.False(t, bio.Orderable)

	post, ok := reg.Model("Post")
	require.True(t, ok)
	assert.False(t, post.Node)

	status, ok := post.Field("status")
	require.True(t, ok)
	assert.Equal(t, schema.KindEnum, status.Kind)
	assert.Equal(t, "PostStatus", status.EnumName)
	assert.Equal(t, []string{"DRAFT", "PUBLISHED"}, status.EnumValues)

	rel, ok := post.Relation("author")
	require.True(t, ok)
	assert.Equal(t, schema.BelongsTo, rel.Kind)
	assert.Equal(t, "author_id", rel.Column)
}

func TestLoadModelsRejectsUnknownFieldKind(t *testing.T) {
	path := writeModels(t, `
models:
  - name: Author
    fields:
      - name: id
        kind: Varchar
`)

	_, err := LoadModels(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown kind "Varchar"`)
}

func TestLoadModelsRejectsUnknownRelationKind(t *testing.T) {
	path := writeModels(t, `
models:
  - name: Author
    fields:
      - name: id
        kind: ID
    relations:
      - name: posts
        kind: manyToMany
        target: Post
`)

	_, err := LoadModels(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown kind "manyToMany"`)
}

func TestLoadModelsRejectsUnknownRelationTarget(t *testing.T) {
	path := writeModels(t, `
models:
  - name: Author
    fields:
      - name: id
        kind: ID
    relations:
      - name: posts
        kind: hasMany
        target: Post
        column: author_id
`)

	_, err := LoadModels(path)
	require.Error(t, err)
}

func TestLoadModelsRejectsEmptyFile(t *testing.T) {
	path := writeModels(t, "models: []\n")

	_, err := LoadModels(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defines no models")
}

func TestLoadModelsMissingFile(t *testing.T) {
	_, err := LoadModels(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestInitTemplateModelsAreValid(t *testing.T) {
	path := writeModels(t, defaultModelsContent)

	reg, err := LoadModels(path)
	require.NoError(t, err)

	_, ok := reg.Model("Author")
	assert.True(t, ok)
	_, ok = reg.Model("Post")
	assert.True(t, ok)
}
