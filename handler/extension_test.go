package handler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaypg/relaypg/graph"
)

func TestComplexityLimit(t *testing.T) {
	ctx := context.Background()

	t.Run("under limit passes", func(t *testing.T) {
		ext := NewComplexityLimit(5)
		err := ext.InterceptParams(ctx, &RequestParams{Query: `{ a b }`})
		assert.NoError(t, err)
	})

	t.Run("over limit is rejected", func(t *testing.T) {
		ext := NewComplexityLimit(2)
		err := ext.InterceptParams(ctx, &RequestParams{Query: `{ a b { c } }`})
		require.Error(t, err)

		var gqlErr *graph.Error
		require.ErrorAs(t, err, &gqlErr)
		assert.Equal(t, "COMPLEXITY_LIMIT_EXCEEDED", gqlErr.Extensions["code"])
		assert.Equal(t, 3, gqlErr.Extensions["complexity"])
		assert.Equal(t, 2, gqlErr.Extensions["limit"])
	})

	t.Run("fragments count toward the limit", func(t *testing.T) {
		ext := NewComplexityLimit(2)
		err := ext.InterceptParams(ctx, &RequestParams{
			Query: `{ a ...f } fragment f on Query { b c }`,
		})
		assert.Error(t, err)
	})

	t.Run("malformed query is left to the executor", func(t *testing.T) {
		ext := NewComplexityLimit(1)
		err := ext.InterceptParams(ctx, &RequestParams{Query: `{ broken`})
		assert.NoError(t, err)
	})

	t.Run("zero limit disables the check", func(t *testing.T) {
		ext := NewComplexityLimit(0)
		err := ext.InterceptParams(ctx, &RequestParams{Query: `{ a b c d e }`})
		assert.NoError(t, err)
	})
}

func apqExtensions(hash string) map[string]any {
	return map[string]any{
		"persistedQuery": map[string]any{"version": 1, "sha256Hash": hash},
	}
}

func TestAPQRegisterAndReplay(t *testing.T) {
	ctx := context.Background()
	ext := NewAPQ()

	query := `{ __typename }`
	sum := sha256.Sum256([]byte(query))
	hash := hex.EncodeToString(sum[:])

	// Unknown hash before registration.
	params := &RequestParams{Extensions: apqExtensions(hash)}
	err := ext.InterceptParams(ctx, params)
	var gqlErr *graph.Error
	require.ErrorAs(t, err, &gqlErr)
	assert.Equal(t, "PersistedQueryNotFound", gqlErr.Message)
	assert.Equal(t, "PERSISTED_QUERY_NOT_FOUND", gqlErr.Extensions["code"])

	// Registration with the full query.
	params = &RequestParams{Query: query, Extensions: apqExtensions(hash)}
	require.NoError(t, ext.InterceptParams(ctx, params))

	// Replay by hash alone.
	params = &RequestParams{Extensions: apqExtensions(hash)}
	require.NoError(t, ext.InterceptParams(ctx, params))
	assert.Equal(t, query, params.Query)
}

func TestAPQRejectsHashMismatch(t *testing.T) {
	ext := NewAPQ()

	err := ext.InterceptParams(context.Background(), &RequestParams{
		Query:      `{ __typename }`,
		Extensions: apqExtensions(strings.Repeat("0", 64)),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestAPQIgnoresRequestsWithoutExtension(t *testing.T) {
	ext := NewAPQ()

	params := &RequestParams{Query: `{ __typename }`}
	require.NoError(t, ext.InterceptParams(context.Background(), params))
	assert.Equal(t, `{ __typename }`, params.Query)
}

func TestAPQThroughServer(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.Use(NewAPQ())

	query := `{ __typename }`
	sum := sha256.Sum256([]byte(query))
	hash := hex.EncodeToString(sum[:])

	register := fmt.Sprintf(`{"query": %q, "extensions": {"persistedQuery": {"version": 1, "sha256Hash": %q}}}`, query, hash)
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(register))
	req.Header.Set("Content-Type", "application/json")
	_, resp := doRequest(t, srv, req)
	require.Empty(t, resp.Errors)

	replay := fmt.Sprintf(`{"extensions": {"persistedQuery": {"version": 1, "sha256Hash": %q}}}`, hash)
	req = httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(replay))
	req.Header.Set("Content-Type", "application/json")
	_, resp = doRequest(t, srv, req)
	require.Empty(t, resp.Errors)
	assert.Equal(t, map[string]any{"__typename": "Query"}, resp.Data)
}

func TestIntrospectionDisabler(t *testing.T) {
	ctx := context.Background()
	ext := NewIntrospectionDisabler()

	err := ext.InterceptParams(ctx, &RequestParams{Query: `{ __schema { types { name } } }`})
	var gqlErr *graph.Error
	require.ErrorAs(t, err, &gqlErr)
	assert.Equal(t, "INTROSPECTION_DISABLED", gqlErr.Extensions["code"])

	err = ext.InterceptParams(ctx, &RequestParams{Query: `{ __type(name: "Query") { name } }`})
	assert.Error(t, err)

	err = ext.InterceptParams(ctx, &RequestParams{Query: `{ __typename }`})
	assert.NoError(t, err)
}

func TestTracingThroughServer(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.Use(NewTracing())

	req := httptest.NewRequest(http.MethodPost, "/graphql",
		strings.NewReader(`{"query": "{ __typename }"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var resp struct {
		Extensions map[string]any `json:"extensions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	tracing, ok := resp.Extensions["tracing"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), tracing["version"])
	assert.NotEmpty(t, tracing["startTime"])
	assert.NotEmpty(t, tracing["endTime"])
	assert.GreaterOrEqual(t, tracing["duration"], float64(0))
}

func TestRequestLoggerWrapsExecution(t *testing.T) {
	var buf bytes.Buffer
	ext := NewRequestLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	want := &graph.Response{Data: map[string]any{"ok": true}}
	got := ext.InterceptOperation(context.Background(), func(ctx context.Context) *graph.Response {
		return want
	})
	assert.Same(t, want, got)
	assert.Contains(t, buf.String(), "operation completed")

	buf.Reset()
	failed := &graph.Response{Errors: []*graph.Error{{Message: "boom"}}}
	ext.InterceptOperation(context.Background(), func(ctx context.Context) *graph.Response {
		return failed
	})
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "errors=1")
}

func TestErrorLoggerLogsEachError(t *testing.T) {
	var buf bytes.Buffer
	ext := NewErrorLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	resp := &graph.Response{Errors: []*graph.Error{
		{Message: "first"},
		{Message: "second"},
	}}
	got := ext.InterceptResponse(context.Background(), resp)
	assert.Same(t, resp, got)
	assert.Contains(t, buf.String(), "first")
	assert.Contains(t, buf.String(), "second")
}
