package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/relaypg/relaypg/graph"
)

// Extension is the base interface for server extensions.
type Extension interface {
	ExtensionName() string
}

// ParamsInterceptor inspects or rewrites the request parameters before
// execution. Returning an error aborts the request.
type ParamsInterceptor interface {
	Extension
	InterceptParams(ctx context.Context, params *RequestParams) error
}

// OperationInterceptor wraps operation execution.
type OperationInterceptor interface {
	Extension
	InterceptOperation(ctx context.Context, next func(ctx context.Context) *graph.Response) *graph.Response
}

// ResponseInterceptor modifies the response before it is written.
type ResponseInterceptor interface {
	Extension
	InterceptResponse(ctx context.Context, response *graph.Response) *graph.Response
}

// ExtensionData contributes to the response extensions map.
type ExtensionData interface {
	Extension
	ExtensionData(ctx context.Context) map[string]any
}

// Tracing records operation timing into the response extensions.
type Tracing struct {
	version int
}

// NewTracing creates the tracing extension.
func NewTracing() *Tracing {
	return &Tracing{version: 1}
}

func (t *Tracing) ExtensionName() string { return "tracing" }

// ExtensionData returns the timing data for the request.
func (t *Tracing) ExtensionData(ctx context.Context) map[string]any {
	rc := graph.GetRequestContext(ctx)
	if rc == nil {
		return nil
	}

	return map[string]any{
		"tracing": map[string]any{
			"version":   t.version,
			"startTime": rc.StartTime.Format(time.RFC3339Nano),
			"endTime":   time.Now().Format(time.RFC3339Nano),
			"duration":  rc.Duration().Nanoseconds(),
		},
	}
}

// RequestLogger logs each operation with its duration and error count.
type RequestLogger struct {
	logger *slog.Logger
}

// NewRequestLogger creates a logger extension.
func NewRequestLogger(logger *slog.Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

func (r *RequestLogger) ExtensionName() string { return "requestLogger" }

// InterceptOperation logs around execution.
func (r *RequestLogger) InterceptOperation(ctx context.Context, next func(ctx context.Context) *graph.Response) *graph.Response {
	start := time.Now()
	response := next(ctx)

	attrs := []any{
		"duration", time.Since(start),
		"errors", len(response.Errors),
	}
	if rc := graph.GetRequestContext(ctx); rc != nil && rc.OperationName != "" {
		attrs = append(attrs, "operation", rc.OperationName)
	}
	if len(response.Errors) > 0 {
		r.logger.Warn("operation completed with errors", attrs...)
	} else {
		r.logger.Info("operation completed", attrs...)
	}
	return response
}

// ComplexityLimit rejects operations selecting more than limit fields,
// fragments included.
type ComplexityLimit struct {
	limit int
}

// NewComplexityLimit creates a complexity limit extension.
func NewComplexityLimit(limit int) *ComplexityLimit {
	return &ComplexityLimit{limit: limit}
}

func (c *ComplexityLimit) ExtensionName() string { return "complexityLimit" }

// InterceptParams counts the selected fields and rejects the operation when
// over the limit.
func (c *ComplexityLimit) InterceptParams(ctx context.Context, params *RequestParams) error {
	if c.limit <= 0 || params.Query == "" {
		return nil
	}

	complexity, err := queryComplexity(params.Query)
	if err != nil {
		// Leave malformed documents to the executor's own error reporting.
		return nil
	}
	if complexity > c.limit {
		return &graph.Error{
			Message: "query complexity exceeds limit",
			Extensions: map[string]any{
				"code":       "COMPLEXITY_LIMIT_EXCEEDED",
				"complexity": complexity,
				"limit":      c.limit,
			},
		}
	}
	return nil
}

// queryComplexity counts every field selection in the document.
func queryComplexity(query string) (int, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	if err != nil {
		return 0, err
	}

	total := 0
	for _, op := range doc.Operations {
		total += countFields(op.SelectionSet)
	}
	for _, frag := range doc.Fragments {
		total += countFields(frag.SelectionSet)
	}
	return total, nil
}

func countFields(set ast.SelectionSet) int {
	count := 0
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			count++
			count += countFields(s.SelectionSet)
		case *ast.InlineFragment:
			count += countFields(s.SelectionSet)
		}
	}
	return count
}

// APQ implements automatic persisted queries: clients send a sha256 hash in
// place of the query once the server has seen it.
type APQ struct {
	mu    sync.RWMutex
	cache map[string]string
}

// NewAPQ creates the persisted query extension.
func NewAPQ() *APQ {
	return &APQ{cache: make(map[string]string)}
}

func (a *APQ) ExtensionName() string { return "persistedQuery" }

// InterceptParams resolves or registers the persisted query.
func (a *APQ) InterceptParams(ctx context.Context, params *RequestParams) error {
	ext, ok := params.Extensions["persistedQuery"].(map[string]any)
	if !ok {
		return nil
	}
	hash, ok := ext["sha256Hash"].(string)
	if !ok {
		return nil
	}

	if params.Query == "" {
		a.mu.RLock()
		cached, ok := a.cache[hash]
		a.mu.RUnlock()
		if !ok {
			return &graph.Error{
				Message:    "PersistedQueryNotFound",
				Extensions: map[string]any{"code": "PERSISTED_QUERY_NOT_FOUND"},
			}
		}
		params.Query = cached
		return nil
	}

	sum := sha256.Sum256([]byte(params.Query))
	if hex.EncodeToString(sum[:]) != strings.ToLower(hash) {
		return errors.New("provided sha256Hash does not match query")
	}

	a.mu.Lock()
	a.cache[hash] = params.Query
	a.mu.Unlock()
	return nil
}

// IntrospectionDisabler rejects operations selecting __schema or __type.
type IntrospectionDisabler struct{}

// NewIntrospectionDisabler creates the extension.
func NewIntrospectionDisabler() *IntrospectionDisabler {
	return &IntrospectionDisabler{}
}

func (i *IntrospectionDisabler) ExtensionName() string { return "introspectionDisabler" }

// InterceptParams rejects introspection operations.
func (i *IntrospectionDisabler) InterceptParams(ctx context.Context, params *RequestParams) error {
	if params.Query == "" {
		return nil
	}

	doc, err := parser.ParseQuery(&ast.Source{Input: params.Query})
	if err != nil {
		return nil
	}
	for _, op := range doc.Operations {
		for _, sel := range op.SelectionSet {
			if field, ok := sel.(*ast.Field); ok {
				if field.Name == "__schema" || field.Name == "__type" {
					return &graph.Error{
						Message:    "introspection is disabled",
						Extensions: map[string]any{"code": "INTROSPECTION_DISABLED"},
					}
				}
			}
		}
	}
	return nil
}

// ErrorLogger logs every response error.
type ErrorLogger struct {
	logger *slog.Logger
}

// NewErrorLogger creates an error logging extension.
func NewErrorLogger(logger *slog.Logger) *ErrorLogger {
	return &ErrorLogger{logger: logger}
}

func (e *ErrorLogger) ExtensionName() string { return "errorLogger" }

// InterceptResponse logs each error on the response.
func (e *ErrorLogger) InterceptResponse(ctx context.Context, response *graph.Response) *graph.Response {
	for _, err := range response.Errors {
		e.logger.Error("graphql error", "message", err.Message, "path", err.Path)
	}
	return response
}
