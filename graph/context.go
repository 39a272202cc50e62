package graph

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/relaypg/relaypg/store"
)

type contextKey string

const (
	requestCtxKey   contextKey = "relaypg:request"
	operationCtxKey contextKey = "relaypg:operation"
	resolveInfoKey  contextKey = "relaypg:resolveinfo"
	loadersKey      contextKey = "relaypg:loaders"
)

// Error codes carried in the extensions map.
const (
	CodeBadUserInput = "BAD_USER_INPUT"
	CodeNotFound     = "NOT_FOUND"
	CodeInternal     = "INTERNAL"
)

// Error is a GraphQL response error.
type Error struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Location is a position in the query document.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (e *Error) Error() string { return e.Message }

// codedError attaches an extensions code to an error.
type codedError struct {
	err  error
	code string
}

func (e *codedError) Error() string       { return e.err.Error() }
func (e *codedError) Unwrap() error       { return e.err }
func (e *codedError) GraphQLCode() string { return e.code }

// WithCode wraps err so the executor reports it under the given code.
func WithCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &codedError{err: err, code: code}
}

// errorCode extracts the reporting code from an error chain. Any error in
// the chain may carry one by implementing GraphQLCode.
func errorCode(err error) string {
	var coded interface{ GraphQLCode() string }
	if errors.As(err, &coded) {
		return coded.GraphQLCode()
	}
	return CodeInternal
}

// newFieldError builds the response error for a failed field.
func newFieldError(err error, path []any) *Error {
	return &Error{
		Message:    err.Error(),
		Path:       path,
		Extensions: map[string]any{"code": errorCode(err)},
	}
}

// RequestContext holds request-scoped execution state.
type RequestContext struct {
	mu sync.RWMutex

	StartTime time.Time

	Query         string
	OperationName string
	Variables     map[string]any

	Operation *OperationContext

	Data   any
	Errors []*Error

	Extensions map[string]any
}

// NewRequestContext creates the state for one request.
func NewRequestContext() *RequestContext {
	return &RequestContext{
		StartTime:  time.Now(),
		Variables:  make(map[string]any),
		Extensions: make(map[string]any),
	}
}

// AddError appends a response error.
func (rc *RequestContext) AddError(err *Error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.Errors = append(rc.Errors, err)
}

// HasErrors reports whether any errors were recorded.
func (rc *RequestContext) HasErrors() bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return len(rc.Errors) > 0
}

// SetExtension records a response extension value.
func (rc *RequestContext) SetExtension(key string, value any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.Extensions[key] = value
}

// Duration returns the elapsed time since the request started.
func (rc *RequestContext) Duration() time.Duration {
	return time.Since(rc.StartTime)
}

// WithRequestContext attaches request state to a context.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestCtxKey, rc)
}

// GetRequestContext retrieves request state, nil when absent.
func GetRequestContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestCtxKey).(*RequestContext)
	return rc
}

// WithOperationContext attaches the operation description to a context.
func WithOperationContext(ctx context.Context, oc *OperationContext) context.Context {
	return context.WithValue(ctx, operationCtxKey, oc)
}

// GetOperationContext retrieves the operation description, nil when absent.
func GetOperationContext(ctx context.Context) *OperationContext {
	oc, _ := ctx.Value(operationCtxKey).(*OperationContext)
	return oc
}

// WithResolveInfo attaches the current field's resolve info to a context.
func WithResolveInfo(ctx context.Context, info *ResolveInfo) context.Context {
	return context.WithValue(ctx, resolveInfoKey, info)
}

// GetResolveInfo retrieves the current field's resolve info, nil when absent.
func GetResolveInfo(ctx context.Context) *ResolveInfo {
	info, _ := ctx.Value(resolveInfoKey).(*ResolveInfo)
	return info
}

// WithLoaders attaches request-scoped relation loaders to a context.
func WithLoaders(ctx context.Context, l *store.Loaders) context.Context {
	return context.WithValue(ctx, loadersKey, l)
}

// GetLoaders retrieves the request's relation loaders, nil when absent.
func GetLoaders(ctx context.Context) *store.Loaders {
	l, _ := ctx.Value(loadersKey).(*store.Loaders)
	return l
}

// Response is the GraphQL response envelope.
type Response struct {
	Data       any            `json:"data,omitempty"`
	Errors     []*Error       `json:"errors,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// HasErrors reports whether the response carries errors.
func (r *Response) HasErrors() bool { return len(r.Errors) > 0 }

// NewResponse builds the response from a finished request context.
func NewResponse(rc *RequestContext) *Response {
	resp := &Response{
		Data:   rc.Data,
		Errors: rc.Errors,
	}
	if len(rc.Extensions) > 0 {
		resp.Extensions = rc.Extensions
	}
	return resp
}
