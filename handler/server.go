// Package handler serves GraphQL over HTTP: transports parse requests,
// extensions hook into the request lifecycle, the executor does the rest.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/relaypg/relaypg/graph"
	"github.com/relaypg/relaypg/store"
)

// Server is the GraphQL HTTP endpoint.
type Server struct {
	mu sync.RWMutex

	executor   *graph.Executor
	store      *store.Store
	transports []Transport
	extensions []Extension
	logger     *slog.Logger

	requestTimeout   time.Duration
	enablePlayground bool
	playgroundPath   string
}

// Config holds server configuration.
type Config struct {
	RequestTimeout   time.Duration
	EnablePlayground bool
	PlaygroundPath   string
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:   30 * time.Second,
		EnablePlayground: true,
		PlaygroundPath:   "/playground",
	}
}

// New creates a server with the default configuration and transports.
func New(e *graph.Executor, st *store.Store, logger *slog.Logger) *Server {
	s := NewWithConfig(e, st, logger, DefaultConfig())
	s.AddTransport(NewOPTIONS())
	s.AddTransport(NewGET())
	s.AddTransport(NewPOST())
	return s
}

// NewWithConfig creates a server with no transports registered.
func NewWithConfig(e *graph.Executor, st *store.Store, logger *slog.Logger, cfg Config) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		executor:         e,
		store:            st,
		logger:           logger,
		requestTimeout:   cfg.RequestTimeout,
		enablePlayground: cfg.EnablePlayground,
		playgroundPath:   cfg.PlaygroundPath,
	}
}

// Use adds an extension.
func (s *Server) Use(extension Extension) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extensions = append(s.extensions, extension)
}

// AddTransport adds a transport. Transports are tried in registration order.
func (s *Server) AddTransport(transport Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transports = append(s.transports, transport)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.enablePlayground && r.URL.Path == s.playgroundPath && r.Method == http.MethodGet {
		s.servePlayground(w, r)
		return
	}

	ctx := r.Context()
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	s.mu.RLock()
	transports := s.transports
	s.mu.RUnlock()

	for _, transport := range transports {
		if transport.Supports(r) {
			s.handleRequest(ctx, w, r, transport)
			return
		}
	}

	http.Error(w, "unsupported transport", http.StatusBadRequest)
}

func (s *Server) handleRequest(ctx context.Context, w http.ResponseWriter, r *http.Request, transport Transport) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("panic during request", "panic", rec)
			s.writeError(w, transport, &graph.Error{
				Message:    "internal server error",
				Extensions: map[string]any{"code": graph.CodeInternal},
			})
		}
	}()

	params, err := transport.ParseRequest(r)
	if err != nil {
		s.writeError(w, transport, &graph.Error{
			Message:    err.Error(),
			Extensions: map[string]any{"code": graph.CodeBadUserInput},
		})
		return
	}

	// Preflight and other bodyless requests never reach the executor.
	if params.Query == "" && len(params.Extensions) == 0 {
		transport.WriteResponse(w, &graph.Response{})
		return
	}

	rc := graph.NewRequestContext()
	rc.Query = params.Query
	rc.OperationName = params.OperationName
	rc.Variables = params.Variables
	ctx = graph.WithRequestContext(ctx, rc)
	if s.store != nil {
		ctx = graph.WithLoaders(ctx, store.NewLoaders(s.store))
	}

	s.mu.RLock()
	extensions := s.extensions
	s.mu.RUnlock()

	for _, ext := range extensions {
		if hook, ok := ext.(ParamsInterceptor); ok {
			if err := hook.InterceptParams(ctx, params); err != nil {
				s.writeError(w, transport, presentError(err))
				return
			}
		}
	}
	rc.Query = params.Query

	execute := func(ctx context.Context) *graph.Response {
		return s.executor.Execute(graph.ExecuteParams{
			Query:         params.Query,
			OperationName: params.OperationName,
			Variables:     params.Variables,
			Context:       ctx,
		})
	}
	for i := len(extensions) - 1; i >= 0; i-- {
		if hook, ok := extensions[i].(OperationInterceptor); ok {
			next := execute
			execute = func(ctx context.Context) *graph.Response {
				return hook.InterceptOperation(ctx, next)
			}
		}
	}

	response := execute(ctx)

	for _, ext := range extensions {
		if hook, ok := ext.(ResponseInterceptor); ok {
			response = hook.InterceptResponse(ctx, response)
		}
	}
	for _, ext := range extensions {
		hook, ok := ext.(ExtensionData)
		if !ok {
			continue
		}
		data := hook.ExtensionData(ctx)
		if len(data) == 0 {
			continue
		}
		if response.Extensions == nil {
			response.Extensions = make(map[string]any)
		}
		for k, v := range data {
			response.Extensions[k] = v
		}
	}

	transport.WriteResponse(w, response)
}

// writeError sends a request-level failure as a GraphQL response.
func (s *Server) writeError(w http.ResponseWriter, transport Transport, gqlErr *graph.Error) {
	transport.WriteResponse(w, &graph.Response{Errors: []*graph.Error{gqlErr}})
}

// presentError converts an arbitrary error into a response error.
func presentError(err error) *graph.Error {
	if gqlErr, ok := err.(*graph.Error); ok {
		return gqlErr
	}
	code := graph.CodeInternal
	if coded, ok := err.(interface{ GraphQLCode() string }); ok {
		code = coded.GraphQLCode()
	}
	return &graph.Error{
		Message:    err.Error(),
		Extensions: map[string]any{"code": code},
	}
}

func (s *Server) servePlayground(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(playgroundHTML))
}

// RequestParams are the parsed GraphQL request parameters.
type RequestParams struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
	Extensions    map[string]any `json:"extensions"`
}

// MarshalResponse encodes a response the way every transport writes it.
func MarshalResponse(w http.ResponseWriter, response *graph.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

const playgroundHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Apollo Sandbox</title>
  <style>
    body {
      height: 100vh;
      margin: 0;
      width: 100vw;
      overflow: hidden;
    }
  </style>
</head>
<body>
  <div style="width: 100%; height: 100%;" id="sandbox"></div>
  <script src="https://embeddable-sandbox.cdn.apollographql.com/_latest/embeddable-sandbox.umd.production.min.js"></script>
  <script>
    new window.EmbeddedSandbox({
      target: '#sandbox',
      initialEndpoint: '/graphql',
    });
  </script>
</body>
</html>`
