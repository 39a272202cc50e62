package handler

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"

	"github.com/relaypg/relaypg/graph"
)

// Transport defines how GraphQL requests are received and responses sent.
type Transport interface {
	// Supports reports whether this transport can handle the request.
	Supports(r *http.Request) bool

	// ParseRequest parses the HTTP request into GraphQL parameters.
	ParseRequest(r *http.Request) (*RequestParams, error)

	// WriteResponse writes the GraphQL response.
	WriteResponse(w http.ResponseWriter, response *graph.Response)
}

// POST handles POST requests carrying JSON or raw GraphQL bodies.
type POST struct {
	// MaxBodySize limits the request body size.
	MaxBodySize int64
}

// NewPOST creates a POST transport with a 1MB body limit.
func NewPOST() *POST {
	return &POST{MaxBodySize: 1 << 20}
}

// Supports reports true for POST requests with a JSON or GraphQL body.
func (t *POST) Supports(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return true
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	return mediaType == "application/json" || mediaType == "application/graphql"
}

// ParseRequest parses a POST request body.
func (t *POST) ParseRequest(r *http.Request) (*RequestParams, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	body := r.Body
	if t.MaxBodySize > 0 {
		body = http.MaxBytesReader(nil, body, t.MaxBodySize)
	}

	if mediaType == "application/graphql" {
		queryBytes, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		return &RequestParams{Query: string(queryBytes)}, nil
	}

	var params RequestParams
	if err := json.NewDecoder(body).Decode(&params); err != nil {
		return nil, err
	}
	return &params, nil
}

// WriteResponse writes a JSON response.
func (t *POST) WriteResponse(w http.ResponseWriter, response *graph.Response) {
	MarshalResponse(w, response)
}

// GET handles GET requests with the operation in query parameters.
type GET struct{}

// NewGET creates a GET transport.
func NewGET() *GET {
	return &GET{}
}

// Supports reports true for GET requests that carry a query.
func (t *GET) Supports(r *http.Request) bool {
	return r.Method == http.MethodGet && r.URL.Query().Get("query") != ""
}

// ParseRequest parses the query parameters.
func (t *GET) ParseRequest(r *http.Request) (*RequestParams, error) {
	query := r.URL.Query()

	params := &RequestParams{
		Query:         query.Get("query"),
		OperationName: query.Get("operationName"),
	}

	if varsStr := query.Get("variables"); varsStr != "" {
		if err := json.Unmarshal([]byte(varsStr), &params.Variables); err != nil {
			return nil, err
		}
	}
	if extStr := query.Get("extensions"); extStr != "" {
		if err := json.Unmarshal([]byte(extStr), &params.Extensions); err != nil {
			return nil, err
		}
	}
	return params, nil
}

// WriteResponse writes a JSON response.
func (t *GET) WriteResponse(w http.ResponseWriter, response *graph.Response) {
	MarshalResponse(w, response)
}

// OPTIONS handles CORS preflight requests.
type OPTIONS struct{}

// NewOPTIONS creates an OPTIONS transport.
func NewOPTIONS() *OPTIONS {
	return &OPTIONS{}
}

// Supports reports true for OPTIONS requests.
func (t *OPTIONS) Supports(r *http.Request) bool {
	return r.Method == http.MethodOptions
}

// ParseRequest returns empty params.
func (t *OPTIONS) ParseRequest(r *http.Request) (*RequestParams, error) {
	return &RequestParams{}, nil
}

// WriteResponse writes the allowed methods.
func (t *OPTIONS) WriteResponse(w http.ResponseWriter, response *graph.Response) {
	w.Header().Set("Allow", "OPTIONS, GET, POST")
	w.WriteHeader(http.StatusOK)
}
