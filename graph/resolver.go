package graph

import (
	"context"
	"sync"

	"github.com/vektah/gqlparser/v2/ast"
)

// ResolverFunc resolves one field. parent is the value the enclosing
// selection set resolved to, nil at the roots.
type ResolverFunc func(ctx context.Context, parent any, args map[string]any) (any, error)

// MiddlewareFunc wraps resolver execution.
type MiddlewareFunc func(ctx context.Context, next ResolverFunc) ResolverFunc

// FieldResolver is a resolver registered for one type/field pair.
type FieldResolver struct {
	TypeName   string
	FieldName  string
	ResolverFn ResolverFunc
	Middleware []MiddlewareFunc
}

// Resolve runs the resolver through its middleware chain.
func (fr *FieldResolver) Resolve(ctx context.Context, parent any, args map[string]any) (any, error) {
	resolver := fr.ResolverFn
	for i := len(fr.Middleware) - 1; i >= 0; i-- {
		resolver = fr.Middleware[i](ctx, resolver)
	}
	return resolver(ctx, parent, args)
}

// ResolverMap holds resolvers keyed by type and field name.
type ResolverMap struct {
	mu        sync.RWMutex
	resolvers map[string]map[string]*FieldResolver
}

// NewResolverMap creates an empty resolver map.
func NewResolverMap() *ResolverMap {
	return &ResolverMap{resolvers: make(map[string]map[string]*FieldResolver)}
}

// Register adds a resolver for a type and field.
func (rm *ResolverMap) Register(typeName, fieldName string, resolver ResolverFunc) {
	rm.RegisterWithMiddleware(typeName, fieldName, resolver)
}

// RegisterWithMiddleware adds a resolver wrapped by the given middleware.
func (rm *ResolverMap) RegisterWithMiddleware(typeName, fieldName string, resolver ResolverFunc, middleware ...MiddlewareFunc) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.resolvers[typeName] == nil {
		rm.resolvers[typeName] = make(map[string]*FieldResolver)
	}
	rm.resolvers[typeName][fieldName] = &FieldResolver{
		TypeName:   typeName,
		FieldName:  fieldName,
		ResolverFn: resolver,
		Middleware: middleware,
	}
}

// Get retrieves the resolver for a type and field.
func (rm *ResolverMap) Get(typeName, fieldName string) (*FieldResolver, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	typeResolvers, ok := rm.resolvers[typeName]
	if !ok {
		return nil, false
	}
	resolver, ok := typeResolvers[fieldName]
	return resolver, ok
}

// ResolveInfo describes the field currently being resolved.
type ResolveInfo struct {
	FieldName  string
	ParentType string
	TypeName   string
	Arguments  map[string]any
	Variables  map[string]any
	Selection  *SelectionSet
	Path       []any
}

// SelectionSet is the collected selection on a field, fragments flattened.
type SelectionSet struct {
	Fields   []*SelectedField
	Typename bool
}

// Field returns the selected field with the given name, or nil.
func (ss *SelectionSet) Field(name string) *SelectedField {
	if ss == nil {
		return nil
	}
	for _, f := range ss.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Has reports whether the named field was selected.
func (ss *SelectionSet) Has(name string) bool { return ss.Field(name) != nil }

// SelectedField is one collected field with its arguments and nested
// selection. Raw keeps the original AST selection so interface-typed fields
// can be re-collected once the concrete type is known.
type SelectedField struct {
	Name      string
	Alias     string
	Arguments map[string]any
	Selection *SelectionSet
	Raw       ast.SelectionSet
}

// ResponseKey returns the alias when set, the field name otherwise.
func (sf *SelectedField) ResponseKey() string {
	if sf.Alias != "" {
		return sf.Alias
	}
	return sf.Name
}

// HasSelection reports whether the field selects subfields. A bare
// __typename counts: the parent value must still be narrowed to it.
func (sf *SelectedField) HasSelection() bool {
	return sf.Selection != nil && (len(sf.Selection.Fields) > 0 || sf.Selection.Typename)
}

// OperationContext describes the operation being executed.
type OperationContext struct {
	OperationType string
	OperationName string
	Variables     map[string]any
}
