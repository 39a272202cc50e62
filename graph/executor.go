// Package graph executes GraphQL operations against a generated schema,
// resolving root fields through registered resolvers and everything else by
// walking the fetched rows.
package graph

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"golang.org/x/sync/errgroup"

	"github.com/relaypg/relaypg/schema"
)

// Executor handles operation execution.
type Executor struct {
	schema      *schema.Schema
	resolverMap *ResolverMap
	middleware  []MiddlewareFunc
	mu          sync.RWMutex

	astCache sync.Map // query string -> *ast.QueryDocument
}

// NewExecutor creates an executor over a loaded schema.
func NewExecutor(sc *schema.Schema) *Executor {
	return &Executor{
		schema:      sc,
		resolverMap: NewResolverMap(),
	}
}

// Schema returns the schema the executor serves.
func (e *Executor) Schema() *schema.Schema { return e.schema }

// RegisterResolver registers a resolver for a type and field.
func (e *Executor) RegisterResolver(typeName, fieldName string, resolver ResolverFunc) {
	e.resolverMap.Register(typeName, fieldName, resolver)
}

// Use adds middleware applied around every resolver invocation.
func (e *Executor) Use(mw MiddlewareFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.middleware = append(e.middleware, mw)
}

// ExecuteParams are the inputs for one operation.
type ExecuteParams struct {
	Query         string
	OperationName string
	Variables     map[string]any
	Context       context.Context
}

// Execute parses, validates and executes one GraphQL operation.
func (e *Executor) Execute(params ExecuteParams) *Response {
	ctx := params.Context
	if ctx == nil {
		ctx = context.Background()
	}

	rc := GetRequestContext(ctx)
	if rc == nil {
		rc = NewRequestContext()
		ctx = WithRequestContext(ctx, rc)
	}
	rc.Query = params.Query
	rc.OperationName = params.OperationName
	rc.Variables = params.Variables

	doc, err := e.parseQuery(params.Query)
	if err != nil {
		rc.AddError(&Error{Message: err.Error(), Extensions: map[string]any{"code": CodeBadUserInput}})
		return NewResponse(rc)
	}

	operation, err := e.findOperation(doc, params.OperationName)
	if err != nil {
		rc.AddError(&Error{Message: err.Error(), Extensions: map[string]any{"code": CodeBadUserInput}})
		return NewResponse(rc)
	}

	fragments := make(map[string]*ast.FragmentDefinition)
	for _, def := range doc.Fragments {
		fragments[def.Name] = def
	}

	opCtx := &OperationContext{
		OperationType: string(operation.Operation),
		OperationName: operation.Name,
		Variables:     params.Variables,
	}
	rc.Operation = opCtx
	ctx = WithOperationContext(ctx, opCtx)

	collector := NewFieldCollector(e.schema, fragments, params.Variables)

	var rootType string
	switch operation.Operation {
	case ast.Mutation:
		rootType = "Mutation"
	case ast.Subscription:
		rootType = "Subscription"
	default:
		rootType = "Query"
	}
	if e.schema.Doc().Types[rootType] == nil {
		rc.AddError(&Error{
			Message:    fmt.Sprintf("schema does not define %s operations", rootType),
			Extensions: map[string]any{"code": CodeBadUserInput},
		})
		return NewResponse(rc)
	}

	selections := collector.CollectFields(operation.SelectionSet, rootType)

	state := &execState{collector: collector}
	data := e.executeRoot(ctx, state, selections, rootType, operation.Operation == ast.Mutation)

	rc.Data = data
	return NewResponse(rc)
}

// execState carries per-operation helpers through the execution walk.
type execState struct {
	collector *FieldCollector
}

func (e *Executor) parseQuery(query string) (*ast.QueryDocument, error) {
	if cached, ok := e.astCache.Load(query); ok {
		if doc, ok := cached.(*ast.QueryDocument); ok && doc != nil {
			return doc, nil
		}
	}

	doc, errs := gqlparser.LoadQuery(e.schema.Doc(), query)
	if len(errs) > 0 {
		return nil, errs[0]
	}

	e.astCache.Store(query, doc)
	return doc, nil
}

func (e *Executor) findOperation(doc *ast.QueryDocument, operationName string) (*ast.OperationDefinition, error) {
	if len(doc.Operations) == 0 {
		return nil, fmt.Errorf("no operations in document")
	}

	if operationName == "" {
		if len(doc.Operations) == 1 {
			return doc.Operations[0], nil
		}
		return nil, fmt.Errorf("operation name is required when document contains multiple operations")
	}

	for _, op := range doc.Operations {
		if op.Name == operationName {
			return op, nil
		}
	}
	return nil, fmt.Errorf("operation %q not found", operationName)
}

// executeRoot executes the top-level selection set. Query root fields run in
// parallel, mutation fields strictly in document order.
func (e *Executor) executeRoot(ctx context.Context, state *execState, selections *SelectionSet, rootType string, serial bool) map[string]any {
	if selections == nil {
		return nil
	}

	result := make(map[string]any, len(selections.Fields))

	if serial {
		for _, field := range selections.Fields {
			result[field.ResponseKey()] = e.resolveRootField(ctx, state, field, rootType)
		}
	} else {
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for _, field := range selections.Fields {
			field := field
			g.Go(func() error {
				value := e.resolveRootField(gctx, state, field, rootType)
				mu.Lock()
				result[field.ResponseKey()] = value
				mu.Unlock()
				return nil
			})
		}
		g.Wait()
	}

	if selections.Typename {
		result["__typename"] = rootType
	}
	return result
}

func (e *Executor) resolveRootField(ctx context.Context, state *execState, field *SelectedField, rootType string) any {
	path := []any{field.ResponseKey()}
	value, err := e.executeField(ctx, state, field, rootType, nil, path)
	if err != nil {
		if rc := GetRequestContext(ctx); rc != nil {
			rc.AddError(newFieldError(err, path))
		}
		return nil
	}
	return value
}

// executeSelectionSet resolves each selected field against a parent value.
func (e *Executor) executeSelectionSet(ctx context.Context, state *execState, selections *SelectionSet, parentType string, parentValue any, path []any) (map[string]any, error) {
	if selections == nil || (len(selections.Fields) == 0 && !selections.Typename) {
		return nil, nil
	}

	result := make(map[string]any, len(selections.Fields))

	for _, field := range selections.Fields {
		fieldPath := append(append([]any{}, path...), field.ResponseKey())

		value, err := e.executeField(ctx, state, field, parentType, parentValue, fieldPath)
		if err != nil {
			if rc := GetRequestContext(ctx); rc != nil {
				rc.AddError(newFieldError(err, fieldPath))
			}
			result[field.ResponseKey()] = nil
			continue
		}
		result[field.ResponseKey()] = value
	}

	if selections.Typename {
		result["__typename"] = runtimeTypename(parentValue, parentType)
	}
	return result, nil
}

func (e *Executor) executeField(ctx context.Context, state *execState, field *SelectedField, parentType string, parentValue any, path []any) (any, error) {
	if field.Name == "__schema" && parentType == "Query" {
		return e.introspectSchema(ctx, field)
	}
	if field.Name == "__type" && parentType == "Query" {
		typeName, _ := field.Arguments["name"].(string)
		return e.introspectType(ctx, field, typeName)
	}

	info := &ResolveInfo{
		FieldName:  field.Name,
		ParentType: parentType,
		TypeName:   e.schema.FieldTypeName(parentType, field.Name),
		Arguments:  field.Arguments,
		Selection:  field.Selection,
		Path:       path,
	}
	if rc := GetRequestContext(ctx); rc != nil {
		info.Variables = rc.Variables
	}
	ctx = WithResolveInfo(ctx, info)

	resolver, hasResolver := e.resolverMap.Get(parentType, field.Name)

	var value any
	var err error
	if hasResolver {
		value, err = e.resolveThroughMiddleware(ctx, resolver, parentValue, field.Arguments)
	} else {
		value, err = e.defaultResolve(parentValue, field.Name)
	}
	if err != nil {
		return nil, err
	}

	return e.completeValue(ctx, state, field, info.TypeName, value, path)
}

func (e *Executor) resolveThroughMiddleware(ctx context.Context, resolver *FieldResolver, parent any, args map[string]any) (any, error) {
	e.mu.RLock()
	middleware := e.middleware
	e.mu.RUnlock()

	fn := resolver.Resolve
	wrapped := ResolverFunc(fn)
	for i := len(middleware) - 1; i >= 0; i-- {
		wrapped = middleware[i](ctx, wrapped)
	}
	return wrapped(ctx, parent, args)
}

// defaultResolve pulls a field from the parent value: map lookup for rows,
// struct field or json tag for the connection shapes.
func (e *Executor) defaultResolve(parent any, fieldName string) (any, error) {
	if parent == nil {
		return nil, nil
	}

	val := reflect.ValueOf(parent)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil, nil
		}
		val = val.Elem()
	}

	switch val.Kind() {
	case reflect.Map:
		if val.Type().Key().Kind() == reflect.String {
			mapVal := val.MapIndex(reflect.ValueOf(fieldName))
			if mapVal.IsValid() {
				return mapVal.Interface(), nil
			}
		}

	case reflect.Struct:
		t := val.Type()
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() {
				continue
			}
			if jsonName(sf) == fieldName || sf.Name == fieldName {
				return val.Field(i).Interface(), nil
			}
		}
	}

	return nil, nil
}

// completeValue finishes a resolved value: lists recurse per element, object
// and interface types execute their sub-selection, scalars pass through.
func (e *Executor) completeValue(ctx context.Context, state *execState, field *SelectedField, typeName string, value any, path []any) (any, error) {
	if value == nil {
		return nil, nil
	}

	val := reflect.ValueOf(value)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil, nil
		}
		val = val.Elem()
		value = val.Interface()
	}

	if val.Kind() == reflect.Slice || val.Kind() == reflect.Array {
		if !field.HasSelection() && field.Raw == nil {
			return value, nil
		}
		// Elements complete concurrently so sibling relation fields queue
		// into one dataloader batch instead of issuing a query per element.
		result := make([]any, val.Len())
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < val.Len(); i++ {
			i := i
			item := val.Index(i).Interface()
			g.Go(func() error {
				itemPath := append(append([]any{}, path...), i)
				completed, err := e.completeValue(gctx, state, field, typeName, item, itemPath)
				if err != nil {
					return err
				}
				result[i] = completed
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return result, nil
	}

	if val.Kind() == reflect.Map || val.Kind() == reflect.Struct {
		if !field.HasSelection() {
			return value, nil
		}

		selection := field.Selection
		if def := e.schema.Doc().Types[typeName]; def != nil && def.Kind == ast.Interface {
			if concrete := runtimeTypename(value, ""); concrete != "" {
				typeName = concrete
				selection = state.collector.CollectFields(field.Raw, concrete)
			}
		}
		return e.executeSelectionSet(ctx, state, selection, typeName, value, path)
	}

	return value, nil
}

// runtimeTypename reads the concrete type stamped on a row.
func runtimeTypename(value any, fallback string) string {
	if row, ok := value.(map[string]any); ok {
		if tn, ok := row["__typename"].(string); ok && tn != "" {
			return tn
		}
	}
	return fallback
}

func jsonName(sf reflect.StructField) string {
	tag := sf.Tag.Get("json")
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			return tag[:i]
		}
	}
	return tag
}
