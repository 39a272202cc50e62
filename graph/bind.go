package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/relaypg/relaypg/schema"
	"github.com/relaypg/relaypg/store"
)

// Bind registers resolvers for every generated root field plus the relation
// fields of every model, all backed by the store. After Bind the executor
// serves the whole generated schema.
func Bind(e *Executor, st *store.Store) {
	sc := e.Schema()

	for _, f := range sc.Doc().Query.Fields {
		binding, ok := sc.QueryBinding(f.Name)
		if !ok {
			continue
		}
		e.RegisterResolver("Query", f.Name, rootResolver(st, binding))
	}

	if sc.Doc().Mutation != nil {
		for _, f := range sc.Doc().Mutation.Fields {
			binding, ok := sc.MutationBinding(f.Name)
			if !ok {
				continue
			}
			e.RegisterResolver("Mutation", f.Name, rootResolver(st, binding))
		}
	}

	for _, m := range sc.Registry().Models() {
		for i := range m.Relations {
			rel := &m.Relations[i]
			e.RegisterResolver(m.Name, rel.Name, relationResolver(m, rel))
		}
	}
}

func rootResolver(st *store.Store, binding schema.Binding) ResolverFunc {
	switch binding.Op {
	case schema.OpNode:
		return func(ctx context.Context, _ any, args map[string]any) (any, error) {
			id, ok := args["id"].(string)
			if !ok {
				return nil, WithCode(errors.New("id is required"), CodeBadUserInput)
			}
			return st.Node(ctx, id)
		}

	case schema.OpByID:
		model := binding.Model
		return func(ctx context.Context, _ any, args map[string]any) (any, error) {
			id, ok := args["id"].(string)
			if !ok {
				return nil, WithCode(errors.New("id is required"), CodeBadUserInput)
			}
			fields, relations := selectedModelFields(model, GetResolveInfo(ctx).Selection)
			return st.ByID(ctx, model.Name, id, fields, relations)
		}

	case schema.OpConnection:
		model := binding.Model
		return func(ctx context.Context, _ any, args map[string]any) (any, error) {
			q, err := connectionQuery(model, args, GetResolveInfo(ctx).Selection)
			if err != nil {
				return nil, err
			}
			return st.Connection(ctx, q)
		}

	case schema.OpCreate:
		model := binding.Model
		return func(ctx context.Context, _ any, args map[string]any) (any, error) {
			input, ok := args["input"].(map[string]any)
			if !ok {
				return nil, WithCode(errors.New("input is required"), CodeBadUserInput)
			}
			return st.Create(ctx, model.Name, input)
		}

	case schema.OpUpdate:
		model := binding.Model
		return func(ctx context.Context, _ any, args map[string]any) (any, error) {
			id, ok := args["id"].(string)
			if !ok {
				return nil, WithCode(errors.New("id is required"), CodeBadUserInput)
			}
			input, ok := args["input"].(map[string]any)
			if !ok {
				return nil, WithCode(errors.New("input is required"), CodeBadUserInput)
			}
			row, err := st.Update(ctx, model.Name, id, input)
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil
			}
			return row, err
		}

	case schema.OpDelete:
		model := binding.Model
		return func(ctx context.Context, _ any, args map[string]any) (any, error) {
			id, ok := args["id"].(string)
			if !ok {
				return nil, WithCode(errors.New("id is required"), CodeBadUserInput)
			}
			return st.Delete(ctx, model.Name, id)
		}

	default:
		return func(ctx context.Context, _ any, args map[string]any) (any, error) {
			return nil, fmt.Errorf("unbound operation %q", binding.Op)
		}
	}
}

// relationResolver resolves a relation field through the request's batching
// loaders.
func relationResolver(model *schema.Model, rel *schema.Relation) ResolverFunc {
	return func(ctx context.Context, parent any, _ map[string]any) (any, error) {
		row, ok := parent.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s.%s: parent is not a row", model.Name, rel.Name)
		}
		loaders := GetLoaders(ctx)
		if loaders == nil {
			return nil, fmt.Errorf("%s.%s: no loaders in context", model.Name, rel.Name)
		}
		return loaders.LoadRelation(ctx, model, rel, row)
	}
}

// connectionQuery maps the field's arguments and selection onto a store
// query.
func connectionQuery(model *schema.Model, args map[string]any, selection *SelectionSet) (store.ConnectionQuery, error) {
	q := store.ConnectionQuery{Model: model.Name}

	var err error
	if q.Args.First, err = intArg(args, "first"); err != nil {
		return q, err
	}
	if q.Args.Last, err = intArg(args, "last"); err != nil {
		return q, err
	}
	if q.Args.Offset, err = intArg(args, "offset"); err != nil {
		return q, err
	}
	q.Args.After = stringArg(args, "after")
	q.Args.Before = stringArg(args, "before")

	if filter, ok := args["filter"].(map[string]any); ok {
		q.Filter = filter
	}
	if order, ok := args["order"].([]any); ok {
		q.Order = order
	}

	q.NeedTotal = selection.Has("totalCount")
	if edges := selection.Field("edges"); edges != nil {
		if node := edges.Selection.Field("node"); node != nil {
			q.Fields, q.Relations = selectedModelFields(model, node.Selection)
		}
	}
	return q, nil
}

// selectedModelFields splits a node selection into scalar fields and
// relation names.
func selectedModelFields(model *schema.Model, selection *SelectionSet) ([]string, []string) {
	if selection == nil {
		return nil, nil
	}
	var fields, relations []string
	for _, f := range selection.Fields {
		if _, ok := model.Field(f.Name); ok {
			fields = append(fields, f.Name)
			continue
		}
		if _, ok := model.Relation(f.Name); ok {
			relations = append(relations, f.Name)
		}
	}
	return fields, relations
}

func intArg(args map[string]any, name string) (*int, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return nil, nil
	}
	switch n := v.(type) {
	case int64:
		i := int(n)
		return &i, nil
	case int:
		i := n
		return &i, nil
	case float64:
		i := int(n)
		return &i, nil
	default:
		return nil, WithCode(fmt.Errorf("argument %q must be an Int", name), CodeBadUserInput)
	}
}

func stringArg(args map[string]any, name string) *string {
	if s, ok := args[name].(string); ok {
		return &s
	}
	return nil
}

