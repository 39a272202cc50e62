package store

import (
	"context"
	"fmt"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/graph-gophers/dataloader/v7"

	"github.com/relaypg/relaypg/schema"
)

const rowParent = "__parent"

// Loaders batches relation fetches within a single request. One loader is
// kept per relation so sibling resolutions of the same relation collapse into
// a single query.
type Loaders struct {
	store *Store

	mu   sync.Mutex
	many map[string]*dataloader.Loader[any, []map[string]any]
	one  map[string]*dataloader.Loader[any, map[string]any]
}

// NewLoaders builds a loader set for one request.
func NewLoaders(s *Store) *Loaders {
	return &Loaders{
		store: s,
		many:  make(map[string]*dataloader.Loader[any, []map[string]any]),
		one:   make(map[string]*dataloader.Loader[any, map[string]any]),
	}
}

// LoadRelation resolves a relation field on a parent row through the batching
// loaders. hasMany relations yield a list, the others a single row or nil.
func (l *Loaders) LoadRelation(ctx context.Context, model *schema.Model, rel *schema.Relation, parent map[string]any) (any, error) {
	switch rel.Kind {
	case schema.HasMany:
		key, ok := parent[refPrefix+rel.Name]
		if !ok || key == nil {
			return []any{}, nil
		}
		rows, err := l.manyLoader(model, rel).Load(ctx, key)()
		if err != nil {
			return nil, err
		}
		out := make([]any, len(rows))
		for i, r := range rows {
			out[i] = r
		}
		return out, nil

	case schema.HasOne:
		key, ok := parent[refPrefix+rel.Name]
		if !ok || key == nil {
			return nil, nil
		}
		rows, err := l.manyLoader(model, rel).Load(ctx, key)()
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return rows[0], nil

	case schema.BelongsTo:
		key, ok := parent[fkPrefix+rel.Name]
		if !ok || key == nil {
			return nil, nil
		}
		return l.oneLoader(model, rel).Load(ctx, key)()

	default:
		return nil, fmt.Errorf("unknown relation kind %q", rel.Kind)
	}
}

// manyLoader returns the loader for a hasMany or hasOne relation, creating it
// on first use. Keys are parent reference values; each result holds the
// target rows whose foreign key matches.
func (l *Loaders) manyLoader(model *schema.Model, rel *schema.Relation) *dataloader.Loader[any, []map[string]any] {
	name := model.Name + "." + rel.Name

	l.mu.Lock()
	defer l.mu.Unlock()
	if ld, ok := l.many[name]; ok {
		return ld
	}

	target, _ := l.store.schema.Registry().Model(rel.Target)
	fk := rel.Column

	batch := func(ctx context.Context, keys []any) []*dataloader.Result[[]map[string]any] {
		results := make([]*dataloader.Result[[]map[string]any], len(keys))

		builder := l.store.sb.
			Select(append(relationColumns(target), fmt.Sprintf("%s AS %q", fk, rowParent))...).
			From(target.Table).
			Where(sq.Eq{fk: keys}).
			OrderBy(fk, primaryColumn(target))

		rows, err := l.store.queryMaps(ctx, builder)
		if err != nil {
			for i := range results {
				results[i] = &dataloader.Result[[]map[string]any]{Error: err}
			}
			return results
		}

		grouped := make(map[string][]map[string]any, len(keys))
		for _, r := range rows {
			k := fmt.Sprint(r[rowParent])
			delete(r, rowParent)
			l.store.decorate(target, r)
			grouped[k] = append(grouped[k], r)
		}
		for i, key := range keys {
			results[i] = &dataloader.Result[[]map[string]any]{Data: grouped[fmt.Sprint(key)]}
		}
		return results
	}

	ld := dataloader.NewBatchedLoader(batch)
	l.many[name] = ld
	return ld
}

// oneLoader returns the loader for a belongsTo relation. Keys are foreign key
// values on the owning side; each result is the referenced row or nil.
func (l *Loaders) oneLoader(model *schema.Model, rel *schema.Relation) *dataloader.Loader[any, map[string]any] {
	name := model.Name + "." + rel.Name

	l.mu.Lock()
	defer l.mu.Unlock()
	if ld, ok := l.one[name]; ok {
		return ld
	}

	target, _ := l.store.schema.Registry().Model(rel.Target)
	ref := rel.References

	batch := func(ctx context.Context, keys []any) []*dataloader.Result[map[string]any] {
		results := make([]*dataloader.Result[map[string]any], len(keys))

		builder := l.store.sb.
			Select(append(relationColumns(target), fmt.Sprintf("%s AS %q", ref, rowParent))...).
			From(target.Table).
			Where(sq.Eq{ref: keys})

		rows, err := l.store.queryMaps(ctx, builder)
		if err != nil {
			for i := range results {
				results[i] = &dataloader.Result[map[string]any]{Error: err}
			}
			return results
		}

		byKey := make(map[string]map[string]any, len(rows))
		for _, r := range rows {
			k := fmt.Sprint(r[rowParent])
			delete(r, rowParent)
			l.store.decorate(target, r)
			byKey[k] = r
		}
		for i, key := range keys {
			results[i] = &dataloader.Result[map[string]any]{Data: byKey[fmt.Sprint(key)]}
		}
		return results
	}

	ld := dataloader.NewBatchedLoader(batch)
	l.one[name] = ld
	return ld
}

// relationColumns selects every scalar field of the target plus the keys its
// own relations need, so nested relation fields keep resolving.
func relationColumns(target *schema.Model) []string {
	fields := allFieldNames(target)
	relations := make([]string, len(target.Relations))
	for i, r := range target.Relations {
		relations[i] = r.Name
	}
	return selectColumns(target, fields, relations)
}

func primaryColumn(target *schema.Model) string {
	if id, ok := target.IDField(); ok {
		return id.Column
	}
	return "1"
}
