package store

import (
	"fmt"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/relaypg/relaypg/relay"
	"github.com/relaypg/relaypg/schema"
)

// lookup names a filter operator derived from a filter input field suffix.
type lookup string

const (
	lookupExact       lookup = ""
	lookupContains    lookup = "Contains"
	lookupIContains   lookup = "IContains"
	lookupStartsWith  lookup = "StartsWith"
	lookupIStartsWith lookup = "IStartsWith"
	lookupEndsWith    lookup = "EndsWith"
	lookupIEndsWith   lookup = "IEndsWith"
	lookupGt          lookup = "Gt"
	lookupGte         lookup = "Gte"
	lookupLt          lookup = "Lt"
	lookupLte         lookup = "Lte"
	lookupInList      lookup = "InList"
	lookupRange       lookup = "Range"
	lookupIsNull      lookup = "IsNull"
)

var textLookups = map[lookup]bool{
	lookupContains: true, lookupIContains: true,
	lookupStartsWith: true, lookupIStartsWith: true,
	lookupEndsWith: true, lookupIEndsWith: true,
}

var comparableLookups = map[lookup]bool{
	lookupGt: true, lookupGte: true, lookupLt: true, lookupLte: true,
	lookupInList: true, lookupRange: true,
}

// CompileFilter turns a filter input value, as decoded from query variables or
// literal arguments, into a squirrel predicate over the model's table.
func CompileFilter(model *schema.Model, input map[string]any) (sq.Sqlizer, error) {
	conj := sq.And{}

	for _, key := range mapKeys(input) {
		value := input[key]

		switch key {
		case "and", "or":
			items, ok := value.([]any)
			if !ok {
				return nil, fmt.Errorf("filter %q: expected a list", key)
			}
			var parts []sq.Sqlizer
			for _, item := range items {
				sub, ok := item.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("filter %q: expected filter objects", key)
				}
				pred, err := CompileFilter(model, sub)
				if err != nil {
					return nil, err
				}
				parts = append(parts, pred)
			}
			if len(parts) == 0 {
				continue
			}
			if key == "and" {
				and := sq.And{}
				for _, p := range parts {
					and = append(and, p)
				}
				conj = append(conj, and)
			} else {
				or := sq.Or{}
				for _, p := range parts {
					or = append(or, p)
				}
				conj = append(conj, or)
			}
			continue

		case "not":
			sub, ok := value.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("filter \"not\": expected a filter object")
			}
			pred, err := CompileFilter(model, sub)
			if err != nil {
				return nil, err
			}
			conj = append(conj, sq.Expr("NOT (?)", pred))
			continue
		}

		field, lk, err := resolveLookup(model, key)
		if err != nil {
			return nil, err
		}
		pred, err := compileLookup(model, field, lk, value)
		if err != nil {
			return nil, err
		}
		conj = append(conj, pred)
	}

	if len(conj) == 0 {
		return sq.Expr("TRUE"), nil
	}
	return conj, nil
}

// resolveLookup splits a filter input key like "titleIContains" into the model
// field it targets and the lookup suffix. The longest matching field name
// wins so fields whose names are prefixes of one another stay unambiguous.
func resolveLookup(model *schema.Model, key string) (*schema.Field, lookup, error) {
	var (
		best    *schema.Field
		bestLk  lookup
		bestLen = -1
	)

	for i := range model.Fields {
		f := &model.Fields[i]
		if !f.Filterable {
			continue
		}
		if !strings.HasPrefix(key, f.Name) || len(f.Name) <= bestLen {
			continue
		}
		lk := lookup(key[len(f.Name):])
		if !lookupValidFor(f, lk) {
			continue
		}
		best, bestLk, bestLen = f, lk, len(f.Name)
	}

	if best == nil {
		return nil, "", fmt.Errorf("unknown filter field %q on %s", key, model.Name)
	}
	return best, bestLk, nil
}

func lookupValidFor(f *schema.Field, lk lookup) bool {
	switch {
	case lk == lookupIsNull:
		return f.Nullable
	case f.Kind == schema.KindJSON:
		return false
	case lk == lookupExact:
		return true
	case f.Kind == schema.KindBoolean:
		return false
	case lk == lookupInList:
		return true
	case lk == lookupRange:
		return f.Kind.IsComparable()
	case textLookups[lk]:
		return f.Kind.IsText()
	case comparableLookups[lk]:
		return f.Kind.IsComparable()
	default:
		return false
	}
}

func compileLookup(model *schema.Model, f *schema.Field, lk lookup, value any) (sq.Sqlizer, error) {
	col := f.Column

	switch lk {
	case lookupExact:
		v, err := coerceValue(model, f, value)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return sq.Eq{col: nil}, nil
		}
		return sq.Eq{col: v}, nil

	case lookupContains:
		return likePred(col, value, "%", "%", false)
	case lookupIContains:
		return likePred(col, value, "%", "%", true)
	case lookupStartsWith:
		return likePred(col, value, "", "%", false)
	case lookupIStartsWith:
		return likePred(col, value, "", "%", true)
	case lookupEndsWith:
		return likePred(col, value, "%", "", false)
	case lookupIEndsWith:
		return likePred(col, value, "%", "", true)

	case lookupGt, lookupGte, lookupLt, lookupLte:
		v, err := coerceValue(model, f, value)
		if err != nil {
			return nil, err
		}
		switch lk {
		case lookupGt:
			return sq.Gt{col: v}, nil
		case lookupGte:
			return sq.GtOrEq{col: v}, nil
		case lookupLt:
			return sq.Lt{col: v}, nil
		default:
			return sq.LtOrEq{col: v}, nil
		}

	case lookupInList:
		items, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("filter %s%s: expected a list", f.Name, lk)
		}
		vals := make([]any, len(items))
		for i, item := range items {
			v, err := coerceValue(model, f, item)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		if len(vals) == 0 {
			return sq.Expr("FALSE"), nil
		}
		return sq.Eq{col: vals}, nil

	case lookupRange:
		items, ok := value.([]any)
		if !ok || len(items) != 2 {
			return nil, fmt.Errorf("filter %sRange: expected a two-element list", f.Name)
		}
		lo, err := coerceValue(model, f, items[0])
		if err != nil {
			return nil, err
		}
		hi, err := coerceValue(model, f, items[1])
		if err != nil {
			return nil, err
		}
		return sq.Expr(col+" BETWEEN ? AND ?", lo, hi), nil

	case lookupIsNull:
		want, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("filter %sIsNull: expected a boolean", f.Name)
		}
		if want {
			return sq.Eq{col: nil}, nil
		}
		return sq.NotEq{col: nil}, nil
	}

	return nil, fmt.Errorf("unsupported filter lookup %q", lk)
}

// likePred builds a LIKE or ILIKE predicate, escaping pattern metacharacters
// in the user-supplied value.
func likePred(col string, value any, pre, post string, insensitive bool) (sq.Sqlizer, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("filter on %s: expected a string", col)
	}
	pattern := pre + escapeLike(s) + post
	if insensitive {
		return sq.ILike{col: pattern}, nil
	}
	return sq.Like{col: pattern}, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// coerceValue converts a decoded GraphQL value into the driver value for the
// field's kind. Global IDs on the id field are unwrapped to raw keys.
func coerceValue(model *schema.Model, f *schema.Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch f.Kind {
	case schema.KindID:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("field %s: expected an ID", f.Name)
		}
		typeName, raw, err := relay.DecodeGlobalID(s)
		if err != nil {
			// Raw keys are accepted so callers can filter without
			// round-tripping through the node id encoding.
			return s, nil
		}
		if typeName != model.Name {
			return nil, fmt.Errorf("id %q does not reference a %s", s, model.Name)
		}
		return raw, nil

	case schema.KindUUID:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("field %s: expected a UUID string", f.Name)
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		return id, nil

	case schema.KindTime:
		switch v := value.(type) {
		case time.Time:
			return v, nil
		case string:
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			return t, nil
		default:
			return nil, fmt.Errorf("field %s: expected a DateTime string", f.Name)
		}

	case schema.KindInt:
		switch v := value.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case float64:
			return int64(v), nil
		default:
			return nil, fmt.Errorf("field %s: expected an Int", f.Name)
		}

	case schema.KindFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		case int:
			return float64(v), nil
		default:
			return nil, fmt.Errorf("field %s: expected a Float", f.Name)
		}

	case schema.KindBoolean:
		if v, ok := value.(bool); ok {
			return v, nil
		}
		return nil, fmt.Errorf("field %s: expected a Boolean", f.Name)

	case schema.KindEnum:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("field %s: expected an enum value", f.Name)
		}
		for _, ev := range f.EnumValues {
			if ev == s {
				return s, nil
			}
		}
		return nil, fmt.Errorf("field %s: %q is not a value of %s", f.Name, s, f.EnumName)

	default:
		return value, nil
	}
}

// mapKeys returns the map's keys in sorted order so compiled SQL is stable
// for a given input.
func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
