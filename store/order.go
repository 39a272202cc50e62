package store

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/relaypg/relaypg/schema"
)

// direction maps an OrderDirection enum value to its SQL rendering.
var directions = map[string]string{
	"ASC":              "ASC",
	"ASC_NULLS_FIRST":  "ASC NULLS FIRST",
	"ASC_NULLS_LAST":   "ASC NULLS LAST",
	"DESC":             "DESC",
	"DESC_NULLS_FIRST": "DESC NULLS FIRST",
	"DESC_NULLS_LAST":  "DESC NULLS LAST",
}

// CompileOrder turns the order argument of a connection field into ORDER BY
// clauses. The primary key is always appended as a tiebreaker so cursor
// pagination stays stable under equal sort keys.
func CompileOrder(model *schema.Model, input []any) ([]string, error) {
	var clauses []string
	idCol := ""
	if id, ok := model.IDField(); ok {
		idCol = id.Column
	}
	sawID := idCol == ""

	for _, item := range input {
		spec, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("order: expected order objects")
		}

		name, ok := spec["field"].(string)
		if !ok {
			return nil, fmt.Errorf("order: missing field")
		}
		field := orderFieldByEnum(model, name)
		if field == nil {
			return nil, fmt.Errorf("order: unknown field %q on %s", name, model.Name)
		}

		dir := "ASC"
		if d, ok := spec["direction"].(string); ok {
			dir = d
		}
		rendered, ok := directions[dir]
		if !ok {
			return nil, fmt.Errorf("order: unknown direction %q", dir)
		}

		clauses = append(clauses, field.Column+" "+rendered)
		if field.Column == idCol {
			sawID = true
		}
	}

	if !sawID {
		clauses = append(clauses, idCol+" ASC")
	}
	return clauses, nil
}

// orderFieldByEnum resolves an XOrderField enum value like CREATED_AT back to
// the model field it names.
func orderFieldByEnum(model *schema.Model, name string) *schema.Field {
	for _, f := range model.OrderableFields() {
		if enumCase(f.Name) == name {
			out := f
			return &out
		}
	}
	return nil
}

func enumCase(name string) string {
	var sb strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' && i > 0 {
			sb.WriteByte('_')
		}
		sb.WriteRune(unicode.ToUpper(r))
	}
	return sb.String()
}
