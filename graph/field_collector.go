package graph

import (
	"strconv"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/relaypg/relaypg/schema"
)

// FieldCollector flattens a validated operation's selection sets: fragments
// are inlined, @skip and @include applied, variables substituted into
// argument values.
type FieldCollector struct {
	schema    *schema.Schema
	fragments map[string]*ast.FragmentDefinition
	variables map[string]any
}

// NewFieldCollector creates a collector for one operation.
func NewFieldCollector(sc *schema.Schema, fragments map[string]*ast.FragmentDefinition, variables map[string]any) *FieldCollector {
	return &FieldCollector{
		schema:    sc,
		fragments: fragments,
		variables: variables,
	}
}

// CollectFields collects the selection set against the given parent type.
// Duplicate response keys are merged in document order.
func (fc *FieldCollector) CollectFields(selectionSet ast.SelectionSet, parentType string) *SelectionSet {
	if selectionSet == nil {
		return nil
	}

	result := &SelectionSet{}
	fieldMap := make(map[string]*SelectedField)
	fc.collect(selectionSet, parentType, fieldMap, result)
	return result
}

func (fc *FieldCollector) collect(selectionSet ast.SelectionSet, parentType string, fieldMap map[string]*SelectedField, result *SelectionSet) {
	for _, selection := range selectionSet {
		switch sel := selection.(type) {
		case *ast.Field:
			if !fc.shouldInclude(sel.Directives) {
				continue
			}
			if sel.Name == "__typename" {
				result.Typename = true
				continue
			}

			key := sel.Alias
			if key == "" {
				key = sel.Name
			}

			if existing, ok := fieldMap[key]; ok {
				if sel.SelectionSet != nil {
					// Merge into a fresh slice. Raw aliases the parsed
					// document, which the executor caches across requests,
					// so appending in place could write into it.
					merged := make(ast.SelectionSet, 0, len(existing.Raw)+len(sel.SelectionSet))
					merged = append(merged, existing.Raw...)
					merged = append(merged, sel.SelectionSet...)
					existing.Raw = merged
					nested := fc.CollectFields(sel.SelectionSet, fc.schema.FieldTypeName(parentType, sel.Name))
					if existing.Selection == nil {
						existing.Selection = nested
					} else if nested != nil {
						existing.Selection.Fields = append(existing.Selection.Fields, nested.Fields...)
						existing.Selection.Typename = existing.Selection.Typename || nested.Typename
					}
				}
				continue
			}

			field := &SelectedField{
				Name:      sel.Name,
				Alias:     sel.Alias,
				Arguments: fc.collectArguments(sel.Arguments),
				Raw:       sel.SelectionSet,
			}
			if sel.SelectionSet != nil {
				field.Selection = fc.CollectFields(sel.SelectionSet, fc.schema.FieldTypeName(parentType, sel.Name))
			}
			fieldMap[key] = field
			result.Fields = append(result.Fields, field)

		case *ast.FragmentSpread:
			if !fc.shouldInclude(sel.Directives) {
				continue
			}
			fragment, ok := fc.fragments[sel.Name]
			if !ok {
				continue
			}
			if !fc.typeApplies(fragment.TypeCondition, parentType) {
				continue
			}
			fc.collect(fragment.SelectionSet, parentType, fieldMap, result)

		case *ast.InlineFragment:
			if !fc.shouldInclude(sel.Directives) {
				continue
			}
			if sel.TypeCondition != "" && !fc.typeApplies(sel.TypeCondition, parentType) {
				continue
			}
			fc.collect(sel.SelectionSet, parentType, fieldMap, result)
		}
	}
}

// shouldInclude applies @skip and @include.
func (fc *FieldCollector) shouldInclude(directives ast.DirectiveList) bool {
	for _, dir := range directives {
		switch dir.Name {
		case "skip":
			if arg := dir.Arguments.ForName("if"); arg != nil {
				if v, ok := fc.evaluateValue(arg.Value).(bool); ok && v {
					return false
				}
			}
		case "include":
			if arg := dir.Arguments.ForName("if"); arg != nil {
				if v, ok := fc.evaluateValue(arg.Value).(bool); ok && !v {
					return false
				}
			}
		}
	}
	return true
}

func (fc *FieldCollector) collectArguments(args ast.ArgumentList) map[string]any {
	result := make(map[string]any)
	for _, arg := range args {
		result[arg.Name] = fc.evaluateValue(arg.Value)
	}
	return result
}

// evaluateValue turns an AST value into a Go value, resolving variables.
func (fc *FieldCollector) evaluateValue(value *ast.Value) any {
	if value == nil {
		return nil
	}

	switch value.Kind {
	case ast.Variable:
		if fc.variables == nil {
			return nil
		}
		return fc.variables[value.Raw]

	case ast.IntValue:
		i, err := strconv.ParseInt(value.Raw, 10, 64)
		if err != nil {
			return int64(0)
		}
		return i

	case ast.FloatValue:
		f, err := strconv.ParseFloat(value.Raw, 64)
		if err != nil {
			return 0.0
		}
		return f

	case ast.StringValue, ast.BlockValue, ast.EnumValue:
		return value.Raw

	case ast.BooleanValue:
		return value.Raw == "true"

	case ast.NullValue:
		return nil

	case ast.ListValue:
		result := make([]any, 0, len(value.Children))
		for _, child := range value.Children {
			result = append(result, fc.evaluateValue(child.Value))
		}
		return result

	case ast.ObjectValue:
		result := make(map[string]any)
		for _, child := range value.Children {
			result[child.Name] = fc.evaluateValue(child.Value)
		}
		return result

	default:
		return value.Raw
	}
}

// typeApplies reports whether a fragment with the given type condition
// applies when collecting against parentType. A condition naming an object
// type applies on an interface parent once the runtime type is known, which
// the executor handles by re-collecting; here it applies when either side
// implements the other.
func (fc *FieldCollector) typeApplies(condition, parentType string) bool {
	if condition == parentType {
		return true
	}
	if fc.schema.Implements(parentType, condition) {
		return true
	}
	return false
}
