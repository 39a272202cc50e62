package graph

import (
	"context"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
)

// introspectSchema answers the __schema field.
func (e *Executor) introspectSchema(ctx context.Context, field *SelectedField) (map[string]any, error) {
	doc := e.schema.Doc()
	result := make(map[string]any)

	if field.Selection == nil {
		return result, nil
	}
	for _, sel := range field.Selection.Fields {
		switch sel.Name {
		case "queryType":
			result["queryType"] = e.buildTypeRef(doc.Query, sel)
		case "mutationType":
			if doc.Mutation != nil {
				result["mutationType"] = e.buildTypeRef(doc.Mutation, sel)
			} else {
				result["mutationType"] = nil
			}
		case "subscriptionType":
			if doc.Subscription != nil {
				result["subscriptionType"] = e.buildTypeRef(doc.Subscription, sel)
			} else {
				result["subscriptionType"] = nil
			}
		case "types":
			types := make([]map[string]any, 0, len(doc.Types))
			for name, typeDef := range doc.Types {
				if strings.HasPrefix(name, "__") {
					continue
				}
				types = append(types, e.buildFullType(typeDef, sel, name))
			}
			result["types"] = types
		case "directives":
			directives := make([]map[string]any, 0, len(doc.Directives))
			for _, dir := range doc.Directives {
				directives = append(directives, e.buildDirective(dir, sel))
			}
			result["directives"] = directives
		case "description":
			result["description"] = doc.Description
		}
	}

	return result, nil
}

// introspectType answers the __type field.
func (e *Executor) introspectType(ctx context.Context, field *SelectedField, typeName string) (any, error) {
	typeDef, ok := e.schema.Doc().Types[typeName]
	if !ok {
		return nil, nil
	}
	return e.buildFullType(typeDef, field, typeName), nil
}

func (e *Executor) buildTypeRef(def *ast.Definition, field *SelectedField) map[string]any {
	if def == nil {
		return nil
	}
	result := map[string]any{
		"name": def.Name,
		"kind": introspectionKind(def.Kind),
	}
	if field.Selection == nil {
		return result
	}
	for _, sel := range field.Selection.Fields {
		switch sel.Name {
		case "description":
			result["description"] = def.Description
		case "fields":
			result["fields"] = e.buildFieldList(def, sel)
		case "interfaces":
			result["interfaces"] = e.buildInterfaces(def, sel)
		case "possibleTypes":
			result["possibleTypes"] = nil
		case "enumValues":
			result["enumValues"] = e.buildEnumValues(def, sel)
		case "inputFields":
			result["inputFields"] = e.buildInputFields(def, sel)
		case "ofType":
			result["ofType"] = nil
		}
	}
	return result
}

func (e *Executor) buildFullType(def *ast.Definition, field *SelectedField, name string) map[string]any {
	result := map[string]any{
		"name":        name,
		"kind":        introspectionKind(def.Kind),
		"description": def.Description,
	}
	if field.Selection == nil {
		return result
	}
	for _, sel := range field.Selection.Fields {
		switch sel.Name {
		case "fields":
			result["fields"] = e.buildFieldList(def, sel)
		case "interfaces":
			result["interfaces"] = e.buildInterfaces(def, sel)
		case "possibleTypes":
			result["possibleTypes"] = e.buildPossibleTypes(def, sel)
		case "enumValues":
			result["enumValues"] = e.buildEnumValues(def, sel)
		case "inputFields":
			result["inputFields"] = e.buildInputFields(def, sel)
		case "ofType":
			result["ofType"] = nil
		}
	}
	return result
}

func (e *Executor) buildFieldList(def *ast.Definition, field *SelectedField) any {
	if def.Kind != ast.Object && def.Kind != ast.Interface {
		return nil
	}

	includeDeprecated, _ := field.Arguments["includeDeprecated"].(bool)

	fields := make([]map[string]any, 0, len(def.Fields))
	for _, f := range def.Fields {
		if strings.HasPrefix(f.Name, "__") {
			continue
		}
		if !includeDeprecated && isDeprecated(f.Directives) {
			continue
		}
		fields = append(fields, e.buildField(f, field))
	}
	return fields
}

func (e *Executor) buildField(f *ast.FieldDefinition, parentField *SelectedField) map[string]any {
	result := map[string]any{
		"name":              f.Name,
		"description":       f.Description,
		"isDeprecated":      isDeprecated(f.Directives),
		"deprecationReason": deprecationReason(f.Directives),
	}

	if parentField.Selection == nil {
		return result
	}
	for _, sel := range parentField.Selection.Fields {
		switch sel.Name {
		case "args":
			args := make([]map[string]any, 0, len(f.Arguments))
			for _, arg := range f.Arguments {
				args = append(args, e.buildInputValue(arg, sel))
			}
			result["args"] = args
		case "type":
			result["type"] = e.buildTypeFromRef(f.Type, sel)
		}
	}
	return result
}

func (e *Executor) buildTypeFromRef(t *ast.Type, field *SelectedField) map[string]any {
	if t == nil {
		return nil
	}

	result := make(map[string]any)

	if t.NonNull {
		result["kind"] = "NON_NULL"
		result["name"] = nil
		if field.Selection != nil {
			for _, sel := range field.Selection.Fields {
				if sel.Name == "ofType" {
					inner := *t
					inner.NonNull = false
					result["ofType"] = e.buildTypeFromRef(&inner, sel)
				}
			}
		}
		return result
	}

	if t.Elem != nil {
		result["kind"] = "LIST"
		result["name"] = nil
		if field.Selection != nil {
			for _, sel := range field.Selection.Fields {
				if sel.Name == "ofType" {
					result["ofType"] = e.buildTypeFromRef(t.Elem, sel)
				}
			}
		}
		return result
	}

	if typeDef, ok := e.schema.Doc().Types[t.NamedType]; ok {
		result["kind"] = introspectionKind(typeDef.Kind)
	} else {
		result["kind"] = "SCALAR"
	}
	result["name"] = t.NamedType
	result["ofType"] = nil
	return result
}

func (e *Executor) buildInputValue(arg *ast.ArgumentDefinition, field *SelectedField) map[string]any {
	result := map[string]any{
		"name":        arg.Name,
		"description": arg.Description,
	}

	if field.Selection == nil {
		return result
	}
	for _, sel := range field.Selection.Fields {
		switch sel.Name {
		case "type":
			result["type"] = e.buildTypeFromRef(arg.Type, sel)
		case "defaultValue":
			if arg.DefaultValue != nil {
				result["defaultValue"] = arg.DefaultValue.String()
			} else {
				result["defaultValue"] = nil
			}
		}
	}
	return result
}

func (e *Executor) buildInterfaces(def *ast.Definition, field *SelectedField) any {
	if def.Kind != ast.Object {
		return nil
	}

	doc := e.schema.Doc()
	interfaces := make([]map[string]any, 0, len(def.Interfaces))
	for _, iface := range def.Interfaces {
		if ifaceDef, ok := doc.Types[iface]; ok {
			interfaces = append(interfaces, e.buildTypeRef(ifaceDef, field))
		}
	}
	return interfaces
}

func (e *Executor) buildPossibleTypes(def *ast.Definition, field *SelectedField) any {
	if def.Kind != ast.Interface && def.Kind != ast.Union {
		return nil
	}

	doc := e.schema.Doc()
	types := make([]map[string]any, 0)

	if def.Kind == ast.Union {
		for _, t := range def.Types {
			if typeDef, ok := doc.Types[t]; ok {
				types = append(types, e.buildTypeRef(typeDef, field))
			}
		}
		return types
	}

	for _, typeDef := range doc.PossibleTypes[def.Name] {
		types = append(types, e.buildTypeRef(typeDef, field))
	}
	return types
}

func (e *Executor) buildEnumValues(def *ast.Definition, field *SelectedField) any {
	if def.Kind != ast.Enum {
		return nil
	}

	includeDeprecated, _ := field.Arguments["includeDeprecated"].(bool)

	values := make([]map[string]any, 0, len(def.EnumValues))
	for _, v := range def.EnumValues {
		if !includeDeprecated && isDeprecated(v.Directives) {
			continue
		}
		values = append(values, map[string]any{
			"name":              v.Name,
			"description":       v.Description,
			"isDeprecated":      isDeprecated(v.Directives),
			"deprecationReason": deprecationReason(v.Directives),
		})
	}
	return values
}

func (e *Executor) buildInputFields(def *ast.Definition, field *SelectedField) any {
	if def.Kind != ast.InputObject {
		return nil
	}

	fields := make([]map[string]any, 0, len(def.Fields))
	for _, f := range def.Fields {
		result := map[string]any{
			"name":        f.Name,
			"description": f.Description,
		}
		if field.Selection != nil {
			for _, sel := range field.Selection.Fields {
				switch sel.Name {
				case "type":
					result["type"] = e.buildTypeFromRef(f.Type, sel)
				case "defaultValue":
					if f.DefaultValue != nil {
						result["defaultValue"] = f.DefaultValue.String()
					} else {
						result["defaultValue"] = nil
					}
				}
			}
		}
		fields = append(fields, result)
	}
	return fields
}

func (e *Executor) buildDirective(dir *ast.DirectiveDefinition, field *SelectedField) map[string]any {
	result := map[string]any{
		"name":         dir.Name,
		"description":  dir.Description,
		"isRepeatable": dir.IsRepeatable,
	}

	if field.Selection == nil {
		return result
	}
	for _, sel := range field.Selection.Fields {
		switch sel.Name {
		case "locations":
			locations := make([]string, 0, len(dir.Locations))
			for _, loc := range dir.Locations {
				locations = append(locations, string(loc))
			}
			result["locations"] = locations
		case "args":
			args := make([]map[string]any, 0, len(dir.Arguments))
			for _, arg := range dir.Arguments {
				args = append(args, e.buildInputValue(arg, sel))
			}
			result["args"] = args
		}
	}
	return result
}

func isDeprecated(directives ast.DirectiveList) bool {
	return directives.ForName("deprecated") != nil
}

func deprecationReason(directives ast.DirectiveList) any {
	d := directives.ForName("deprecated")
	if d == nil {
		return nil
	}
	if arg := d.Arguments.ForName("reason"); arg != nil {
		return arg.Value.Raw
	}
	return "No longer supported"
}

func introspectionKind(kind ast.DefinitionKind) string {
	switch kind {
	case ast.Scalar:
		return "SCALAR"
	case ast.Object:
		return "OBJECT"
	case ast.Interface:
		return "INTERFACE"
	case ast.Union:
		return "UNION"
	case ast.Enum:
		return "ENUM"
	case ast.InputObject:
		return "INPUT_OBJECT"
	default:
		return string(kind)
	}
}
