package schema

import (
	"fmt"
	"strings"
)

// Generate renders the registry as GraphQL SDL. The output is deterministic:
// models appear in registration order, fields in declaration order, and lookup
// suffixes in a fixed sequence, so the result is suitable for snapshotting.
func Generate(reg *Registry) (string, error) {
	if err := reg.Validate(); err != nil {
		return "", fmt.Errorf("invalid registry: %w", err)
	}

	g := &generator{reg: reg}
	return g.render()
}

type generator struct {
	reg *Registry
	sb  strings.Builder
}

func (g *generator) render() (string, error) {
	g.writeScalars()
	g.writeOrderDirection()
	g.writeEnums()
	g.writeNodeInterface()
	g.writePageInfo()

	for _, m := range g.reg.Models() {
		if err := g.writeModel(m); err != nil {
			return "", err
		}
	}

	g.writeQuery()
	g.writeMutation()

	return g.sb.String(), nil
}

func (g *generator) writeScalars() {
	used := make(map[Kind]bool)
	for _, m := range g.reg.Models() {
		for _, f := range m.Fields {
			used[f.Kind] = true
		}
	}

	wrote := false
	for _, k := range []Kind{KindTime, KindUUID, KindJSON} {
		if used[k] {
			fmt.Fprintf(&g.sb, "scalar %s\n", k)
			wrote = true
		}
	}
	if wrote {
		g.sb.WriteString("\n")
	}
}

func (g *generator) writeOrderDirection() {
	g.sb.WriteString(`"""Ordering direction, with explicit null placement variants."""
enum OrderDirection {
  ASC
  ASC_NULLS_FIRST
  ASC_NULLS_LAST
  DESC
  DESC_NULLS_FIRST
  DESC_NULLS_LAST
}

`)
}

func (g *generator) writeEnums() {
	for _, f := range g.reg.Enums() {
		fmt.Fprintf(&g.sb, "enum %s {\n", f.EnumName)
		for _, v := range f.EnumValues {
			fmt.Fprintf(&g.sb, "  %s\n", v)
		}
		g.sb.WriteString("}\n\n")
	}
}

func (g *generator) writeNodeInterface() {
	g.sb.WriteString(`"""An object with a globally unique identifier."""
interface Node {
  id: ID!
}

`)
}

func (g *generator) writePageInfo() {
	g.sb.WriteString(`"""Pagination metadata for a connection."""
type PageInfo {
  hasNextPage: Boolean!
  hasPreviousPage: Boolean!
  startCursor: String
  endCursor: String
}

`)
}

func (g *generator) writeModel(m *Model) error {
	// Object type.
	if m.Node {
		fmt.Fprintf(&g.sb, "type %s implements Node {\n", m.Name)
	} else {
		fmt.Fprintf(&g.sb, "type %s {\n", m.Name)
	}
	for _, f := range m.Fields {
		fmt.Fprintf(&g.sb, "  %s: %s\n", f.Name, g.fieldType(f))
	}
	for _, rel := range m.Relations {
		target, _ := g.reg.Model(rel.Target)
		switch rel.Kind {
		case HasMany:
			fmt.Fprintf(&g.sb, "  %s: [%s!]!\n", rel.Name, target.Name)
		case HasOne, BelongsTo:
			fmt.Fprintf(&g.sb, "  %s: %s\n", rel.Name, target.Name)
		}
	}
	g.sb.WriteString("}\n\n")

	if m.Node {
		g.writeConnection(m)
	}
	if len(m.FilterableFields()) > 0 {
		g.writeFilter(m)
	}
	if len(m.OrderableFields()) > 0 {
		g.writeOrder(m)
	}
	if m.Node {
		g.writeMutationInputs(m)
	}
	return nil
}

func (g *generator) writeConnection(m *Model) {
	fmt.Fprintf(&g.sb, "type %sEdge {\n  cursor: String!\n  node: %s!\n}\n\n", m.Name, m.Name)
	fmt.Fprintf(&g.sb, "type %sConnection {\n  pageInfo: PageInfo!\n  edges: [%sEdge!]!\n  totalCount: Int!\n}\n\n", m.Name, m.Name)
}

// lookupSuffixes in generation order. The bare field name means exact match.
var textSuffixes = []string{"Contains", "IContains", "StartsWith", "IStartsWith", "EndsWith", "IEndsWith"}

var comparableSuffixes = []string{"Gt", "Gte", "Lt", "Lte"}

func (g *generator) writeFilter(m *Model) {
	fmt.Fprintf(&g.sb, "input %sFilter {\n", m.Name)
	for _, f := range m.FilterableFields() {
		typ := g.scalarName(f)
		switch {
		case f.Kind == KindJSON:
			// JSON columns only support presence checks.
		case f.Kind.IsText():
			fmt.Fprintf(&g.sb, "  %s: %s\n", f.Name, typ)
			for _, suffix := range textSuffixes {
				fmt.Fprintf(&g.sb, "  %s%s: %s\n", f.Name, suffix, typ)
			}
			fmt.Fprintf(&g.sb, "  %sInList: [%s!]\n", f.Name, typ)
		case f.Kind.IsComparable():
			fmt.Fprintf(&g.sb, "  %s: %s\n", f.Name, typ)
			for _, suffix := range comparableSuffixes {
				fmt.Fprintf(&g.sb, "  %s%s: %s\n", f.Name, suffix, typ)
			}
			fmt.Fprintf(&g.sb, "  %sInList: [%s!]\n", f.Name, typ)
			fmt.Fprintf(&g.sb, "  %sRange: [%s!]\n", f.Name, typ)
		case f.Kind == KindBoolean:
			fmt.Fprintf(&g.sb, "  %s: %s\n", f.Name, typ)
		default:
			fmt.Fprintf(&g.sb, "  %s: %s\n", f.Name, typ)
			fmt.Fprintf(&g.sb, "  %sInList: [%s!]\n", f.Name, typ)
		}
		if f.Nullable {
			fmt.Fprintf(&g.sb, "  %sIsNull: Boolean\n", f.Name)
		}
	}
	fmt.Fprintf(&g.sb, "  and: [%sFilter!]\n", m.Name)
	fmt.Fprintf(&g.sb, "  or: [%sFilter!]\n", m.Name)
	fmt.Fprintf(&g.sb, "  not: %sFilter\n", m.Name)
	g.sb.WriteString("}\n\n")
}

func (g *generator) writeOrder(m *Model) {
	fmt.Fprintf(&g.sb, "enum %sOrderField {\n", m.Name)
	for _, f := range m.OrderableFields() {
		fmt.Fprintf(&g.sb, "  %s\n", toEnumCase(f.Name))
	}
	g.sb.WriteString("}\n\n")

	fmt.Fprintf(&g.sb, "input %sOrder {\n  field: %sOrderField!\n  direction: OrderDirection! = ASC\n}\n\n", m.Name, m.Name)
}

func (g *generator) writeMutationInputs(m *Model) {
	fmt.Fprintf(&g.sb, "input %sCreateInput {\n", m.Name)
	for _, f := range m.Fields {
		if f.Kind == KindID {
			continue
		}
		typ := g.scalarName(f)
		if f.Nullable {
			fmt.Fprintf(&g.sb, "  %s: %s\n", f.Name, typ)
		} else {
			fmt.Fprintf(&g.sb, "  %s: %s!\n", f.Name, typ)
		}
	}
	g.sb.WriteString("}\n\n")

	fmt.Fprintf(&g.sb, "input %sUpdateInput {\n", m.Name)
	for _, f := range m.Fields {
		if f.Kind == KindID {
			continue
		}
		fmt.Fprintf(&g.sb, "  %s: %s\n", f.Name, g.scalarName(f))
	}
	g.sb.WriteString("}\n\n")
}

func (g *generator) writeQuery() {
	g.sb.WriteString("type Query {\n")
	g.sb.WriteString("  node(id: ID!): Node\n")
	for _, m := range g.reg.Models() {
		if !m.Node {
			continue
		}
		fmt.Fprintf(&g.sb, "  %s(id: ID!): %s\n", lowerFirst(m.Name), m.Name)
		fmt.Fprintf(&g.sb, "  %s(%s): %sConnection!\n", lowerFirst(m.PluralName()), g.connectionArgs(m), m.Name)
	}
	g.sb.WriteString("}\n")
}

func (g *generator) connectionArgs(m *Model) string {
	args := []string{"first: Int", "after: String", "last: Int", "before: String", "offset: Int"}
	if len(m.FilterableFields()) > 0 {
		args = append(args, fmt.Sprintf("filter: %sFilter", m.Name))
	}
	if len(m.OrderableFields()) > 0 {
		args = append(args, fmt.Sprintf("order: [%sOrder!]", m.Name))
	}
	return strings.Join(args, ", ")
}

func (g *generator) writeMutation() {
	any := false
	for _, m := range g.reg.Models() {
		if m.Node {
			any = true
			break
		}
	}
	if !any {
		return
	}

	g.sb.WriteString("\ntype Mutation {\n")
	for _, m := range g.reg.Models() {
		if !m.Node {
			continue
		}
		fmt.Fprintf(&g.sb, "  create%s(input: %sCreateInput!): %s!\n", m.Name, m.Name, m.Name)
		fmt.Fprintf(&g.sb, "  update%s(id: ID!, input: %sUpdateInput!): %s\n", m.Name, m.Name, m.Name)
		fmt.Fprintf(&g.sb, "  delete%s(id: ID!): Boolean!\n", m.Name)
	}
	g.sb.WriteString("}\n")
}

// fieldType renders the output type of an object field, with nullability.
func (g *generator) fieldType(f Field) string {
	typ := g.scalarName(f)
	if f.Nullable {
		return typ
	}
	return typ + "!"
}

// scalarName maps a field kind to the GraphQL type name it renders as.
func (g *generator) scalarName(f Field) string {
	if f.Kind == KindEnum {
		return f.EnumName
	}
	return string(f.Kind)
}

// toEnumCase converts camelCase to SCREAMING_SNAKE_CASE for enum values.
func toEnumCase(s string) string {
	return strings.ToUpper(toSnakeCase(s))
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
