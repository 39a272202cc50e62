package schema

import (
	"fmt"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

// Op identifies what a generated root field does at runtime.
type Op string

const (
	OpNode       Op = "node"
	OpByID       Op = "byID"
	OpConnection Op = "connection"
	OpCreate     Op = "create"
	OpUpdate     Op = "update"
	OpDelete     Op = "delete"
)

// Binding links a generated root field back to the model it operates on.
// Model is nil for the node field, which dispatches on the decoded ID.
type Binding struct {
	Op    Op
	Model *Model
}

// Schema is a generated and parsed GraphQL schema together with the bindings
// needed to resolve its fields against the registry's models.
type Schema struct {
	doc *ast.Schema
	reg *Registry
	sdl string

	query    map[string]Binding
	mutation map[string]Binding
	models   map[string]*Model
}

// Load generates SDL from the registry, parses and validates it, and builds
// the runtime binding maps.
func Load(reg *Registry) (*Schema, error) {
	sdl, err := Generate(reg)
	if err != nil {
		return nil, err
	}

	doc, gqlErr := gqlparser.LoadSchema(&ast.Source{
		Name:  "relaypg-generated.graphql",
		Input: sdl,
	})
	if gqlErr != nil {
		return nil, fmt.Errorf("generated schema does not parse: %w", gqlErr)
	}

	s := &Schema{
		doc:      doc,
		reg:      reg,
		sdl:      sdl,
		query:    make(map[string]Binding),
		mutation: make(map[string]Binding),
		models:   make(map[string]*Model),
	}

	s.query["node"] = Binding{Op: OpNode}
	for _, m := range reg.Models() {
		s.models[m.Name] = m
		if !m.Node {
			continue
		}
		s.query[lowerFirst(m.Name)] = Binding{Op: OpByID, Model: m}
		s.query[lowerFirst(m.PluralName())] = Binding{Op: OpConnection, Model: m}
		s.mutation["create"+m.Name] = Binding{Op: OpCreate, Model: m}
		s.mutation["update"+m.Name] = Binding{Op: OpUpdate, Model: m}
		s.mutation["delete"+m.Name] = Binding{Op: OpDelete, Model: m}
	}

	return s, nil
}

// Doc returns the parsed gqlparser schema.
func (s *Schema) Doc() *ast.Schema { return s.doc }

// SDL returns the generated schema text.
func (s *Schema) SDL() string { return s.sdl }

// Registry returns the model registry the schema was generated from.
func (s *Schema) Registry() *Registry { return s.reg }

// Model returns the model bound to a GraphQL object type name.
func (s *Schema) Model(typeName string) (*Model, bool) {
	m, ok := s.models[typeName]
	return m, ok
}

// QueryBinding returns the binding for a root Query field.
func (s *Schema) QueryBinding(field string) (Binding, bool) {
	b, ok := s.query[field]
	return b, ok
}

// MutationBinding returns the binding for a root Mutation field.
func (s *Schema) MutationBinding(field string) (Binding, bool) {
	b, ok := s.mutation[field]
	return b, ok
}

// FieldTypeName returns the unwrapped named type of parentType.fieldName, or
// "" when either side is unknown.
func (s *Schema) FieldTypeName(parentType, fieldName string) string {
	def, ok := s.doc.Types[parentType]
	if !ok {
		return ""
	}
	field := def.Fields.ForName(fieldName)
	if field == nil {
		return ""
	}
	return unwrapNamedType(field.Type)
}

// Implements reports whether typeName implements the named interface.
func (s *Schema) Implements(typeName, ifaceName string) bool {
	def, ok := s.doc.Types[typeName]
	if !ok {
		return false
	}
	for _, iface := range def.Interfaces {
		if iface == ifaceName {
			return true
		}
	}
	return false
}

func unwrapNamedType(t *ast.Type) string {
	if t == nil {
		return ""
	}
	for t.Elem != nil {
		t = t.Elem
	}
	return t.NamedType
}
