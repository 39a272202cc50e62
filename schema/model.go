package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a model field for schema generation and SQL compilation.
type Kind string

const (
	KindID      Kind = "ID"
	KindString  Kind = "String"
	KindInt     Kind = "Int"
	KindFloat   Kind = "Float"
	KindBoolean Kind = "Boolean"
	KindTime    Kind = "DateTime"
	KindUUID    Kind = "UUID"
	KindJSON    Kind = "JSON"
	KindEnum    Kind = "Enum"
)

func (k Kind) String() string { return string(k) }

func (k Kind) IsValid() bool {
	switch k {
	case KindID, KindString, KindInt, KindFloat, KindBoolean, KindTime, KindUUID, KindJSON, KindEnum:
		return true
	}
	return false
}

// IsText reports whether the kind supports substring lookups.
func (k Kind) IsText() bool {
	return k == KindString || k == KindID
}

// IsComparable reports whether the kind supports range/comparison lookups.
func (k Kind) IsComparable() bool {
	return k == KindInt || k == KindFloat || k == KindTime
}

// RelationKind describes how two models are linked.
type RelationKind string

const (
	HasMany   RelationKind = "hasMany"
	HasOne    RelationKind = "hasOne"
	BelongsTo RelationKind = "belongsTo"
)

func (r RelationKind) IsValid() bool {
	switch r {
	case HasMany, HasOne, BelongsTo:
		return true
	}
	return false
}

// Field maps a GraphQL field to a SQL column.
type Field struct {
	Name       string
	Column     string
	Kind       Kind
	Nullable   bool
	Filterable bool
	Orderable  bool

	// Enum metadata, only meaningful for KindEnum.
	EnumName   string
	EnumValues []string
}

// Relation maps a GraphQL field to a foreign-key link between two models.
type Relation struct {
	Name   string
	Kind   RelationKind
	Target string

	// Column is the foreign-key column. For belongsTo it lives on the owning
	// table, for hasMany/hasOne it lives on the target table.
	Column string

	// References is the column the foreign key points at. Defaults to "id".
	References string
}

// Model describes one relational entity exposed through the schema.
type Model struct {
	Name      string
	Plural    string
	Table     string
	Node      bool
	Fields    []Field
	Relations []Relation
}

// Field returns the field with the given GraphQL name.
func (m *Model) Field(name string) (*Field, bool) {
	for i := range m.Fields {
		if m.Fields[i].Name == name {
			return &m.Fields[i], true
		}
	}
	return nil, false
}

// Relation returns the relation with the given GraphQL field name.
func (m *Model) Relation(name string) (*Relation, bool) {
	for i := range m.Relations {
		if m.Relations[i].Name == name {
			return &m.Relations[i], true
		}
	}
	return nil, false
}

// IDField returns the model's primary key field.
func (m *Model) IDField() (*Field, bool) {
	for i := range m.Fields {
		if m.Fields[i].Kind == KindID {
			return &m.Fields[i], true
		}
	}
	return nil, false
}

// FilterableFields returns the fields that participate in the filter input.
func (m *Model) FilterableFields() []Field {
	out := make([]Field, 0, len(m.Fields))
	for _, f := range m.Fields {
		if f.Filterable {
			out = append(out, f)
		}
	}
	return out
}

// OrderableFields returns the fields that participate in the order enum.
func (m *Model) OrderableFields() []Field {
	out := make([]Field, 0, len(m.Fields))
	for _, f := range m.Fields {
		if f.Orderable {
			out = append(out, f)
		}
	}
	return out
}

// PluralName returns the configured plural or a naive derivation.
func (m *Model) PluralName() string {
	if m.Plural != "" {
		return m.Plural
	}
	return pluralize(m.Name)
}

// Registry holds the models a schema is generated from. Registration order is
// preserved so generation stays deterministic.
type Registry struct {
	models []*Model
	byName map[string]*Model
}

// NewRegistry creates an empty model registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Model),
	}
}

// Register adds a model to the registry.
func (r *Registry) Register(m *Model) error {
	if m.Name == "" {
		return fmt.Errorf("model name is required")
	}
	if m.Table == "" {
		return fmt.Errorf("model %s: table is required", m.Name)
	}
	if _, exists := r.byName[m.Name]; exists {
		return fmt.Errorf("model %s: already registered", m.Name)
	}
	if len(m.Fields) == 0 {
		return fmt.Errorf("model %s: at least one field is required", m.Name)
	}
	for i := range m.Fields {
		f := &m.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("model %s: field name is required", m.Name)
		}
		if !f.Kind.IsValid() {
			return fmt.Errorf("model %s: field %s: unknown kind %q", m.Name, f.Name, f.Kind)
		}
		if f.Kind == KindEnum && (f.EnumName == "" || len(f.EnumValues) == 0) {
			return fmt.Errorf("model %s: field %s: enum fields need a name and values", m.Name, f.Name)
		}
		if f.Column == "" {
			f.Column = toSnakeCase(f.Name)
		}
	}
	if m.Node {
		if _, ok := m.IDField(); !ok {
			return fmt.Errorf("model %s: node models need an ID field", m.Name)
		}
	}
	for i := range m.Relations {
		rel := &m.Relations[i]
		if rel.Name == "" || rel.Target == "" {
			return fmt.Errorf("model %s: relations need a name and target", m.Name)
		}
		if !rel.Kind.IsValid() {
			return fmt.Errorf("model %s: relation %s: unknown kind %q", m.Name, rel.Name, rel.Kind)
		}
		if rel.Column == "" {
			return fmt.Errorf("model %s: relation %s: foreign-key column is required", m.Name, rel.Name)
		}
		if rel.References == "" {
			rel.References = "id"
		}
	}

	r.models = append(r.models, m)
	r.byName[m.Name] = m
	return nil
}

// MustRegister is Register that panics on error. Intended for static model
// declarations at startup.
func (r *Registry) MustRegister(m *Model) {
	if err := r.Register(m); err != nil {
		panic(err)
	}
}

// Model returns a registered model by GraphQL type name.
func (r *Registry) Model(name string) (*Model, bool) {
	m, ok := r.byName[name]
	return m, ok
}

// MustModel is Model that panics when the model is not registered.
func (r *Registry) MustModel(name string) *Model {
	m, ok := r.Model(name)
	if !ok {
		panic(fmt.Sprintf("schema: model %q is not registered", name))
	}
	return m
}

// Models returns all models in registration order.
func (r *Registry) Models() []*Model {
	return r.models
}

// Validate checks cross-model consistency (relation targets must resolve).
func (r *Registry) Validate() error {
	for _, m := range r.models {
		for _, rel := range m.Relations {
			if _, ok := r.byName[rel.Target]; !ok {
				return fmt.Errorf("model %s: relation %s: unknown target model %q", m.Name, rel.Name, rel.Target)
			}
		}
	}
	return nil
}

// Enums collects the distinct enum types declared across all models, sorted by
// name so generation stays stable.
func (r *Registry) Enums() []Field {
	seen := make(map[string]Field)
	for _, m := range r.models {
		for _, f := range m.Fields {
			if f.Kind == KindEnum {
				if _, ok := seen[f.EnumName]; !ok {
					seen[f.EnumName] = f
				}
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Field, 0, len(names))
	for _, name := range names {
		out = append(out, seen[name])
	}
	return out
}

// toSnakeCase converts a camelCase name to snake_case.
func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteByte(byte(r - 'A' + 'a'))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// pluralize derives a plural type name for connection fields.
func pluralize(s string) string {
	switch {
	case strings.HasSuffix(s, "y") && len(s) > 1 && !isVowel(s[len(s)-2]):
		return s[:len(s)-1] + "ies"
	case strings.HasSuffix(s, "s"), strings.HasSuffix(s, "x"),
		strings.HasSuffix(s, "z"), strings.HasSuffix(s, "ch"), strings.HasSuffix(s, "sh"):
		return s + "es"
	default:
		return s + "s"
	}
}

func isVowel(b byte) bool {
	switch b | 0x20 {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}
