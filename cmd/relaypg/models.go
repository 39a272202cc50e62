package relaypg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/relaypg/relaypg/schema"
)

// modelsFile is the YAML shape of a model definition file.
type modelsFile struct {
	Models []modelDef `yaml:"models"`
}

type modelDef struct {
	Name      string        `yaml:"name"`
	Plural    string        `yaml:"plural"`
	Table     string        `yaml:"table"`
	Node      *bool         `yaml:"node"`
	Fields    []fieldDef    `yaml:"fields"`
	Relations []relationDef `yaml:"relations"`
}

type fieldDef struct {
	Name       string   `yaml:"name"`
	Column     string   `yaml:"column"`
	Kind       string   `yaml:"kind"`
	Nullable   bool     `yaml:"nullable"`
	Filterable *bool    `yaml:"filterable"`
	Orderable  *bool    `yaml:"orderable"`
	Enum       string   `yaml:"enum"`
	EnumValues []string `yaml:"enum_values"`
}

type relationDef struct {
	Name       string `yaml:"name"`
	Kind       string `yaml:"kind"`
	Target     string `yaml:"target"`
	Column     string `yaml:"column"`
	References string `yaml:"references"`
}

// LoadModels reads a YAML model definition file into a registry.
func LoadModels(path string) (*schema.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read models file: %w", err)
	}

	var file modelsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(file.Models) == 0 {
		return nil, fmt.Errorf("%s defines no models", path)
	}

	reg := schema.NewRegistry()
	for _, def := range file.Models {
		model, err := buildModel(def)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", def.Name, err)
		}
		if err := reg.Register(model); err != nil {
			return nil, err
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

func buildModel(def modelDef) (*schema.Model, error) {
	model := &schema.Model{
		Name:   def.Name,
		Plural: def.Plural,
		Table:  def.Table,
		Node:   def.Node == nil || *def.Node,
	}

	for _, f := range def.Fields {
		kind := schema.Kind(f.Kind)
		if !kind.IsValid() {
			return nil, fmt.Errorf("field %s: unknown kind %q", f.Name, f.Kind)
		}
		model.Fields = append(model.Fields, schema.Field{
			Name:       f.Name,
			Column:     f.Column,
			Kind:       kind,
			Nullable:   f.Nullable,
			Filterable: f.Filterable == nil || *f.Filterable,
			Orderable:  f.Orderable == nil || *f.Orderable,
			EnumName:   f.Enum,
			EnumValues: f.EnumValues,
		})
	}

	for _, r := range def.Relations {
		kind := schema.RelationKind(r.Kind)
		if !kind.IsValid() {
			return nil, fmt.Errorf("relation %s: unknown kind %q", r.Name, r.Kind)
		}
		model.Relations = append(model.Relations, schema.Relation{
			Name:       r.Name,
			Kind:       kind,
			Target:     r.Target,
			Column:     r.Column,
			References: r.References,
		})
	}

	return model, nil
}
