package template

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ooddaa/mango-sub002/pkg/graph"
)

// FieldDefinition is the serializable form of a Field. Rule is a
// go-playground/validator tag such as "required,alpha" or "gte=0,lte=150".
type FieldDefinition struct {
	Example any    `json:"example,omitempty" yaml:"example,omitempty"`
	Rule    string `json:"rule,omitempty" yaml:"rule,omitempty"`
}

// PartnerDefinition describes the partner node of an implied relationship.
type PartnerDefinition struct {
	Labels     []string       `json:"labels" yaml:"labels"`
	Properties map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// ImpliedDefinition is the serializable form of an ImpliedRelationship with
// a fixed partner.
type ImpliedDefinition struct {
	Label      string            `json:"label" yaml:"label"`
	Direction  graph.Direction   `json:"direction" yaml:"direction"`
	Necessity  graph.Necessity   `json:"necessity,omitempty" yaml:"necessity,omitempty"`
	Properties map[string]any    `json:"properties,omitempty" yaml:"properties,omitempty"`
	Partner    PartnerDefinition `json:"partner" yaml:"partner"`
}

// Definition is the serializable form of a Template, used for YAML files and
// the Redis store.
type Definition struct {
	Label    string                     `json:"label" yaml:"label"`
	Strict   bool                       `json:"strict,omitempty" yaml:"strict,omitempty"`
	Required map[string]FieldDefinition `json:"required,omitempty" yaml:"required,omitempty"`
	Optional map[string]FieldDefinition `json:"optional,omitempty" yaml:"optional,omitempty"`
	Implied  []ImpliedDefinition        `json:"implied,omitempty" yaml:"implied,omitempty"`
}

// Compiler turns definitions into templates, compiling validator rules into
// predicates.
type Compiler struct {
	validate *validator.Validate
}

// NewCompiler creates a compiler backed by a fresh validator instance.
func NewCompiler() *Compiler {
	return &Compiler{validate: validator.New()}
}

// Compile builds a Template from d. Rules are checked against their example
// value so a malformed tag is reported here instead of at validation time.
func (c *Compiler) Compile(d Definition) (*Template, error) {
	if d.Label == "" {
		return nil, errors.New("template definition has no label")
	}

	t := &Template{
		Label:    d.Label,
		Strict:   d.Strict,
		Required: make(map[string]Field, len(d.Required)),
		Optional: make(map[string]Field, len(d.Optional)),
	}
	for key, fd := range d.Required {
		if !graph.IsRequired(key) {
			return nil, fmt.Errorf("template %s: required key %q must be upper case", d.Label, key)
		}
		f, err := c.field(fd)
		if err != nil {
			return nil, fmt.Errorf("template %s: key %s: %w", d.Label, key, err)
		}
		t.Required[key] = f
	}
	for key, fd := range d.Optional {
		if !graph.IsOptional(key) {
			return nil, fmt.Errorf("template %s: optional key %q must not be upper case or private", d.Label, key)
		}
		f, err := c.field(fd)
		if err != nil {
			return nil, fmt.Errorf("template %s: key %s: %w", d.Label, key, err)
		}
		t.Optional[key] = f
	}

	for _, imp := range d.Implied {
		if !imp.Direction.Valid() {
			return nil, fmt.Errorf("template %s: implied %s: invalid direction %q", d.Label, imp.Label, imp.Direction)
		}
		if len(imp.Partner.Labels) == 0 {
			return nil, fmt.Errorf("template %s: implied %s: partner has no labels", d.Label, imp.Label)
		}
	}
	if len(d.Implied) > 0 {
		implied := d.Implied
		t.Implied = func(*graph.Node) []ImpliedRelationship {
			out := make([]ImpliedRelationship, 0, len(implied))
			for _, imp := range implied {
				out = append(out, ImpliedRelationship{
					Label:             imp.Label,
					Properties:        graph.Properties(imp.Properties).Clone(),
					Direction:         imp.Direction,
					Necessity:         imp.Necessity,
					PartnerLabels:     imp.Partner.Labels,
					PartnerProperties: graph.Properties(imp.Partner.Properties).Clone(),
				})
			}
			return out
		}
	}
	return t, nil
}

func (c *Compiler) field(fd FieldDefinition) (f Field, err error) {
	f = Field{Example: fd.Example, Rule: fd.Rule}
	if fd.Rule == "" {
		return f, nil
	}

	// validator panics on unknown tags
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid rule %q: %v", fd.Rule, r)
		}
	}()
	if fd.Example != nil {
		if verr := c.validate.Var(fd.Example, fd.Rule); verr != nil {
			return f, fmt.Errorf("example %v fails rule %q: %w", fd.Example, fd.Rule, verr)
		}
	}

	rule := fd.Rule
	f.Predicate = func(value any) (ok bool) {
		defer func() {
			if recover() != nil {
				ok = false
			}
		}()
		return c.validate.Var(value, rule) == nil
	}
	return f, nil
}

// ReadDefinitions decodes a YAML (or JSON) document holding a list of
// template definitions.
func ReadDefinitions(r io.Reader) ([]Definition, error) {
	var doc struct {
		Templates []Definition `yaml:"templates"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode template definitions: %w", err)
	}
	return doc.Templates, nil
}
