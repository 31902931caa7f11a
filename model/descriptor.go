package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	dcerrors "github.com/sbl8/dualc/errors"
)

// MaxOps bounds the number of op declarations a descriptor may expand to.
// It equals the op count limit of the plan format.
const MaxOps = math.MaxUint16

// PrevRef is the argument spelling of the preceding op's value.
const PrevRef = "$"

// Backend preferences accepted in Lowering.Prefer.
const (
	PreferAuto    = "auto"
	PreferFast    = "fast"
	PreferGeneral = "general"
)

// OptSpecialize enables composition specialization into lookup tables.
const OptSpecialize = "specialize"

// Descriptor is the declarative description of one operation.
type Descriptor struct {
	Name      string `yaml:"name" validate:"required,paramname"`
	Version   string `yaml:"version,omitempty"`
	Namespace string `yaml:"namespace,omitempty"`

	// Compiled parameters are fixed at compile time.
	Compiled map[string]Param `yaml:"compiled,omitempty" validate:"dive,keys,paramname,endkeys"`
	// Runtime parameters map a name to "state" or "element".
	Runtime map[string]string `yaml:"runtime,omitempty" validate:"dive,keys,paramname,endkeys,oneof=state element"`

	ComplexityHint string   `yaml:"complexity_hint,omitempty" validate:"omitempty,oneof=C0 C1 C2 C3"`
	Lowering       Lowering `yaml:"lowering,omitempty"`

	Ops []OpDecl `yaml:"ops" validate:"required,min=1,dive"`
}

// Lowering holds the backend preference and the optimizations to enable.
type Lowering struct {
	Prefer        string   `yaml:"prefer,omitempty" validate:"omitempty,oneof=auto fast general"`
	Optimizations []string `yaml:"optimizations,omitempty" validate:"dive,oneof=specialize"`
}

// OpDecl declares one op, or a nested group of ops when Group is set.
type OpDecl struct {
	Op       string   `yaml:"op,omitempty" validate:"required_without=Group,excluded_with=Group"`
	Args     []string `yaml:"args,omitempty"`
	Power    *int     `yaml:"power,omitempty"`
	Grade    *int     `yaml:"grade,omitempty" validate:"omitempty,min=0,max=7"`
	Scalar   *float64 `yaml:"scalar,omitempty"`
	Overflow string   `yaml:"overflow,omitempty" validate:"omitempty,oneof=drop track"`
	Group    []OpDecl `yaml:"group,omitempty" validate:"omitempty,dive"`
}

// Param is a compiled parameter: a state index or an element literal.
type Param struct {
	State   *int
	Element *ElementLiteral
}

// ElementLiteral spells an algebra element as a sum of terms.
type ElementLiteral struct {
	Terms []TermLiteral `yaml:"terms"`
}

// TermLiteral is coeff * blade ⊗ r^R ⊗ s^S. Blade lists basis vector
// indices in increasing order; an empty list is the scalar.
type TermLiteral struct {
	Blade []int   `yaml:"blade,flow"`
	R     int     `yaml:"r"`
	S     int     `yaml:"s"`
	Coeff float64 `yaml:"coeff"`
}

// StateParam returns a compiled state parameter.
func StateParam(index int) Param { return Param{State: &index} }

// ElementParam returns a compiled element parameter.
func ElementParam(terms ...TermLiteral) Param {
	return Param{Element: &ElementLiteral{Terms: terms}}
}

// UnmarshalYAML accepts an integer (state) or a mapping (element).
func (p *Param) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		var i int
		if err := n.Decode(&i); err != nil {
			return fmt.Errorf("line %d: compiled parameter must be an integer state or an element mapping", n.Line)
		}
		p.State = &i
		return nil
	case yaml.MappingNode:
		var lit ElementLiteral
		if err := n.Decode(&lit); err != nil {
			return err
		}
		p.Element = &lit
		return nil
	}
	return fmt.Errorf("line %d: unsupported compiled parameter", n.Line)
}

// MarshalYAML writes the set variant.
func (p Param) MarshalYAML() (any, error) {
	if p.State != nil {
		return *p.State, nil
	}
	return p.Element, nil
}

var (
	descriptorValidate *validator.Validate
	paramNameRE        = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*$`)
)

func init() {
	descriptorValidate = validator.New()
	_ = descriptorValidate.RegisterValidation("paramname", validateParamName)
}

// validateParamName rejects names that would read as "$" or an integer
// literal in an args list.
func validateParamName(fl validator.FieldLevel) bool {
	return paramNameRE.MatchString(fl.Field().String())
}

// Validate checks structure. Names, kinds and op signatures are checked
// later, when the IR is built against a registry.
func (d *Descriptor) Validate() error {
	if err := descriptorValidate.Struct(d); err != nil {
		return dcerrors.Wrap(err, dcerrors.CodeMalformedDescriptor, dcerrors.CategoryCompile, "descriptor failed validation").
			WithContext("descriptor", d.Name)
	}
	for name, p := range d.Compiled {
		if (p.State == nil) == (p.Element == nil) {
			return dcerrors.Malformed("compiled parameter %q must be exactly one of state or element", name)
		}
		if _, clash := d.Runtime[name]; clash {
			return dcerrors.Malformed("parameter %q is both compiled and runtime", name)
		}
	}
	return nil
}

// Specialize reports whether composition specialization is enabled.
func (d *Descriptor) Specialize() bool {
	for _, o := range d.Lowering.Optimizations {
		if o == OptSpecialize {
			return true
		}
	}
	return false
}

// Prefer returns the backend preference, defaulting to auto.
func (d *Descriptor) Prefer() string {
	if d.Lowering.Prefer == "" {
		return PreferAuto
	}
	return d.Lowering.Prefer
}

// Canonical returns the canonical YAML encoding of d. Map keys are sorted,
// so equal descriptors encode identically.
func (d *Descriptor) Canonical() ([]byte, error) {
	return yaml.Marshal(d)
}

// Fingerprint returns the hex SHA-256 of the canonical encoding.
func (d *Descriptor) Fingerprint() (string, error) {
	b, err := d.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// ParseDescriptorYAML decodes a YAML descriptor.
func ParseDescriptorYAML(src []byte) (*Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(src, &d); err != nil {
		return nil, dcerrors.Wrap(err, dcerrors.CodeMalformedDescriptor, dcerrors.CategoryCompile, "descriptor is not valid YAML")
	}
	return &d, nil
}

// LoadDescriptor reads a descriptor file. Files ending in .yaml or .yml are
// YAML; anything else is the line-oriented text form.
func LoadDescriptor(path string) (*Descriptor, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseDescriptorYAML(src)
	default:
		return ParseDescriptorText(src)
	}
}
