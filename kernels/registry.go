package kernels

import (
	"fmt"
	"sort"
	"sync"

	dcerrors "github.com/sbl8/dualc/errors"
	"github.com/sbl8/dualc/value"
)

// Registry maps op names and opcodes to specs. It is append-only: specs
// are never replaced or removed, so a spec pointer stays valid for the
// registry's lifetime. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*OpSpec
	byCode [256]*OpSpec
	next   int
}

// NewRegistry returns a registry preloaded with the builtin catalog.
func NewRegistry() *Registry {
	r := &Registry{
		byName: make(map[string]*OpSpec),
		next:   OpCustomBase,
	}
	for _, spec := range Builtins() {
		s := spec
		r.byName[s.Name] = &s
		r.byCode[s.Code] = &s
	}
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns a shared registry holding only the builtins. Callers
// that register extensions should create their own with NewRegistry.
func Default() *Registry {
	defaultOnce.Do(func() { defaultRegistry = NewRegistry() })
	return defaultRegistry
}

// Register adds an extension op. Its opcode is assigned from OpCustomBase
// upward; any Code set by the caller is ignored. The stored spec is
// returned.
func (r *Registry) Register(spec OpSpec) (*OpSpec, error) {
	if err := validateSpec(&spec); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.byName[spec.Name]; dup {
		return nil, dcerrors.New(dcerrors.CodeDuplicateOp, dcerrors.CategoryCompile, "op already registered").
			WithContext("op", spec.Name)
	}
	if r.next > 0xFF {
		return nil, fmt.Errorf("opcode space exhausted registering %q", spec.Name)
	}
	spec.Code = uint8(r.next)
	r.next++

	s := &spec
	r.byName[s.Name] = s
	r.byCode[s.Code] = s
	return s, nil
}

func validateSpec(s *OpSpec) error {
	switch {
	case s.Name == "":
		return dcerrors.Malformed("op spec has no name")
	case s.Name == "$":
		return dcerrors.Malformed("op name %q is reserved", s.Name)
	case s.Arity < 1 || s.Arity > 2:
		return dcerrors.Malformed("op %q: arity %d not in [1,2]", s.Name, s.Arity)
	case s.Role != RoleCompute:
		return dcerrors.Malformed("op %q: only compute ops can be registered", s.Name)
	case s.State == nil && s.Element == nil:
		return dcerrors.Malformed("op %q has no implementation", s.Name)
	case s.In == value.KindState && s.State == nil:
		return dcerrors.Malformed("op %q takes states but has no state implementation", s.Name)
	case s.In == value.KindElement && s.Element == nil:
		return dcerrors.Malformed("op %q takes elements but has no element implementation", s.Name)
	case s.Capability == CapStateOnly && s.State == nil:
		return dcerrors.Malformed("op %q is state-only but has no state implementation", s.Name)
	}
	return nil
}

// Lookup returns the spec registered under name.
func (r *Registry) Lookup(name string) (*OpSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}

// MustLookup is Lookup for names known to be registered.
func (r *Registry) MustLookup(name string) *OpSpec {
	s, ok := r.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("kernels: op %q not registered", name))
	}
	return s
}

// ByCode returns the spec registered under an opcode.
func (r *Registry) ByCode(code uint8) (*OpSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.byCode[code]
	return s, s != nil
}

// Names lists every registered op name in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
