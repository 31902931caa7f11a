// Package value defines the closed set of runtime values: a canonical state
// or an algebra element. Code that handles a Value switches on the two
// variants; there is no third.
package value

import (
	"fmt"

	"github.com/sbl8/dualc/algebra"
	"github.com/sbl8/dualc/core"
)

// Kind is the static type of a value or operand.
type Kind uint8

const (
	KindState Kind = iota
	KindElement
	// KindAny is only used in op signatures for operands of either kind.
	KindAny
)

func (k Kind) String() string {
	switch k {
	case KindState:
		return "state"
	case KindElement:
		return "element"
	case KindAny:
		return "any"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind maps "state" or "element" to its kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "state":
		return KindState, nil
	case "element":
		return KindElement, nil
	}
	return 0, fmt.Errorf("unknown value kind %q", s)
}

// Accepts reports whether an operand of kind got satisfies k.
func (k Kind) Accepts(got Kind) bool {
	return k == KindAny || k == got
}

// Value is a State or an Element.
type Value interface {
	Kind() Kind
	String() string
	sealed()
}

// State wraps a canonical class.
type State struct {
	Class core.Class
}

// Element wraps an algebra element. The element must not be mutated once
// wrapped.
type Element struct {
	Elem *algebra.Element
}

// Of returns c as a Value.
func Of(c core.Class) State { return State{Class: c} }

// OfElement returns e as a Value.
func OfElement(e *algebra.Element) Element { return Element{Elem: e} }

func (State) Kind() Kind   { return KindState }
func (Element) Kind() Kind { return KindElement }

func (v State) String() string   { return fmt.Sprintf("state %d", v.Class.Index()) }
func (v Element) String() string { return "element " + v.Elem.String() }

func (State) sealed()   {}
func (Element) sealed() {}

// Equal compares two values of the same kind; values of different kinds
// are never equal.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case State:
		y, ok := b.(State)
		return ok && x.Class == y.Class
	case Element:
		y, ok := b.(Element)
		return ok && algebra.Equal(x.Elem, y.Elem)
	}
	return false
}

// AsState returns the class of v when v is a State.
func AsState(v Value) (core.Class, bool) {
	s, ok := v.(State)
	return s.Class, ok
}

// AsElement returns the element of v when v is an Element.
func AsElement(v Value) (*algebra.Element, bool) {
	e, ok := v.(Element)
	return e.Elem, ok
}
