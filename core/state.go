// Package core provides the canonical state space of the engine.
//
// A state (Class) is one of 96 canonical classes identified by three
// coordinates: a quadrant h in [0,4), a modality d in [0,3) and a context
// l in [0,8). The index of a class is 24h + 8d + l.
//
// Key components:
//   - Class: the canonical state, with Encode/Decode and byte forms
//   - Generator: the four transform generators R, D, T and M
//   - Table: a total function over the 96 states, used for transform
//     lookup and for composition-specialized plans
//   - Byte stream helpers used by plan serialization
//
// All tables are generated from the coordinate formulas on first use,
// verified exhaustively, and read-only afterwards. Lookups are O(1) and
// safe for concurrent use.
package core

import (
	"fmt"

	dcerrors "github.com/sbl8/dualc/errors"
)

// Coordinate ranges of the state space.
const (
	Quadrants  = 4
	Modalities = 3
	Contexts   = 8

	// NumClasses is the size of the state space.
	NumClasses = Quadrants * Modalities * Contexts
)

// Class is a canonical state with index in [0, NumClasses).
type Class uint8

// NewClass validates index and returns the corresponding class.
func NewClass(index int) (Class, error) {
	if index < 0 || index >= NumClasses {
		return 0, dcerrors.InvalidState("class index %d out of range [0,%d)", index, NumClasses)
	}
	return Class(index), nil
}

// MustClass is NewClass for indices known to be valid; it panics otherwise.
func MustClass(index int) Class {
	c, err := NewClass(index)
	if err != nil {
		panic(err)
	}
	return c
}

// Encode maps coordinates to their class.
func Encode(h, d, l int) (Class, error) {
	if h < 0 || h >= Quadrants {
		return 0, dcerrors.InvalidState("quadrant %d out of range [0,%d)", h, Quadrants).
			WithContext("coord", "h")
	}
	if d < 0 || d >= Modalities {
		return 0, dcerrors.InvalidState("modality %d out of range [0,%d)", d, Modalities).
			WithContext("coord", "d")
	}
	if l < 0 || l >= Contexts {
		return 0, dcerrors.InvalidState("context %d out of range [0,%d)", l, Contexts).
			WithContext("coord", "l")
	}
	return encode(h, d, l), nil
}

// Decode maps an index to its coordinates.
func Decode(index int) (h, d, l int, err error) {
	c, err := NewClass(index)
	if err != nil {
		return 0, 0, 0, err
	}
	h, d, l = c.Coords()
	return h, d, l, nil
}

func encode(h, d, l int) Class {
	return Class(h*Modalities*Contexts + d*Contexts + l)
}

// Coords returns the (h, d, l) coordinates of c.
func (c Class) Coords() (h, d, l int) {
	i := int(c)
	return i / (Modalities * Contexts), (i / Contexts) % Modalities, i % Contexts
}

// Quadrant returns h.
func (c Class) Quadrant() int { return int(c) / (Modalities * Contexts) }

// Modality returns d.
func (c Class) Modality() int { return (int(c) / Contexts) % Modalities }

// Context returns l.
func (c Class) Context() int { return int(c) % Contexts }

// Index returns the class index.
func (c Class) Index() int { return int(c) }

// Valid reports whether c lies inside the state space.
func (c Class) Valid() bool { return int(c) < NumClasses }

func (c Class) String() string {
	h, d, l := c.Coords()
	return fmt.Sprintf("%d(h=%d,d=%d,l=%d)", int(c), h, d, l)
}
