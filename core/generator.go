package core

import (
	"fmt"
	"sync"

	dcerrors "github.com/sbl8/dualc/errors"
)

// Generator is one of the four transform generators acting on the state
// space.
type Generator uint8

const (
	R Generator = iota // quadrant rotation, h -> h+1 mod 4
	D                  // modality shift, d -> d+1 mod 3
	T                  // context step, l -> l+1 mod 8
	M                  // mirror, negates all three coordinates
)

// NumGenerators is the number of transform generators.
const NumGenerators = 4

// Generators lists the generators in canonical order.
var Generators = [NumGenerators]Generator{R, D, T, M}

var generatorOrders = [NumGenerators]int{R: Quadrants, D: Modalities, T: Contexts, M: 2}

var generatorNames = [NumGenerators]string{R: "R", D: "D", T: "T", M: "M"}

// Order returns the order of g in the transform group.
func (g Generator) Order() int {
	return generatorOrders[g]
}

// Valid reports whether g is one of the four generators.
func (g Generator) Valid() bool {
	return g < NumGenerators
}

func (g Generator) String() string {
	if !g.Valid() {
		return fmt.Sprintf("Generator(%d)", uint8(g))
	}
	return generatorNames[g]
}

// ParseGenerator maps "R", "D", "T" or "M" to its generator.
func ParseGenerator(s string) (Generator, bool) {
	for _, g := range Generators {
		if generatorNames[g] == s {
			return g, true
		}
	}
	return 0, false
}

// ReducePower reduces p modulo the order of g into [0, order).
func ReducePower(g Generator, p int) int {
	o := g.Order()
	r := p % o
	if r < 0 {
		r += o
	}
	return r
}

// InversePower returns the power q such that g^p followed by g^q is the
// identity.
func InversePower(g Generator, p int) int {
	return ReducePower(g, -p)
}

// Apply returns g^power applied to c. c and g must be valid; Apply panics
// otherwise. Use ApplyTransform for unchecked input.
func Apply(c Class, g Generator, power int) Class {
	return loadTables().transforms[g][ReducePower(g, power)][c]
}

// ApplyTransform validates index and applies g^power to it.
func ApplyTransform(index int, g Generator, power int) (Class, error) {
	c, err := NewClass(index)
	if err != nil {
		return 0, err
	}
	if !g.Valid() {
		return 0, dcerrors.InvalidState("unknown generator %d", uint8(g))
	}
	return Apply(c, g, power), nil
}

// step applies g once, directly from the coordinate formulas.
func step(g Generator, h, d, l int) (int, int, int) {
	switch g {
	case R:
		return (h + 1) % Quadrants, d, l
	case D:
		return h, (d + 1) % Modalities, l
	case T:
		return h, d, (l + 1) % Contexts
	case M:
		return (Quadrants - h) % Quadrants, (Modalities - d) % Modalities, (Contexts - l) % Contexts
	}
	panic(fmt.Sprintf("core: unknown generator %d", uint8(g)))
}

type tableSet struct {
	// transforms[g][p] is g^p for p in [0, order).
	transforms [NumGenerators][Contexts]Table
	canon      [NumClasses]byte
	fromByte   [256]Class
}

var (
	tablesOnce sync.Once
	tables     *tableSet
)

func loadTables() *tableSet {
	tablesOnce.Do(func() {
		ts := buildTables()
		if err := verifyTables(ts); err != nil {
			panic(fmt.Sprintf("core: generated tables failed verification: %v", err))
		}
		tables = ts
	})
	return tables
}

func buildTables() *tableSet {
	ts := &tableSet{}
	for _, g := range Generators {
		ts.transforms[g][0] = IdentityTable()
		for p := 1; p < g.Order(); p++ {
			prev := &ts.transforms[g][p-1]
			next := &ts.transforms[g][p]
			for c := 0; c < NumClasses; c++ {
				h, d, l := prev[c].Coords()
				next[c] = encode(step(g, h, d, l))
			}
		}
	}
	for c := 0; c < NumClasses; c++ {
		ts.canon[c] = canonicalByte(Class(c))
	}
	for b := 0; b < 256; b++ {
		ts.fromByte[b] = decodeByte(byte(b))
	}
	return ts
}

// Verify re-checks every law of the state space exhaustively: coordinate
// bijection, canonical byte uniqueness, and the group laws of R, D, T, M.
func Verify() error {
	return verifyTables(loadTables())
}

func verifyTables(ts *tableSet) error {
	if err := verifyBijection(ts); err != nil {
		return err
	}
	if err := verifyOrders(ts); err != nil {
		return err
	}
	return verifyRelations(ts)
}

func verifyBijection(ts *tableSet) error {
	seen := make(map[byte]Class, NumClasses)
	for i := 0; i < NumClasses; i++ {
		c := Class(i)
		h, d, l := c.Coords()
		if encode(h, d, l) != c {
			return fmt.Errorf("encode(decode(%d)) = %d", i, encode(h, d, l))
		}
		b := ts.canon[c]
		if b&equivBit != 0 {
			return fmt.Errorf("canonical byte of %d has equivalence bit set", i)
		}
		if other, dup := seen[b]; dup {
			return fmt.Errorf("classes %d and %d share canonical byte %#02x", other, i, b)
		}
		seen[b] = c
		if ts.fromByte[b] != c {
			return fmt.Errorf("byte %#02x decodes to %d, want %d", b, ts.fromByte[b], i)
		}
	}
	for b := 0; b < 256; b++ {
		if !ts.fromByte[b].Valid() {
			return fmt.Errorf("byte %#02x decodes outside the state space", b)
		}
	}
	return nil
}

func verifyOrders(ts *tableSet) error {
	for _, g := range Generators {
		for p := 0; p < g.Order(); p++ {
			t := ts.transforms[g][p]
			if !t.IsPermutation() {
				return fmt.Errorf("%s^%d is not a permutation", g, p)
			}
			if p > 0 && t.IsIdentity() {
				return fmt.Errorf("%s^%d is the identity; order %d is not minimal", g, p, g.Order())
			}
		}
		last := ts.transforms[g][g.Order()-1]
		if !last.Then(ts.transforms[g][1]).IsIdentity() {
			return fmt.Errorf("%s^%d is not the identity", g, g.Order())
		}
	}
	return nil
}

func verifyRelations(ts *tableSet) error {
	mirror := ts.transforms[M][1]
	for _, g := range []Generator{R, D, T} {
		conj := mirror.Then(ts.transforms[g][1]).Then(mirror)
		inv := ts.transforms[g][g.Order()-1]
		if conj != inv {
			return fmt.Errorf("M∘%s∘M is not %s^-1", g, g)
		}
	}
	commuting := []Generator{R, D, T}
	for i, a := range commuting {
		for _, b := range commuting[i+1:] {
			ab := ts.transforms[a][1].Then(ts.transforms[b][1])
			ba := ts.transforms[b][1].Then(ts.transforms[a][1])
			if ab != ba {
				return fmt.Errorf("%s and %s do not commute", a, b)
			}
		}
	}
	return nil
}
