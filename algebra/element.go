// Package algebra implements the algebraic structure behind the general
// backend: the Clifford algebra Cl(0,7) tensored with the group algebras of
// Z4 (generator r) and Z3 (generator s).
//
// An Element is a dense tensor of 128 x 4 x 3 real coefficients indexed by
// (blade, r power, s power). Blades are bitmasks over the basis vectors
// e1..e7; the grade of a blade is its popcount. Every basis vector squares
// to -1.
//
// All operations are pure and return fresh elements. The *Into variants
// write into a caller-owned destination and are what the runtime
// accumulator uses.
package algebra

import (
	"fmt"
	"math"
	"math/bits"
	"strings"

	dcerrors "github.com/sbl8/dualc/errors"
)

const (
	// Vectors is the number of basis vectors e1..e7.
	Vectors = 7
	// Blades is the number of basis blades of Cl(0,7).
	Blades = 1 << Vectors
	// MaxGrade is the grade of the pseudoscalar.
	MaxGrade = Vectors
	// RPowers is the order of r.
	RPowers = 4
	// SPowers is the order of s.
	SPowers = 3
	// Dim is the number of coefficients in an Element.
	Dim = Blades * RPowers * SPowers

	// Epsilon is the tolerance under which a coefficient counts as zero.
	Epsilon = 1e-12
)

// Blade is a basis blade: bit k-1 set means e_k is a factor.
type Blade uint8

// Scalar is the grade-0 blade.
const Scalar Blade = 0

// Vector returns e_k for k in 1..7.
func Vector(k int) Blade {
	return Blade(1 << (k - 1))
}

// BladeOf builds the blade e_{i1} e_{i2} ... from strictly increasing
// basis vector indices in 1..7.
func BladeOf(indices ...int) (Blade, error) {
	var b Blade
	last := 0
	for _, k := range indices {
		if k < 1 || k > Vectors {
			return 0, fmt.Errorf("basis vector e%d out of range [1,%d]", k, Vectors)
		}
		if k <= last {
			return 0, fmt.Errorf("basis vector indices must be strictly increasing, got e%d after e%d", k, last)
		}
		b |= Vector(k)
		last = k
	}
	return b, nil
}

// Grade returns the number of basis vectors in b.
func (b Blade) Grade() int {
	return bits.OnesCount8(uint8(b))
}

// Indices returns the basis vector indices of b in increasing order.
func (b Blade) Indices() []int {
	var out []int
	for k := 1; k <= Vectors; k++ {
		if b&Vector(k) != 0 {
			out = append(out, k)
		}
	}
	return out
}

func (b Blade) String() string {
	if b == Scalar {
		return "1"
	}
	var sb strings.Builder
	sb.WriteString("e")
	for _, k := range b.Indices() {
		fmt.Fprintf(&sb, "%d", k)
	}
	return sb.String()
}

// Index returns the flat coefficient index of (blade, r, s).
func Index(b Blade, r, s int) int {
	return (r*SPowers+s)*Blades + int(b)
}

func unindex(i int) (Blade, int, int) {
	rs := i / Blades
	return Blade(i % Blades), rs / SPowers, rs % SPowers
}

// Element is a dense coefficient tensor. The zero value is the zero element.
type Element struct {
	c [Dim]float64
}

// Term is one coefficient of an element.
type Term struct {
	Blade Blade
	R, S  int
	Coeff float64
}

// Zero returns a fresh zero element.
func Zero() *Element {
	return &Element{}
}

// Basis returns the unit tensor blade ⊗ r^r ⊗ s^s.
func Basis(b Blade, r, s int) (*Element, error) {
	if err := checkPowers(r, s); err != nil {
		return nil, err
	}
	e := &Element{}
	e.c[Index(b, r, s)] = 1
	return e, nil
}

// MustBasis is Basis for arguments known to be in range.
func MustBasis(b Blade, r, s int) *Element {
	e, err := Basis(b, r, s)
	if err != nil {
		panic(err)
	}
	return e
}

// NewElement sums the given terms into a fresh element.
func NewElement(terms []Term) (*Element, error) {
	e := &Element{}
	for _, t := range terms {
		if int(t.Blade) >= Blades {
			return nil, dcerrors.Malformed("blade %#x out of range [0,%#x)", uint(t.Blade), Blades)
		}
		if err := checkPowers(t.R, t.S); err != nil {
			return nil, err
		}
		if math.IsNaN(t.Coeff) || math.IsInf(t.Coeff, 0) {
			return nil, dcerrors.Malformed("coefficient %v is not finite", t.Coeff)
		}
		e.c[Index(t.Blade, t.R, t.S)] += t.Coeff
	}
	return e, nil
}

func checkPowers(r, s int) error {
	if r < 0 || r >= RPowers {
		return dcerrors.Malformed("r power %d out of range [0,%d)", r, RPowers)
	}
	if s < 0 || s >= SPowers {
		return dcerrors.Malformed("s power %d out of range [0,%d)", s, SPowers)
	}
	return nil
}

// Coeff returns the coefficient of (blade, r, s).
func (e *Element) Coeff(b Blade, r, s int) float64 {
	return e.c[Index(b, r, s)]
}

// SetBasis overwrites e with the unit tensor blade ⊗ r^r ⊗ s^s. r and s
// must be in range.
func (e *Element) SetBasis(b Blade, r, s int) {
	e.Reset()
	e.c[Index(b, r, s)] = 1
}

// At returns the coefficient at flat index i.
func (e *Element) At(i int) float64 {
	return e.c[i]
}

// Terms returns every coefficient whose magnitude exceeds Epsilon, in flat
// index order.
func (e *Element) Terms() []Term {
	var out []Term
	for i, v := range e.c {
		if math.Abs(v) > Epsilon {
			b, r, s := unindex(i)
			out = append(out, Term{Blade: b, R: r, S: s, Coeff: v})
		}
	}
	return out
}

// Support returns every coefficient that is exactly nonzero, including
// ones Terms would treat as rounding noise.
func (e *Element) Support() []Term {
	var out []Term
	for _, i := range support(e) {
		b, r, s := unindex(i)
		out = append(out, Term{Blade: b, R: r, S: s, Coeff: e.c[i]})
	}
	return out
}

// NonZero counts coefficients whose magnitude exceeds Epsilon.
func (e *Element) NonZero() int {
	n := 0
	for _, v := range e.c {
		if math.Abs(v) > Epsilon {
			n++
		}
	}
	return n
}

// IsZero reports whether every coefficient is within Epsilon of zero.
func (e *Element) IsZero() bool {
	return e.NonZero() == 0
}

// Grades lists the grades carrying a non-zero coefficient.
func (e *Element) Grades() []int {
	var present [MaxGrade + 1]bool
	for i, v := range e.c {
		if math.Abs(v) > Epsilon {
			b, _, _ := unindex(i)
			present[b.Grade()] = true
		}
	}
	var out []int
	for g, ok := range present {
		if ok {
			out = append(out, g)
		}
	}
	return out
}

// Clone returns a copy of e.
func (e *Element) Clone() *Element {
	out := *e
	return &out
}

// CopyFrom overwrites e with src.
func (e *Element) CopyFrom(src *Element) {
	e.c = src.c
}

// Reset zeroes e.
func (e *Element) Reset() {
	e.c = [Dim]float64{}
}

// Equal reports whether a and b agree coefficient-wise within Epsilon.
func Equal(a, b *Element) bool {
	for i := range a.c {
		if math.Abs(a.c[i]-b.c[i]) > Epsilon {
			return false
		}
	}
	return true
}

func (e *Element) String() string {
	terms := e.Terms()
	if len(terms) == 0 {
		return "0"
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = fmt.Sprintf("%g*%s·r%d·s%d", t.Coeff, t.Blade, t.R, t.S)
	}
	return strings.Join(parts, " + ")
}
