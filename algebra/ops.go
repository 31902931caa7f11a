package algebra

import (
	"fmt"
	"math/bits"
	"sync"
)

var (
	signOnce  sync.Once
	signTable [Blades][Blades]float64
)

// bladeSigns returns the generated 128x128 table of blade product signs.
func bladeSigns() *[Blades][Blades]float64 {
	signOnce.Do(func() {
		for a := 0; a < Blades; a++ {
			for b := 0; b < Blades; b++ {
				signTable[a][b] = productSign(a, b)
			}
		}
	})
	return &signTable
}

// productSign is the sign of e_A e_B = ±e_{A xor B}: one factor of -1 per
// transposition needed to sort the factors, and one per shared basis
// vector since e_i^2 = -1.
func productSign(a, b int) float64 {
	swaps := 0
	for x := a >> 1; x != 0; x >>= 1 {
		swaps += bits.OnesCount(uint(x & b))
	}
	swaps += bits.OnesCount(uint(a & b))
	if swaps&1 == 0 {
		return 1
	}
	return -1
}

// BladeProduct returns the sign and blade of a*b.
func BladeProduct(a, b Blade) (float64, Blade) {
	return bladeSigns()[a][b], a ^ b
}

// Add returns a + b.
func Add(a, b *Element) *Element {
	out := &Element{}
	AddInto(out, a, b)
	return out
}

// AddInto writes a + b into dst. dst may alias a or b.
func AddInto(dst, a, b *Element) {
	for i := range dst.c {
		dst.c[i] = a.c[i] + b.c[i]
	}
}

// Scale returns k*a.
func Scale(a *Element, k float64) *Element {
	out := &Element{}
	ScaleInto(out, a, k)
	return out
}

// ScaleInto writes k*a into dst. dst may alias a.
func ScaleInto(dst, a *Element, k float64) {
	for i := range dst.c {
		dst.c[i] = a.c[i] * k
	}
}

// Multiply returns the product a*b.
func Multiply(a, b *Element) *Element {
	out := &Element{}
	MultiplyInto(out, a, b)
	return out
}

// MultiplyInto writes a*b into dst. dst must not alias a or b.
func MultiplyInto(dst, a, b *Element) {
	signs := bladeSigns()
	dst.Reset()
	// Iterate over the sparse support of both operands.
	left := support(a)
	right := support(b)
	for _, i := range left {
		ab, ar, as := unindex(i)
		ca := a.c[i]
		for _, j := range right {
			bb, br, bs := unindex(j)
			k := Index(ab^bb, (ar+br)%RPowers, (as+bs)%SPowers)
			dst.c[k] += ca * b.c[j] * signs[ab][bb]
		}
	}
}

func support(e *Element) []int {
	var out []int
	for i, v := range e.c {
		if v != 0 {
			out = append(out, i)
		}
	}
	return out
}

// GradeProject returns the grade-g part of a. g must lie in [0, MaxGrade].
func GradeProject(a *Element, g int) *Element {
	out := &Element{}
	GradeProjectInto(out, a, g)
	return out
}

// GradeProjectInto writes the grade-g part of a into dst. dst may alias a.
func GradeProjectInto(dst, a *Element, g int) {
	if g < 0 || g > MaxGrade {
		panic(fmt.Sprintf("algebra: grade %d out of range [0,%d]", g, MaxGrade))
	}
	for i := range dst.c {
		b, _, _ := unindex(i)
		if b.Grade() == g {
			dst.c[i] = a.c[i]
		} else {
			dst.c[i] = 0
		}
	}
}

// Permutation is a relabeling of the Dim basis coordinates.
type Permutation [Dim]int

// Permute writes into dst the element whose coefficient at perm[i] is
// src[i]. dst must not alias src.
func Permute(dst, src *Element, perm *Permutation) {
	dst.Reset()
	for i, v := range src.c {
		if v != 0 {
			dst.c[perm[i]] = v
		}
	}
}
