// Package bridge connects the state space to the algebraic structure.
//
// Lift embeds a state as the rank-1 tensor blade(l) ⊗ r^h ⊗ s^d, where
// blade(0) is the scalar and blade(k) is e_k. Project is its partial
// inverse: it succeeds only on rank-1 elements and reports NotRank1
// otherwise. ApplyAlgebra carries the transform generators over to the
// algebra so that lifting commutes with every transform:
//
//	Project(ApplyAlgebra(g, p, Lift(c))) == core.Apply(c, g, p)
package bridge

import (
	"fmt"
	"sync"

	"github.com/sbl8/dualc/algebra"
	"github.com/sbl8/dualc/core"
	dcerrors "github.com/sbl8/dualc/errors"
)

// contextBlade maps a context coordinate to its rank-1 blade.
func contextBlade(l int) algebra.Blade {
	if l == 0 {
		return algebra.Scalar
	}
	return algebra.Vector(l)
}

// bladeContext is the inverse of contextBlade on blades of grade <= 1.
func bladeContext(b algebra.Blade) int {
	if b == algebra.Scalar {
		return 0
	}
	return b.Indices()[0]
}

// Lift returns the rank-1 element of c.
func Lift(c core.Class) *algebra.Element {
	e := algebra.Zero()
	LiftInto(e, c)
	return e
}

// LiftInto overwrites dst with the rank-1 element of c.
func LiftInto(dst *algebra.Element, c core.Class) {
	h, d, l := c.Coords()
	dst.SetBasis(contextBlade(l), h, d)
}

// IsRank1 reports whether e is the scaled image of a single state.
func IsRank1(e *algebra.Element) bool {
	_, err := Project(e)
	return err == nil
}

// Project recovers the state of a rank-1 element: exactly one non-zero
// coefficient, at a blade of grade 0 or 1. The coefficient itself may be
// any non-zero value.
func Project(e *algebra.Element) (core.Class, error) {
	terms := e.Terms()
	switch {
	case len(terms) == 0:
		return 0, dcerrors.NotRank1("element is zero")
	case len(terms) > 1:
		return 0, dcerrors.NotRank1("element has more than one non-zero coefficient").
			WithContext("terms", fmt.Sprint(len(terms)))
	}
	t := terms[0]
	if g := t.Blade.Grade(); g > 1 {
		return 0, dcerrors.NotRank1("coefficient sits on a blade of grade above 1").
			WithContext("blade", t.Blade.String()).
			WithContext("grade", fmt.Sprint(g))
	}
	return core.Encode(t.R, t.S, bladeContext(t.Blade))
}

// Unlift is the strict inverse of Lift: it succeeds only when e equals
// Lift(c) for some c, coefficient included. Scaled rank-1 elements are
// rejected with NotRank1 because relabeling them as a state would drop the
// scale.
func Unlift(e *algebra.Element) (core.Class, error) {
	c, err := Project(e)
	if err != nil {
		return 0, err
	}
	if !algebra.Equal(e, Lift(c)) {
		return 0, dcerrors.NotRank1("element is a scaled state, not a lifted one").
			WithContext("state", fmt.Sprint(c.Index()))
	}
	return c, nil
}

// GeneratorImage returns the algebra element whose left multiplication
// acts like g on lifted states. Only R and D have such an image.
func GeneratorImage(g core.Generator) (*algebra.Element, bool) {
	switch g {
	case core.R:
		return algebra.MustBasis(algebra.Scalar, 1, 0), true
	case core.D:
		return algebra.MustBasis(algebra.Scalar, 0, 1), true
	}
	return nil, false
}

// ApplyAlgebra returns g^power applied to e as a relabeling of the basis.
// R and D shift the r and s powers. T cycles the rank-1 blades and fixes
// blades of grade 2 and above. M negates the r and s powers and the
// context of rank-1 blades.
func ApplyAlgebra(g core.Generator, power int, e *algebra.Element) *algebra.Element {
	out := algebra.Zero()
	ApplyAlgebraInto(out, g, power, e)
	return out
}

// ApplyAlgebraInto writes g^power applied to src into dst. dst must not
// alias src.
func ApplyAlgebraInto(dst *algebra.Element, g core.Generator, power int, src *algebra.Element) {
	algebra.Permute(dst, src, &loadPerms()[g][core.ReducePower(g, power)])
}

var (
	permOnce sync.Once
	perms    *[core.NumGenerators][core.Contexts]algebra.Permutation
)

func loadPerms() *[core.NumGenerators][core.Contexts]algebra.Permutation {
	permOnce.Do(func() {
		var ps [core.NumGenerators][core.Contexts]algebra.Permutation
		for _, g := range core.Generators {
			for i := range ps[g][0] {
				ps[g][0][i] = i
			}
			one := stepPermutation(g)
			for p := 1; p < g.Order(); p++ {
				for i := range ps[g][p] {
					ps[g][p][i] = one[ps[g][p-1][i]]
				}
			}
		}
		perms = &ps
	})
	return perms
}

func stepPermutation(g core.Generator) algebra.Permutation {
	var perm algebra.Permutation
	for r := 0; r < algebra.RPowers; r++ {
		for s := 0; s < algebra.SPowers; s++ {
			for b := 0; b < algebra.Blades; b++ {
				blade := algebra.Blade(b)
				nb, nr, ns := stepBasis(g, blade, r, s)
				perm[algebra.Index(blade, r, s)] = algebra.Index(nb, nr, ns)
			}
		}
	}
	return perm
}

func stepBasis(g core.Generator, b algebra.Blade, r, s int) (algebra.Blade, int, int) {
	rank1 := b.Grade() <= 1
	switch g {
	case core.R:
		return b, (r + 1) % algebra.RPowers, s
	case core.D:
		return b, r, (s + 1) % algebra.SPowers
	case core.T:
		if rank1 {
			b = contextBlade((bladeContext(b) + 1) % core.Contexts)
		}
		return b, r, s
	case core.M:
		if rank1 {
			b = contextBlade((core.Contexts - bladeContext(b)) % core.Contexts)
		}
		return b, (algebra.RPowers - r) % algebra.RPowers, (algebra.SPowers - s) % algebra.SPowers
	}
	panic(fmt.Sprintf("bridge: unknown generator %d", uint8(g)))
}

// Verify checks exhaustively that lift is injective, that project inverts
// it, that lifting commutes with every generator power, and that
// multiplication by the images of R and D matches the transforms.
func Verify() error {
	for i := 0; i < core.NumClasses; i++ {
		c := core.Class(i)
		lifted := Lift(c)
		back, err := Project(lifted)
		if err != nil {
			return fmt.Errorf("project(lift(%d)): %w", i, err)
		}
		if back != c {
			return fmt.Errorf("project(lift(%d)) = %d", i, back)
		}
		for _, g := range core.Generators {
			for p := 0; p <= g.Order(); p++ {
				got, err := Project(ApplyAlgebra(g, p, lifted))
				if err != nil {
					return fmt.Errorf("%s^%d on lift(%d): %w", g, p, i, err)
				}
				if want := core.Apply(c, g, p); got != want {
					return fmt.Errorf("%s^%d on lift(%d) projects to %d, want %d", g, p, i, got, want)
				}
			}
			if img, ok := GeneratorImage(g); ok {
				prod := algebra.Multiply(img, lifted)
				if !algebra.Equal(prod, Lift(core.Apply(c, g, 1))) {
					return fmt.Errorf("image of %s times lift(%d) is not lift(%s(%d))", g, i, g, i)
				}
			}
		}
	}
	return nil
}

