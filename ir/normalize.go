package ir

import (
	"github.com/sbl8/dualc/core"
	"github.com/sbl8/dualc/kernels"
	"github.com/sbl8/dualc/value"
)

// DefaultMaxPasses bounds the rewrite loop when Options.MaxPasses is unset.
const DefaultMaxPasses = 256

// Options configures Normalize.
type Options struct {
	// Specialize fuses adjacent total unary state ops into table atoms.
	Specialize bool
	MaxPasses  int
	// Registry supplies the identity, table and transform specs the
	// rewrites introduce. Nil means kernels.Default().
	Registry *kernels.Registry
}

// Normalize rewrites n to its normal form. Passes repeat until one leaves
// the program unchanged. The input is never modified.
//
// Within an atom: transform powers are reduced modulo the generator order
// (power 0 becomes identity), tables equal to the identity or to a single
// generator power become that atom, commutative operands are sorted, and
// atoms with only constant operands are folded. Folding that fails, for
// instance projecting a non-rank-1 constant, leaves the atom for run time.
//
// Across a sequence, nested sequences are flattened and each adjacent pair
// is rewritten in this order: constants propagate into a following Prev
// operand, adjacent constants merge, dead constants and identities drop,
// an op followed by its declared inverse becomes identity, same-generator
// transforms merge, M moves right past R, D and T by inverting their
// powers, R, D and T are ordered R before D before T, and with specialization two table-able state ops fuse into one table.
func Normalize(n Node, opts Options) Node {
	if opts.MaxPasses <= 0 {
		opts.MaxPasses = DefaultMaxPasses
	}
	reg := opts.Registry
	if reg == nil {
		reg = kernels.Default()
	}
	rw := &rewriter{
		specialize: opts.Specialize,
		reg:        reg,
		identity:   reg.MustLookup(kernels.NameIdentity),
		table:      reg.MustLookup(kernels.NameTable),
	}

	cur := n
	for i := 0; i < opts.MaxPasses; i++ {
		next := rw.pass(cur)
		if Equal(next, cur) {
			return next
		}
		cur = next
	}
	return cur
}

type rewriter struct {
	specialize bool
	reg        *kernels.Registry
	identity   *kernels.OpSpec
	table      *kernels.OpSpec
}

func (rw *rewriter) pass(n Node) Node {
	switch x := n.(type) {
	case *Atom:
		return rw.atom(x.clone())
	case *Constant:
		return x
	case *Sequence:
		return rw.sequence(x)
	}
	return n
}

// atom applies the per-atom rules to a, which the caller owns.
func (rw *rewriter) atom(a *Atom) Node {
	if a.Op.Transform {
		p := core.ReducePower(a.Op.Generator, a.Params.Power)
		if p == 0 {
			return rw.foldOrKeep(rw.identityOf(a.Args[0], a.Step))
		}
		a.Params.Power = p
	}

	if a.Op.Name == kernels.NameTable && a.Params.Table != nil {
		t := *a.Params.Table
		if t.IsIdentity() {
			return rw.foldOrKeep(rw.identityOf(a.Args[0], a.Step))
		}
		if g, p, ok := core.MatchGenerator(t); ok {
			a = &Atom{
				Op:     rw.reg.MustLookup(g.String()),
				Args:   a.Args,
				Params: kernels.Params{Power: p},
				Step:   a.Step,
			}
		}
	}

	if a.Op.Commutative {
		sortOperands(a.Args)
	}
	return rw.foldOrKeep(a)
}

func (rw *rewriter) identityOf(arg Operand, step int) *Atom {
	return &Atom{Op: rw.identity, Args: []Operand{arg}, Step: step}
}

// foldOrKeep evaluates a when every operand is constant.
func (rw *rewriter) foldOrKeep(a *Atom) Node {
	vals := make([]value.Value, len(a.Args))
	for i, arg := range a.Args {
		if arg.Kind != OperandConst {
			return a
		}
		vals[i] = arg.Value
	}
	v, carry, err := kernels.Eval(a.Op, &a.Params, vals)
	if err != nil {
		return a
	}
	return &Constant{
		Value:    v,
		Overflow: kernels.RecordCarry(nil, a.Params.Overflow, a.Step, a.Op.Name, carry),
	}
}

func (rw *rewriter) sequence(s *Sequence) Node {
	flat := make([]Node, 0, len(s.Nodes))
	for _, c := range s.Nodes {
		r := rw.pass(c)
		if inner, ok := r.(*Sequence); ok {
			flat = append(flat, inner.Nodes...)
			continue
		}
		flat = append(flat, r)
	}

	out := make([]Node, 0, len(flat))
	for _, x := range flat {
		out = rw.push(out, x)
	}
	if len(out) == 1 {
		return out[0]
	}
	return &Sequence{Nodes: out}
}

// push appends x to out, rewriting it against the node before it for as
// long as a pair rule applies.
func (rw *rewriter) push(out []Node, x Node) []Node {
	if len(out) == 0 {
		return append(out, x)
	}
	y := out[len(out)-1]
	repl, ok := rw.pair(y, x)
	if !ok {
		return append(out, x)
	}
	out = out[:len(out)-1]
	for _, r := range repl {
		if a, isAtom := r.(*Atom); isAtom {
			r = rw.atom(a)
		}
		out = rw.push(out, r)
	}
	return out
}

// pair rewrites the adjacent nodes y, x. The returned nodes replace both.
func (rw *rewriter) pair(y, x Node) ([]Node, bool) {
	yc, yConst := y.(*Constant)
	xc, xConst := x.(*Constant)
	ya, yAtom := y.(*Atom)
	xa, xAtom := x.(*Atom)

	switch {
	case yConst && xAtom && xa.UsesPrev():
		nx := substitutePrev(xa, Const(yc.Value))
		if len(yc.Overflow) == 0 {
			return []Node{nx}, true
		}
		return []Node{yc, nx}, true

	case yConst && xConst:
		overflow := make([]kernels.Overflow, 0, len(yc.Overflow)+len(xc.Overflow))
		overflow = append(overflow, yc.Overflow...)
		overflow = append(overflow, xc.Overflow...)
		if len(overflow) == 0 {
			overflow = nil
		}
		return []Node{&Constant{Value: xc.Value, Overflow: overflow}}, true

	case yConst && len(yc.Overflow) == 0:
		// x is an atom that ignores the constant.
		return []Node{x}, true

	case yAtom && ya.Op.Role == kernels.RoleIdentity:
		if xAtom && xa.UsesPrev() && ya.Args[0].Kind != OperandPrev {
			return []Node{substitutePrev(xa, ya.Args[0])}, true
		}
		return []Node{x}, true

	case xAtom && xa.Op.Role == kernels.RoleIdentity && xa.Args[0].Kind == OperandPrev:
		return []Node{y}, true
	}

	if !yAtom || !xAtom {
		return nil, false
	}
	chained := len(xa.Args) == 1 && xa.Args[0].Kind == OperandPrev

	if chained && ya.Op.Inverse != "" && ya.Op.Inverse == xa.Op.Name && ya.Op.Unary() {
		return []Node{rw.identityOf(ya.Args[0], ya.Step)}, true
	}

	if chained && ya.Op.Transform && xa.Op.Transform {
		gy, gx := ya.Op.Generator, xa.Op.Generator
		if gy == gx {
			m := ya.clone()
			m.Params.Power = ya.Params.Power + xa.Params.Power
			return []Node{m}, true
		}
		// M conjugates every other generator to its inverse, so M moves
		// right past it and the form is R^a D^b T^c M^e.
		if gy == core.M && gx != core.M {
			nx := xa.clone()
			nx.Args[0] = ya.Args[0]
			nx.Params.Power = core.InversePower(gx, xa.Params.Power)
			ny := ya.clone()
			ny.Args[0] = Prev(ya.Args[0].Type)
			return []Node{nx, ny}, true
		}
		if gy != core.M && gx != core.M && gy > gx {
			nx := xa.clone()
			nx.Args[0] = ya.Args[0]
			ny := ya.clone()
			ny.Args[0] = Prev(ya.Args[0].Type)
			return []Node{nx, ny}, true
		}
	}

	if rw.specialize {
		ty, in, okY := tableOf(ya)
		tx, xin, okX := tableOf(xa)
		if okY && okX && xin.Kind == OperandPrev {
			t := ty.Then(tx)
			return []Node{&Atom{
				Op:     rw.table,
				Args:   []Operand{in},
				Params: kernels.Params{Table: &t},
				Step:   ya.Step,
			}}, true
		}
	}
	return nil, false
}

// substitutePrev returns a copy of a with every Prev operand replaced by o.
func substitutePrev(a *Atom, o Operand) *Atom {
	out := a.clone()
	for i, arg := range out.Args {
		if arg.Kind == OperandPrev {
			out.Args[i] = o
		}
	}
	return out
}

// tableOf tabulates a total unary state op. It returns the table and the
// operand the table reads. Ring ops qualify in drop mode with exactly one
// constant operand.
func tableOf(a *Atom) (core.Table, Operand, bool) {
	if a.ResultKind() != value.KindState || a.Op.State == nil || a.Op.Role != kernels.RoleCompute {
		return core.Table{}, Operand{}, false
	}
	for _, arg := range a.Args {
		if arg.Type != value.KindState {
			return core.Table{}, Operand{}, false
		}
	}

	fn := a.Op.State
	params := a.Params
	switch {
	case a.Op.Ring:
		if a.Params.Overflow != kernels.OverflowDrop || len(a.Args) != 2 {
			return core.Table{}, Operand{}, false
		}
		constAt := -1
		for i, arg := range a.Args {
			if arg.Kind == OperandConst {
				if constAt >= 0 {
					return core.Table{}, Operand{}, false
				}
				constAt = i
			}
		}
		if constAt < 0 {
			return core.Table{}, Operand{}, false
		}
		k, _ := value.AsState(a.Args[constAt].Value)
		in := a.Args[1-constAt]
		t := core.TableOf(func(c core.Class) core.Class {
			args := []core.Class{c, c}
			args[constAt] = k
			r, _ := fn(&params, args)
			return r
		})
		return t, in, true

	case a.Op.Unary():
		if a.Op.Name == kernels.NameTable {
			if a.Params.Table == nil {
				return core.Table{}, Operand{}, false
			}
			return *a.Params.Table, a.Args[0], true
		}
		t := core.TableOf(func(c core.Class) core.Class {
			r, _ := fn(&params, []core.Class{c})
			return r
		})
		return t, a.Args[0], true
	}
	return core.Table{}, Operand{}, false
}
