package model

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/google/uuid"

	"github.com/sbl8/dualc/algebra"
	"github.com/sbl8/dualc/core"
	dcerrors "github.com/sbl8/dualc/errors"
	"github.com/sbl8/dualc/kernels"
	"github.com/sbl8/dualc/value"
)

const (
	planMagic   uint32 = 0x4455414C // "DUAL"
	planVersion uint16 = 1
)

// Marshal writes p in the binary plan format:
//
//	[magic(4)][version(2)][backend(1)][class(1)][id(16)]
//	[name][version][namespace][fingerprint]
//	[inputs][output ref][output kind(1)][static overflow]
//	[constants][ops]
//
// Strings are length-prefixed with a uint16; counts are uint16. States and
// tables are stored as canonical bytes.
func Marshal(p Plan) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams p to w. See Marshal for the layout.
func Write(w io.Writer, p Plan) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return encode(w, p)
}

// encode writes p without validating it.
func encode(w io.Writer, p Plan) error {
	pw := &planWriter{w: w}
	h := p.PlanHeader()

	pw.put(planMagic)
	pw.put(planVersion)
	pw.put(uint8(p.Backend()))
	pw.put(uint8(h.Class))
	pw.put(h.ID)
	pw.str(h.Name)
	pw.str(h.Version)
	pw.str(h.Namespace)
	pw.str(h.Fingerprint)

	pw.count(len(h.Inputs))
	for _, in := range h.Inputs {
		pw.str(in.Name)
		pw.put(uint8(in.Kind))
	}
	pw.ref(h.Output)
	pw.put(uint8(h.OutputKind))

	pw.count(len(h.StaticOverflow))
	for _, o := range h.StaticOverflow {
		pw.put(int32(o.Step))
		pw.str(o.Op)
		pw.put(int32(o.Carry))
	}

	switch x := p.(type) {
	case *ClassPlan:
		if pw.err == nil {
			pw.err = core.WriteStates(w, x.Consts)
		}
	case *AlgebraPlan:
		pw.count(len(x.Consts))
		for _, e := range x.Consts {
			pw.element(e)
		}
	}

	ops := p.PlanOps()
	pw.count(len(ops))
	for i := range ops {
		pw.op(&ops[i])
	}
	return pw.err
}

// Unmarshal decodes a plan written by Marshal and validates it.
func Unmarshal(data []byte) (Plan, error) {
	return Read(bytes.NewReader(data))
}

// Read decodes one plan from r.
func Read(r io.Reader) (Plan, error) {
	pr := &planReader{r: r}

	var magic uint32
	var version uint16
	pr.get(&magic)
	pr.get(&version)
	if pr.err != nil {
		return nil, corrupt(pr.err)
	}
	if magic != planMagic {
		return nil, dcerrors.CorruptPlan("invalid magic number: %x", magic)
	}
	if version != planVersion {
		return nil, dcerrors.CorruptPlan("unsupported version: %d", version)
	}

	var backend, class uint8
	var h Header
	pr.get(&backend)
	pr.get(&class)
	pr.get(&h.ID)
	h.Class = Complexity(class)
	h.Name = pr.str()
	h.Version = pr.str()
	h.Namespace = pr.str()
	h.Fingerprint = pr.str()

	if n := pr.count(); n > 0 {
		h.Inputs = make([]Input, n)
		for i := range h.Inputs {
			h.Inputs[i].Name = pr.str()
			h.Inputs[i].Kind = pr.kind()
		}
	}
	h.Output = pr.ref()
	h.OutputKind = pr.kind()

	if n := pr.count(); n > 0 {
		h.StaticOverflow = make([]kernels.Overflow, n)
		for i := range h.StaticOverflow {
			var step, carry int32
			pr.get(&step)
			h.StaticOverflow[i].Op = pr.str()
			pr.get(&carry)
			h.StaticOverflow[i].Step = int(step)
			h.StaticOverflow[i].Carry = int(carry)
		}
	}

	var p Plan
	switch Backend(backend) {
	case BackendFast:
		cp := &ClassPlan{Header: h}
		if pr.err == nil {
			cp.Consts, pr.err = core.ReadStates(r)
		}
		cp.Ops = pr.ops()
		p = cp
	case BackendGeneral:
		ap := &AlgebraPlan{Header: h}
		n := pr.count()
		ap.Consts = make([]*algebra.Element, 0, n)
		for i := 0; i < n && pr.err == nil; i++ {
			ap.Consts = append(ap.Consts, pr.element())
		}
		ap.Ops = pr.ops()
		p = ap
	default:
		return nil, dcerrors.CorruptPlan("unknown backend %d", backend)
	}
	if pr.err != nil {
		return nil, corrupt(pr.err)
	}
	if class > uint8(C3) {
		return nil, dcerrors.CorruptPlan("unknown complexity class %d", class)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func corrupt(err error) error {
	var de *dcerrors.Error
	if errors.As(err, &de) && de.Code == dcerrors.CodeCorruptPlan {
		return de
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return dcerrors.Wrap(err, dcerrors.CodeCorruptPlan, dcerrors.CategoryIO, "plan is truncated or malformed")
}

// planWriter keeps the first error and turns later writes into no-ops.
type planWriter struct {
	w   io.Writer
	err error
}

func (pw *planWriter) put(v any) {
	if pw.err != nil {
		return
	}
	pw.err = binary.Write(pw.w, binary.LittleEndian, v)
}

func (pw *planWriter) count(n int) {
	if n > math.MaxUint16 && pw.err == nil {
		pw.err = dcerrors.CorruptPlan("count %d exceeds the format limit", n)
	}
	pw.put(uint16(n))
}

func (pw *planWriter) str(s string) {
	pw.count(len(s))
	if pw.err == nil {
		_, pw.err = io.WriteString(pw.w, s)
	}
}

func (pw *planWriter) ref(r Ref) {
	pw.put(uint8(r.Kind))
	switch r.Kind {
	case RefInput:
		pw.str(r.Name)
	case RefConst:
		pw.count(r.Index)
	}
}

func (pw *planWriter) element(e *algebra.Element) {
	terms := e.Support()
	pw.count(len(terms))
	for _, t := range terms {
		pw.put(uint8(t.Blade))
		pw.put(uint8(t.R))
		pw.put(uint8(t.S))
		pw.put(t.Coeff)
	}
}

func (pw *planWriter) op(op *Op) {
	pw.put(op.Code)
	pw.str(op.Name)
	pw.put(uint8(op.ArgKind))
	pw.put(int32(op.Step))

	prm := &op.Params
	pw.put(int32(prm.Power))
	pw.put(int32(prm.Grade))
	pw.put(prm.Scalar)
	pw.put(uint8(prm.Overflow))
	if prm.Table == nil {
		pw.put(uint8(0))
	} else {
		pw.put(uint8(1))
		if pw.err == nil {
			pw.err = core.WriteTable(pw.w, prm.Table)
		}
	}

	pw.count(len(op.Args))
	for _, a := range op.Args {
		pw.ref(a)
	}
}

type planReader struct {
	r   io.Reader
	err error
}

func (pr *planReader) get(v any) {
	if pr.err != nil {
		return
	}
	pr.err = binary.Read(pr.r, binary.LittleEndian, v)
}

func (pr *planReader) count() int {
	var n uint16
	pr.get(&n)
	return int(n)
}

func (pr *planReader) str() string {
	n := pr.count()
	if pr.err != nil || n == 0 {
		return ""
	}
	b := make([]byte, n)
	_, pr.err = io.ReadFull(pr.r, b)
	return string(b)
}

func (pr *planReader) kind() value.Kind {
	var k uint8
	pr.get(&k)
	if pr.err == nil && k > uint8(value.KindAny) {
		pr.err = dcerrors.CorruptPlan("unknown value kind %d", k)
	}
	return value.Kind(k)
}

func (pr *planReader) ref() Ref {
	var kind uint8
	pr.get(&kind)
	r := Ref{Kind: RefKind(kind)}
	switch r.Kind {
	case RefPrev:
	case RefInput:
		r.Name = pr.str()
	case RefConst:
		r.Index = pr.count()
	default:
		if pr.err == nil {
			pr.err = dcerrors.CorruptPlan("unknown operand kind %d", kind)
		}
	}
	return r
}

func (pr *planReader) element() *algebra.Element {
	n := pr.count()
	terms := make([]algebra.Term, 0, n)
	for i := 0; i < n && pr.err == nil; i++ {
		var blade, r, s uint8
		var coeff float64
		pr.get(&blade)
		pr.get(&r)
		pr.get(&s)
		pr.get(&coeff)
		terms = append(terms, algebra.Term{Blade: algebra.Blade(blade), R: int(r), S: int(s), Coeff: coeff})
	}
	if pr.err != nil {
		return nil
	}
	e, err := algebra.NewElement(terms)
	if err != nil {
		pr.err = dcerrors.CorruptPlan("invalid element constant: %v", err)
		return nil
	}
	return e
}

func (pr *planReader) ops() []Op {
	n := pr.count()
	ops := make([]Op, 0, n)
	for i := 0; i < n && pr.err == nil; i++ {
		var op Op
		var step, power, grade int32
		var overflow, hasTable uint8
		pr.get(&op.Code)
		op.Name = pr.str()
		op.ArgKind = pr.kind()
		pr.get(&step)
		pr.get(&power)
		pr.get(&grade)
		pr.get(&op.Params.Scalar)
		pr.get(&overflow)
		pr.get(&hasTable)
		op.Step = int(step)
		op.Params.Power = int(power)
		op.Params.Grade = int(grade)
		op.Params.Overflow = kernels.OverflowMode(overflow)
		if hasTable == 1 && pr.err == nil {
			var t core.Table
			t, pr.err = core.ReadTable(pr.r)
			op.Params.Table = &t
		}
		args := pr.count()
		for j := 0; j < args && pr.err == nil; j++ {
			op.Args = append(op.Args, pr.ref())
		}
		ops = append(ops, op)
	}
	return ops
}

// NewID returns a fresh plan identifier.
func NewID() uuid.UUID { return uuid.New() }
