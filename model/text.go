package model

import (
	"fmt"
	"strconv"
	"strings"

	dcerrors "github.com/sbl8/dualc/errors"
)

// --- Line-oriented descriptor form with group and iterate blocks ---
//
//	name      rotate-and-add
//	version   1
//	namespace demo
//	compiled  a 5
//	compiled  u element 1,2:0:0:1.5 :1:0:-1
//	runtime   x state
//	hint      C1
//	prefer    auto
//	optimize  specialize
//	op add a x overflow=track
//	op R $ power=2
//	iterate i 1 3 {
//	    op T $ power=i
//	}
//	group {
//	    op lift $
//	    op project $
//	}
//
// Element terms are blade:r:s:coeff with the blade as a comma-separated
// list of basis vector indices, empty for the scalar.

// ParseDescriptorText parses the text form.
func ParseDescriptorText(src []byte) (*Descriptor, error) {
	lines := strings.Split(string(src), "\n")
	p := &textParser{desc: &Descriptor{}}
	p.ops = &p.desc.Ops

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var err error
		i, err = p.parseLine(lines, i)
		if err != nil {
			return nil, dcerrors.Malformed("line %d: %v", i+1, err)
		}
	}
	return p.desc, nil
}

// textParser handles parsing state
type textParser struct {
	desc *Descriptor
	ops  *[]OpDecl
}

// parseLine processes a single line and returns the next line index
func (p *textParser) parseLine(lines []string, idx int) (int, error) {
	fields := strings.Fields(strings.TrimSpace(lines[idx]))

	switch fields[0] {
	case "iterate":
		return p.parseIterateBlock(lines, idx, fields)
	case "group":
		return p.parseGroupBlock(lines, idx, fields)
	default:
		return idx, p.processSimpleLine(fields)
	}
}

// parseIterateBlock handles iterate constructs
func (p *textParser) parseIterateBlock(lines []string, idx int, fields []string) (int, error) {
	if len(fields) < 4 {
		return idx, fmt.Errorf("invalid iterate spec: %s", strings.Join(fields, " "))
	}

	varName, start, end, err := parseIterateParams(fields)
	if err != nil {
		return idx, err
	}

	blockStart, err := findBlockStart(lines, idx, fields, "iterate")
	if err != nil {
		return idx, err
	}
	block, blockEnd, err := collectBlockLines(lines, blockStart)
	if err != nil {
		return idx, err
	}

	if err := p.expandIterateBlock(block, varName, start, end); err != nil {
		return idx, err
	}
	return blockEnd, nil
}

// parseGroupBlock collects a nested group of ops
func (p *textParser) parseGroupBlock(lines []string, idx int, fields []string) (int, error) {
	blockStart, err := findBlockStart(lines, idx, fields, "group")
	if err != nil {
		return idx, err
	}
	block, blockEnd, err := collectBlockLines(lines, blockStart)
	if err != nil {
		return idx, err
	}

	var group []OpDecl
	inner := &textParser{desc: p.desc, ops: &group}
	for _, line := range block {
		f := strings.Fields(line)
		if f[0] != "op" {
			return idx, fmt.Errorf("only op lines may appear in a group, got %q", f[0])
		}
		if err := inner.processSimpleLine(f); err != nil {
			return idx, err
		}
	}
	if len(group) == 0 {
		return idx, fmt.Errorf("empty group")
	}
	*p.ops = append(*p.ops, OpDecl{Group: group})
	return blockEnd, nil
}

func findBlockStart(lines []string, idx int, fields []string, kw string) (int, error) {
	if fields[len(fields)-1] == "{" {
		return idx, nil
	}
	next := idx + 1
	for next < len(lines) && strings.TrimSpace(lines[next]) == "" {
		next++
	}
	if next >= len(lines) || strings.TrimSpace(lines[next]) != "{" {
		return idx, fmt.Errorf("missing '{' after %s", kw)
	}
	return next, nil
}

// processSimpleLine handles the single-line directives
func (p *textParser) processSimpleLine(fields []string) error {
	d := p.desc
	switch fields[0] {
	case "name", "version", "namespace", "hint", "prefer":
		if len(fields) != 2 {
			return fmt.Errorf("%s takes one value", fields[0])
		}
		p.setHeader(fields[0], fields[1])
	case "optimize":
		d.Lowering.Optimizations = append(d.Lowering.Optimizations, fields[1:]...)
	case "compiled":
		return p.parseCompiledLine(fields)
	case "runtime":
		if len(fields) != 3 {
			return fmt.Errorf("invalid runtime spec: want 'runtime <name> <state|element>'")
		}
		if d.Runtime == nil {
			d.Runtime = make(map[string]string)
		}
		d.Runtime[fields[1]] = fields[2]
	case "op":
		return p.parseOpLine(fields)
	default:
		return fmt.Errorf("unknown directive: %s", fields[0])
	}
	return nil
}

func (p *textParser) setHeader(key, val string) {
	d := p.desc
	switch key {
	case "name":
		d.Name = val
	case "version":
		d.Version = val
	case "namespace":
		d.Namespace = val
	case "hint":
		d.ComplexityHint = val
	case "prefer":
		d.Lowering.Prefer = val
	}
}

// parseCompiledLine parses 'compiled <name> <int>' or
// 'compiled <name> element <term>...'
func (p *textParser) parseCompiledLine(fields []string) error {
	if len(fields) < 3 {
		return fmt.Errorf("invalid compiled spec: needs a name and a value")
	}
	d := p.desc
	if d.Compiled == nil {
		d.Compiled = make(map[string]Param)
	}
	param, err := ParseParam(fields[2:])
	if err != nil {
		return fmt.Errorf("compiled %s: %w", fields[1], err)
	}
	d.Compiled[fields[1]] = param
	return nil
}

// ParseParam decodes the text spelling of a parameter value: a single
// state index, or "element" followed by blade:r:s:coeff terms.
func ParseParam(fields []string) (Param, error) {
	if len(fields) == 0 {
		return Param{}, fmt.Errorf("missing value")
	}
	if fields[0] != "element" {
		if len(fields) != 1 {
			return Param{}, fmt.Errorf("state value takes one field, got %d", len(fields))
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			return Param{}, fmt.Errorf("invalid state %q: %v", fields[0], err)
		}
		return StateParam(n), nil
	}
	if len(fields) < 2 {
		return Param{}, fmt.Errorf("element has no terms")
	}
	terms := make([]TermLiteral, 0, len(fields)-1)
	for _, f := range fields[1:] {
		t, err := parseTerm(f)
		if err != nil {
			return Param{}, err
		}
		terms = append(terms, t)
	}
	return ElementParam(terms...), nil
}

// parseTerm decodes blade:r:s:coeff
func parseTerm(s string) (TermLiteral, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return TermLiteral{}, fmt.Errorf("invalid term %q: want blade:r:s:coeff", s)
	}
	var t TermLiteral
	if parts[0] != "" {
		for _, k := range strings.Split(parts[0], ",") {
			v, err := strconv.Atoi(k)
			if err != nil {
				return TermLiteral{}, fmt.Errorf("invalid blade index %q in %q", k, s)
			}
			t.Blade = append(t.Blade, v)
		}
	}
	var err error
	if t.R, err = strconv.Atoi(parts[1]); err != nil {
		return TermLiteral{}, fmt.Errorf("invalid r %q in %q", parts[1], s)
	}
	if t.S, err = strconv.Atoi(parts[2]); err != nil {
		return TermLiteral{}, fmt.Errorf("invalid s %q in %q", parts[2], s)
	}
	if t.Coeff, err = strconv.ParseFloat(parts[3], 64); err != nil {
		return TermLiteral{}, fmt.Errorf("invalid coeff %q in %q", parts[3], s)
	}
	return t, nil
}

// parseOpLine parses 'op <name> [args...] [key=value...]'
func (p *textParser) parseOpLine(fields []string) error {
	if len(fields) < 2 {
		return fmt.Errorf("invalid op spec: missing op name")
	}
	decl := OpDecl{Op: fields[1]}
	for _, f := range fields[2:] {
		key, val, isOpt := strings.Cut(f, "=")
		if !isOpt {
			decl.Args = append(decl.Args, f)
			continue
		}
		if err := setOpOption(&decl, key, val); err != nil {
			return err
		}
	}
	*p.ops = append(*p.ops, decl)
	return nil
}

func setOpOption(decl *OpDecl, key, val string) error {
	switch key {
	case "power":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid power %q: %v", val, err)
		}
		decl.Power = &n
	case "grade":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid grade %q: %v", val, err)
		}
		decl.Grade = &n
	case "scalar":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid scalar %q: %v", val, err)
		}
		decl.Scalar = &f
	case "overflow":
		decl.Overflow = val
	default:
		return fmt.Errorf("unknown op option %q", key)
	}
	return nil
}

// parseIterateParams extracts iterate parameters
func parseIterateParams(fields []string) (varName string, start, end int, err error) {
	varName = fields[1]
	start, err = strconv.Atoi(fields[2])
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid iterate start %q: %v", fields[2], err)
	}
	end, err = strconv.Atoi(fields[3])
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid iterate end %q: %v", fields[3], err)
	}
	return varName, start, end, nil
}

// collectBlockLines gathers lines within braces
func collectBlockLines(lines []string, startIdx int) ([]string, int, error) {
	var block []string
	i := startIdx + 1

	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if line == "}" {
			return block, i, nil
		}
		if line != "" && !strings.HasPrefix(line, "#") {
			block = append(block, line)
		}
		i++
	}

	return nil, i, fmt.Errorf("unterminated block")
}

// expandIterateBlock processes iterate expansion
func (p *textParser) expandIterateBlock(block []string, varName string, start, end int) error {
	if end >= start {
		span := uint64(end) - uint64(start)
		room := uint64(max(MaxOps-len(*p.ops), 0))
		if span >= room || (span+1)*uint64(len(block)) > room {
			return fmt.Errorf("iterate %d..%d expands past %d ops", start, end, MaxOps)
		}
	}
	for v := start; v <= end; v++ {
		for _, line := range block {
			fields := strings.Fields(expandVariable(line, varName, v))
			if fields[0] != "op" {
				return fmt.Errorf("only op lines may appear in an iterate block, got %q", fields[0])
			}
			if err := p.processSimpleLine(fields); err != nil {
				return fmt.Errorf("iterate expansion error: %v", err)
			}
		}
	}
	return nil
}

// expandVariable replaces variable with value in line, both as a whole
// field and as the value of a key=value option
func expandVariable(line, varName string, value int) string {
	fields := strings.Fields(line)
	for i, field := range fields {
		if field == varName {
			fields[i] = strconv.Itoa(value)
			continue
		}
		if key, val, ok := strings.Cut(field, "="); ok && val == varName {
			fields[i] = key + "=" + strconv.Itoa(value)
		}
	}
	return strings.Join(fields, " ")
}
