package core

import (
	"encoding/binary"
	"errors"
	"io"

	dcerrors "github.com/sbl8/dualc/errors"
)

// WriteStates writes a run of states in binary form.
// Layout: [count(2)][canonical byte * count]
func WriteStates(w io.Writer, states []Class) error {
	if len(states) > 0xFFFF {
		return errors.New("too many states for one run")
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(states))); err != nil {
		return err
	}
	buf := make([]byte, len(states))
	for i, c := range states {
		if !c.Valid() {
			return dcerrors.InvalidState("class %d out of range", int(c))
		}
		buf[i] = ToCanonicalByte(c)
	}
	_, err := w.Write(buf)
	return err
}

// ReadStates reads a run written by WriteStates. Non-canonical bytes are
// rejected; a stored run is always canonical.
func ReadStates(r io.Reader) ([]Class, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	states := make([]Class, n)
	for i, b := range buf {
		if !IsCanonicalByte(b) {
			return nil, dcerrors.InvalidState("byte %#02x at %d is not canonical", b, i)
		}
		states[i] = FromByte(b)
	}
	return states, nil
}

// EncodeStates returns the canonical bytes of states, without a length prefix.
func EncodeStates(states []Class) []byte {
	out := make([]byte, len(states))
	for i, c := range states {
		out[i] = ToCanonicalByte(c)
	}
	return out
}

// DecodeStates decodes any byte slice, one state per byte. Decoding is total.
func DecodeStates(b []byte) []Class {
	out := make([]Class, len(b))
	for i, v := range b {
		out[i] = FromByte(v)
	}
	return out
}

// WriteTable writes t as NumClasses canonical bytes.
func WriteTable(w io.Writer, t *Table) error {
	_, err := w.Write(EncodeStates(t[:]))
	return err
}

// ReadTable reads a table written by WriteTable.
func ReadTable(r io.Reader) (Table, error) {
	var raw [NumClasses]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return Table{}, err
	}
	var t Table
	for i, b := range raw {
		if !IsCanonicalByte(b) {
			return Table{}, dcerrors.InvalidState("table byte %#02x at %d is not canonical", b, i)
		}
		t[i] = FromByte(b)
	}
	return t, nil
}
