package core

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dcerrors "github.com/sbl8/dualc/errors"
)

func TestEncodeDecodeBijection(t *testing.T) {
	t.Parallel()
	for i := 0; i < NumClasses; i++ {
		h, d, l, err := Decode(i)
		require.NoError(t, err)
		c, err := Encode(h, d, l)
		require.NoError(t, err)
		assert.Equal(t, i, c.Index())
	}
	for h := 0; h < Quadrants; h++ {
		for d := 0; d < Modalities; d++ {
			for l := 0; l < Contexts; l++ {
				c, err := Encode(h, d, l)
				require.NoError(t, err)
				gh, gd, gl := c.Coords()
				assert.Equal(t, [3]int{h, d, l}, [3]int{gh, gd, gl})
			}
		}
	}
}

func TestEncodeRejectsOutOfRange(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		h, d, l int
	}{
		{"quadrant too large", 4, 0, 0},
		{"negative quadrant", -1, 0, 0},
		{"modality too large", 0, 3, 0},
		{"context too large", 0, 0, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.h, tt.d, tt.l)
			assert.ErrorIs(t, err, dcerrors.ErrInvalidState)
		})
	}

	_, _, _, err := Decode(96)
	assert.ErrorIs(t, err, dcerrors.ErrInvalidState)
	_, _, _, err = Decode(-1)
	assert.ErrorIs(t, err, dcerrors.ErrInvalidState)
}

func TestCanonicalByte(t *testing.T) {
	t.Parallel()

	assert.Equal(t, byte(0x2A), ToCanonicalByte(MustClass(21)))

	seen := make(map[byte]bool)
	for i := 0; i < NumClasses; i++ {
		c := Class(i)
		b := ToCanonicalByte(c)
		assert.False(t, seen[b], "duplicate canonical byte %#02x", b)
		seen[b] = true
		assert.Equal(t, c, FromByte(b))
		assert.Equal(t, c, FromByte(b|equivBit), "equivalence bit must be ignored")
	}

	canonical := 0
	for b := 0; b < 256; b++ {
		assert.True(t, FromByte(byte(b)).Valid())
		if IsCanonicalByte(byte(b)) {
			canonical++
		}
	}
	assert.Equal(t, NumClasses, canonical)

	// Pattern 11 is the redundant alternate of modality 2.
	assert.Equal(t, FromByte(0b00_10_101_0), FromByte(0b00_11_101_0))
}

func TestGroupLaws(t *testing.T) {
	t.Parallel()
	require.NoError(t, Verify())

	for i := 0; i < NumClasses; i++ {
		c := Class(i)
		for _, g := range Generators {
			assert.Equal(t, c, Apply(c, g, g.Order()), "%s^order", g)
			assert.Equal(t, c, Apply(Apply(c, g, 1), g, -1), "%s^-1", g)
			assert.Equal(t, Apply(c, g, 1), Apply(c, g, g.Order()+1), "power reduction")
		}
		for _, g := range []Generator{R, D, T} {
			assert.Equal(t, Apply(c, g, -1), Apply(Apply(Apply(c, M, 1), g, 1), M, 1), "M∘%s∘M", g)
		}
		assert.Equal(t, Apply(Apply(c, R, 1), T, 1), Apply(Apply(c, T, 1), R, 1))
		assert.Equal(t, Apply(Apply(c, D, 1), T, 1), Apply(Apply(c, T, 1), D, 1))
	}
}

func TestRotateQuadrant(t *testing.T) {
	t.Parallel()
	got, err := ApplyTransform(21, R, 1)
	require.NoError(t, err)
	assert.Equal(t, 45, got.Index())

	_, err = ApplyTransform(200, R, 1)
	assert.ErrorIs(t, err, dcerrors.ErrInvalidState)
}

func TestApplyTransformChecksInput(t *testing.T) {
	t.Parallel()
	for _, index := range []int{-1, NumClasses, 255} {
		_, err := ApplyTransform(index, T, 1)
		assert.ErrorIs(t, err, dcerrors.ErrInvalidState, "index %d", index)
	}
	_, err := ApplyTransform(0, Generator(NumGenerators), 1)
	assert.ErrorIs(t, err, dcerrors.ErrInvalidState)

	got, err := ApplyTransform(95, M, -3)
	require.NoError(t, err)
	assert.Equal(t, Apply(MustClass(95), M, 1), got)

	assert.Panics(t, func() { Apply(Class(NumClasses), R, 1) })
	assert.Panics(t, func() { Apply(0, Generator(NumGenerators), 1) })
}

func TestMirrorCoordinates(t *testing.T) {
	t.Parallel()
	c, err := Encode(1, 1, 3)
	require.NoError(t, err)
	h, d, l := Apply(c, M, 1).Coords()
	assert.Equal(t, [3]int{3, 2, 5}, [3]int{h, d, l})
}

func TestMatchGenerator(t *testing.T) {
	t.Parallel()
	for _, g := range Generators {
		for p := 1; p < g.Order(); p++ {
			mg, mp, ok := MatchGenerator(GeneratorTable(g, p))
			require.True(t, ok)
			assert.Equal(t, g, mg)
			assert.Equal(t, p, mp)
		}
	}
	_, _, ok := MatchGenerator(IdentityTable())
	assert.False(t, ok)

	composite := GeneratorTable(R, 1).Then(GeneratorTable(T, 1))
	_, _, ok = MatchGenerator(composite)
	assert.False(t, ok)
	assert.True(t, composite.IsPermutation())
}

func TestStateStreamRoundTrip(t *testing.T) {
	t.Parallel()
	states := []Class{0, 21, 45, 95}
	var buf bytes.Buffer
	require.NoError(t, WriteStates(&buf, states))
	got, err := ReadStates(&buf)
	require.NoError(t, err)
	assert.Equal(t, states, got)

	raw := []byte{0x01, 0x00, 0x2B}
	_, err = ReadStates(bytes.NewReader(raw))
	assert.ErrorIs(t, err, dcerrors.ErrInvalidState)
	assert.Equal(t, []Class{21}, DecodeStates([]byte{0x2B}))

	tbl := GeneratorTable(D, 2)
	buf.Reset()
	require.NoError(t, WriteTable(&buf, &tbl))
	back, err := ReadTable(&buf)
	require.NoError(t, err)
	assert.Equal(t, tbl, back)
}

func BenchmarkApply(b *testing.B) {
	c := MustClass(21)
	for i := 0; i < b.N; i++ {
		c = Apply(c, Generators[i%NumGenerators], i)
	}
	_ = c
}
