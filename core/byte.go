package core

// Byte layout of a state:
//
//	bit 0     equivalence bit (ignored on decode, 0 in canonical form)
//	bits 1-3  context l
//	bits 4-5  modality pattern: 00 -> 0, 01 -> 1, 10 -> 2, 11 -> 2
//	bits 6-7  quadrant h
//
// The canonical byte of a class clears the equivalence bit and uses the
// lowest modality pattern, so exactly NumClasses bytes are canonical.
const (
	equivBit      = 0x01
	contextShift  = 1
	contextMask   = 0x07
	modalityShift = 4
	modalityMask  = 0x03
	quadrantShift = 6
)

var canonicalPattern = [Modalities]byte{0b00, 0b01, 0b10}

// patternModality resolves a 2-bit modality pattern; 11 aliases 10.
func patternModality(p byte) int {
	switch p & modalityMask {
	case 0b00:
		return 0
	case 0b01:
		return 1
	default:
		return 2
	}
}

// ToCanonicalByte returns the canonical byte of c.
func ToCanonicalByte(c Class) byte {
	return loadTables().canon[c]
}

// FromByte decodes any byte to its class. Every byte value maps to exactly
// one class.
func FromByte(b byte) Class {
	return loadTables().fromByte[b]
}

// IsCanonicalByte reports whether b is the canonical byte of its class.
func IsCanonicalByte(b byte) bool {
	return ToCanonicalByte(FromByte(b)) == b
}

func canonicalByte(c Class) byte {
	h, d, l := c.Coords()
	return byte(h)<<quadrantShift | canonicalPattern[d]<<modalityShift | byte(l)<<contextShift
}

func decodeByte(b byte) Class {
	h := int(b >> quadrantShift)
	d := patternModality(b >> modalityShift)
	l := int((b >> contextShift) & contextMask)
	return encode(h, d, l)
}
