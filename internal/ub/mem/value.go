package mem

// Abstract byte constructors and codecs. Integers are little-endian;
// pointer bytes are symbolic in that every byte of the representation
// carries the pointer's provenance, and decoding only yields a usable
// provenance when all bytes still agree.

// Uninit returns n uninitialized bytes.
func Uninit(n uint64) []Byte {
	return make([]Byte, n)
}

// EncodeUint encodes the low size bytes of v, little-endian.
func EncodeUint(v uint64, size uint64) []Byte {
	b := make([]Byte, size)
	for i := range b {
		b[i] = Byte{Init: true, Val: uint8(v >> (8 * uint(i)))}
	}
	return b
}

// DecodeUint decodes a little-endian unsigned integer. It reports false
// when any byte is uninitialized.
func DecodeUint(b []Byte) (uint64, bool) {
	var v uint64
	for i, bb := range b {
		if !bb.Init {
			return 0, false
		}
		v |= uint64(bb.Val) << (8 * uint(i))
	}
	return v, true
}

// DecodeInt decodes a little-endian signed integer, sign-extending from
// the byte width. It reports false when any byte is uninitialized.
func DecodeInt(b []Byte) (int64, bool) {
	v, ok := DecodeUint(b)
	if !ok {
		return 0, false
	}
	shift := 64 - 8*uint(len(b))
	return int64(v<<shift) >> shift, true
}

// EncodeBool encodes a bool as a single byte, 0 or 1.
func EncodeBool(v bool) []Byte {
	var raw uint8
	if v {
		raw = 1
	}
	return []Byte{{Init: true, Val: raw}}
}

// DecodeBool decodes a single byte as a bool. Only 0 and 1 are valid
// representations; anything else reports false.
func DecodeBool(b []Byte) (bool, bool) {
	if len(b) != 1 || !b[0].Init || b[0].Val > 1 {
		return false, false
	}
	return b[0].Val == 1, true
}

// PtrBytes is the size of a thin pointer representation.
const PtrBytes = 8

// EncodePointer encodes a pointer; every byte carries the provenance.
func EncodePointer(p Pointer) []Byte {
	b := make([]Byte, PtrBytes)
	for i := range b {
		b[i] = Byte{Init: true, Val: uint8(p.Addr >> (8 * uint(i))), Prov: p.Prov}
	}
	return b
}

// DecodePointer decodes a pointer representation. The address decodes
// like an integer; the provenance survives only if every byte carries the
// same one, otherwise the result is a provenance-free pointer. Any
// uninitialized byte makes the whole value invalid.
func DecodePointer(b []Byte) (Pointer, bool) {
	if len(b) != PtrBytes {
		return Pointer{}, false
	}
	addr, ok := DecodeUint(b)
	if !ok {
		return Pointer{}, false
	}
	prov := b[0].Prov
	for _, bb := range b[1:] {
		if prov == nil {
			break
		}
		if bb.Prov == nil || !bb.Prov.Equal(*prov) {
			prov = nil
		}
	}
	return Pointer{Addr: addr, Prov: prov}, true
}
