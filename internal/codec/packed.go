package codec

// Pack4 stores one nibble per element, two elements per byte: element i sits
// in the low nibble of byte i/2 when i is even and the high nibble when odd.
func Pack4(nibbles []byte) []byte {
	out := make([]byte, (len(nibbles)+1)/2)
	for i, v := range nibbles {
		out[i/2] |= (v & 0xF) << ((i & 1) << 2)
	}

	return out
}

// Unpack4 reads count nibbles from buf. When signed is set, nibbles with bit 3
// set are sign-extended.
func Unpack4(buf []byte, count int, signed bool) []int8 {
	out := make([]int8, count)
	for i := range out {
		v := (buf[i/2] >> ((i & 1) << 2)) & 0xF
		if signed && v&0x08 != 0 {
			v |= 0xF0
		}

		out[i] = int8(v)
	}

	return out
}
