package hw

// a32 packs four ASCII bytes the way CPUID returns them in a register.
func a32(a, b, c, d byte) uint32 {
	return uint32(d)<<24 | uint32(c)<<16 | uint32(b)<<8 | uint32(a)
}

// VendorTag converts a vendor string of up to 12 characters into the
// register words leaf 0 returns it in (EBX, EDX, ECX order).
func VendorTag(s string) [3]uint32 {
	var b [12]byte
	copy(b[:], s)
	return [3]uint32{
		a32(b[0], b[1], b[2], b[3]),
		a32(b[4], b[5], b[6], b[7]),
		a32(b[8], b[9], b[10], b[11]),
	}
}

// VendorString renders a vendor tag back into its ASCII form.
func VendorString(tag [3]uint32) string {
	b := make([]byte, 0, 12)
	for _, w := range tag {
		b = append(b, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
	}
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b)
}

// Vendor returns the vendor tag from a leaf 0 result.
func (r Registers) Vendor() [3]uint32 {
	return [3]uint32{r.EBX, r.EDX, r.ECX}
}
