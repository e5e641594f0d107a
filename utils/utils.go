package utils

///////////////////////////////////////////////////////////////////////////////
// Integer Formatting — For Table Cells & Log Tags
///////////////////////////////////////////////////////////////////////////////

// AppendInt appends the decimal form of n to dst.
//
//go:inline
func AppendInt(dst []byte, n int64) []byte {
	if n == 0 {
		return append(dst, '0')
	}
	var tmp [20]byte
	i := len(tmp)
	u := uint64(n)
	if n < 0 {
		u = uint64(-n)
	}
	for u > 0 {
		i--
		tmp[i] = byte('0' + u%10)
		u /= 10
	}
	if n < 0 {
		dst = append(dst, '-')
	}
	return append(dst, tmp[i:]...)
}

// Itoa formats n in base 10.
func Itoa(n int) string {
	var buf [21]byte
	return string(AppendInt(buf[:0], int64(n)))
}

// AppendPadded appends s right-aligned in a field of the given width.
// Longer values are written in full.
func AppendPadded(dst []byte, s []byte, width int) []byte {
	for pad := width - len(s); pad > 0; pad-- {
		dst = append(dst, ' ')
	}
	return append(dst, s...)
}

// AppendPaddedInt appends n right-aligned in a field of the given width.
func AppendPaddedInt(dst []byte, n int64, width int) []byte {
	var buf [21]byte
	return AppendPadded(dst, AppendInt(buf[:0], n), width)
}
