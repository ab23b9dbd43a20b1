package memory

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
)

const WordSize = 4

// ErrOutOfBounds is returned when an access does not fit
// inside a Region.
var ErrOutOfBounds = errors.New("access out of bounds")

// NewRegion returns a Region over b that interprets words using
// the specified byte order. The Region does not copy b.
func NewRegion(b []byte, byteOrder binary.ByteOrder) Region {
	return Region{
		buf: b,
		bo:  byteOrder,
	}
}

// Region is a bounds-checked view of a dumped memory region.
type Region struct {
	buf []byte
	bo  binary.ByteOrder
}

// Len returns the length of the region in bytes.
func (o Region) Len() int {
	return len(o.buf)
}

// Words returns the number of complete 32-bit words in the region.
func (o Region) Words() int {
	return len(o.buf) / WordSize
}

// ByteOrder returns the byte order words are interpreted with.
func (o Region) ByteOrder() binary.ByteOrder {
	return o.bo
}

// WithByteOrder returns a Region over the same bytes using
// a different byte order.
func (o Region) WithByteOrder(byteOrder binary.ByteOrder) Region {
	return Region{
		buf: o.buf,
		bo:  byteOrder,
	}
}

// InBounds reports whether n bytes starting at offset
// are inside the region.
func (o Region) InBounds(offset int, n int) bool {
	return offset >= 0 && n >= 0 && offset <= len(o.buf) && n <= len(o.buf)-offset
}

// Uint32 reads the word at offset.
func (o Region) Uint32(offset int) (uint32, error) {
	if !o.InBounds(offset, WordSize) {
		return 0, fmt.Errorf("%w - cannot read word at 0x%x from 0x%x byte region",
			ErrOutOfBounds, offset, len(o.buf))
	}

	return o.bo.Uint32(o.buf[offset:]), nil
}

// PutUint32 writes v to the word at offset.
func (o Region) PutUint32(offset int, v uint32) error {
	if !o.InBounds(offset, WordSize) {
		return fmt.Errorf("%w - cannot write word at 0x%x into 0x%x byte region",
			ErrOutOfBounds, offset, len(o.buf))
	}

	o.bo.PutUint32(o.buf[offset:], v)

	return nil
}

// Bytes returns the n bytes starting at offset. The returned
// slice aliases the region.
func (o Region) Bytes(offset int, n int) ([]byte, error) {
	if !o.InBounds(offset, n) {
		return nil, fmt.Errorf("%w - cannot read 0x%x bytes at 0x%x from 0x%x byte region",
			ErrOutOfBounds, n, offset, len(o.buf))
	}

	return o.buf[offset : offset+n], nil
}

// CString reads a NUL terminated string starting at offset. At most
// max bytes are searched for the terminator. A max less than or equal
// to zero searches until the end of the region. The terminator is not
// included in the result.
func (o Region) CString(offset int, max int) ([]byte, error) {
	if !o.InBounds(offset, 0) {
		return nil, fmt.Errorf("%w - string offset 0x%x is outside 0x%x byte region",
			ErrOutOfBounds, offset, len(o.buf))
	}

	window := o.buf[offset:]
	if max > 0 && max < len(window) {
		window = window[:max]
	}

	end := bytes.IndexByte(window, 0)
	if end < 0 {
		return nil, fmt.Errorf("%w - no string terminator within 0x%x bytes of 0x%x",
			ErrOutOfBounds, len(window), offset)
	}

	return window[:end], nil
}

// Swap32 reverses the byte order of v.
func Swap32(v uint32) uint32 {
	return bits.ReverseBytes32(v)
}

// SwapIf returns Swap32(v) when needed is true, and v otherwise.
func SwapIf(needed bool, v uint32) uint32 {
	if !needed {
		return v
	}

	return Swap32(v)
}

// Opposite returns the byte order that is the reverse of byteOrder.
func Opposite(byteOrder binary.ByteOrder) binary.ByteOrder {
	if byteOrder.String() == binary.BigEndian.String() {
		return binary.LittleEndian
	}

	return binary.BigEndian
}
