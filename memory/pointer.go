package memory

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// PointerSize is the size of a target-space pointer in bytes.
	PointerSize = 4

	// SegmentMask aligns a target-space address down to its 4 KiB page.
	SegmentMask = 0xFFFFF000
)

var (
	// ErrBeforeSegment is returned when a pointer lies below
	// the base of the segment it is translated against.
	ErrBeforeSegment = errors.New("pointer precedes segment")

	// ErrPastEnd is returned when a translated pointer does not
	// land inside the host buffer.
	ErrPastEnd = errors.New("pointer translates past end of buffer")
)

// PointerMakerFor returns a PointerMaker that encodes and decodes
// pointers using the specified byte order.
func PointerMakerFor(targetSystemEndianness binary.ByteOrder) PointerMaker {
	return PointerMaker{
		byteOrder: targetSystemEndianness,
	}
}

// PointerMaker converts Pointer values to and from their in-memory
// representation on the target.
type PointerMaker struct {
	byteOrder binary.ByteOrder
}

// Bytes returns the raw representation of p.
func (o PointerMaker) Bytes(p Pointer) []byte {
	out := make([]byte, PointerSize)
	o.byteOrder.PutUint32(out, uint32(p))
	return out
}

// FromBytes decodes a Pointer from the first PointerSize bytes of b.
func (o PointerMaker) FromBytes(b []byte) (Pointer, error) {
	if len(b) < PointerSize {
		return 0, fmt.Errorf("need %d bytes to decode a pointer - got %d",
			PointerSize, len(b))
	}

	return Pointer(o.byteOrder.Uint32(b)), nil
}

// Pointer is an address in the target's 32-bit address space.
type Pointer uint32

// Segment returns the 4 KiB aligned segment the pointer lives in.
func (o Pointer) Segment() Segment {
	return Segment(uint32(o) & SegmentMask)
}

func (o Pointer) HexString() string {
	return fmt.Sprintf("0x%08x", uint32(o))
}

// Segment is the target-space address corresponding to offset zero
// of a host buffer.
type Segment uint32

func (o Segment) HexString() string {
	return fmt.Sprintf("0x%08x", uint32(o))
}

// Delta returns the distance between the segment base and p. The
// boolean is false when p lies below the base.
func (o Segment) Delta(p Pointer) (uint32, bool) {
	if uint32(p) < uint32(o) {
		return 0, false
	}

	return uint32(p) - uint32(o), true
}

// HostOffset translates p into an offset into a host buffer that is
// bufLen bytes long. The resulting offset always addresses at least
// one byte of the buffer.
func (o Segment) HostOffset(p Pointer, bufLen int) (int, error) {
	delta, ok := o.Delta(p)
	if !ok {
		return 0, fmt.Errorf("%w - %s < %s", ErrBeforeSegment, p.HexString(), o.HexString())
	}

	if uint64(delta) >= uint64(bufLen) {
		return 0, fmt.Errorf("%w - %s is 0x%x bytes into %s, buffer is 0x%x bytes",
			ErrPastEnd, p.HexString(), delta, o.HexString(), bufLen)
	}

	return int(delta), nil
}
