package iokit

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/apex/log"
	"gitlab.com/stephen-fox/kcfgkit/bstruct"
	"gitlab.com/stephen-fox/kcfgkit/memory"
)

var (
	// DefaultExitFn is invoked by functions and methods ending in
	// the "OrExit" suffix when an error occurs.
	DefaultExitFn = func(err error) {
		log.WithError(err).Fatal("iokit")
	}
)

// NewPayloadBuilder instantiates a new PayloadBuilder.
func NewPayloadBuilder() *PayloadBuilder {
	return &PayloadBuilder{}
}

// PayloadBuilder helps build memory images (such as synthetic config
// area dumps) by implementing the "builder pattern".
//
// For methods that take endianness as an optional argument,
// the default is little endian. The default endianness can
// be overridden using SetEndianness.
type PayloadBuilder struct {
	buf bytes.Buffer
	bo  binary.ByteOrder
	err error
}

// SetEndianness sets the default endianness for the methods that take
// endianness as an optional argument.
func (o *PayloadBuilder) SetEndianness(order binary.ByteOrder) *PayloadBuilder {
	o.bo = order

	return o
}

func (o *PayloadBuilder) getEndianness(optOrder ...binary.ByteOrder) binary.ByteOrder {
	switch len(optOrder) {
	case 0:
		if o.bo == nil {
			return binary.LittleEndian
		}
		return o.bo
	case 1:
		return optOrder[0]
	default:
		panic("only one binary.ByteOrder may be specified")
	}
}

// Len returns the current length of the payload, which is also
// the offset the next write goes to.
func (o *PayloadBuilder) Len() int {
	return o.buf.Len()
}

// Uint32 writes an unsigned 32-bit integer to the payload.
// The endianness can be specified by the optOrder argument.
// If the optOrder argument is unspecified, the default
// endianness set by SetEndianness will be used.
func (o *PayloadBuilder) Uint32(u uint32, optOrder ...binary.ByteOrder) *PayloadBuilder {
	bo := o.getEndianness(optOrder...)

	b := make([]byte, 4)

	bo.PutUint32(b, u)

	return o.Bytes(b)
}

// Pointer writes a target-space pointer to the payload using
// the default endianness.
func (o *PayloadBuilder) Pointer(p memory.Pointer) *PayloadBuilder {
	return o.Bytes(memory.PointerMakerFor(o.getEndianness()).Bytes(p))
}

// PutUint32At overwrites the 32-bit word at offset, which must
// already have been written. It is useful for back-patching
// pointers to data that is appended later.
func (o *PayloadBuilder) PutUint32At(offset int, u uint32, optOrder ...binary.ByteOrder) *PayloadBuilder {
	if o.err != nil {
		return o
	}

	b := o.buf.Bytes()
	if offset < 0 || offset+4 > len(b) {
		o.err = fmt.Errorf("cannot put word at 0x%x into 0x%x byte payload", offset, len(b))
		return o
	}

	o.getEndianness(optOrder...).PutUint32(b[offset:], u)

	return o
}

// Struct writes the binary representation of a fixed-layout struct
// using the default endianness. Refer to bstruct for the supported
// field types.
func (o *PayloadBuilder) Struct(s interface{}) *PayloadBuilder {
	if o.err != nil {
		return o
	}

	b, err := bstruct.StructToBytes(s, o.getEndianness(), nil)
	if err != nil {
		o.err = fmt.Errorf("failed to encode struct - %w", err)
		return o
	}

	return o.Bytes(b)
}

// Bytes writes the specified []byte to the payload.
func (o *PayloadBuilder) Bytes(b []byte) *PayloadBuilder {
	if o.err != nil {
		return o
	}

	_, err := o.buf.Write(b)
	if err != nil {
		o.err = err
	}

	return o
}

// String writes the specified string to the payload.
func (o *PayloadBuilder) String(str string) *PayloadBuilder {
	if o.err != nil {
		return o
	}

	_, err := o.buf.WriteString(str)
	if err != nil {
		o.err = err
	}

	return o
}

// CString writes the specified string followed by a NUL byte.
func (o *PayloadBuilder) CString(str string) *PayloadBuilder {
	return o.String(str).Bytes([]byte{0})
}

// FixedString writes str into a NUL padded field of size bytes,
// like a C char array. str is truncated if it does not fit.
func (o *PayloadBuilder) FixedString(str string, size int) *PayloadBuilder {
	field := make([]byte, size)
	copy(field, str)

	return o.Bytes(field)
}

// PadTo appends zero bytes until the payload is offset bytes long.
func (o *PayloadBuilder) PadTo(offset int) *PayloadBuilder {
	if o.err != nil {
		return o
	}

	if offset < o.buf.Len() {
		o.err = fmt.Errorf("cannot pad to 0x%x - payload is already 0x%x bytes",
			offset, o.buf.Len())
		return o
	}

	return o.Bytes(make([]byte, offset-o.buf.Len()))
}

// Align appends zero bytes until the payload's length is a
// multiple of n.
func (o *PayloadBuilder) Align(n int) *PayloadBuilder {
	if n <= 0 {
		return o
	}

	rem := o.buf.Len() % n
	if rem == 0 {
		return o
	}

	return o.PadTo(o.buf.Len() + n - rem)
}

// Err returns the first error encountered while building.
func (o *PayloadBuilder) Err() error {
	return o.err
}

// BuildOrExit returns the payload as a []byte. It calls DefaultExitFn
// if an error occurred while building.
func (o *PayloadBuilder) BuildOrExit() []byte {
	b, err := o.Build()
	if err != nil {
		DefaultExitFn(err)
	}

	return b
}

// Build returns a copy of the payload as a []byte.
func (o *PayloadBuilder) Build() ([]byte, error) {
	if o.err != nil {
		return nil, fmt.Errorf("failed to build payload - %w", o.err)
	}

	out := make([]byte, o.buf.Len())
	copy(out, o.buf.Bytes())

	return out, nil
}
