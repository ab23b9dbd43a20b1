package memory

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestRegion_Uint32(t *testing.T) {
	r := NewRegion([]byte{0x01, 0x02, 0x03, 0x04, 0x05}, binary.BigEndian)

	v, err := r.Uint32(0)
	if err != nil {
		t.Fatal(err)
	}

	if v != 0x01020304 {
		t.Fatalf("expected 0x01020304 - got 0x%08x", v)
	}

	v, err = r.WithByteOrder(binary.LittleEndian).Uint32(1)
	if err != nil {
		t.Fatal(err)
	}

	if v != 0x05040302 {
		t.Fatalf("expected 0x05040302 - got 0x%08x", v)
	}

	for _, off := range []int{-1, 2, 5, 1 << 30} {
		_, err = r.Uint32(off)
		if !errors.Is(err, ErrOutOfBounds) {
			t.Fatalf("offset %d: expected %v - got %v", off, ErrOutOfBounds, err)
		}
	}
}

func TestRegion_Words(t *testing.T) {
	for size, exp := range map[int]int{0: 0, 3: 0, 4: 1, 7: 1, 8: 2} {
		r := NewRegion(make([]byte, size), binary.LittleEndian)
		if r.Words() != exp {
			t.Fatalf("%d bytes: expected %d words - got %d", size, exp, r.Words())
		}
	}

	if NewRegion(nil, binary.BigEndian).Words() != 0 {
		t.Fatal("expected a nil region to have no words")
	}
}

func TestRegion_PutUint32(t *testing.T) {
	b := make([]byte, 8)
	r := NewRegion(b, binary.LittleEndian)

	err := r.PutUint32(4, 0xdeadbeef)
	if err != nil {
		t.Fatal(err)
	}

	if b[4] != 0xef || b[7] != 0xde {
		t.Fatalf("unexpected region contents: 0x%x", b)
	}

	err = r.PutUint32(6, 1)
	if !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected %v - got %v", ErrOutOfBounds, err)
	}
}

func TestRegion_CString(t *testing.T) {
	r := NewRegion([]byte("alpha\x00beta"), binary.LittleEndian)

	s, err := r.CString(0, 0)
	if err != nil {
		t.Fatal(err)
	}

	if string(s) != "alpha" {
		t.Fatalf("expected 'alpha' - got '%s'", s)
	}

	_, err = r.CString(6, 0)
	if !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected unterminated string error - got %v", err)
	}

	_, err = r.CString(0, 3)
	if !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected terminator outside window error - got %v", err)
	}

	empty, err := r.CString(5, 1)
	if err != nil {
		t.Fatal(err)
	}

	if len(empty) != 0 {
		t.Fatalf("expected empty string - got '%s'", empty)
	}
}

func TestSwap32(t *testing.T) {
	if v := Swap32(0x11223344); v != 0x44332211 {
		t.Fatalf("expected 0x44332211 - got 0x%08x", v)
	}

	if v := SwapIf(false, 0x11223344); v != 0x11223344 {
		t.Fatalf("expected value to be unchanged - got 0x%08x", v)
	}
}

func TestOpposite(t *testing.T) {
	if Opposite(binary.BigEndian).String() != binary.LittleEndian.String() {
		t.Fatal("expected little endian")
	}

	if Opposite(binary.LittleEndian).String() != binary.BigEndian.String() {
		t.Fatal("expected big endian")
	}
}
