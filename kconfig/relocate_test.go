package kconfig_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/apex/log"
	logmemory "github.com/apex/log/handlers/memory"
	"gitlab.com/stephen-fox/kcfgkit/kconfig"
)

func TestRelocate(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		t.Run(order.String(), func(t *testing.T) {
			area := defaultFixture(order).build(t)

			view, err := kconfig.Relocate(area.buf, kconfig.Config{})
			if err != nil {
				t.Fatal(err)
			}

			if !bytes.Equal(view.Bytes(), area.buf) {
				t.Fatal("view does not alias the relocated buffer")
			}

			region := view.Region()

			header, _ := region.Uint32(0)
			if header != testArrayOffset {
				t.Fatalf("expected header offset 0x%x - got 0x%x", testArrayOffset, header)
			}

			for tag, entry := range area.entries {
				gotTag, _ := region.Uint32(entry)
				if gotTag != tag {
					t.Fatalf("expected tag %d at 0x%x - got %d", tag, entry, gotTag)
				}

				gotPayload, _ := region.Uint32(entry + 4)
				if int(gotPayload) != area.payloads[tag] {
					t.Fatalf("tag %d: expected payload offset 0x%x - got 0x%x",
						tag, area.payloads[tag], gotPayload)
				}
			}

			table := area.payloads[1]
			for i, exp := range []uint32{100, 200} {
				name, _ := region.Uint32(table + i*8)
				if int(name) != area.moduleNames[i] {
					t.Fatalf("module %d: expected name offset 0x%x - got 0x%x",
						i, area.moduleNames[i], name)
				}

				size, _ := region.Uint32(table + i*8 + 4)
				if size != exp {
					t.Fatalf("module %d: expected size %d - got %d", i, exp, size)
				}
			}

			name, _ := region.CString(area.moduleNames[1], 0)
			if string(name) != "beta" {
				t.Fatalf("expected module name \"beta\" - got %q", name)
			}
		})
	}
}

func TestRelocate_NormalisesByteOrder(t *testing.T) {
	little := defaultFixture(binary.LittleEndian).build(t)
	big := defaultFixture(binary.BigEndian).build(t)

	if bytes.Equal(little.buf, big.buf) {
		t.Fatal("fixtures should differ before relocation")
	}

	littleView, err := kconfig.Relocate(little.buf, kconfig.Config{})
	if err != nil {
		t.Fatal(err)
	}

	bigView, err := kconfig.Relocate(big.buf, kconfig.Config{})
	if err != nil {
		t.Fatal(err)
	}

	if littleView.Verdict().SwapNeeded || !bigView.Verdict().SwapNeeded {
		t.Fatalf("unexpected swap verdicts - little: %t, big: %t",
			littleView.Verdict().SwapNeeded, bigView.Verdict().SwapNeeded)
	}

	if !bytes.Equal(littleView.Bytes(), bigView.Bytes()) {
		t.Fatal("relocated buffers differ")
	}
}

func TestRelocate_SwappedWords(t *testing.T) {
	area := defaultFixture(binary.LittleEndian).build(t)
	swapped := swapWords(area.buf)

	view, err := kconfig.Relocate(area.buf, kconfig.Config{})
	if err != nil {
		t.Fatal(err)
	}

	swappedView, err := kconfig.Relocate(swapped, kconfig.Config{})
	if err != nil {
		t.Fatal(err)
	}

	if view.Verdict().SwapNeeded == swappedView.Verdict().SwapNeeded {
		t.Fatal("expected swapped dump to have the opposite swap verdict")
	}

	exp := walkAll(t, view)
	got := walkAll(t, swappedView)

	if len(exp) != len(got) {
		t.Fatalf("expected %d entries - got %d", len(exp), len(got))
	}

	for i := range exp {
		if exp[i] != got[i] {
			t.Fatalf("entry %d: expected %+v - got %+v", i, exp[i], got[i])
		}
	}

	table := area.payloads[1]
	for off := table; off < table+3*8; off += 4 {
		a, _ := view.Region().Uint32(off)
		b, _ := swappedView.Region().Uint32(off)
		if a != b {
			t.Fatalf("module table word at 0x%x: expected 0x%x - got 0x%x", off, a, b)
		}
	}
}

func TestRelocate_Twice(t *testing.T) {
	area := defaultFixture(binary.BigEndian).build(t)

	_, err := kconfig.Relocate(area.buf, kconfig.Config{})
	if err != nil {
		t.Fatal(err)
	}

	relocated := cloneBytes(area.buf)

	_, err = kconfig.Relocate(area.buf, kconfig.Config{})
	if !errors.Is(err, kconfig.ErrRecoveryFailed) {
		t.Fatalf("expected %v - got %v", kconfig.ErrRecoveryFailed, err)
	}

	if !errors.Is(err, kconfig.ErrBaseSegmentMismatch) {
		t.Fatalf("expected %v - got %v", kconfig.ErrBaseSegmentMismatch, err)
	}

	if !bytes.Equal(relocated, area.buf) {
		t.Fatal("failed relocation modified the buffer")
	}
}

func TestArea_Consumed(t *testing.T) {
	area := defaultFixture(binary.LittleEndian).build(t)
	a := kconfig.NewArea(area.buf)

	_, err := a.Recover(kconfig.Config{})
	if err != nil {
		t.Fatal(err)
	}

	_, err = a.Relocate(kconfig.Config{})
	if err != nil {
		t.Fatal(err)
	}

	_, err = a.Relocate(kconfig.Config{})
	if !errors.Is(err, kconfig.ErrAreaConsumed) {
		t.Fatalf("expected %v - got %v", kconfig.ErrAreaConsumed, err)
	}

	_, err = a.Recover(kconfig.Config{})
	if !errors.Is(err, kconfig.ErrAreaConsumed) {
		t.Fatalf("expected %v - got %v", kconfig.ErrAreaConsumed, err)
	}
}

func TestArea_ConsumedOnFailure(t *testing.T) {
	a := kconfig.NewArea(make([]byte, 32))

	_, err := a.Relocate(kconfig.Config{})
	if !errors.Is(err, kconfig.ErrMalformedLayout) {
		t.Fatalf("expected %v - got %v", kconfig.ErrMalformedLayout, err)
	}

	_, err = a.Relocate(kconfig.Config{})
	if !errors.Is(err, kconfig.ErrAreaConsumed) {
		t.Fatalf("expected %v - got %v", kconfig.ErrAreaConsumed, err)
	}
}

func TestRelocate_ShortBuffer(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{name: "Nil", buf: nil},
		{name: "Empty", buf: []byte{}},
		{name: "OneWord", buf: []byte{0x08, 0x10, 0xa0, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := kconfig.Relocate(tt.buf, kconfig.Config{})
			if !errors.Is(err, kconfig.ErrMalformedLayout) {
				t.Fatalf("expected %v - got %v", kconfig.ErrMalformedLayout, err)
			}

			if errors.Is(err, kconfig.ErrAreaConsumed) {
				t.Fatalf("a fresh area must not be reported as consumed - got %v", err)
			}

			_, err = kconfig.NewArea(tt.buf).Recover(kconfig.Config{})
			if !errors.Is(err, kconfig.ErrMalformedLayout) {
				t.Fatalf("expected %v - got %v", kconfig.ErrMalformedLayout, err)
			}
		})
	}
}

func TestRelocate_BadModuleNameIsTransactional(t *testing.T) {
	tests := []struct {
		name string
		ptr  func(bufLen int) uint32
	}{
		{
			name: "PastEnd",
			ptr:  func(bufLen int) uint32 { return testSegment + uint32(bufLen) },
		},
		{
			name: "BeforeSegment",
			ptr:  func(int) uint32 { return testSegment - 0x10 },
		},
		{
			name: "SegmentBase",
			ptr:  func(int) uint32 { return testSegment },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := binary.BigEndian
			area := defaultFixture(order).build(t)

			// The second module's name.
			putWord(t, area.buf, order, area.payloads[1]+8, tt.ptr(len(area.buf)))

			orig := cloneBytes(area.buf)

			_, err := kconfig.Relocate(area.buf, kconfig.Config{})
			if !errors.Is(err, kconfig.ErrRelocationOutOfBounds) {
				t.Fatalf("expected %v - got %v", kconfig.ErrRelocationOutOfBounds, err)
			}

			if errors.Is(err, kconfig.ErrRecoveryFailed) {
				t.Fatalf("recovery should have succeeded - got %v", err)
			}

			if !bytes.Equal(orig, area.buf) {
				t.Fatal("failed relocation modified the buffer")
			}
		})
	}
}

func TestRelocate_SharedModuleTable(t *testing.T) {
	order := binary.LittleEndian
	area := defaultFixture(order).build(t)

	// Turn the version info entry into a second module memory
	// entry that refers to the same table.
	putWord(t, area.buf, order, area.entries[2], 1)
	putWord(t, area.buf, order, area.entries[2]+4, testSegment+uint32(area.payloads[1]))

	orig := cloneBytes(area.buf)

	_, err := kconfig.Relocate(area.buf, kconfig.Config{})
	if !errors.Is(err, kconfig.ErrRelocationOutOfBounds) {
		t.Fatalf("expected %v - got %v", kconfig.ErrRelocationOutOfBounds, err)
	}

	if !bytes.Equal(orig, area.buf) {
		t.Fatal("failed relocation modified the buffer")
	}
}

func TestRelocate_Logging(t *testing.T) {
	handler := logmemory.New()
	logger := &log.Logger{
		Handler: handler,
		Level:   log.DebugLevel,
	}

	area := defaultFixture(binary.BigEndian).build(t)

	_, err := kconfig.Relocate(area.buf, kconfig.Config{OptLogger: logger})
	if err != nil {
		t.Fatal(err)
	}

	var messages []string
	for _, e := range handler.Entries {
		messages = append(messages, e.Message)
	}

	exp := []string{
		"found entry array boundaries",
		"determined byte order",
		"determined target segment",
		"relocated config area",
	}

	if len(messages) != len(exp) {
		t.Fatalf("expected log messages %q - got %q", exp, messages)
	}

	for i := range exp {
		if messages[i] != exp[i] {
			t.Fatalf("expected log message %d to be %q - got %q", i, exp[i], messages[i])
		}
	}

	segment := handler.Entries[2].Fields["segment"]
	if segment != "0x80a01000" {
		t.Fatalf("expected segment field 0x80a01000 - got %v", segment)
	}
}

func TestView_Walk(t *testing.T) {
	area := defaultFixture(binary.BigEndian).build(t)

	view, err := kconfig.Relocate(area.buf, kconfig.Config{})
	if err != nil {
		t.Fatal(err)
	}

	entries := walkAll(t, view)

	exp := []kconfig.Entry{
		{Index: 0, Tag: 1, Offset: area.payloads[1], Kind: kconfig.KindModuleMemory},
		{Index: 1, Tag: 2, Offset: area.payloads[2], Kind: kconfig.KindVersionInfo},
		{Index: 2, Tag: 5, Offset: area.payloads[5], Kind: kconfig.KindDeviceTree},
		{Index: 3, Tag: 7, Offset: area.payloads[7], Kind: kconfig.KindDeviceTree},
	}

	if len(entries) != len(exp) {
		t.Fatalf("expected %d entries - got %d", len(exp), len(entries))
	}

	for i := range exp {
		if entries[i] != exp[i] {
			t.Fatalf("entry %d: expected %+v - got %+v", i, exp[i], entries[i])
		}
	}

	w := view.Walk()
	if w.Next() {
		t.Fatal("second walker yielded an entry")
	}

	if !errors.Is(w.Err(), kconfig.ErrWalkerConsumed) {
		t.Fatalf("expected %v - got %v", kconfig.ErrWalkerConsumed, w.Err())
	}
}

func walkAll(t testing.TB, view *kconfig.View) []kconfig.Entry {
	t.Helper()

	var entries []kconfig.Entry

	w := view.Walk()
	for w.Next() {
		entries = append(entries, w.Entry())
	}

	if w.Err() != nil {
		t.Fatal(w.Err())
	}

	return entries
}
