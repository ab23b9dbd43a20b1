package kconfig_test

import (
	"encoding/binary"
	"sort"
	"testing"

	"gitlab.com/stephen-fox/kcfgkit/iokit"
	"gitlab.com/stephen-fox/kcfgkit/kconfig"
	"gitlab.com/stephen-fox/kcfgkit/memory"
)

const (
	testSegment     = 0x80a01000
	testArrayOffset = 8
	placeholderPtr  = 0xffffffff
)

// fixture describes a synthetic config area.
type fixture struct {
	order   binary.ByteOrder
	segment uint32
	lastTag uint32

	modules     []kconfig.Module
	version     *kconfig.VersionInfo
	deviceTrees map[uint32][]byte

	// opaque entries carry a payload that no decoder understands.
	opaque map[uint32][]byte

	// trailer is the number of zero bytes appended to the area.
	trailer int
}

// built records where things ended up in a fixture's buffer.
type built struct {
	buf         []byte
	entries     map[uint32]int // tag -> entry offset
	payloads    map[uint32]int // tag -> payload offset
	moduleNames []int
}

func defaultFixture(order binary.ByteOrder) fixture {
	return fixture{
		order:   order,
		segment: testSegment,
		lastTag: 16,
		modules: []kconfig.Module{
			{Name: "alpha", Size: 100},
			{Name: "beta", Size: 200},
		},
		version: &kconfig.VersionInfo{
			BuildNumber:    "1234",
			SVNVersion:     "56789",
			FirmwareString: "113.07.29",
		},
		deviceTrees: map[uint32][]byte{
			5: fdtBlob("subrev0"),
			7: fdtBlob("subrev2"),
		},
		trailer: 16,
	}
}

func (o fixture) build(t testing.TB) built {
	t.Helper()

	b := iokit.NewPayloadBuilder().SetEndianness(o.order)

	b.Pointer(memory.Pointer(o.segment + testArrayOffset)).PadTo(testArrayOffset)

	var tags []uint32
	if len(o.modules) > 0 {
		tags = append(tags, 1)
	}
	if o.version != nil {
		tags = append(tags, 2)
	}
	var rest []uint32
	for tag := range o.deviceTrees {
		rest = append(rest, tag)
	}
	for tag := range o.opaque {
		rest = append(rest, tag)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	tags = append(tags, rest...)

	res := built{
		entries:  make(map[uint32]int),
		payloads: make(map[uint32]int),
	}

	for _, tag := range tags {
		res.entries[tag] = b.Len()
		b.Uint32(tag).Uint32(placeholderPtr)
	}

	b.Uint32(o.lastTag).Uint32(0)

	setPayload := func(tag uint32) {
		res.payloads[tag] = b.Len()
		b.PutUint32At(res.entries[tag]+4, o.segment+uint32(b.Len()))
	}

	if len(o.modules) > 0 {
		setPayload(1)

		table := b.Len()
		for range o.modules {
			b.Uint32(placeholderPtr).Uint32(0)
		}
		b.Uint32(0).Uint32(0)

		for i, m := range o.modules {
			res.moduleNames = append(res.moduleNames, b.Len())
			b.PutUint32At(table+i*8, o.segment+uint32(b.Len()))
			b.PutUint32At(table+i*8+4, m.Size)
			b.CString(m.Name)
		}

		b.Align(4)
	}

	if o.version != nil {
		setPayload(2)
		b.FixedString(o.version.BuildNumber, 32).
			FixedString(o.version.SVNVersion, 32).
			FixedString(o.version.FirmwareString, 128)
	}

	for _, tag := range rest {
		setPayload(tag)
		if blob, ok := o.deviceTrees[tag]; ok {
			b.Bytes(blob)
		} else {
			b.Bytes(o.opaque[tag])
		}
		b.Align(4)
	}

	b.Bytes(make([]byte, o.trailer))

	buf, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	res.buf = buf

	return res
}

// fdtBlob returns a minimal flattened device tree whose root node
// has a "model" property.
func fdtBlob(model string) []byte {
	const (
		beginNode = 0x1
		endNode   = 0x2
		prop      = 0x3
		end       = 0x9
	)

	be := binary.BigEndian

	structure := iokit.NewPayloadBuilder().SetEndianness(be).
		Uint32(beginNode).Uint32(0).
		Uint32(prop).Uint32(uint32(len(model) + 1)).Uint32(0).
		CString(model).Align(4).
		Uint32(endNode).
		Uint32(end).
		BuildOrExit()

	strs := []byte("model\x00")

	const headerSize = 40
	const rsvmapSize = 16

	offStruct := headerSize + rsvmapSize
	offStrings := offStruct + len(structure)
	total := offStrings + len(strs)

	return iokit.NewPayloadBuilder().SetEndianness(be).
		Uint32(0xd00dfeed).
		Uint32(uint32(total)).
		Uint32(uint32(offStruct)).
		Uint32(uint32(offStrings)).
		Uint32(headerSize).
		Uint32(17).
		Uint32(16).
		Uint32(0).
		Uint32(uint32(len(strs))).
		Uint32(uint32(len(structure))).
		Bytes(make([]byte, rsvmapSize)).
		Bytes(structure).
		Bytes(strs).
		BuildOrExit()
}

// swapWords returns a copy of b with every 32-bit word byte swapped.
func swapWords(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)

	for i := 0; i+4 <= len(out); i += 4 {
		out[i], out[i+1], out[i+2], out[i+3] = out[i+3], out[i+2], out[i+1], out[i]
	}

	return out
}

func putWord(t testing.TB, buf []byte, order binary.ByteOrder, offset int, v uint32) {
	t.Helper()

	err := memory.NewRegion(buf, order).PutUint32(offset, v)
	if err != nil {
		t.Fatal(err)
	}
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
