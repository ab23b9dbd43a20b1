package kconfig

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

const (
	fdtMagic      = 0xd00dfeed
	fdtHeaderSize = 40

	// fdtSizeOffset is the offset of the totalsize field.
	fdtSizeOffset = 4

	// fdtLastSupportedVersion is the newest last_comp_version
	// a blob may require.
	fdtLastSupportedVersion = 17
)

// fdtHeader is a flattened device tree header. dtc always
// emits it in big endian, regardless of the target.
type fdtHeader struct {
	Magic           uint32
	TotalSize       uint32
	OffDtStruct     uint32
	OffDtStrings    uint32
	OffMemRsvmap    uint32
	Version         uint32
	LastCompVersion uint32
	BootCPUIDPhys   uint32
	SizeDtStrings   uint32
	SizeDtStruct    uint32
}

// parseFDTHeader reads and validates the header at the start of b.
// The blob's totalsize must fit within b.
func parseFDTHeader(b []byte) (fdtHeader, error) {
	var h fdtHeader

	s := cryptobyte.String(b)
	if !s.ReadUint32(&h.Magic) ||
		!s.ReadUint32(&h.TotalSize) ||
		!s.ReadUint32(&h.OffDtStruct) ||
		!s.ReadUint32(&h.OffDtStrings) ||
		!s.ReadUint32(&h.OffMemRsvmap) ||
		!s.ReadUint32(&h.Version) ||
		!s.ReadUint32(&h.LastCompVersion) ||
		!s.ReadUint32(&h.BootCPUIDPhys) ||
		!s.ReadUint32(&h.SizeDtStrings) ||
		!s.ReadUint32(&h.SizeDtStruct) {
		return h, fmt.Errorf("%w - header is truncated (0x%x bytes available)",
			ErrBadDeviceTree, len(b))
	}

	if h.Magic != fdtMagic {
		return h, fmt.Errorf("%w - bad magic 0x%08x", ErrBadDeviceTree, h.Magic)
	}

	if h.TotalSize < fdtHeaderSize || uint64(h.TotalSize) > uint64(len(b)) {
		return h, fmt.Errorf("%w - total size 0x%x does not fit in 0x%x bytes",
			ErrBadDeviceTree, h.TotalSize, len(b))
	}

	if h.LastCompVersion > fdtLastSupportedVersion || h.Version < h.LastCompVersion {
		return h, fmt.Errorf("%w - unsupported version %d (last compatible %d)",
			ErrBadDeviceTree, h.Version, h.LastCompVersion)
	}

	for _, block := range []struct {
		name   string
		offset uint32
	}{
		{name: "memory reservation map", offset: h.OffMemRsvmap},
		{name: "structure block", offset: h.OffDtStruct},
		{name: "strings block", offset: h.OffDtStrings},
	} {
		if block.offset < fdtHeaderSize || block.offset > h.TotalSize {
			return h, fmt.Errorf("%w - %s offset 0x%x is outside the blob",
				ErrBadDeviceTree, block.name, block.offset)
		}
	}

	if h.Version >= fdtLastSupportedVersion {
		if uint64(h.OffDtStruct)+uint64(h.SizeDtStruct) > uint64(h.TotalSize) {
			return h, fmt.Errorf("%w - structure block overruns the blob", ErrBadDeviceTree)
		}

		if uint64(h.OffDtStrings)+uint64(h.SizeDtStrings) > uint64(h.TotalSize) {
			return h, fmt.Errorf("%w - strings block overruns the blob", ErrBadDeviceTree)
		}
	}

	return h, nil
}

// fdtTotalSize reads the totalsize field without validating
// anything else.
func fdtTotalSize(b []byte) (uint32, bool) {
	if len(b) < fdtSizeOffset+4 {
		return 0, false
	}

	return binary.BigEndian.Uint32(b[fdtSizeOffset:]), true
}
