package kconfig

import (
	"encoding/binary"
	"fmt"

	"github.com/apex/log"
	"gitlab.com/stephen-fox/kcfgkit/memory"
)

const (
	// EntrySize is the size of one {tag, config} entry.
	EntrySize = 8

	// MaxScanWords bounds the search for the entry array.
	MaxScanWords = 16384

	// configOffset is the offset of the payload pointer
	// within an entry.
	configOffset = 4
)

// Layout is the position of the entry array within a buffer.
type Layout struct {
	// HeaderOffset is the offset of the pointer to the
	// entry array. It is always the first word.
	HeaderOffset int

	// ArrayStart is the offset of the first entry's tag.
	ArrayStart int

	// ArrayEnd is the exclusive end of the entry array, one
	// word past the terminating entry's zero payload pointer.
	ArrayEnd int
}

// NumEntries returns the number of entries, including
// the terminator.
func (o Layout) NumEntries() int {
	return (o.ArrayEnd - o.ArrayStart) / EntrySize
}

// TerminatorOffset returns the offset of the terminating entry.
func (o Layout) TerminatorOffset() int {
	return o.ArrayEnd - EntrySize
}

// Verdict is the result of a successful recovery.
type Verdict struct {
	// SwapNeeded is true when the dump's words are stored in the
	// opposite order of NativeOrder.
	SwapNeeded bool

	// ByteOrder is the byte order of the dump's words.
	ByteOrder binary.ByteOrder

	// LastTag is the terminating entry's tag.
	LastTag uint32

	// Segment is the target-space address of the dump's first byte.
	Segment memory.Segment

	Layout Layout
}

// RecoverOrExit calls Recover. It calls DefaultExitFn if an error occurs.
func RecoverOrExit(buf []byte, config Config) Verdict {
	v, err := Recover(buf, config)
	if err != nil {
		DefaultExitFn(fmt.Errorf("failed to recover config area - %w", err))
	}

	return v
}

// Recover locates the entry array in buf, determines the byte order of
// the dump and checks that every pointer in the array is consistent
// with the guessed target segment. buf is not modified.
//
// Failures are reported as a *CheckError wrapping one of
// ErrMalformedLayout, ErrUnrecognizedTag, ErrTagOutOfRange,
// ErrBaseSegmentMismatch, ErrPointerBeforeSegment or
// ErrPointerOutOfBounds.
func Recover(buf []byte, config Config) (Verdict, error) {
	config, err := config.normalised(len(buf))
	if err != nil {
		return Verdict{}, fmt.Errorf("invalid configuration - %w", err)
	}

	return recoverArea(buf, config)
}

func recoverArea(buf []byte, config Config) (Verdict, error) {
	logger := config.OptLogger
	schema := config.Schema

	layout, err := scanLayout(buf)
	if err != nil {
		return Verdict{}, err
	}

	logger.WithFields(log.Fields{
		"array_start": layout.ArrayStart,
		"array_end":   layout.ArrayEnd,
		"entries":     layout.NumEntries(),
	}).Debug("found entry array boundaries")

	terminator := layout.TerminatorOffset()

	rawLastTag, err := memory.NewRegion(buf, NativeOrder).Uint32(terminator)
	if err != nil {
		return Verdict{}, checkErr(ErrMalformedLayout, terminator, 0, "%s", err)
	}

	swapNeeded := rawLastTag > schema.tagBound()
	lastTag := memory.SwapIf(swapNeeded, rawLastTag)
	if !schema.acceptsLastTag(lastTag) {
		if schema.Mode == PlausibleTags {
			return Verdict{}, checkErr(ErrUnrecognizedTag, terminator, rawLastTag,
				"terminator tag is outside (%d, %d] in either byte order",
				TagUndef, schema.PlausibleMaxTag)
		}

		return Verdict{}, checkErr(ErrUnrecognizedTag, terminator, rawLastTag,
			"terminator tag is not %d in either byte order", schema.LastTag)
	}

	byteOrder := NativeOrder
	if swapNeeded {
		byteOrder = memory.Opposite(NativeOrder)
	}

	logger.WithFields(log.Fields{
		"last_tag":    lastTag,
		"swap_needed": swapNeeded,
		"byte_order":  byteOrder.String(),
	}).Debug("determined byte order")

	region := memory.NewRegion(buf, byteOrder)

	for off := layout.ArrayStart; off < terminator; off += EntrySize {
		tag, err := region.Uint32(off)
		if err != nil {
			return Verdict{}, checkErr(ErrMalformedLayout, off, 0, "%s", err)
		}

		if !(TagUndef < tag && tag <= lastTag) {
			return Verdict{}, checkErr(ErrTagOutOfRange, off, tag,
				"entry %d tag is outside (%d, %d]",
				(off-layout.ArrayStart)/EntrySize, TagUndef, lastTag)
		}
	}

	header, err := region.Uint32(layout.HeaderOffset)
	if err != nil {
		return Verdict{}, checkErr(ErrMalformedLayout, layout.HeaderOffset, 0, "%s", err)
	}

	headerPtr := memory.Pointer(header)
	segment := headerPtr.Segment()

	if segment == 0 {
		return Verdict{}, checkErr(ErrBaseSegmentMismatch, layout.HeaderOffset, header,
			"header pointer %s lies in page zero", headerPtr.HexString())
	}

	delta, _ := segment.Delta(headerPtr)
	if uint64(delta) != uint64(layout.ArrayStart) {
		return Verdict{}, checkErr(ErrBaseSegmentMismatch, layout.HeaderOffset, header,
			"header pointer %s is 0x%x bytes into segment %s, entry array starts at 0x%x",
			headerPtr.HexString(), delta, segment.HexString(), layout.ArrayStart)
	}

	logger.WithField("segment", segment.HexString()).Debug("determined target segment")

	for off := layout.ArrayStart; off < terminator; off += EntrySize {
		ptr, err := region.Uint32(off + configOffset)
		if err != nil {
			return Verdict{}, checkErr(ErrMalformedLayout, off+configOffset, 0, "%s", err)
		}

		if ptr <= uint32(segment) {
			return Verdict{}, checkErr(ErrPointerBeforeSegment, off+configOffset, ptr,
				"payload pointer is at or before segment %s", segment.HexString())
		}

		if uint64(ptr-uint32(segment)) > uint64(config.MaxConfigSize) {
			return Verdict{}, checkErr(ErrPointerOutOfBounds, off+configOffset, ptr,
				"payload pointer is 0x%x bytes into segment %s, config area is 0x%x bytes",
				ptr-uint32(segment), segment.HexString(), config.MaxConfigSize)
		}
	}

	return Verdict{
		SwapNeeded: swapNeeded,
		ByteOrder:  byteOrder,
		LastTag:    lastTag,
		Segment:    segment,
		Layout:     layout,
	}, nil
}

// scanLayout finds the header pointer (first non-zero word), the
// start of the entry array (second non-zero word) and the end of the
// array (the first zero word after its start).
func scanLayout(buf []byte) (Layout, error) {
	numWords := memory.NewRegion(buf, NativeOrder).Words()
	if numWords > MaxScanWords {
		numWords = MaxScanWords
	}

	header := -1
	arrayStart := -1

	for i := 0; i < numWords; i++ {
		off := i * memory.WordSize
		isZero := buf[off]|buf[off+1]|buf[off+2]|buf[off+3] == 0

		switch {
		case !isZero && header < 0:
			header = off
		case !isZero && arrayStart < 0:
			arrayStart = off
		case !isZero:
			// Contents of the entry array.
		case header < 0:
			return Layout{}, checkErr(ErrMalformedLayout, off, 0,
				"found a zero word before the header pointer")
		case arrayStart >= 0:
			arrayEnd := off + memory.WordSize
			if (arrayEnd-arrayStart)%EntrySize != 0 {
				return Layout{}, checkErr(ErrMalformedLayout, off, 0,
					"entry array [0x%x, 0x%x) is not a whole number of entries",
					arrayStart, arrayEnd)
			}

			return Layout{
				HeaderOffset: header,
				ArrayStart:   arrayStart,
				ArrayEnd:     arrayEnd,
			}, nil
		}
	}

	return Layout{}, checkErr(ErrMalformedLayout, numWords*memory.WordSize, 0,
		"scan window of %d words exhausted before the end of the entry array", numWords)
}
