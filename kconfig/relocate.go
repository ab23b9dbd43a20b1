package kconfig

import (
	"errors"
	"fmt"

	"github.com/apex/log"
	"gitlab.com/stephen-fox/kcfgkit/memory"
)

// moduleRecordSize is the size of one {name, size} module
// memory record.
const moduleRecordSize = 8

// NewArea takes ownership of buf, a raw config area dump. The caller
// must not use buf after handing it to NewArea.
func NewArea(buf []byte) *Area {
	return &Area{
		buf: buf,
	}
}

// Area is a config area dump that has not been relocated yet.
type Area struct {
	buf      []byte
	consumed bool
}

// Recover calls Recover on the area's buffer.
func (o *Area) Recover(config Config) (Verdict, error) {
	if o.consumed {
		return Verdict{}, ErrAreaConsumed
	}

	return Recover(o.buf, config)
}

// RelocateOrExit calls Relocate. It calls DefaultExitFn if an error occurs.
func RelocateOrExit(buf []byte, config Config) *View {
	v, err := Relocate(buf, config)
	if err != nil {
		DefaultExitFn(fmt.Errorf("failed to relocate config area - %w", err))
	}

	return v
}

// Relocate is shorthand for NewArea(buf).Relocate(config).
func Relocate(buf []byte, config Config) (*View, error) {
	return NewArea(buf).Relocate(config)
}

// Relocate recovers the area's structure and rewrites every pointer
// in it from target space into offsets into the area's buffer. All
// rewritten words are stored in NativeOrder.
//
// The area is consumed whether or not relocation succeeds; subsequent
// calls fail with ErrAreaConsumed. Relocation is all or nothing: if
// any pointer cannot be translated, the buffer is left untouched.
//
// A recovery failure is wrapped together with ErrRecoveryFailed.
// Translation failures are reported as *CheckError wrapping
// ErrRelocationOutOfBounds.
func (o *Area) Relocate(config Config) (*View, error) {
	if o.consumed {
		return nil, ErrAreaConsumed
	}

	buf := o.buf
	o.buf = nil
	o.consumed = true

	config, err := config.normalised(len(buf))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration - %w", err)
	}

	verdict, err := recoverArea(buf, config)
	if err != nil {
		return nil, fmt.Errorf("%w - %w", ErrRecoveryFailed, err)
	}

	patches, start, err := planRelocation(buf, verdict, config.Schema)
	if err != nil {
		return nil, err
	}

	native := memory.NewRegion(buf, NativeOrder)
	for _, p := range patches.list {
		err := native.PutUint32(p.offset, p.value)
		if err != nil {
			// Offsets were bounds checked when planning.
			return nil, fmt.Errorf("failed to apply relocation - %w", err)
		}
	}

	config.OptLogger.WithFields(log.Fields{
		"patched_words": len(patches.list),
		"array_start":   start,
	}).Debug("relocated config area")

	return &View{
		region:  native,
		verdict: verdict,
		schema:  config.Schema,
		rules:   config.Schema.KindRules(verdict.LastTag),
		start:   start,
	}, nil
}

type patch struct {
	offset int
	value  uint32
}

type patchSet struct {
	list []patch
	seen map[int]struct{}
}

func (o *patchSet) add(offset int, value uint32) error {
	if o.seen == nil {
		o.seen = make(map[int]struct{})
	}

	_, hasIt := o.seen[offset]
	if hasIt {
		return checkErr(ErrRelocationOutOfBounds, offset, value,
			"word is referenced by more than one relocated structure")
	}

	o.seen[offset] = struct{}{}
	o.list = append(o.list, patch{offset: offset, value: value})

	return nil
}

// planRelocation computes every word that relocation rewrites
// without modifying buf. It returns the patches and the host
// offset of the entry array.
func planRelocation(buf []byte, verdict Verdict, schema Schema) (*patchSet, int, error) {
	region := memory.NewRegion(buf, verdict.ByteOrder)
	patches := &patchSet{}

	readWord := func(offset int) (uint32, error) {
		v, err := region.Uint32(offset)
		if err != nil {
			return 0, checkErr(ErrRelocationOutOfBounds, offset, 0, "%s", err)
		}
		return v, nil
	}

	headerOffset := verdict.Layout.HeaderOffset

	header, err := readWord(headerOffset)
	if err != nil {
		return nil, 0, err
	}

	segment := memory.Pointer(header).Segment()

	start, err := translate(segment, header, len(buf), headerOffset)
	if err != nil {
		return nil, 0, err
	}

	err = patches.add(headerOffset, uint32(start))
	if err != nil {
		return nil, 0, err
	}

	for off := start; ; off += EntrySize {
		tag, err := readWord(off)
		if err != nil {
			return nil, 0, err
		}

		err = patches.add(off, tag)
		if err != nil {
			return nil, 0, err
		}

		ptr, err := readWord(off + configOffset)
		if err != nil {
			return nil, 0, err
		}

		if ptr == 0 {
			break
		}

		payload, err := translate(segment, ptr, len(buf), off+configOffset)
		if err != nil {
			return nil, 0, err
		}

		err = patches.add(off+configOffset, uint32(payload))
		if err != nil {
			return nil, 0, err
		}

		if tag == schema.ModuleMemoryTag {
			err = planModuleRelocation(readWord, patches, segment, payload, len(buf))
			if err != nil {
				return nil, 0, err
			}
		}
	}

	return patches, start, nil
}

func planModuleRelocation(readWord func(int) (uint32, error), patches *patchSet, segment memory.Segment, table int, bufLen int) error {
	for rec := table; ; rec += moduleRecordSize {
		name, err := readWord(rec)
		if err != nil {
			return err
		}

		if name == 0 {
			return nil
		}

		size, err := readWord(rec + 4)
		if err != nil {
			return err
		}

		nameOffset, err := translate(segment, name, bufLen, rec)
		if err != nil {
			return err
		}

		err = patches.add(rec, uint32(nameOffset))
		if err != nil {
			return err
		}

		err = patches.add(rec+4, size)
		if err != nil {
			return err
		}
	}
}

// translate maps the target-space pointer ptr, found at host offset
// at, to a host offset. Offset zero is rejected since it is
// indistinguishable from a NULL pointer once relocated.
func translate(segment memory.Segment, ptr uint32, bufLen int, at int) (int, error) {
	off, err := segment.HostOffset(memory.Pointer(ptr), bufLen)
	if err != nil {
		return 0, checkErr(ErrRelocationOutOfBounds, at, ptr, "%s", err)
	}

	if off == 0 {
		return 0, checkErr(ErrRelocationOutOfBounds, at, ptr,
			"pointer translates to the segment base %s", segment.HexString())
	}

	return off, nil
}

// View is a relocated config area. Every pointer in the entry array
// (and in module memory tables) has been rewritten into an offset
// into Bytes.
type View struct {
	region  memory.Region
	verdict Verdict
	schema  Schema
	rules   KindRules
	start   int
	walked  bool
}

// Verdict returns the recovery verdict the view was relocated with.
func (o *View) Verdict() Verdict {
	return o.verdict
}

// Schema returns the schema the view was relocated with.
func (o *View) Schema() Schema {
	return o.schema
}

// Region returns the relocated buffer. Words are in NativeOrder.
func (o *View) Region() memory.Region {
	return o.region
}

// Bytes returns the relocated buffer.
func (o *View) Bytes() []byte {
	b, _ := o.region.Bytes(0, o.region.Len())
	return b
}

// Walk returns a Walker over the view's entries. Entries can only be
// walked once; a second call returns a Walker that yields nothing and
// reports ErrWalkerConsumed.
func (o *View) Walk() *Walker {
	if o.walked {
		return &Walker{
			err: ErrWalkerConsumed,
		}
	}

	o.walked = true

	return &Walker{
		view: o,
		next: o.start,
	}
}

// Entry is one relocated entry.
type Entry struct {
	// Index is the entry's position in the array.
	Index int

	Tag uint32

	// Offset is the host offset of the payload.
	Offset int

	Kind PayloadKind
}

// Walker lazily yields the entries of a View, stopping at the
// terminating entry. Usage follows bufio.Scanner:
//
//	w := view.Walk()
//	for w.Next() {
//		e := w.Entry()
//	}
//	if err := w.Err(); err != nil {
//		...
//	}
type Walker struct {
	view    *View
	next    int
	index   int
	current Entry
	done    bool
	err     error
}

// Next advances to the next entry. It returns false at the
// terminator or on error.
func (o *Walker) Next() bool {
	if o.done || o.err != nil || o.view == nil {
		return false
	}

	region := o.view.region

	tag, err := region.Uint32(o.next)
	if err != nil {
		o.err = err
		return false
	}

	payload, err := region.Uint32(o.next + configOffset)
	if err != nil {
		o.err = err
		return false
	}

	if payload == 0 {
		o.done = true
		return false
	}

	rest, err := region.Bytes(int(payload), region.Len()-int(payload))
	if err != nil {
		o.err = errors.Join(ErrPayloadOutOfBounds, err)
		return false
	}

	o.current = Entry{
		Index:  o.index,
		Tag:    tag,
		Offset: int(payload),
		Kind:   o.view.rules.KindOf(tag, rest),
	}

	o.index++
	o.next += EntrySize

	return true
}

// Entry returns the entry Next advanced to.
func (o *Walker) Entry() Entry {
	return o.current
}

// Err returns the error that stopped the walk, if any.
func (o *Walker) Err() error {
	return o.err
}
