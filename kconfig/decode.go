package kconfig

import (
	"bytes"
	"fmt"
	"sort"

	"gitlab.com/stephen-fox/kcfgkit/bstruct"
	"gitlab.com/stephen-fox/kcfgkit/memory"
)

// Contents is the decoded content of a relocated config area.
type Contents struct {
	LastTag    uint32
	SwapNeeded bool
	Segment    memory.Segment

	// Entries lists every entry in array order.
	Entries []Entry

	// ModuleMemory is nil if the area has no module memory entry.
	ModuleMemory *ModuleMemory

	// VersionInfo is nil if the area has no version info entry.
	VersionInfo *VersionInfo

	// DeviceTrees is sorted by ascending tag.
	DeviceTrees []DeviceTree
}

// Find returns the first entry with the specified tag.
func (o *Contents) Find(tag uint32) (Entry, bool) {
	for _, e := range o.Entries {
		if e.Tag == tag {
			return e, true
		}
	}

	return Entry{}, false
}

// ModuleMemory is the module memory table: the amount of memory
// reserved for each kernel module.
type ModuleMemory struct {
	Tag     uint32
	Modules []Module
}

type Module struct {
	Name string
	Size uint32
}

// VersionInfo is the firmware version the kernel was built for.
type VersionInfo struct {
	Tag            uint32
	BuildNumber    string
	SVNVersion     string
	FirmwareString string
}

// DeviceTree is a flattened device tree blob for one
// hardware subrevision.
type DeviceTree struct {
	Tag uint32

	// Subrevision is the tag's distance from the first
	// device tree tag.
	Subrevision uint32

	Offset int
	Blob   []byte
}

type moduleRecord struct {
	Name uint32
	Size uint32
}

type rawVersionInfo struct {
	BuildNumber    [32]byte
	SVNVersion     [32]byte
	FirmwareString [128]byte
}

// DecodeOrExit calls Decode. It calls DefaultExitFn if an error occurs.
func DecodeOrExit(view *View) *Contents {
	c, err := Decode(view)
	if err != nil {
		DefaultExitFn(fmt.Errorf("failed to decode config area - %w", err))
	}

	return c
}

// Decode walks view and decodes the payload of every entry of a known
// kind. If several entries share a tag, only the first one is decoded.
// Every entry is still listed in Contents.Entries.
//
// Decode consumes the view's walker.
func Decode(view *View) (*Contents, error) {
	schema := view.Schema()
	verdict := view.Verdict()
	region := view.Region()

	contents := &Contents{
		LastTag:    verdict.LastTag,
		SwapNeeded: verdict.SwapNeeded,
		Segment:    verdict.Segment,
	}

	deviceTreeTags := make(map[uint32]struct{})

	walker := view.Walk()
	for walker.Next() {
		e := walker.Entry()
		contents.Entries = append(contents.Entries, e)

		switch e.Kind {
		case KindModuleMemory:
			if contents.ModuleMemory != nil {
				continue
			}

			modules, err := decodeModules(region, e.Offset)
			if err != nil {
				return nil, fmt.Errorf("failed to decode module memory entry %d - %w", e.Index, err)
			}

			contents.ModuleMemory = &ModuleMemory{
				Tag:     e.Tag,
				Modules: modules,
			}
		case KindVersionInfo:
			if contents.VersionInfo != nil {
				continue
			}

			info, err := decodeVersionInfo(region, e.Offset)
			if err != nil {
				return nil, fmt.Errorf("failed to decode version info entry %d - %w", e.Index, err)
			}

			info.Tag = e.Tag
			contents.VersionInfo = &info
		case KindDeviceTree:
			_, hasIt := deviceTreeTags[e.Tag]
			if hasIt {
				continue
			}

			deviceTreeTags[e.Tag] = struct{}{}

			blob, err := decodeDeviceTree(region, e.Offset, schema.DeviceTreeDetection)
			if err != nil {
				return nil, fmt.Errorf("failed to decode device tree entry %d - %w", e.Index, err)
			}

			contents.DeviceTrees = append(contents.DeviceTrees, DeviceTree{
				Tag:         e.Tag,
				Subrevision: e.Tag - schema.DeviceTreeSubrev0Tag,
				Offset:      e.Offset,
				Blob:        blob,
			})
		}
	}

	err := walker.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to walk entries - %w", err)
	}

	sort.SliceStable(contents.DeviceTrees, func(i, j int) bool {
		return contents.DeviceTrees[i].Tag < contents.DeviceTrees[j].Tag
	})

	return contents, nil
}

func decodeModules(region memory.Region, table int) ([]Module, error) {
	var modules []Module

	for rec := table; ; rec += moduleRecordSize {
		raw, err := region.Bytes(rec, moduleRecordSize)
		if err != nil {
			return nil, checkErr(ErrPayloadOutOfBounds, rec, 0, "%s", err)
		}

		var record moduleRecord
		_, err = bstruct.BytesToStruct(raw, region.ByteOrder(), &record)
		if err != nil {
			return nil, checkErr(ErrPayloadOutOfBounds, rec, 0, "%s", err)
		}

		if record.Name == 0 {
			return modules, nil
		}

		name, err := region.CString(int(record.Name), 0)
		if err != nil {
			return nil, checkErr(ErrPayloadOutOfBounds, rec, record.Name,
				"module %d name - %s", len(modules)+1, err)
		}

		modules = append(modules, Module{
			Name: string(name),
			Size: record.Size,
		})
	}
}

func decodeVersionInfo(region memory.Region, offset int) (VersionInfo, error) {
	size, err := bstruct.Size(rawVersionInfo{})
	if err != nil {
		return VersionInfo{}, err
	}

	raw, err := region.Bytes(offset, size)
	if err != nil {
		return VersionInfo{}, checkErr(ErrPayloadOutOfBounds, offset, 0, "%s", err)
	}

	var info rawVersionInfo
	_, err = bstruct.BytesToStruct(raw, region.ByteOrder(), &info)
	if err != nil {
		return VersionInfo{}, checkErr(ErrPayloadOutOfBounds, offset, 0, "%s", err)
	}

	return VersionInfo{
		BuildNumber:    fieldString(info.BuildNumber[:]),
		SVNVersion:     fieldString(info.SVNVersion[:]),
		FirmwareString: fieldString(info.FirmwareString[:]),
	}, nil
}

// fieldString returns the NUL terminated string in a fixed size
// char array, or the whole array if it is not terminated.
func fieldString(b []byte) string {
	end := bytes.IndexByte(b, 0)
	if end < 0 {
		return string(b)
	}

	return string(b[:end])
}

func decodeDeviceTree(region memory.Region, offset int, detection DeviceTreeDetection) ([]byte, error) {
	rest, err := region.Bytes(offset, region.Len()-offset)
	if err != nil {
		return nil, checkErr(ErrPayloadOutOfBounds, offset, 0, "%s", err)
	}

	var size uint32

	switch detection {
	case DetectByBlobHeader:
		header, err := parseFDTHeader(rest)
		if err != nil {
			return nil, checkErr(ErrBadDeviceTree, offset, 0, "%s", err)
		}

		size = header.TotalSize
	default:
		var ok bool
		size, ok = fdtTotalSize(rest)
		if !ok {
			return nil, checkErr(ErrPayloadOutOfBounds, offset, 0,
				"blob is too short to hold a size field")
		}
	}

	if uint64(size) > uint64(len(rest)) {
		return nil, checkErr(ErrPayloadOutOfBounds, offset, size,
			"blob size 0x%x exceeds the 0x%x bytes left in the area", size, len(rest))
	}

	return rest[:size], nil
}
