package kconfig

import (
	"errors"
	"fmt"
)

const (
	// TagUndef is the reserved "no tag" value. Valid tags are
	// always greater than it.
	TagUndef uint32 = 0

	// DefaultPlausibleMaxTag is the largest terminator tag accepted
	// when the tag enumeration is not known up front.
	DefaultPlausibleMaxTag uint32 = 0x1FF
)

// TagMode selects how the terminating entry's tag is validated.
type TagMode int

const (
	// StrictTags requires the terminator tag to equal Schema.LastTag.
	StrictTags TagMode = iota

	// PlausibleTags accepts any terminator tag in the range
	// (TagUndef, Schema.PlausibleMaxTag]. It is meant for kernels
	// whose headers only declare a subset of the tag enumeration.
	PlausibleTags
)

func (o TagMode) String() string {
	switch o {
	case StrictTags:
		return "strict"
	case PlausibleTags:
		return "plausible"
	default:
		return fmt.Sprintf("unknown-tag-mode-%d", int(o))
	}
}

// DeviceTreeDetection selects how device tree entries are identified.
type DeviceTreeDetection int

const (
	// DetectByTagRange treats every entry whose tag lies in the device
	// tree tag range as a device tree, and reads the blob's length from
	// its header without further validation.
	DetectByTagRange DeviceTreeDetection = iota

	// DetectByBlobHeader only treats an entry as a device tree if its
	// payload starts with a valid flattened device tree header.
	DetectByBlobHeader
)

func (o DeviceTreeDetection) String() string {
	switch o {
	case DetectByTagRange:
		return "tag"
	case DetectByBlobHeader:
		return "header"
	default:
		return fmt.Sprintf("unknown-detection-%d", int(o))
	}
}

// ParseDeviceTreeDetection parses the String form of a
// DeviceTreeDetection.
func ParseDeviceTreeDetection(s string) (DeviceTreeDetection, error) {
	switch s {
	case "tag":
		return DetectByTagRange, nil
	case "header":
		return DetectByBlobHeader, nil
	default:
		return 0, fmt.Errorf("unknown device tree detection mode: %q", s)
	}
}

// Schema describes the tag enumeration of the kernel a config
// area was dumped from.
type Schema struct {
	Mode TagMode

	// LastTag is the value of the terminating entry's tag.
	// Only used with StrictTags.
	LastTag uint32

	// PlausibleMaxTag bounds the terminating entry's tag.
	// Only used with PlausibleTags.
	PlausibleMaxTag uint32

	ModuleMemoryTag      uint32
	VersionInfoTag       uint32
	DeviceTreeSubrev0Tag uint32

	// DeviceTreeSubrevLastTag is the last device tree tag. Only used
	// with StrictTags. Plausible schemas derive it from the recovered
	// terminator tag (terminator - 2). A value less than
	// DeviceTreeSubrev0Tag means there are no device tree tags.
	DeviceTreeSubrevLastTag uint32

	DeviceTreeDetection DeviceTreeDetection
}

// DefaultSchema returns the tag enumeration of kernels built from
// a complete avm_kernel_config.h header.
//
//	undef, module memory, version info, hw config, cache config,
//	device tree subrevision 0 - 9, avmnet, last
func DefaultSchema() Schema {
	return Schema{
		Mode:                    StrictTags,
		LastTag:                 16,
		PlausibleMaxTag:         DefaultPlausibleMaxTag,
		ModuleMemoryTag:         1,
		VersionInfoTag:          2,
		DeviceTreeSubrev0Tag:    5,
		DeviceTreeSubrevLastTag: 14,
		DeviceTreeDetection:     DetectByTagRange,
	}
}

// StrippedSchema returns a schema for kernels whose header does not
// declare the last tag. The terminator tag is only checked for
// plausibility and the device tree range is derived from it.
func StrippedSchema() Schema {
	return Schema{
		Mode:                 PlausibleTags,
		PlausibleMaxTag:      DefaultPlausibleMaxTag,
		ModuleMemoryTag:      1,
		VersionInfoTag:       2,
		DeviceTreeSubrev0Tag: 5,
		DeviceTreeDetection:  DetectByTagRange,
	}
}

// WithLastTag returns a copy of the schema whose terminator tag is
// lastTag. The last device tree tag is derived from it the same way
// stripped schemas derive it (lastTag - 2). If that leaves no room
// for device trees, the device tree range is empty.
func (o Schema) WithLastTag(lastTag uint32) Schema {
	o.LastTag = lastTag

	if lastTag < 2 {
		o.DeviceTreeSubrevLastTag = 0
	} else {
		o.DeviceTreeSubrevLastTag = lastTag - 2
	}

	return o
}

// Validate checks that the schema describes a usable enumeration.
func (o Schema) Validate() error {
	if o.ModuleMemoryTag == TagUndef || o.VersionInfoTag == TagUndef || o.DeviceTreeSubrev0Tag == TagUndef {
		return errors.New("payload tags cannot be the undefined tag")
	}

	switch o.Mode {
	case StrictTags:
		if o.LastTag == TagUndef {
			return errors.New("last tag cannot be the undefined tag")
		}

		if o.DeviceTreeSubrevLastTag >= o.LastTag {
			return fmt.Errorf("last device tree tag (%d) must be less than the last tag (%d)",
				o.DeviceTreeSubrevLastTag, o.LastTag)
		}
	case PlausibleTags:
		if o.PlausibleMaxTag == TagUndef {
			return errors.New("plausible maximum tag cannot be the undefined tag")
		}
	default:
		return fmt.Errorf("unsupported tag mode: %s", o.Mode)
	}

	switch o.DeviceTreeDetection {
	case DetectByTagRange, DetectByBlobHeader:
	default:
		return fmt.Errorf("unsupported device tree detection: %s", o.DeviceTreeDetection)
	}

	return nil
}

// tagBound is the largest raw terminator tag that is
// assumed to be in the native byte order.
func (o Schema) tagBound() uint32 {
	if o.Mode == PlausibleTags {
		return o.PlausibleMaxTag
	}

	return o.LastTag
}

func (o Schema) acceptsLastTag(tag uint32) bool {
	if o.Mode == PlausibleTags {
		return TagUndef < tag && tag <= o.PlausibleMaxTag
	}

	return tag == o.LastTag
}

// DeviceTreeTags returns the device tree tag range for an area
// whose terminator tag is lastTag. The range is empty (first > last)
// when lastTag leaves no room for device trees.
func (o Schema) DeviceTreeTags(lastTag uint32) (first uint32, last uint32) {
	if o.Mode == StrictTags {
		return o.DeviceTreeSubrev0Tag, o.DeviceTreeSubrevLastTag
	}

	if lastTag < 2 {
		return o.DeviceTreeSubrev0Tag, 0
	}

	return o.DeviceTreeSubrev0Tag, lastTag - 2
}
