package kconfig

import "fmt"

// PayloadKind identifies how an entry's payload is laid out.
type PayloadKind int

const (
	KindUnknown PayloadKind = iota
	KindModuleMemory
	KindVersionInfo
	KindDeviceTree
)

func (o PayloadKind) String() string {
	switch o {
	case KindUnknown:
		return "unknown"
	case KindModuleMemory:
		return "module_memory"
	case KindVersionInfo:
		return "version_info"
	case KindDeviceTree:
		return "device_tree"
	default:
		return fmt.Sprintf("unknown-kind-%d", int(o))
	}
}

// KindMatcher decides whether an entry carries a payload of one
// particular kind. payload starts at the entry's (relocated) payload
// offset and runs to the end of the buffer.
type KindMatcher interface {
	IsPayloadOfKind(tag uint32, payload []byte) bool
}

// TagMatcher matches entries whose tag is in [First, Last].
type TagMatcher struct {
	First uint32
	Last  uint32
}

func (o TagMatcher) IsPayloadOfKind(tag uint32, _ []byte) bool {
	return o.First <= tag && tag <= o.Last
}

// DeviceTreeHeaderMatcher matches entries whose tag is in
// [FirstTag, LastTag] and whose payload starts with a valid
// flattened device tree header.
type DeviceTreeHeaderMatcher struct {
	FirstTag uint32
	LastTag  uint32
}

func (o DeviceTreeHeaderMatcher) IsPayloadOfKind(tag uint32, payload []byte) bool {
	if tag < o.FirstTag || tag > o.LastTag {
		return false
	}

	_, err := parseFDTHeader(payload)

	return err == nil
}

// KindRule pairs a payload kind with the matcher that detects it.
type KindRule struct {
	Kind    PayloadKind
	Matcher KindMatcher
}

// KindRules is an ordered list of rules. The first matching
// rule wins.
type KindRules []KindRule

// KindOf returns the kind of the first matching rule,
// or KindUnknown.
func (o KindRules) KindOf(tag uint32, payload []byte) PayloadKind {
	for _, rule := range o {
		if rule.Matcher.IsPayloadOfKind(tag, payload) {
			return rule.Kind
		}
	}

	return KindUnknown
}

// KindRules returns the rules for an area whose terminator
// tag is lastTag.
func (o Schema) KindRules(lastTag uint32) KindRules {
	rules := KindRules{
		{
			Kind:    KindModuleMemory,
			Matcher: TagMatcher{First: o.ModuleMemoryTag, Last: o.ModuleMemoryTag},
		},
		{
			Kind:    KindVersionInfo,
			Matcher: TagMatcher{First: o.VersionInfoTag, Last: o.VersionInfoTag},
		},
	}

	first, last := o.DeviceTreeTags(lastTag)

	switch o.DeviceTreeDetection {
	case DetectByBlobHeader:
		// Stripped kernels do not declare where the device tree
		// tags end, so any tag up to the terminator may carry one.
		if o.Mode == PlausibleTags {
			last = lastTag
		}

		rules = append(rules, KindRule{
			Kind:    KindDeviceTree,
			Matcher: DeviceTreeHeaderMatcher{FirstTag: first, LastTag: last},
		})
	default:
		rules = append(rules, KindRule{
			Kind:    KindDeviceTree,
			Matcher: TagMatcher{First: first, Last: last},
		})
	}

	return rules
}
