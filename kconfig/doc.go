// Package kconfig recovers and relocates kernel configuration areas.
//
// A kernel configuration area is a block of data linked into some
// embedded Linux kernels. It starts with a pointer to an array of
// {tag, config} entries, where config points at the entry's payload
// (a module memory table, firmware version information or a
// flattened device tree). The array is terminated by an entry whose
// config pointer is zero and whose tag is the last tag of the
// enumeration. There is no magic number, length field or version.
//
// Recovering the structure
//
// Recover takes a raw dump of such an area and works out where the
// entry array is, whether the dump's words must be byte swapped and
// which target-space segment the dump was taken from. Every guess is
// cross-checked against an independently derived quantity:
//
//	- the terminator tag must be the expected last tag (or plausible,
//	  see PlausibleTags) in exactly one byte order
//	- every other tag must be less than or equal to the terminator tag
//	- the header pointer, masked to its 4 KiB segment, must point at
//	  the entry array's offset
//	- every payload pointer must land after the segment base and
//	  inside the dump
//
// Relocating
//
// Relocate (or Area.Relocate) rewrites the header pointer, the
// entries and module memory records into offsets into the dump,
// normalising them to NativeOrder. The result is a View whose entries
// can be walked once with View.Walk. Decode turns a View into
// Contents.
//
// Relocation is destructive. A relocated buffer no longer passes
// Recover, so it can never be translated twice.
package kconfig
