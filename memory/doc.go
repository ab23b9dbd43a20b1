// Package memory provides bounds-checked access to dumped memory regions.
//
// A dump is a copy of memory taken from some other process (usually a
// kernel running on an embedded target). Pointers found inside the dump
// are expressed in the target's address space, not in terms of the
// []byte holding the dump. This package helps bridge the two:
//
//	- Region wraps a dump and exposes 32-bit word and C string reads
//	  and writes in a chosen byte order. Every access is checked
//	  against the length of the dump, so corrupt input produces an
//	  error rather than a panic
//	- Pointer is a 32-bit target-space address
//	- Segment is the target-space address that corresponds to offset
//	  zero of the dump. Segment.HostOffset translates a Pointer into
//	  an offset into the dump using the affine map
//	  "offset = pointer - segment"
//
// Nothing in this package ever produces a Go pointer into the dump.
// References are always plain offsets that are validated before use.
package memory
