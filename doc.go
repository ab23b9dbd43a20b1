// Package kcfgkit provides functionality for working with the kernel
// config areas that are linked into some embedded Linux kernels.
//
// APIs are separated into subpackages, and documented accordingly.
// The kconfig package recovers, relocates and decodes config area
// dumps. The asmkit package turns a decoded config area into an
// assembler listing, and the genkconfig command wires it all together.
//
// For scripting convenience, "OrExit" functions and methods are provided.
// Any errors encountered by these functions are treated as fatal. In such
// cases, an exit handler function is invoked.
package kcfgkit
