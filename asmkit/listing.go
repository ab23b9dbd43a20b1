// Package asmkit converts decoded config areas to and from assembler
// listings.
//
// A listing uses the macros from avm_kernel_config_macros.h, so it
// can be compiled into an object file and linked into a kernel.
package asmkit

import (
	"bufio"
	"fmt"
	"io"

	"github.com/apex/log"
	"gitlab.com/stephen-fox/kcfgkit/conv"
	"gitlab.com/stephen-fox/kcfgkit/kconfig"
)

// MacrosHeader is the header that defines the listing's macros.
const MacrosHeader = "avm_kernel_config_macros.h"

const deviceTreeLabelPrefix = ".L_avm_device_tree_subrev_"

var (
	// DefaultExitFn is invoked by functions and methods ending in
	// the "OrExit" suffix when an error occurs.
	DefaultExitFn = func(err error) {
		log.WithError(err).Fatal("asmkit")
	}
)

// WriteListingOrExit calls WriteListing. It calls DefaultExitFn
// if an error occurs.
func WriteListingOrExit(w io.Writer, contents *kconfig.Contents) {
	err := WriteListing(w, contents)
	if err != nil {
		DefaultExitFn(fmt.Errorf("failed to write listing - %w", err))
	}
}

// WriteListing writes contents to w as an assembler source file.
//
// The entry table lists module memory, version info and then the
// device trees in ascending subrevision order. Payloads follow in the
// order device trees, version info, module memory.
func WriteListing(w io.Writer, contents *kconfig.Contents) error {
	out := bufio.NewWriter(w)

	fmt.Fprintf(out, "#include %s\n\n", conv.QuoteCString(MacrosHeader))
	fmt.Fprint(out, "\tAVM_KERNEL_CONFIG_START\n\n")
	fmt.Fprint(out, "\tAVM_KERNEL_CONFIG_PTR\n\n")
	fmt.Fprint(out, ".L_avm_kernel_config_entries:\n")

	if contents.ModuleMemory != nil {
		fmt.Fprintf(out, "\tAVM_KERNEL_CONFIG_ENTRY\t%d, %s\n",
			contents.ModuleMemory.Tag, conv.QuoteCString(kconfig.KindModuleMemory.String()))
	}

	if contents.VersionInfo != nil {
		fmt.Fprintf(out, "\tAVM_KERNEL_CONFIG_ENTRY\t%d, %s\n",
			contents.VersionInfo.Tag, conv.QuoteCString(kconfig.KindVersionInfo.String()))
	}

	for _, dt := range contents.DeviceTrees {
		fmt.Fprintf(out, "\tAVM_KERNEL_CONFIG_ENTRY\t%d, \"device_tree_subrev_%d\"\n",
			dt.Tag, dt.Subrevision)
	}

	fmt.Fprint(out, "\tAVM_KERNEL_CONFIG_ENTRY\t0\n")

	for _, dt := range contents.DeviceTrees {
		fmt.Fprintf(out, "\n%s%d:\n", deviceTreeLabelPrefix, dt.Subrevision)
		fmt.Fprintf(out, "\tAVM_DEVICE_TREE_BLOB\t%d\n", dt.Subrevision)

		err := conv.BytesToByteDirectives(dt.Blob, out)
		if err != nil {
			return fmt.Errorf("failed to write device tree subrevision %d - %w",
				dt.Subrevision, err)
		}
	}

	if info := contents.VersionInfo; info != nil {
		fmt.Fprintf(out, "\n\tAVM_VERSION_INFO\t%s, %s, %s\n",
			conv.QuoteCString(info.BuildNumber),
			conv.QuoteCString(info.SVNVersion),
			conv.QuoteCString(info.FirmwareString))
	}

	if contents.ModuleMemory != nil {
		fmt.Fprint(out, "\n.L_avm_module_memory:\n")

		for i, m := range contents.ModuleMemory.Modules {
			fmt.Fprintf(out, "\tAVM_MODULE_MEMORY\t%d, %s, %d\n",
				i+1, conv.QuoteCString(m.Name), m.Size)
		}

		fmt.Fprint(out, "\tAVM_MODULE_MEMORY\t0\n")
	}

	fmt.Fprint(out, "\n\tAVM_KERNEL_CONFIG_END\n\n")

	return out.Flush()
}
