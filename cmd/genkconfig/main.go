// genkconfig reads a dump of a kernel config area and writes an
// assembler source file that rebuilds it. The source file uses the
// macros from avm_kernel_config_macros.h and can be compiled into an
// object file that is linked into a custom kernel.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/bradleyjkemp/memviz"
	"github.com/fatih/color"
	"gitlab.com/stephen-fox/kcfgkit/asmkit"
	"gitlab.com/stephen-fox/kcfgkit/iokit"
	"gitlab.com/stephen-fox/kcfgkit/kconfig"
)

const (
	strippedArg = "stripped"
	lastTagArg  = "last-tag"
	maxTagArg   = "max-tag"
	dtArg       = "dt"
	maxSizeArg  = "max-size"
	graphArg    = "graph"
	verboseArg  = "v"
	helpArg     = "h"

	appName = "genkconfig"
	usage   = appName + `
Reads a kernel config area dump, identifies its structure and byte order,
relocates it and writes an assembler source file to stdout that rebuilds
the config area.

Nothing is written to stdout unless the whole dump was understood.

usage:
` + appName + ` [options] <binary-config-area-file>

examples:
` + appName + ` config.bin > avm_kernel_config_area.S
` + appName + ` -` + strippedArg + ` -` + dtArg + ` header config.bin > avm_kernel_config_area.S

options:
`
)

var errUsage = errors.New("usage information was displayed")

func main() {
	err := mainWithError(os.Args[1:], os.Stdout, os.Stderr)
	if err != nil {
		if !errors.Is(err, errUsage) {
			printFailure(os.Stderr, err)
		}

		os.Exit(1)
	}
}

func mainWithError(args []string, stdout io.Writer, stderr io.Writer) error {
	flags := flag.NewFlagSet(appName, flag.ContinueOnError)
	flags.SetOutput(stderr)

	stripped := flags.Bool(
		strippedArg,
		false,
		"Accept any plausible last tag instead of a fixed one (for kernels\n"+
			"whose header does not declare the complete tag enumeration)")
	lastTag := flags.Uint(
		lastTagArg,
		0,
		"Override the expected last tag (ignored with -"+strippedArg+").\n"+
			"The last device tree tag becomes this value minus 2")
	maxTag := flags.Uint(
		maxTagArg,
		0,
		"Override the largest plausible last tag (only used with -"+strippedArg+")")
	dtDetection := flags.String(
		dtArg,
		kconfig.DetectByTagRange.String(),
		fmt.Sprintf("How device tree entries are identified ('%s' or '%s')",
			kconfig.DetectByTagRange, kconfig.DetectByBlobHeader))
	maxSize := flags.Int(
		maxSizeArg,
		0,
		"The maximum size of the config area in bytes (0 means the dump's size)")
	graphPath := flags.String(
		graphArg,
		"",
		"Write a graphviz diagram of the decoded config area to this file")
	verbose := flags.Bool(
		verboseArg,
		false,
		"Enable verbose logging")
	help := flags.Bool(
		helpArg,
		false,
		"Display this help page")

	flags.Usage = func() {
		io.WriteString(stderr, usage)
		flags.PrintDefaults()
	}

	err := flags.Parse(args)
	if err != nil {
		return errUsage
	}

	if *help {
		flags.Usage()
		return errUsage
	}

	if flags.NArg() != 1 {
		flags.Usage()
		return errors.New("please specify exactly one config area dump file")
	}

	level := log.WarnLevel
	if *verbose {
		level = log.DebugLevel
	}

	logger := &log.Logger{
		Handler: cli.New(stderr),
		Level:   level,
	}

	schema := kconfig.DefaultSchema()
	if *stripped {
		schema = kconfig.StrippedSchema()
	}

	if *lastTag > 0 {
		schema = schema.WithLastTag(uint32(*lastTag))
	}

	if *maxTag > 0 {
		schema.PlausibleMaxTag = uint32(*maxTag)
	}

	schema.DeviceTreeDetection, err = kconfig.ParseDeviceTreeDetection(*dtDetection)
	if err != nil {
		return err
	}

	dumpPath := flags.Arg(0)

	dump, err := iokit.MapFile(dumpPath)
	if err != nil {
		return err
	}
	defer dump.Close()

	logger.WithFields(log.Fields{
		"path":   dumpPath,
		"size":   len(dump.Bytes()),
		"schema": schema.Mode.String(),
	}).Debug("mapped config area dump")

	view, err := kconfig.Relocate(dump.Bytes(), kconfig.Config{
		Schema:        schema,
		MaxConfigSize: *maxSize,
		OptLogger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to relocate config area in '%s' - %w", dumpPath, err)
	}

	contents, err := kconfig.Decode(view)
	if err != nil {
		return fmt.Errorf("failed to decode config area in '%s' - %w", dumpPath, err)
	}

	logger.WithFields(log.Fields{
		"entries":      len(contents.Entries),
		"device_trees": len(contents.DeviceTrees),
		"has_modules":  contents.ModuleMemory != nil,
		"has_version":  contents.VersionInfo != nil,
	}).Debug("decoded config area")

	// The listing refers to the mapped dump, so everything
	// is rendered before the dump is closed.
	listing := bytes.NewBuffer(nil)

	err = asmkit.WriteListing(listing, contents)
	if err != nil {
		return err
	}

	if *graphPath != "" {
		err = writeGraph(*graphPath, contents)
		if err != nil {
			return err
		}

		logger.WithField("path", *graphPath).Debug("wrote graph")
	}

	_, err = stdout.Write(listing.Bytes())
	if err != nil {
		return fmt.Errorf("failed to write listing - %w", err)
	}

	return nil
}

func writeGraph(filePath string, contents *kconfig.Contents) error {
	graph := bytes.NewBuffer(nil)

	memviz.Map(graph, contents)

	err := os.WriteFile(filePath, graph.Bytes(), 0o644)
	if err != nil {
		return fmt.Errorf("failed to write graph - %w", err)
	}

	return nil
}

var (
	colorCheck = color.New(color.Bold, color.FgHiRed).SprintFunc()
	colorError = color.New(color.FgRed).SprintFunc()
	colorHint  = color.New(color.Faint).SprintFunc()
)

func printFailure(w io.Writer, err error) {
	check := kconfig.FailedCheck(err)
	if check != "" {
		fmt.Fprintf(w, "%s: %s\n", appName, colorCheck(check+" check failed"))
	}

	fmt.Fprintf(w, "%s: %s\n", appName, colorError(err.Error()))

	if errors.Is(err, kconfig.ErrRecoveryFailed) {
		fmt.Fprintf(w, "%s: %s\n", appName,
			colorHint("unable to identify the config area, the dump may be empty or truncated"))
	}
}
