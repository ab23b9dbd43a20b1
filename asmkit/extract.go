package asmkit

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gitlab.com/stephen-fox/kcfgkit/conv"
)

// ExtractDeviceTrees reads a listing produced by WriteListing and
// returns its device tree blobs keyed by subrevision.
//
// A blob's directives start after its ".L_avm_device_tree_subrev_N:"
// label and end at the next empty line or label.
func ExtractDeviceTrees(r io.Reader) (map[uint32][]byte, error) {
	sections := make(map[uint32]*bytes.Buffer)
	var current *bytes.Buffer

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case strings.HasPrefix(line, deviceTreeLabelPrefix) && strings.HasSuffix(line, ":"):
			subrevStr := strings.TrimSuffix(strings.TrimPrefix(line, deviceTreeLabelPrefix), ":")

			subrev, err := strconv.ParseUint(subrevStr, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid device tree label %q - %w", line, err)
			}

			_, hasIt := sections[uint32(subrev)]
			if hasIt {
				return nil, fmt.Errorf("device tree subrevision %d is defined more than once", subrev)
			}

			current = bytes.NewBuffer(nil)
			sections[uint32(subrev)] = current
		case line == "" || strings.HasSuffix(line, ":"):
			current = nil
		case current != nil:
			current.WriteString(line)
			current.WriteByte('\n')
		}
	}

	err := scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to read listing - %w", err)
	}

	blobs := make(map[uint32][]byte, len(sections))

	for subrev, section := range sections {
		blob, err := conv.ByteDirectivesToBytes(section)
		if err != nil {
			return nil, fmt.Errorf("failed to parse device tree subrevision %d - %w", subrev, err)
		}

		blobs[subrev] = blob
	}

	return blobs, nil
}
