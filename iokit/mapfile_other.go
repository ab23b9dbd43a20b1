//go:build !unix

package iokit

import (
	"io"
	"os"
)

// mapPrivate falls back to reading the whole file on platforms
// without mmap(2).
func mapPrivate(f *os.File, size int) ([]byte, func() error, error) {
	data := make([]byte, size)

	_, err := io.ReadFull(f, data)
	if err != nil {
		return nil, nil, err
	}

	return data, func() error {
		return nil
	}, nil
}
