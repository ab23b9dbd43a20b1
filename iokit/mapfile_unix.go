//go:build unix

package iokit

import (
	"os"

	"golang.org/x/sys/unix"
)

func mapPrivate(f *os.File, size int) ([]byte, func() error, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, err
	}

	return data, func() error {
		return unix.Munmap(data)
	}, nil
}
