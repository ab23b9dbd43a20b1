package iokit

import (
	"fmt"
	"os"
)

// MapFileOrExit calls MapFile. It calls DefaultExitFn if an error occurs.
func MapFileOrExit(filePath string) *MappedFile {
	m, err := MapFile(filePath)
	if err != nil {
		DefaultExitFn(err)
	}

	return m
}

// MapFile maps the file at filePath into memory. The mapping is
// private and writable: changes made to Bytes are never written
// back to the file. The caller must call Close when it is done
// with the data, including on error paths.
func MapFile(filePath string) (*MappedFile, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file - %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat '%s' - %w", filePath, err)
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("'%s' is not a regular file", filePath)
	}

	size := info.Size()
	if size == 0 {
		return &MappedFile{path: filePath, data: []byte{}}, nil
	}

	if int64(int(size)) != size {
		return nil, fmt.Errorf("'%s' is too large to map (%d bytes)", filePath, size)
	}

	data, unmapFn, err := mapPrivate(f, int(size))
	if err != nil {
		return nil, fmt.Errorf("failed to map %d bytes of '%s' - %w", size, filePath, err)
	}

	return &MappedFile{
		path:    filePath,
		data:    data,
		unmapFn: unmapFn,
	}, nil
}

// MappedFile is a file mapped into memory by MapFile.
type MappedFile struct {
	path    string
	data    []byte
	unmapFn func() error
}

// Path returns the path of the mapped file.
func (o *MappedFile) Path() string {
	return o.path
}

// Bytes returns the mapped data. It must not be used after Close.
func (o *MappedFile) Bytes() []byte {
	return o.data
}

// Close unmaps the file. It is safe to call Close more than once.
func (o *MappedFile) Close() error {
	o.data = nil

	if o.unmapFn == nil {
		return nil
	}

	unmapFn := o.unmapFn
	o.unmapFn = nil

	err := unmapFn()
	if err != nil {
		return fmt.Errorf("failed to unmap '%s' - %w", o.path, err)
	}

	return nil
}
