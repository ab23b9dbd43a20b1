package kconfig

import (
	"encoding/binary"
	"errors"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
)

// NativeOrder is the byte order that relocation normalises
// every rewritten word to. Recovery treats words in this order
// as "not swapped".
var NativeOrder binary.ByteOrder = binary.LittleEndian

var (
	// DefaultExitFn is invoked by functions and methods ending in
	// the "OrExit" suffix when an error occurs.
	DefaultExitFn = func(err error) {
		log.WithError(err).Fatal("kconfig")
	}
)

// Config configures recovery and relocation.
type Config struct {
	// Schema is the tag enumeration to validate against.
	// The zero value selects DefaultSchema.
	Schema Schema

	// MaxConfigSize bounds how far past the target segment
	// an entry's payload pointer may point. Zero means the
	// length of the buffer.
	MaxConfigSize int

	// OptLogger optionally receives debug information
	// about the recovered structure.
	OptLogger log.Interface
}

func (o Config) normalised(bufLen int) (Config, error) {
	if o.Schema == (Schema{}) {
		o.Schema = DefaultSchema()
	}

	err := o.Schema.Validate()
	if err != nil {
		return o, err
	}

	if o.MaxConfigSize < 0 {
		return o, errors.New("maximum config size cannot be negative")
	}

	if o.MaxConfigSize == 0 {
		o.MaxConfigSize = bufLen
	}

	if o.OptLogger == nil {
		o.OptLogger = &log.Logger{
			Handler: discard.Default,
			Level:   log.FatalLevel,
		}
	}

	return o, nil
}
