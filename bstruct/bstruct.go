// Package bstruct converts fixed-layout Go structs to and from their
// binary representation.
//
// Supported field types are uint8, uint16, uint32, uint64, byte arrays
// and types implementing Byter. Fields are laid out in declaration order
// without padding, which matches the layout of the packed 32-bit records
// found in kernel configuration areas.
package bstruct

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
)

type Byter interface {
	ToBytes(binary.ByteOrder) []byte
}

type FieldInfo struct {
	Index int
	Name  string
	Type  string
	Value []byte
}

func StructToBytes(s interface{}, bo binary.ByteOrder, optFn func(FieldInfo) error) ([]byte, error) {
	if s == nil {
		return nil, errors.New("struct is nil")
	}

	structValue := reflect.ValueOf(s)
	if structValue.Kind() == reflect.Ptr {
		structValue = structValue.Elem()
	}

	if structValue.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected a struct - got %T", s)
	}

	numFields := structValue.NumField()

	structType := structValue.Type()

	var b []byte

	for i := 0; i < numFields; i++ {
		field := structType.Field(i)
		fieldValue := structValue.Field(i)

		at := len(b)

		switch t := fieldValue.Interface().(type) {
		case Byter:
			b = append(b, t.ToBytes(bo)...)
		case uint8:
			b = append(b, t)
		case uint16:
			b = append(b, make([]byte, 2)...)
			bo.PutUint16(b[len(b)-2:], t)
		case uint32:
			b = append(b, make([]byte, 4)...)
			bo.PutUint32(b[len(b)-4:], t)
		case uint64:
			b = append(b, make([]byte, 8)...)
			bo.PutUint64(b[len(b)-8:], t)
		default:
			if !isByteArray(field.Type) {
				return nil, fmt.Errorf("unsupported data type %T for field %q (index %d)",
					t, field.Name, i)
			}

			for j := 0; j < fieldValue.Len(); j++ {
				b = append(b, byte(fieldValue.Index(j).Uint()))
			}
		}

		if optFn != nil {
			err := optFn(FieldInfo{
				Index: i,
				Name:  field.Name,
				Type:  field.Type.String(),
				Value: b[at:],
			})
			if err != nil {
				return nil, err
			}
		}
	}

	return b, nil
}

// BytesToStruct decodes b into the struct pointed to by ptr. It returns
// the number of bytes consumed. Byter fields are not supported because
// their encoded length is unknown.
func BytesToStruct(b []byte, bo binary.ByteOrder, ptr interface{}) (int, error) {
	if ptr == nil {
		return 0, errors.New("struct pointer is nil")
	}

	ptrValue := reflect.ValueOf(ptr)
	if ptrValue.Kind() != reflect.Ptr || ptrValue.Elem().Kind() != reflect.Struct {
		return 0, fmt.Errorf("expected a pointer to a struct - got %T", ptr)
	}

	structValue := ptrValue.Elem()
	structType := structValue.Type()

	size, err := sizeOf(structType)
	if err != nil {
		return 0, err
	}

	if len(b) < size {
		return 0, fmt.Errorf("need %d bytes to decode %s - got %d",
			size, structType, len(b))
	}

	at := 0

	for i := 0; i < structType.NumField(); i++ {
		fieldValue := structValue.Field(i)

		switch fieldValue.Kind() {
		case reflect.Uint8:
			fieldValue.SetUint(uint64(b[at]))
			at++
		case reflect.Uint16:
			fieldValue.SetUint(uint64(bo.Uint16(b[at:])))
			at += 2
		case reflect.Uint32:
			fieldValue.SetUint(uint64(bo.Uint32(b[at:])))
			at += 4
		case reflect.Uint64:
			fieldValue.SetUint(bo.Uint64(b[at:]))
			at += 8
		case reflect.Array:
			n := fieldValue.Len()
			reflect.Copy(fieldValue, reflect.ValueOf(b[at:at+n]))
			at += n
		}
	}

	return at, nil
}

// Size returns the number of bytes the struct s encodes to.
func Size(s interface{}) (int, error) {
	if s == nil {
		return 0, errors.New("struct is nil")
	}

	t := reflect.TypeOf(s)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	return sizeOf(t)
}

func sizeOf(t reflect.Type) (int, error) {
	if t.Kind() != reflect.Struct {
		return 0, fmt.Errorf("expected a struct - got %s", t)
	}

	size := 0

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		switch field.Type.Kind() {
		case reflect.Uint8:
			size++
		case reflect.Uint16:
			size += 2
		case reflect.Uint32:
			size += 4
		case reflect.Uint64:
			size += 8
		default:
			if !isByteArray(field.Type) {
				return 0, fmt.Errorf("unsupported data type %s for field %q (index %d)",
					field.Type, field.Name, i)
			}

			size += field.Type.Len()
		}
	}

	return size, nil
}

func isByteArray(t reflect.Type) bool {
	return t.Kind() == reflect.Array && t.Elem().Kind() == reflect.Uint8
}
