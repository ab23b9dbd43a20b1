package conv

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// BytesPerDirective is the number of bytes written per ".byte" line.
const BytesPerDirective = 16

var byteDirective = []byte(".byte")

// BytesToByteDirectives writes b to w as GNU assembler ".byte"
// directives with BytesPerDirective values per line, e.g.:
//
//	.byte	0xd0,0x0d,0xfe,0xed
//
// Each line is indented with a tab and ends with a newline.
func BytesToByteDirectives(b []byte, w io.Writer) error {
	out := byteDirectiveFormat{
		w: bufio.NewWriter(w),
	}

	for len(b) > 0 {
		n := BytesPerDirective
		if n > len(b) {
			n = len(b)
		}

		err := out.addLine(b[:n])
		if err != nil {
			return err
		}

		b = b[n:]
	}

	return out.w.Flush()
}

type byteDirectiveFormat struct {
	w *bufio.Writer
}

func (o *byteDirectiveFormat) addLine(values []byte) error {
	_, err := o.w.WriteString("\t.byte\t")
	if err != nil {
		return err
	}

	for i, b := range values {
		sep := byte(',')
		if i == len(values)-1 {
			sep = '\n'
		}

		_, err = fmt.Fprintf(o.w, "0x%02x%c", b, sep)
		if err != nil {
			return err
		}
	}

	return nil
}

// Blob represents the values of one ".byte" directive
// or a comment.
type Blob struct {
	Bytes   []byte
	Comment string
}

func (o Blob) isEmpty() bool {
	return len(o.Bytes) == 0 && len(o.Comment) == 0
}

// ByteDirectivesToBytes returns the values of every ".byte"
// directive read from source.
func ByteDirectivesToBytes(source io.Reader) ([]byte, error) {
	buf := bytes.NewBuffer(nil)

	err := ByteDirectivesToBlobs(source, func(b Blob) error {
		buf.Write(b.Bytes)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// ByteDirectivesToBlobs parses assembler source read from source.
// onBlobFn is called for every ".byte" directive and every C comment.
// Other lines (labels, macros, preprocessor lines) are ignored.
//
// Values may be written in any base that strconv.ParseUint
// understands, e.g. 0x1f, 31 or 037.
func ByteDirectivesToBlobs(source io.Reader, onBlobFn func(Blob) error) error {
	bufioReader := bufio.NewReader(source)
	needEndOfComment := false
	lineNum := 0

readNextLine:
	line, err := bufioReader.ReadBytes('\n')
	if len(line) > 0 {
		lineNum++

		b := bytes.TrimSpace(line)
		if len(b) == 0 {
			goto checkErr
		}

		if needEndOfComment {
			comment, uncommented, foundEnd := findEndOfComment(b)
			needEndOfComment = !foundEnd

			if comment != "" {
				err := onBlobFn(Blob{Comment: comment})
				if err != nil {
					return err
				}
			}

			if len(uncommented) == 0 {
				goto checkErr
			}

			b = uncommented
		}

		blob, lookForEndOfComment, parseErr := directiveData(b)
		if parseErr != nil {
			return fmt.Errorf("line %d - %w", lineNum, parseErr)
		}

		needEndOfComment = lookForEndOfComment

		if !blob.isEmpty() {
			err := onBlobFn(blob)
			if err != nil {
				return err
			}
		}
	}

checkErr:
	switch {
	case err == nil:
		goto readNextLine
	case errors.Is(err, io.EOF):
		if needEndOfComment {
			return fmt.Errorf("line %d - unterminated '/*' comment", lineNum)
		}

		return nil
	default:
		return err
	}
}

// directiveData splits a line into code and comment and parses the
// code if it is a ".byte" directive. The boolean is true when the
// line opens a multi-line comment.
func directiveData(b []byte) (Blob, bool, error) {
	code := b
	var comment []byte
	lookForEndOfComment := false

	commentIndex := bytes.Index(b, []byte{'/'})
	for commentIndex > -1 && commentIndex+1 < len(b) {
		next := b[commentIndex+1]
		if next == '/' || next == '*' {
			break
		}

		i := bytes.Index(b[commentIndex+1:], []byte{'/'})
		if i < 0 {
			commentIndex = -1
			break
		}

		commentIndex += i + 1
	}

	if commentIndex > -1 && commentIndex+1 < len(b) {
		code = b[:commentIndex]
		commentB := b[commentIndex+2:]

		switch b[commentIndex+1] {
		case '/':
			comment = commentB
		case '*':
			end := bytes.Index(commentB, []byte("*/"))
			if end < 0 {
				comment = commentB
				lookForEndOfComment = true
			} else {
				comment = commentB[:end]
				code = append(append([]byte{}, code...), commentB[end+2:]...)
			}
		}
	}

	blob := Blob{
		Comment: string(bytes.TrimSpace(comment)),
	}

	code = bytes.TrimSpace(code)
	if !bytes.HasPrefix(code, byteDirective) {
		return blob, lookForEndOfComment, nil
	}

	operands := code[len(byteDirective):]
	if len(operands) == 0 || !isSpace(operands[0]) {
		// Something like ".bytes", which is not ours.
		return blob, lookForEndOfComment, nil
	}

	for _, field := range bytes.Split(operands, []byte{','}) {
		field = bytes.TrimSpace(field)
		if len(field) == 0 {
			return Blob{}, false, errors.New("empty .byte operand")
		}

		v, err := strconv.ParseUint(string(field), 0, 8)
		if err != nil {
			return Blob{}, false, fmt.Errorf("invalid .byte operand %q - %w", field, err)
		}

		blob.Bytes = append(blob.Bytes, byte(v))
	}

	return blob, lookForEndOfComment, nil
}

func findEndOfComment(b []byte) (string, []byte, bool) {
	end := bytes.Index(b, []byte("*/"))
	if end < 0 {
		return string(bytes.TrimSpace(b)), nil, false
	}

	return string(bytes.TrimSpace(b[0:end])), bytes.TrimSpace(b[end+2:]), true
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t'
}
