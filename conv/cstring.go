package conv

import (
	"strings"
)

// QuoteCString returns s as a double quoted C string literal.
//
// Bytes outside of printable ASCII are written as three digit octal
// escapes. Unlike hexadecimal escapes, these cannot swallow a
// following digit.
func QuoteCString(s string) string {
	sb := strings.Builder{}
	sb.Grow(len(s) + 2)

	sb.WriteByte('"')

	for i := 0; i < len(s); i++ {
		c := s[i]

		switch c {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			if c < 0x20 || c >= 0x7f {
				sb.WriteByte('\\')
				sb.WriteByte('0' + c>>6)
				sb.WriteByte('0' + (c>>3)&7)
				sb.WriteByte('0' + c&7)
				continue
			}

			sb.WriteByte(c)
		}
	}

	sb.WriteByte('"')

	return sb.String()
}
