// Package format implements the minimal "general-purpose string formatter"
// spec.md §1/§6 names as an external collaborator the core consumes rather
// than specifies: a number writer and a string-escape encoder/decoder,
// sufficient for the normalizer (spec.md §4.5) and for plug-in literal
// writers to render values back into source form. No dependency in the
// example pack ships a locale-aware number formatter, so this is built on
// the standard library (strconv/strings) — documented in DESIGN.md as the
// one deliberate standard-library component beyond CLI glue.
package format

import (
	"strconv"
	"strings"
)

// Int renders an integer the way the normalizer writes a decimal Int
// literal back into source form.
func Int(v int64) string { return strconv.FormatInt(v, 10) }

// Hex renders v as a "0x"-prefixed hexadecimal literal, for
// NFHexadecimal/force-hex normalization.
func Hex(v int64) string { return "0x" + strconv.FormatInt(v, 16) }

// Octal renders v as a "0o"-prefixed octal literal.
func Octal(v int64) string { return "0o" + strconv.FormatInt(v, 8) }

// Binary renders v as a "0b"-prefixed binary literal.
func Binary(v int64) string { return "0b" + strconv.FormatInt(v, 2) }

// Float renders a float using Go's shortest round-tripping representation,
// switching to scientific notation for magnitudes a plain decimal would
// render awkwardly (SPEC_FULL's force-scientific normalization flag asks
// for this form explicitly; plain Float uses it only for very large/small
// magnitudes, matching %g's default threshold).
func Float(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// Scientific renders v in exponential notation unconditionally.
func Scientific(v float64) string { return strconv.FormatFloat(v, 'e', -1, 64) }

// QuoteString escapes s into a double-quoted source literal, reversing
// Unescape.
func QuoteString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
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
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// Unescape decodes the body of a double-quoted string literal (the
// lexer's own scanString implements the same table inline for its hot
// path; this is the standalone version, used by the tests).
func Unescape(body string) string {
	var sb strings.Builder
	runes := []rune(body)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c == '\\' && i+1 < len(runes) {
			i++
			switch runes[i] {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case 'r':
				sb.WriteRune('\r')
			case '"':
				sb.WriteRune('"')
			case '\\':
				sb.WriteRune('\\')
			default:
				sb.WriteRune(runes[i])
			}
			continue
		}
		sb.WriteRune(c)
	}
	return sb.String()
}
