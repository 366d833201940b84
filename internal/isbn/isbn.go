// Package isbn normalizes and validates scanned or typed book codes.
package isbn

import (
	"strings"
	"unicode"
)

// ISBN is a validated ISBN-10 or ISBN-13 in normalized form: digits only,
// with an optional trailing "X" for the 10-character form.
// The only way to obtain a non-empty ISBN is through Parse.
type ISBN string

// String returns the normalized code.
func (i ISBN) String() string {
	return string(i)
}

// Parse normalizes raw and verifies its checksum.
// Surrounding and interior whitespace and hyphens are removed and letters are
// upper-cased before validation. The second return value is false when raw is
// not a valid ISBN-10 or ISBN-13.
func Parse(raw string) (ISBN, bool) {
	s := normalize(raw)
	if s == "" {
		return "", false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != 'X' {
			return "", false
		}
	}

	switch len(s) {
	case 10:
		if !checksum10(s) {
			return "", false
		}
	case 13:
		if !checksum13(s) {
			return "", false
		}
	default:
		return "", false
	}
	return ISBN(s), true
}

// MustParse is like Parse but panics if raw is not a valid ISBN.
// Intended for fixtures and tests.
func MustParse(raw string) ISBN {
	code, ok := Parse(raw)
	if !ok {
		panic("isbn: invalid code " + raw)
	}
	return code
}

func normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.TrimSpace(raw) {
		if r == '-' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// checksum10 computes sum(digit_i * (10 - i)) with X worth 10. A misplaced X
// is not rejected explicitly; the modulus check catches it in practice.
func checksum10(s string) bool {
	sum := 0
	for i := 0; i < 10; i++ {
		sum += value(s[i]) * (10 - i)
	}
	return sum%11 == 0
}

// checksum13 weights even positions by 1 and odd positions by 3.
func checksum13(s string) bool {
	sum := 0
	for i := 0; i < 13; i++ {
		if s[i] == 'X' {
			return false
		}
		weight := 1
		if i%2 == 1 {
			weight = 3
		}
		sum += value(s[i]) * weight
	}
	return sum%10 == 0
}

func value(c byte) int {
	if c == 'X' {
		return 10
	}
	return int(c - '0')
}
