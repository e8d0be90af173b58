package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidEncoding is returned when a payload cannot be decoded even after normalization
var ErrInvalidEncoding = errors.New("invalid audio encoding")

// DecodePayload normalizes a base64 audio payload and decodes it to raw bytes.
//
// Accepted input:
//   - optional "data:<mime>;base64," prefix
//   - embedded whitespace and newlines
//   - URL-safe alphabet ('-' and '_')
//   - missing '=' padding
//
// Characters outside the base64 alphabet are ignored.
func DecodePayload(payload string) ([]byte, error) {
	body := stripDataURIPrefix(strings.TrimSpace(payload))

	var b strings.Builder
	b.Grow(len(body) + 3)
	for _, r := range body {
		switch {
		case r == '-':
			b.WriteByte('+')
		case r == '_':
			b.WriteByte('/')
		case isBase64Char(r):
			b.WriteRune(r)
		}
		// whitespace, '=' and stray characters are dropped; padding is recomputed below
	}

	normalized := b.String()
	if normalized == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidEncoding)
	}

	// A single trailing sextet cannot encode a whole byte
	remainder := len(normalized) % 4
	if remainder == 1 {
		return nil, fmt.Errorf("%w: truncated payload (%d significant characters)", ErrInvalidEncoding, len(normalized))
	}
	if remainder != 0 {
		normalized += strings.Repeat("=", 4-remainder)
	}

	data, err := base64.StdEncoding.DecodeString(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: payload decoded to zero bytes", ErrInvalidEncoding)
	}

	return data, nil
}

// stripDataURIPrefix removes a "data:...;base64," header when the segment before
// the first comma declares a base64 encoding
func stripDataURIPrefix(s string) string {
	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return s
	}
	if !strings.Contains(strings.ToLower(s[:comma]), "base64") {
		return s
	}
	return s[comma+1:]
}

func isBase64Char(r rune) bool {
	return (r >= 'A' && r <= 'Z') ||
		(r >= 'a' && r <= 'z') ||
		(r >= '0' && r <= '9') ||
		r == '+' || r == '/'
}
