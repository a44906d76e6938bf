package source

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

const cursorPrefix = "o:"

// EncodeCursor returns the opaque cursor for the page starting at offset.
func EncodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + strconv.Itoa(offset)))
}

// DecodeCursor returns the offset encoded in cursor. The empty cursor is the
// first page.
func DecodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed cursor", ErrBadQuery)
	}
	s, ok := strings.CutPrefix(string(raw), cursorPrefix)
	if !ok {
		return 0, fmt.Errorf("%w: malformed cursor", ErrBadQuery)
	}
	offset, err := strconv.Atoi(s)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("%w: malformed cursor", ErrBadQuery)
	}
	return offset, nil
}
