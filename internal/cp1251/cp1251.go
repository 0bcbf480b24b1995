// Package cp1251 decodes Windows-1251 (CP1251) byte strings, the text
// encoding used throughout the game's native string fields (entry
// names excepted, which are Latin-1-as-bytes).
package cp1251

import (
	"golang.org/x/text/encoding/charmap"
)

// Decode converts CP1251 bytes to a UTF-8 Go string.
func Decode(b []byte) (string, error) {
	out, err := charmap.Windows1251.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
