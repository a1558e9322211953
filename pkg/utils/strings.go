package utils

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/exp/constraints"
)

// Formats an uint value into an fixed width, 0x prefixed, lowercase hex string of n digits
func FormatUintHex[T constraints.Unsigned](value T, digits int) string {
	return fmt.Sprintf("0x%0*x", digits, uint64(value))
}

// Parses an hex string with or without 0x prefix
func ParseUintHex(text string) (uint64, error) {
	text = strings.TrimPrefix(strings.TrimPrefix(text, "0x"), "0X")
	return strconv.ParseUint(text, 16, 64)
}

// Returns true if the string is a non-empty sequence of hex digits
func IsHex(text string) bool {
	if len(text) == 0 {
		return false
	}

	for _, c := range text {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}

	return true
}

// Right pads a string with a fill character up to width characters. Longer strings are returned unchanged
func PadRight(text string, width int, fill byte) string {
	if len(text) >= width {
		return text
	}

	return text + strings.Repeat(string(fill), width-len(text))
}
