package memimage

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
	"github.com/texerai/maveric2/pkg/utils"
)

// WordSize is the size in bytes of an instruction memory word
const WordSize = 4

// Word is one 32 bit instruction memory word at a program counter address
type Word struct {
	// Address of the word. Always 4 byte aligned relative to the first word of the image
	Address uint64

	// Raw bytes in listing order, most significant byte first
	Raw [WordSize]byte

	// Filler is true if the word was synthesized to fill an address gap
	Filler bool
}

// ParseWord decodes an 8 hex digit token in listing order
func ParseWord(address uint64, token string) (Word, error) {
	if len(token) != 2*WordSize {
		return Word{}, errors.Errorf("word token %q is not %d hex digits wide", token, 2*WordSize)
	}

	var w Word
	w.Address = address
	if _, err := hex.Decode(w.Raw[:], []byte(token)); err != nil {
		return Word{}, errors.Wrapf(err, "invalid word token %q", token)
	}

	return w, nil
}

// StoreOrder returns the bytes of the word in target load order, least significant byte first
func (w Word) StoreOrder() [WordSize]byte {
	return SwapBytes(w.Raw)
}

// Hex returns the word in listing order as 8 lowercase hex digits
func (w Word) Hex() string {
	return hex.EncodeToString(w.Raw[:])
}

// ImageHex returns the word in target order as 8 lowercase hex digits, as written into the image
func (w Word) ImageHex() string {
	b := w.StoreOrder()
	return hex.EncodeToString(b[:])
}

// SwapBytes converts a word between listing order and target order. It is its own inverse.
func SwapBytes(b [WordSize]byte) [WordSize]byte {
	return utils.ReverseWordBytes(b)
}

// SwapHex converts an 8 hex digit word between listing order and target order
// by swapping byte pairs: "b3b2b1b0" becomes "b0b1b2b3". It is its own inverse.
// Strings that are not 8 characters wide are returned unchanged.
func SwapHex(word string) string {
	if len(word) != 2*WordSize {
		return word
	}

	var sb strings.Builder
	sb.Grow(len(word))
	for i := len(word) - 2; i >= 0; i -= 2 {
		sb.WriteString(word[i : i+2])
	}

	return sb.String()
}
