package utils

import (
	"golang.org/x/exp/constraints"
)

const BitsPerByte = 8

// Returns the size in bits of n bytes
func Bits(bytes int) int {
	return bytes * BitsPerByte
}

// Returns an all ones bitmask of n bits of the given unsigned integer type
func AllOnes[T constraints.Unsigned](bits int) T {
	return (T(1) << bits) - T(1)
}

// Reverses the order of the bytes of a 32 bit word
func ReverseWordBytes(value [4]byte) [4]byte {
	return [4]byte{value[3], value[2], value[1], value[0]}
}

// Returns true if the value is a multiple of the given power of two alignment
func IsAligned[T constraints.Unsigned](value T, alignment T) bool {
	return value&(alignment-1) == 0
}
