package utils

import (
	"encoding/binary"
	"math"
)

// BytesToT32 decodes little-endian 32-bit values, as returned in Triton raw output contents.
// Trailing bytes that do not form a full value are ignored.
func BytesToT32[T float32 | int32 | uint32](b []byte) []T {
	out := make([]T, len(b)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(b[i*4:])
		var v T
		switch p := any(&v).(type) {
		case *float32:
			*p = math.Float32frombits(bits)
		case *int32:
			*p = int32(bits)
		case *uint32:
			*p = bits
		}
		out[i] = v
	}
	return out
}
