// Package nrorder converts fixed-width binary arrays between big-endian,
// little-endian and the host's native byte order.
//
// All conversions work in place. Every operation is an involution: applying it
// twice with the same arguments restores the original bytes.
package nrorder

import (
	"encoding/binary"
	"strings"

	"golang.org/x/sys/cpu"

	"github.com/lattice-substrate/nanraster/nrerr"
)

// Order is a declared byte order of a binary array.
type Order uint8

const (
	BigEndian Order = iota
	LittleEndian
)

// Element widths supported by the codec.
const (
	Float32Width = 4
	Float64Width = 8
)

// Native returns the byte order of the host.
func Native() Order {
	if cpu.IsBigEndian {
		return BigEndian
	}
	return LittleEndian
}

// String returns the file-name form of the order ("big-endian", "little-endian").
func (o Order) String() string {
	if o == LittleEndian {
		return "little-endian"
	}
	return "big-endian"
}

// Binary returns the encoding/binary view of the order.
func (o Order) Binary() binary.ByteOrder {
	if o == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// ParseOrder accepts "big", "big-endian", "be" and the little-endian
// counterparts, case-insensitively.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "big", "big-endian", "be":
		return BigEndian, nil
	case "little", "little-endian", "le":
		return LittleEndian, nil
	}
	return BigEndian, nrerr.Newf(nrerr.InvalidConfig, -1, "unknown byte order %q", s)
}

// ToNative reverses the bytes of every width-byte element of buf when the
// declared order differs from the host order. It is a no-op otherwise.
func ToNative(buf []byte, width int, declared Order) error {
	if err := checkLength(buf, width); err != nil {
		return err
	}
	if declared == Native() {
		return nil
	}
	swap(buf, width)
	return nil
}

// FromNative converts native-order elements to the target order. It is the
// write-path name of ToNative; the transformation is the same.
func FromNative(buf []byte, width int, target Order) error {
	return ToNative(buf, width, target)
}

// Swap unconditionally reverses the bytes of every width-byte element of buf.
func Swap(buf []byte, width int) error {
	if err := checkLength(buf, width); err != nil {
		return err
	}
	swap(buf, width)
	return nil
}

func checkLength(buf []byte, width int) error {
	if width != Float32Width && width != Float64Width {
		return nrerr.Newf(nrerr.InvalidLength, -1, "unsupported element width %d", width)
	}
	if len(buf)%width != 0 {
		return nrerr.Newf(nrerr.InvalidLength, len(buf), "buffer length is not a multiple of %d", width)
	}
	return nil
}

func swap(buf []byte, width int) {
	switch width {
	case Float32Width:
		for i := 0; i < len(buf); i += 4 {
			v := binary.LittleEndian.Uint32(buf[i:])
			binary.BigEndian.PutUint32(buf[i:], v)
		}
	case Float64Width:
		for i := 0; i < len(buf); i += 8 {
			v := binary.LittleEndian.Uint64(buf[i:])
			binary.BigEndian.PutUint64(buf[i:], v)
		}
	}
}
