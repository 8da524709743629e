// Package mono reads primitive values out of the target's managed
// runtime: pointers, scalars, C strings from runtime metadata, and the
// fixed-width string objects that carry all terminal text.
package mono

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/zenchess/mudscan/internal/layout"
	"github.com/zenchess/mudscan/internal/memio"
)

// Userspace pointer range on 64-bit Linux. Values outside it are
// treated as garbage rather than dereferenced.
const (
	minPointer = 0x1000
	maxPointer = 0x7fffffffffff
)

// ValidPointer reports whether p is plausibly a userspace address.
func ValidPointer(p uint64) bool { return p > minPointer && p < maxPointer }

// ReadPointer reads a little-endian 8-byte pointer.
func ReadPointer(r memio.Reader, addr uint64) (uint64, error) {
	var b [layout.PointerWidth]byte
	if err := r.ReadAt(b[:], addr); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// ReadInt32 reads a little-endian signed 32-bit scalar.
func ReadInt32(r memio.Reader, addr uint64) (int32, error) {
	var b [4]byte
	if err := r.ReadAt(b[:], addr); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b[:])), nil
}

// ReadCString reads a NUL-terminated byte string of at most max bytes,
// as used by the runtime's class metadata.
func ReadCString(r memio.Reader, addr uint64, max int) (string, error) {
	buf := make([]byte, max)
	if err := r.ReadAt(buf, addr); err != nil {
		return "", err
	}
	for i, c := range buf {
		if c == 0 {
			return string(buf[:i]), nil
		}
	}
	// No terminator within max: not the string we were looking for.
	return "", &DecodeError{Addr: addr, Reason: "unterminated name"}
}

// DecodeError reports a string object that could not be decoded,
// usually a sign the pointer never was a string object.
type DecodeError struct {
	Addr   uint64
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode string at 0x%x: %s: %v", e.Addr, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode string at 0x%x: %s", e.Addr, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// MaxStringLength rejects absurd length fields before any payload read
// is attempted. Terminal lines are a few hundred characters; a million
// means the pointer was misidentified.
const MaxStringLength = 1 << 20

// StringDecoder decodes the runtime's length-prefixed fixed-width
// string objects.
type StringDecoder struct {
	R       memio.Reader
	Offsets layout.Table
}

// Decode reads the string object at addr. A zero length decodes to ""
// without touching the payload.
func (d StringDecoder) Decode(addr uint64) (string, error) {
	lenOff, err := d.Offsets.Offset("string", "length")
	if err != nil {
		return "", err
	}
	dataOff, err := d.Offsets.Offset("string", "data")
	if err != nil {
		return "", err
	}
	n, err := ReadInt32(d.R, addr+lenOff)
	if err != nil {
		return "", &DecodeError{Addr: addr, Reason: "length unreadable", Err: err}
	}
	if n == 0 {
		return "", nil
	}
	if n < 0 || n > MaxStringLength {
		return "", &DecodeError{Addr: addr, Reason: fmt.Sprintf("implausible length %d", n)}
	}
	raw := make([]byte, int(n)*layout.CharWidth)
	if err := d.R.ReadAt(raw, addr+dataOff); err != nil {
		return "", &DecodeError{Addr: addr, Reason: "payload unreadable", Err: err}
	}
	return DecodeUTF16(raw), nil
}

// DecodeUTF16 decodes little-endian UTF-16 bytes, replacing invalid
// sequences rather than failing. Odd trailing bytes are dropped.
func DecodeUTF16(b []byte) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return string(utf16.Decode(units))
}
