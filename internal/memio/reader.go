// Package memio is the single primitive for raw access into another
// process's address space. Everything above it (region scans, object
// location, structure walks) goes through the Reader interface, which
// keeps the live /proc machinery swappable for an in-memory image in
// tests.
package memio

import "fmt"

// Reader reads bytes from an absolute virtual address in the target.
//
// ReadAt either fills buf completely or returns a *ReadFault; callers
// never receive silently truncated data. No retries happen at this
// layer: a fault means "that address was not readable at that
// instant", and only callers know whether that is fatal or skippable.
type Reader interface {
	ReadAt(buf []byte, addr uint64) error
}

// ReadFault reports a failed or short read at a target address.
type ReadFault struct {
	Addr uint64
	Len  int
	Err  error
}

func (f *ReadFault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("read %d bytes at 0x%x: %v", f.Len, f.Addr, f.Err)
	}
	return fmt.Sprintf("read %d bytes at 0x%x: short read", f.Len, f.Addr)
}

func (f *ReadFault) Unwrap() error { return f.Err }
