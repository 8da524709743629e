package memio

import (
	"encoding/binary"
	"sort"
	"unicode/utf16"
)

// Image is a sparse in-memory stand-in for a target's address space,
// used by tests to build synthetic heaps. Reads that touch any byte
// outside a placed segment fault, which is exactly how a live target
// behaves around unmapped pages.
type Image struct {
	segs []segment
}

type segment struct {
	base uint64
	data []byte
}

func NewImage() *Image { return &Image{} }

// Place maps data at base. Overlapping placements are not merged; the
// most recent placement covering a read wins, so tests can patch a
// field by placing over it.
func (im *Image) Place(base uint64, data []byte) {
	im.segs = append(im.segs, segment{base: base, data: data})
}

// PutU64 writes a little-endian 8-byte value as its own segment.
func (im *Image) PutU64(addr, v uint64) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	im.Place(addr, b)
}

// PutU32 writes a little-endian 4-byte value as its own segment.
func (im *Image) PutU32(addr uint64, v uint32) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	im.Place(addr, b)
}

// PutUTF16 writes s as UTF-16LE code units without a terminator.
func (im *Image) PutUTF16(addr uint64, s string) {
	units := utf16.Encode([]rune(s))
	b := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[2*i:], u)
	}
	im.Place(addr, b)
}

// PutCString writes s with a trailing NUL.
func (im *Image) PutCString(addr uint64, s string) {
	im.Place(addr, append([]byte(s), 0))
}

func (im *Image) ReadAt(buf []byte, addr uint64) error {
	if len(buf) == 0 {
		return nil
	}
	for i := len(im.segs) - 1; i >= 0; i-- {
		s := im.segs[i]
		if addr >= s.base && addr+uint64(len(buf)) <= s.base+uint64(len(s.data)) {
			copy(buf, s.data[addr-s.base:])
			return nil
		}
	}
	return &ReadFault{Addr: addr, Len: len(buf)}
}

// Extent returns the lowest and highest mapped addresses, handy for
// building a fake region catalog around the image.
func (im *Image) Extent() (lo, hi uint64) {
	if len(im.segs) == 0 {
		return 0, 0
	}
	segs := append([]segment(nil), im.segs...)
	sort.Slice(segs, func(i, j int) bool { return segs[i].base < segs[j].base })
	lo = segs[0].base
	for _, s := range segs {
		if end := s.base + uint64(len(s.data)); end > hi {
			hi = end
		}
	}
	return lo, hi
}
