// Package scan implements brute-force byte-pattern search across the
// target's mapped regions. It is the slow path behind object location:
// everything that can be answered from the address cache should be, and
// only cache misses land here.
package scan

import (
	"bytes"

	"github.com/zenchess/mudscan/internal/memio"
	"github.com/zenchess/mudscan/pkg/model"
)

// DefaultChunkSize is how many bytes of a region are pulled over per
// read. Reads of this size amortize syscall cost without ever buffering
// a multi-hundred-megabyte region whole.
const DefaultChunkSize = 1 << 20

// Scanner searches regions for literal byte sequences.
type Scanner struct {
	R memio.Reader
	// ChunkSize overrides DefaultChunkSize when > 0. Tests use tiny
	// chunks to exercise boundary handling.
	ChunkSize int
}

// FindAll returns the absolute addresses of every occurrence of needle
// within regions, in ascending address order, stopping early once max
// matches are collected (max <= 0 means unbounded).
//
// A region that cannot be read is skipped; one unreadable region must
// not abort discovery in the others. Matches that straddle a chunk
// boundary are found exactly once: each chunk is read with one
// needle-length of overlap into the next.
func (s *Scanner) FindAll(regions []model.Region, needle []byte, max int) []uint64 {
	var out []uint64
	if len(needle) == 0 {
		return nil
	}
	for _, reg := range regions {
		out = s.scanRegion(reg, needle, max, out)
		if max > 0 && len(out) >= max {
			return out[:max]
		}
	}
	return out
}

// FindFirst returns the lowest match address within regions.
func (s *Scanner) FindFirst(regions []model.Region, needle []byte) (uint64, bool) {
	hits := s.FindAll(regions, needle, 1)
	if len(hits) == 0 {
		return 0, false
	}
	return hits[0], true
}

func (s *Scanner) scanRegion(reg model.Region, needle []byte, max int, out []uint64) []uint64 {
	step := s.ChunkSize
	if step <= 0 {
		step = DefaultChunkSize
	}
	overlap := len(needle) - 1
	buf := make([]byte, step+overlap)

	for pos := reg.Start; pos < reg.End; pos += uint64(step) {
		want := uint64(len(buf))
		if remaining := reg.End - pos; remaining < want {
			want = remaining
		}
		chunk := buf[:want]
		if err := s.R.ReadAt(chunk, pos); err != nil {
			// Page went away mid-scan or was never resident. Skip the
			// chunk, keep going: partial coverage beats none.
			continue
		}
		// Matches starting inside the overlap tail belong to the next
		// iteration, except at the end of the region.
		lastChunk := pos+uint64(step) >= reg.End
		off := 0
		for {
			i := bytes.Index(chunk[off:], needle)
			if i < 0 {
				break
			}
			start := off + i
			if start < step || lastChunk {
				out = append(out, pos+uint64(start))
				if max > 0 && len(out) >= max {
					return out
				}
			}
			off = start + 1
		}
	}
	return out
}
