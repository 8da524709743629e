// Package locate finds the anchor addresses of the target's named
// window objects inside a heap it has no symbols for. Discovery runs in
// two stages: find the window class vtable once by probing runtime
// class metadata in the heap, then sweep the writable regions for
// object headers carrying that vtable value and disambiguate the hits
// by each candidate's name field.
package locate

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/zenchess/mudscan/internal/layout"
	"github.com/zenchess/mudscan/internal/memio"
	"github.com/zenchess/mudscan/internal/mono"
	"github.com/zenchess/mudscan/internal/scan"
	"github.com/zenchess/mudscan/pkg/model"
)

// ErrWindowNotFound reports that neither the cache nor a full scan
// produced an anchor for the requested window.
var ErrWindowNotFound = errors.New("window not found")

// ErrClassNotFound reports that the runtime class metadata for the
// window class was not found in the heap, so no scan needle exists.
var ErrClassNotFound = errors.New("window class metadata not found")

const (
	maxClassNameLen = 64
	// candidateSpan is how many bytes past a class-metadata candidate
	// the vtable probe needs to see.
	candidateSpan = 0x100
)

// Locator discovers window anchors against one region snapshot.
type Locator struct {
	R       memio.Reader
	Scan    *scan.Scanner
	Offsets layout.Table
	// Class and Namespace identify the window class in runtime
	// metadata. They come from configuration: the target's assembly is
	// obfuscated and the names move between builds.
	Class     string
	Namespace string
	// Windows is the known window-name set used to disambiguate scan
	// hits.
	Windows []string
}

// FindVtable locates the window class vtable by sweeping the heap
// region for class metadata whose name and namespace match. The sweep
// is deterministic: candidates are visited in ascending address order
// and the first full match wins.
func (l *Locator) FindVtable(heap model.Region) (uint64, error) {
	nameOff, err := l.Offsets.Offset("class", "name")
	if err != nil {
		return 0, err
	}
	nsOff, err := l.Offsets.Offset("class", "namespace")
	if err != nil {
		return 0, err
	}
	riOff, err := l.Offsets.Offset("class", "runtime_info")
	if err != nil {
		return 0, err
	}
	vtOff, err := l.Offsets.Offset("runtime_info", "vtable")
	if err != nil {
		return 0, err
	}

	step := scan.DefaultChunkSize
	if l.Scan != nil && l.Scan.ChunkSize > 0 {
		step = l.Scan.ChunkSize
	}
	buf := make([]byte, step+candidateSpan)

	for pos := heap.Start; pos < heap.End; pos += uint64(step) {
		want := uint64(len(buf))
		if remaining := heap.End - pos; remaining < want {
			want = remaining
		}
		chunk := buf[:want]
		if err := l.R.ReadAt(chunk, pos); err != nil {
			continue
		}
		last := pos+uint64(step) >= heap.End
		limit := len(chunk) - candidateSpan
		if last {
			limit = len(chunk) - int(riOff) - layout.PointerWidth
		}
		for off := 0; off <= limit; off += layout.PointerWidth {
			if !last && off >= step {
				break
			}
			namePtr := binary.LittleEndian.Uint64(chunk[off+int(nameOff):])
			if !mono.ValidPointer(namePtr) {
				continue
			}
			name, err := mono.ReadCString(l.R, namePtr, maxClassNameLen)
			if err != nil || name != l.Class {
				continue
			}
			nsPtr := binary.LittleEndian.Uint64(chunk[off+int(nsOff):])
			if !mono.ValidPointer(nsPtr) {
				continue
			}
			ns, err := mono.ReadCString(l.R, nsPtr, maxClassNameLen)
			if err != nil || ns != l.Namespace {
				continue
			}
			ri := binary.LittleEndian.Uint64(chunk[off+int(riOff):])
			if !mono.ValidPointer(ri) {
				continue
			}
			vtable, err := mono.ReadPointer(l.R, ri+vtOff)
			if err != nil || !mono.ValidPointer(vtable) {
				continue
			}
			return vtable, nil
		}
	}
	return 0, ErrClassNotFound
}

// ScanWindows sweeps regions for objects headed by vtable and returns
// an anchor per recognized window name. When a name occurs at several
// addresses the lowest wins, keeping rescans deterministic against an
// unchanged process snapshot.
func (l *Locator) ScanWindows(vtable uint64, regions []model.Region) (map[string]model.Anchor, error) {
	textOff, err := l.Offsets.Offset("window", "gui_text")
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(l.Windows))
	for _, w := range l.Windows {
		known[w] = true
	}

	needle := make([]byte, layout.PointerWidth)
	binary.LittleEndian.PutUint64(needle, vtable)
	hits := l.Scan.FindAll(regions, needle, 0)

	found := make(map[string]model.Anchor)
	now := time.Now()
	for _, addr := range hits {
		name, err := l.ReadName(addr)
		if err != nil || !known[name] {
			continue
		}
		if _, ok := found[name]; ok {
			continue
		}
		a := model.Anchor{Window: addr, DiscoveredAt: now}
		if textPtr, err := mono.ReadPointer(l.R, addr+textOff); err == nil && mono.ValidPointer(textPtr) {
			a.Text = textPtr
		}
		found[name] = a
		if len(found) == len(known) {
			break
		}
	}
	return found, nil
}

// ReadName reads the window's name field.
func (l *Locator) ReadName(window uint64) (string, error) {
	nameOff, err := l.Offsets.Offset("window", "name")
	if err != nil {
		return "", err
	}
	ptr, err := mono.ReadPointer(l.R, window+nameOff)
	if err != nil {
		return "", err
	}
	if !mono.ValidPointer(ptr) {
		return "", fmt.Errorf("window name pointer 0x%x out of range", ptr)
	}
	dec := mono.StringDecoder{R: l.R, Offsets: l.Offsets}
	return dec.Decode(ptr)
}

// Probe revalidates a cached anchor with a single cheap read: does the
// object at the cached address still call itself name? Any fault or
// mismatch means the anchor is stale.
func (l *Locator) Probe(name string, a model.Anchor) bool {
	got, err := l.ReadName(a.Window)
	return err == nil && got == name
}
