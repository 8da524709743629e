// Package region enumerates the target's mapped memory ranges from the
// OS process-info interface and narrows them to the ones worth
// scanning.
package region

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/zenchess/mudscan/pkg/model"
)

// ErrProcessGone reports that the target process id no longer exists.
var ErrProcessGone = errors.New("process no longer exists")

// DefaultMaxSize bounds worst-case scan cost. Managed-heap arenas in
// the target sit well under this; the giant mappings above it are
// graphics buffers and reserved arenas that never hold window objects.
// Callers needing full coverage can override it in a Filter.
const DefaultMaxSize = 100 << 20

// Filter selects which regions a scan should visit. Zero value selects
// everything.
type Filter struct {
	// Perms keeps only regions with at least these access bits.
	Perms model.Perms
	// MaxSize drops regions larger than this many bytes when > 0.
	MaxSize uint64
	// Anonymous drops file-backed regions (shared libraries, mapped
	// assets) when true. Pseudo-paths like [heap] are kept.
	Anonymous bool
}

// Select returns the regions passing f, preserving address order.
func Select(regions []model.Region, f Filter) []model.Region {
	var out []model.Region
	for _, r := range regions {
		if !r.Perms.Has(f.Perms) {
			continue
		}
		if f.MaxSize > 0 && r.Size() > f.MaxSize {
			continue
		}
		if f.Anonymous && r.Path != "" && !strings.HasPrefix(r.Path, "[") {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Heap returns the [heap] region, if the snapshot has one.
func Heap(regions []model.Region) (model.Region, bool) {
	for _, r := range regions {
		if r.Path == "[heap]" {
			return r, true
		}
	}
	return model.Region{}, false
}

// Module returns the first region backed by a file whose path contains
// name, used to find the runtime's own loaded image.
func Module(regions []model.Region, name string) (model.Region, bool) {
	for _, r := range regions {
		if r.Path != "" && strings.Contains(r.Path, name) {
			return r, true
		}
	}
	return model.Region{}, false
}

// Parse reads a /proc/<pid>/maps-format listing. Unparseable lines are
// skipped rather than failing the whole snapshot.
func Parse(r io.Reader) ([]model.Region, error) {
	var out []model.Region
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		reg, ok := parseLine(sc.Text())
		if ok {
			out = append(out, reg)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read memory map: %w", err)
	}
	return out, nil
}

// parseLine handles one maps entry:
//
//	55e7c8a00000-55e7c8c00000 rw-p 00000000 00:00 0    [heap]
func parseLine(line string) (model.Region, bool) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return model.Region{}, false
	}
	lo, hi, ok := strings.Cut(fields[0], "-")
	if !ok {
		return model.Region{}, false
	}
	start, err := strconv.ParseUint(lo, 16, 64)
	if err != nil {
		return model.Region{}, false
	}
	end, err := strconv.ParseUint(hi, 16, 64)
	if err != nil || end <= start {
		return model.Region{}, false
	}
	perms := parsePerms(fields[1])
	path := ""
	if len(fields) >= 6 {
		path = strings.Join(fields[5:], " ")
	}
	return model.Region{Start: start, End: end, Perms: perms, Path: path}, true
}

func parsePerms(s string) model.Perms {
	var p model.Perms
	if strings.ContainsRune(s, 'r') {
		p |= model.PermRead
	}
	if strings.ContainsRune(s, 'w') {
		p |= model.PermWrite
	}
	if strings.ContainsRune(s, 'x') {
		p |= model.PermExec
	}
	if strings.ContainsRune(s, 'p') {
		p |= model.PermPrivate
	}
	return p
}
