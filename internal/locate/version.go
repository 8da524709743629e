package locate

import (
	"bytes"
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/zenchess/mudscan/internal/mono"
	"github.com/zenchess/mudscan/internal/scan"
	"github.com/zenchess/mudscan/pkg/model"
)

// ErrVersionNotFound reports that no plausible version string was seen.
var ErrVersionNotFound = errors.New("version string not found")

// The version label has no structural anchor anywhere in the runtime,
// so this is a pure shape scan: UTF-16 text that looks like "v2.016".
var versionRE = regexp.MustCompile(`^v(\d+)\.(\d+)`)

const (
	// versionWindow is how many bytes around a hit are decoded for the
	// match and its context check.
	versionWindow = 64
	// maxVersionCandidates bounds the sweep; the real label shows up
	// within the first few writable regions.
	maxVersionCandidates = 50
)

type versionCandidate struct {
	minor string
	text  string
}

// Version scans regions for the game's version label.
//
// Best effort only: with no anchor to validate against, disambiguation
// is heuristic. Candidates whose surrounding text contains ":::" are
// script-version noise and dropped; of the rest, the longest minor
// component wins (the game zero-pads its own label, scripts don't).
// Treat the result as advisory.
func (l *Locator) Version(regions []model.Region) (string, error) {
	needle := []byte{'v', 0} // 'v' in UTF-16LE
	step := scan.DefaultChunkSize
	if l.Scan != nil && l.Scan.ChunkSize > 0 {
		step = l.Scan.ChunkSize
	}
	buf := make([]byte, step+2*versionWindow)

	var cands []versionCandidate
	for _, reg := range regions {
		for pos := reg.Start; pos < reg.End && len(cands) < maxVersionCandidates; pos += uint64(step) {
			want := uint64(len(buf))
			if remaining := reg.End - pos; remaining < want {
				want = remaining
			}
			chunk := buf[:want]
			if err := l.R.ReadAt(chunk, pos); err != nil {
				continue
			}
			last := pos+uint64(step) >= reg.End
			off := 0
			for len(cands) < maxVersionCandidates {
				i := bytes.Index(chunk[off:], needle)
				if i < 0 {
					break
				}
				hit := off + i
				off = hit + 1
				if hit >= step && !last {
					break
				}
				if c, ok := versionAt(chunk, hit); ok {
					cands = append(cands, c)
				}
			}
		}
		if len(cands) >= maxVersionCandidates {
			break
		}
	}

	if len(cands) == 0 {
		return "", ErrVersionNotFound
	}
	sort.Slice(cands, func(i, j int) bool {
		if len(cands[i].minor) != len(cands[j].minor) {
			return len(cands[i].minor) > len(cands[j].minor)
		}
		return cands[i].text > cands[j].text
	})
	return cands[0].text, nil
}

// versionAt tries to parse a version label at hit within chunk.
func versionAt(chunk []byte, hit int) (versionCandidate, bool) {
	end := hit + versionWindow
	if end > len(chunk) {
		end = len(chunk)
	}
	decoded := mono.DecodeUTF16(chunk[hit:end])
	m := versionRE.FindStringSubmatch(decoded)
	if m == nil {
		return versionCandidate{}, false
	}
	// Script listings carry "<owner>.<script> v1.2"-style labels inside
	// ":::"-delimited blocks; the game's own label never does.
	ctxStart := hit - versionWindow
	if ctxStart < 0 {
		ctxStart = 0
	}
	context := mono.DecodeUTF16(chunk[ctxStart:end])
	if strings.Contains(context, ":::") {
		return versionCandidate{}, false
	}
	// Single-digit minors are script versions, not the game's.
	if len(m[2]) < 2 {
		return versionCandidate{}, false
	}
	return versionCandidate{minor: m[2], text: m[0]}, true
}
