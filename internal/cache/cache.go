// Package cache persists discovered anchor addresses between runs. A
// full heap scan costs seconds; a cache hit costs a file read plus one
// probe read per anchor. Entries are keyed by process id and are pure
// optimization: a stale or corrupt file is treated as a miss, never an
// error, and the file is always safe to delete.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/zenchess/mudscan/internal/layout"
	"github.com/zenchess/mudscan/pkg/model"
)

// File is a JSON-backed address store. A zero Path disables caching:
// Load always misses and Store is a no-op.
type File struct {
	Path string
}

// diskEntry is the stored shape. Addresses are hex strings so the file
// stays greppable next to a hex dump.
type diskEntry struct {
	PID     int                   `json:"pid"`
	Schema  int                   `json:"schema"`
	Vtable  string                `json:"vtable,omitempty"`
	Windows map[string]diskAnchor `json:"windows"`
}

type diskAnchor struct {
	Window       string    `json:"window_addr"`
	Text         string    `json:"text_addr,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Load returns the cached entry for pid. ok is false on any kind of
// miss: no file, unparseable file, schema mismatch, or an entry written
// for a different process id (game restarted, or pid reuse; both mean
// every address in it is garbage).
func (f *File) Load(pid int) (model.CacheEntry, bool) {
	if f.Path == "" {
		return model.CacheEntry{}, false
	}
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return model.CacheEntry{}, false
	}
	var de diskEntry
	if err := json.Unmarshal(raw, &de); err != nil {
		return model.CacheEntry{}, false
	}
	if de.Schema != layout.Schema || de.PID != pid {
		return model.CacheEntry{}, false
	}
	entry := model.CacheEntry{
		PID:     de.PID,
		Schema:  de.Schema,
		Windows: make(map[string]model.Anchor, len(de.Windows)),
	}
	entry.Vtable = parseAddr(de.Vtable)
	for name, da := range de.Windows {
		w := parseAddr(da.Window)
		if w == 0 {
			continue
		}
		entry.Windows[name] = model.Anchor{
			Window:       w,
			Text:         parseAddr(da.Text),
			DiscoveredAt: da.DiscoveredAt,
		}
	}
	if len(entry.Windows) == 0 && entry.Vtable == 0 {
		return model.CacheEntry{}, false
	}
	return entry, true
}

// Store writes entry, replacing whatever was there. The write is
// atomic (temp file + rename) so a crash never leaves a half-written
// cache to misparse later.
func (f *File) Store(entry model.CacheEntry) error {
	if f.Path == "" {
		return nil
	}
	de := diskEntry{
		PID:     entry.PID,
		Schema:  entry.Schema,
		Windows: make(map[string]diskAnchor, len(entry.Windows)),
	}
	if de.Schema == 0 {
		de.Schema = layout.Schema
	}
	if entry.Vtable != 0 {
		de.Vtable = formatAddr(entry.Vtable)
	}
	for name, a := range entry.Windows {
		de.Windows[name] = diskAnchor{
			Window:       formatAddr(a.Window),
			Text:         formatAddr(a.Text),
			DiscoveredAt: a.DiscoveredAt,
		}
	}
	raw, err := json.MarshalIndent(de, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}

// Invalidate drops a single window's anchor from pid's entry, leaving
// its siblings alone. Dropping a name that is not cached is a no-op.
func (f *File) Invalidate(pid int, window string) error {
	entry, ok := f.Load(pid)
	if !ok {
		return nil
	}
	if _, ok := entry.Windows[window]; !ok {
		return nil
	}
	delete(entry.Windows, window)
	return f.Store(entry)
}

func parseAddr(s string) uint64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0
	}
	return v
}

func formatAddr(v uint64) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("0x%x", v)
}
