package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/zenchess/mudscan/internal/layout"
	"github.com/zenchess/mudscan/pkg/model"
)

func testFile(t *testing.T) *File {
	t.Helper()
	return &File{Path: filepath.Join(t.TempDir(), "addresses.json")}
}

func sampleEntry(pid int) model.CacheEntry {
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return model.CacheEntry{
		PID:    pid,
		Schema: layout.Schema,
		Vtable: 0x7f12aabbcc00,
		Windows: map[string]model.Anchor{
			"shell": {Window: 0x7f1234560000, Text: 0x7f1234570000, DiscoveredAt: at},
			"chat":  {Window: 0x7f1234580000, DiscoveredAt: at},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	f := testFile(t)
	want := sampleEntry(4242)
	if err := f.Store(want); err != nil {
		t.Fatal(err)
	}
	got, ok := f.Load(4242)
	if !ok {
		t.Fatal("Load missed a just-stored entry")
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissOnPIDMismatch(t *testing.T) {
	f := testFile(t)
	if err := f.Store(sampleEntry(4242)); err != nil {
		t.Fatal(err)
	}
	// The game restarted: same file, new pid. Everything in the old
	// entry is garbage and must be discarded wholesale.
	if _, ok := f.Load(5555); ok {
		t.Error("entry for a different pid must be a miss")
	}
}

func TestLoadMissOnSchemaMismatch(t *testing.T) {
	f := testFile(t)
	entry := sampleEntry(4242)
	entry.Schema = layout.Schema - 1
	if err := f.Store(entry); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.Load(4242); ok {
		t.Error("entry with old schema must be a miss")
	}
}

func TestLoadMissOnGarbageFile(t *testing.T) {
	f := testFile(t)
	if err := os.WriteFile(f.Path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.Load(4242); ok {
		t.Error("corrupt file must be a miss, not an error")
	}
}

func TestLoadMissOnAbsentFile(t *testing.T) {
	f := testFile(t)
	if _, ok := f.Load(4242); ok {
		t.Error("absent file must be a miss")
	}
}

func TestInvalidateSingleWindow(t *testing.T) {
	f := testFile(t)
	if err := f.Store(sampleEntry(4242)); err != nil {
		t.Fatal(err)
	}
	if err := f.Invalidate(4242, "shell"); err != nil {
		t.Fatal(err)
	}
	got, ok := f.Load(4242)
	if !ok {
		t.Fatal("sibling anchors must survive a single invalidation")
	}
	if _, ok := got.Windows["shell"]; ok {
		t.Error("invalidated window still present")
	}
	if _, ok := got.Windows["chat"]; !ok {
		t.Error("sibling window was dropped")
	}
	// unknown window: no-op
	if err := f.Invalidate(4242, "badge"); err != nil {
		t.Fatal(err)
	}
}

func TestDisabledCache(t *testing.T) {
	f := &File{}
	if err := f.Store(sampleEntry(1)); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.Load(1); ok {
		t.Error("disabled cache must always miss")
	}
}
