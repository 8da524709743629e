package locate

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/zenchess/mudscan/internal/layout"
	"github.com/zenchess/mudscan/internal/memio"
	"github.com/zenchess/mudscan/internal/scan"
	"github.com/zenchess/mudscan/pkg/model"
)

const (
	heapBase   = 0x100000
	objBase    = 0x200000
	metaBase   = 0x300000
	vtableAddr = 0x7f0000001000
)

// putCString places s inside a padded segment so probe reads of up to
// maxClassNameLen bytes stay mapped.
func putCString(im *memio.Image, addr uint64, s string) {
	buf := make([]byte, maxClassNameLen+8)
	copy(buf, s)
	im.Place(addr, buf)
}

// putString lays out a managed string object at addr.
func putString(im *memio.Image, addr uint64, s string) {
	im.PutU32(addr+0x10, uint32(len([]rune(s))))
	if s != "" {
		im.PutUTF16(addr+0x14, s)
	}
}

// buildWorld assembles a minimal synthetic target: class metadata in a
// fake heap plus window objects in a writable region.
func buildWorld(t *testing.T, windows map[uint64]string) (*memio.Image, model.Region, model.Region) {
	t.Helper()
	im := memio.NewImage()

	// Class metadata candidate at heapBase+0x200.
	heap := make([]byte, 0x1000)
	classOff := 0x200
	binary.LittleEndian.PutUint64(heap[classOff+0x40:], metaBase)      // name
	binary.LittleEndian.PutUint64(heap[classOff+0x48:], metaBase+0x80) // namespace
	binary.LittleEndian.PutUint64(heap[classOff+0xc8:], metaBase+0x100)
	im.Place(heapBase, heap)
	putCString(im, metaBase, "Window")
	putCString(im, metaBase+0x80, "hackmud")
	im.PutU64(metaBase+0x100+0x8, vtableAddr) // runtime info → vtable

	// Window objects, 0x100 apart, each headed by the vtable value.
	obj := make([]byte, 0x1000)
	nameAddr := uint64(metaBase + 0x1000)
	for off, name := range windows {
		binary.LittleEndian.PutUint64(obj[off:], vtableAddr)
		binary.LittleEndian.PutUint64(obj[off+0x90:], nameAddr)
		binary.LittleEndian.PutUint64(obj[off+0x58:], metaBase+0x8000) // gui_text
		putString(im, nameAddr, name)
		nameAddr += 0x100
	}
	im.Place(objBase, obj)

	heapRegion := model.Region{Start: heapBase, End: heapBase + 0x1000, Perms: model.PermRead | model.PermWrite, Path: "[heap]"}
	objRegion := model.Region{Start: objBase, End: objBase + 0x1000, Perms: model.PermRead | model.PermWrite}
	return im, heapRegion, objRegion
}

func testLocator(im *memio.Image) *Locator {
	return &Locator{
		R:         im,
		Scan:      &scan.Scanner{R: im, ChunkSize: 256},
		Offsets:   layout.Default(),
		Class:     "Window",
		Namespace: "hackmud",
		Windows:   []string{"shell", "chat", "badge", "vitals"},
	}
}

func TestFindVtable(t *testing.T) {
	im, heap, _ := buildWorld(t, map[uint64]string{0x0: "shell"})
	l := testLocator(im)

	vt, err := l.FindVtable(heap)
	if err != nil {
		t.Fatal(err)
	}
	if vt != vtableAddr {
		t.Errorf("FindVtable = %#x, want %#x", vt, vtableAddr)
	}
}

func TestFindVtableAbsent(t *testing.T) {
	im, heap, _ := buildWorld(t, nil)
	l := testLocator(im)
	l.Class = "Visor" // not in this build

	_, err := l.FindVtable(heap)
	if !errors.Is(err, ErrClassNotFound) {
		t.Errorf("FindVtable = %v, want ErrClassNotFound", err)
	}
}

func TestScanWindows(t *testing.T) {
	im, _, objRegion := buildWorld(t, map[uint64]string{
		0x0:   "shell",
		0x200: "chat",
		0x400: "scratchpad", // not in the known set
	})
	l := testLocator(im)

	found, err := l.ScanWindows(vtableAddr, []model.Region{objRegion})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]uint64{"shell": objBase, "chat": objBase + 0x200}
	got := map[string]uint64{}
	for name, a := range found {
		got[name] = a.Window
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("ScanWindows mismatch (-want +got):\n%s", diff)
	}
	if found["shell"].Text == 0 {
		t.Error("gui_text address should be captured alongside the anchor")
	}
}

func TestScanWindowsDeterministic(t *testing.T) {
	// Two objects claim to be "shell"; the lower address must win on
	// every scan or caching would not be sound.
	im, _, objRegion := buildWorld(t, map[uint64]string{
		0x100: "shell",
		0x700: "shell",
	})
	l := testLocator(im)

	for i := 0; i < 3; i++ {
		found, err := l.ScanWindows(vtableAddr, []model.Region{objRegion})
		if err != nil {
			t.Fatal(err)
		}
		if found["shell"].Window != objBase+0x100 {
			t.Fatalf("scan %d picked %#x, want lowest hit %#x", i, found["shell"].Window, objBase+0x100)
		}
	}
}

func TestProbe(t *testing.T) {
	im, _, _ := buildWorld(t, map[uint64]string{0x0: "shell"})
	l := testLocator(im)

	if !l.Probe("shell", model.Anchor{Window: objBase}) {
		t.Error("probe of a live anchor should pass")
	}
	if l.Probe("chat", model.Anchor{Window: objBase}) {
		t.Error("probe must fail when the name no longer matches")
	}
	if l.Probe("shell", model.Anchor{Window: 0xdead0000}) {
		t.Error("probe must fail on unreadable memory")
	}
}
