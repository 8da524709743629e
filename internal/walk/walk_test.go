package walk

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/zenchess/mudscan/internal/layout"
	"github.com/zenchess/mudscan/internal/memio"
	"github.com/zenchess/mudscan/pkg/model"
)

const (
	windowAddr = 0x200000
	outputAddr = 0x210000
	queueAddr  = 0x220000
	arrayAddr  = 0x230000
	strBase    = 0x240000
)

// queueWorld builds window → output → queue → array with the given
// ring geometry, then places lines at the logical slots.
type queueWorld struct {
	im *memio.Image
}

func buildQueue(head, size, capacity uint32, lines []string) queueWorld {
	im := memio.NewImage()
	im.PutU64(windowAddr+0x78, outputAddr)
	im.PutU64(outputAddr+0x10, queueAddr)
	im.PutU64(queueAddr+0x10, arrayAddr)
	im.PutU32(queueAddr+0x20, head)
	im.PutU32(queueAddr+0x28, size)
	im.PutU32(arrayAddr+0x18, capacity)

	for i, line := range lines {
		if capacity == 0 {
			break
		}
		slot := (head + uint32(i)) % capacity
		addr := strBase + uint64(i)*0x100
		im.PutU64(arrayAddr+0x20+uint64(slot)*8, addr)
		im.PutU32(addr+0x10, uint32(len([]rune(line))))
		if line != "" {
			im.PutUTF16(addr+0x14, line)
		}
	}
	return queueWorld{im: im}
}

func (q queueWorld) walker() *Walker {
	return &Walker{R: q.im, Offsets: layout.Default()}
}

func TestLinesRingOrder(t *testing.T) {
	// Capacity 8, head 5, size 3: slots wrap around the end of the
	// array.
	want := []string{"first", "second", "third"}
	q := buildQueue(5, 3, 8, want)

	got, err := q.walker().Lines(model.Anchor{Window: windowAddr}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Lines mismatch (-want +got):\n%s", diff)
	}
}

func TestLinesLastN(t *testing.T) {
	all := []string{"a", "b", "c", "d", "e"}
	q := buildQueue(2, 5, 8, all)

	got, err := q.walker().Lines(model.Anchor{Window: windowAddr}, 2)
	if err != nil {
		t.Fatal(err)
	}
	// last two, still oldest-to-newest
	if diff := cmp.Diff([]string{"d", "e"}, got); diff != "" {
		t.Errorf("Lines mismatch (-want +got):\n%s", diff)
	}

	// n <= 0 returns everything
	got, err = q.walker().Lines(model.Anchor{Window: windowAddr}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(all, got); diff != "" {
		t.Errorf("Lines(0) mismatch (-want +got):\n%s", diff)
	}
}

func TestLinesEmptyQueue(t *testing.T) {
	q := buildQueue(0, 0, 8, nil)
	got, err := q.walker().Lines(model.Anchor{Window: windowAddr}, 10)
	if err != nil {
		t.Fatalf("size=0 must not error, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("size=0 returned %q", got)
	}
}

func TestLinesZeroCapacityCorrupt(t *testing.T) {
	// capacity 0 with size > 0 must be reported as corruption, never
	// reach the modulo.
	q := buildQueue(0, 3, 0, nil)
	_, err := q.walker().Lines(model.Anchor{Window: windowAddr}, 3)
	var ce *CorruptStructureError
	if !errors.As(err, &ce) {
		t.Fatalf("Lines = %v, want *CorruptStructureError", err)
	}
}

func TestLinesSizeBeyondCapacityCorrupt(t *testing.T) {
	q := buildQueue(0, 9, 8, nil)
	_, err := q.walker().Lines(model.Anchor{Window: windowAddr}, 3)
	var ce *CorruptStructureError
	if !errors.As(err, &ce) {
		t.Fatalf("Lines = %v, want *CorruptStructureError", err)
	}
}

func TestLinesHeadBeyondCapacity(t *testing.T) {
	// head is reduced modulo capacity before use: head 13 behaves as 5.
	want := []string{"first", "second", "third"}
	q := buildQueue(5, 3, 8, want)
	// rewrite head field only
	q.im.PutU32(queueAddr+0x20, 13)

	got, err := q.walker().Lines(model.Anchor{Window: windowAddr}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Lines mismatch (-want +got):\n%s", diff)
	}
}

func TestLinesSkipsNullAndCorruptSlots(t *testing.T) {
	q := buildQueue(0, 4, 8, []string{"keep1", "drop", "keep2", "bad"})
	// null out slot 1
	q.im.PutU64(arrayAddr+0x20+1*8, 0)
	// slot 3: implausible length field → per-element decode error
	q.im.PutU32(strBase+3*0x100+0x10, 0x7fffffff)

	got, err := q.walker().Lines(model.Anchor{Window: windowAddr}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"keep1", "keep2"}, got); diff != "" {
		t.Errorf("Lines mismatch (-want +got):\n%s", diff)
	}
}

func TestLinesFaultOnMandatoryHop(t *testing.T) {
	im := memio.NewImage()
	// window maps, but the output pointer leads nowhere readable
	im.PutU64(windowAddr+0x78, 0x660000)
	w := &Walker{R: im, Offsets: layout.Default()}

	_, err := w.Lines(model.Anchor{Window: windowAddr}, 3)
	var fault *memio.ReadFault
	if !errors.As(err, &fault) {
		t.Fatalf("Lines = %v, want wrapped *ReadFault", err)
	}
}

func TestLinesDistinctSlots(t *testing.T) {
	// Every (head, size) with size <= capacity visits size distinct
	// slots; verified by the count of decoded lines when all slots are
	// populated and unique.
	const capacity = 8
	for head := uint32(0); head < 2*capacity; head++ {
		for size := uint32(0); size <= capacity; size++ {
			lines := make([]string, size)
			for i := range lines {
				lines[i] = string(rune('a' + i))
			}
			q := buildQueue(head, size, capacity, lines)
			got, err := q.walker().Lines(model.Anchor{Window: windowAddr}, 0)
			if err != nil {
				t.Fatalf("head=%d size=%d: %v", head, size, err)
			}
			if diff := cmp.Diff(lines, got, cmpopts.EquateEmpty()); diff != "" {
				t.Fatalf("head=%d size=%d mismatch (-want +got):\n%s", head, size, diff)
			}
		}
	}
}

func TestWholeTextFallback(t *testing.T) {
	im := memio.NewImage()
	im.PutU64(windowAddr+0x78, 0) // no output queue on this build
	im.PutU64(windowAddr+0x58, 0x270000)
	im.PutU64(0x270000+0xc8, 0x280000)
	blob := "one\ntwo\nthree"
	im.PutU32(0x280000+0x10, uint32(len(blob)))
	im.PutUTF16(0x280000+0x14, blob)

	w := &Walker{R: im, Offsets: layout.Default()}
	got, err := w.Lines(model.Anchor{Window: windowAddr}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"two", "three"}, got); diff != "" {
		t.Errorf("fallback mismatch (-want +got):\n%s", diff)
	}
}
