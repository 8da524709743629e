// Package walk follows the pointer chain from a window anchor down to
// decoded text: window → output container → ring-buffer queue → backing
// array → string objects. Every hop reads live memory the target is
// mutating underneath us, so the walk trusts nothing it read a
// microsecond ago: fields are range-checked at each step and per-slot
// failures are skipped instead of aborting the lines that are fine.
package walk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zenchess/mudscan/internal/layout"
	"github.com/zenchess/mudscan/internal/memio"
	"github.com/zenchess/mudscan/internal/mono"
	"github.com/zenchess/mudscan/pkg/model"
)

// CorruptStructureError reports an invariant violation in the walked
// chain. Unlike a ReadFault it is usually not transient: it means the
// offset table no longer matches the target build and needs
// recalibration.
type CorruptStructureError struct {
	Structure string
	Reason    string
}

func (e *CorruptStructureError) Error() string {
	return fmt.Sprintf("corrupt %s structure: %s (offset table may be stale for this build)", e.Structure, e.Reason)
}

// QueueSnapshot is the transient view of the ring buffer read on every
// walk. Never cached: the queue mutates continuously.
type QueueSnapshot struct {
	Array    uint64
	Head     uint32
	Size     uint32
	Capacity uint32
}

// Walker resolves window text against one memory connection.
type Walker struct {
	R       memio.Reader
	Offsets layout.Table
}

// Lines returns up to n of the window's most recent output lines,
// oldest first. n <= 0 returns everything the queue holds.
//
// Faults on the mandatory chain (anchor to backing array) are returned
// to the caller; faults on individual slots only cost that slot's line.
func (w *Walker) Lines(anchor model.Anchor, n int) ([]string, error) {
	outputOff, err := w.Offsets.Offset("window", "output")
	if err != nil {
		return nil, err
	}
	outputPtr, err := mono.ReadPointer(w.R, anchor.Window+outputOff)
	if err != nil {
		return nil, fmt.Errorf("output container: %w", err)
	}
	if outputPtr == 0 {
		// Older builds have no output queue on the window; fall back
		// to the composed text blob.
		return w.wholeText(anchor, n)
	}
	snap, err := w.queueSnapshot(outputPtr)
	if err != nil {
		return nil, err
	}
	return w.queueLines(snap, n)
}

// queueSnapshot reads the ring buffer's control fields. The three
// scalars are read microseconds apart while the target runs, so the
// combination is validated rather than trusted.
func (w *Walker) queueSnapshot(outputPtr uint64) (QueueSnapshot, error) {
	queueOff, err := w.Offsets.Offset("output", "queue")
	if err != nil {
		return QueueSnapshot{}, err
	}
	queuePtr, err := mono.ReadPointer(w.R, outputPtr+queueOff)
	if err != nil {
		return QueueSnapshot{}, fmt.Errorf("queue: %w", err)
	}
	if !mono.ValidPointer(queuePtr) {
		return QueueSnapshot{}, &CorruptStructureError{Structure: "output", Reason: fmt.Sprintf("queue pointer 0x%x out of range", queuePtr)}
	}

	arrayOff, err := w.Offsets.Offset("queue", "array")
	if err != nil {
		return QueueSnapshot{}, err
	}
	headOff, err := w.Offsets.Offset("queue", "head")
	if err != nil {
		return QueueSnapshot{}, err
	}
	sizeOff, err := w.Offsets.Offset("queue", "size")
	if err != nil {
		return QueueSnapshot{}, err
	}
	lenOff, err := w.Offsets.Offset("array", "length")
	if err != nil {
		return QueueSnapshot{}, err
	}

	arrayPtr, err := mono.ReadPointer(w.R, queuePtr+arrayOff)
	if err != nil {
		return QueueSnapshot{}, fmt.Errorf("backing array: %w", err)
	}
	head, err := mono.ReadInt32(w.R, queuePtr+headOff)
	if err != nil {
		return QueueSnapshot{}, fmt.Errorf("head index: %w", err)
	}
	size, err := mono.ReadInt32(w.R, queuePtr+sizeOff)
	if err != nil {
		return QueueSnapshot{}, fmt.Errorf("queue size: %w", err)
	}
	if head < 0 || size < 0 {
		return QueueSnapshot{}, &CorruptStructureError{Structure: "queue", Reason: fmt.Sprintf("negative head %d or size %d", head, size)}
	}
	snap := QueueSnapshot{Array: arrayPtr, Head: uint32(head), Size: uint32(size)}
	if snap.Size == 0 {
		return snap, nil
	}
	if !mono.ValidPointer(arrayPtr) {
		return QueueSnapshot{}, &CorruptStructureError{Structure: "queue", Reason: fmt.Sprintf("array pointer 0x%x out of range", arrayPtr)}
	}
	capacity, err := mono.ReadInt32(w.R, arrayPtr+lenOff)
	if err != nil {
		return QueueSnapshot{}, fmt.Errorf("array capacity: %w", err)
	}
	if capacity <= 0 || uint32(capacity) < snap.Size {
		// Mid-mutation container or wrong offsets: either way the slot
		// arithmetic below would be nonsense (including a modulo by
		// zero), so refuse.
		return QueueSnapshot{}, &CorruptStructureError{Structure: "queue", Reason: fmt.Sprintf("capacity %d with size %d", capacity, snap.Size)}
	}
	snap.Capacity = uint32(capacity)
	return snap, nil
}

// queueLines decodes the last n logical entries of the ring.
func (w *Walker) queueLines(snap QueueSnapshot, n int) ([]string, error) {
	if snap.Size == 0 {
		return nil, nil
	}
	dataOff, err := w.Offsets.Offset("array", "data")
	if err != nil {
		return nil, err
	}
	dec := mono.StringDecoder{R: w.R, Offsets: w.Offsets}

	first := uint32(0)
	if n > 0 && uint32(n) < snap.Size {
		first = snap.Size - uint32(n)
	}
	// head may transiently exceed capacity; reduce before use.
	head := snap.Head % snap.Capacity

	lines := make([]string, 0, snap.Size-first)
	for i := first; i < snap.Size; i++ {
		slot := (head + i) % snap.Capacity
		slotAddr := snap.Array + dataOff + uint64(slot)*layout.PointerWidth
		ptr, err := mono.ReadPointer(w.R, slotAddr)
		if err != nil || ptr == 0 {
			// A slot the target is rewriting right now. Skip it, keep
			// the rest of the walk.
			continue
		}
		line, err := dec.Decode(ptr)
		if err != nil {
			var de *mono.DecodeError
			if errors.As(err, &de) {
				continue
			}
			return lines, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// wholeText reads the window's composed text component and splits it
// into lines, for builds whose windows carry no output queue.
func (w *Walker) wholeText(anchor model.Anchor, n int) ([]string, error) {
	text := anchor.Text
	if text == 0 {
		guiOff, err := w.Offsets.Offset("window", "gui_text")
		if err != nil {
			return nil, err
		}
		ptr, err := mono.ReadPointer(w.R, anchor.Window+guiOff)
		if err != nil {
			return nil, fmt.Errorf("gui text: %w", err)
		}
		text = ptr
	}
	if !mono.ValidPointer(text) {
		return nil, &CorruptStructureError{Structure: "window", Reason: "no output queue and no gui text"}
	}
	valueOff, err := w.Offsets.Offset("text", "value")
	if err != nil {
		return nil, err
	}
	strPtr, err := mono.ReadPointer(w.R, text+valueOff)
	if err != nil {
		return nil, fmt.Errorf("composed text: %w", err)
	}
	if strPtr == 0 {
		return nil, nil
	}
	dec := mono.StringDecoder{R: w.R, Offsets: w.Offsets}
	blob, err := dec.Decode(strPtr)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(blob, "\n")
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
