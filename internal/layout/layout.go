// Package layout carries the hand-calibrated field offsets of the
// target's managed runtime. None of these come from headers or debug
// symbols: they were probed empirically against a live process and hold
// only for the runtime build they were calibrated on. A game update can
// silently invalidate any of them, which is why every offset-dependent
// read elsewhere treats a nonsense value as a corrupt-structure signal
// rather than trusting it.
package layout

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Schema is bumped whenever field meanings change, so stale cache files
// and offset files from older releases are rejected instead of
// misinterpreted.
const Schema = 2

// Table maps structure name → field name → byte offset.
type Table struct {
	Schema  int
	Structs map[string]map[string]uint64
}

// PointerWidth is fixed: the target is a 64-bit runtime.
const PointerWidth = 8

// CharWidth of the runtime's string payload (UTF-16).
const CharWidth = 2

// Default returns the current calibration.
func Default() Table {
	return Table{
		Schema: Schema,
		Structs: map[string]map[string]uint64{
			"window": {
				"name":     0x90, // pointer to string object holding the window name
				"gui_text": 0x58, // pointer to the composed-text component
				"output":   0x78, // pointer to the output container
			},
			"output": {
				"queue": 0x10, // pointer to the ring-buffer queue
			},
			"queue": {
				"array": 0x10, // pointer to the backing array
				"head":  0x20, // int32 logical head index
				"size":  0x28, // int32 logical element count
			},
			"array": {
				"length": 0x18, // int32 capacity
				"data":   0x20, // first element slot
			},
			"string": {
				"length": 0x10, // int32 character count
				"data":   0x14, // first UTF-16 code unit
			},
			"text": {
				"value": 0xc8, // pointer to the composed-text string object
			},
			"class": {
				"name":         0x40, // pointer to NUL-terminated class name
				"namespace":    0x48, // pointer to NUL-terminated namespace
				"runtime_info": 0xc8, // pointer to runtime info
			},
			"runtime_info": {
				"vtable": 0x8,
			},
		},
	}
}

// Offset looks up one field. A missing entry means the table does not
// match this build of the code, which callers surface the same way as a
// corrupt structure.
func (t Table) Offset(structure, field string) (uint64, error) {
	fields, ok := t.Structs[structure]
	if !ok {
		return 0, fmt.Errorf("offset table has no structure %q", structure)
	}
	off, ok := fields[field]
	if !ok {
		return 0, fmt.Errorf("offset table has no field %q.%q", structure, field)
	}
	return off, nil
}

// fileTable is the on-disk shape. Offsets are hex strings, matching
// what the external recalibration tooling emits.
type fileTable struct {
	Schema  int                          `json:"schema"`
	Structs map[string]map[string]string `json:"structs"`
}

// Load reads a recalibrated offset table from path. The file replaces
// the defaults wholesale; partial overlays invite mixed-build tables
// that are wrong in ways no probe can catch.
func Load(path string) (Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("load offset table: %w", err)
	}
	var ft fileTable
	if err := json.Unmarshal(raw, &ft); err != nil {
		return Table{}, fmt.Errorf("parse offset table %s: %w", path, err)
	}
	if ft.Schema != Schema {
		return Table{}, fmt.Errorf("offset table %s has schema %d, want %d", path, ft.Schema, Schema)
	}
	t := Table{Schema: ft.Schema, Structs: make(map[string]map[string]uint64, len(ft.Structs))}
	for name, fields := range ft.Structs {
		t.Structs[name] = make(map[string]uint64, len(fields))
		for field, hex := range fields {
			v, err := strconv.ParseUint(hex, 0, 64)
			if err != nil {
				return Table{}, fmt.Errorf("offset table %s: %s.%s = %q: %w", path, name, field, hex, err)
			}
			t.Structs[name][field] = v
		}
	}
	return t, nil
}
