package model

import "time"

// Anchor is the discovered location of one named window object in the
// target's managed heap. Addresses are snapshots: the object may move
// or die at any time, so an anchor is only trusted after a probe read
// confirms it still names the window it was cached for.
type Anchor struct {
	// Window is the address of the window object itself.
	Window uint64
	// Text is the address of the window's gui-text object, used by the
	// whole-text fallback when the output queue is absent.
	Text uint64
	// DiscoveredAt records when the full scan found this anchor.
	DiscoveredAt time.Time
}

// CacheEntry is the durable record of everything a full heap scan
// discovered for one process id. Safe to delete at any time; the cost
// is a rescan on the next connect.
type CacheEntry struct {
	PID    int
	Schema int
	// Vtable is the window class vtable value used as the scan needle.
	Vtable  uint64
	Windows map[string]Anchor
}
