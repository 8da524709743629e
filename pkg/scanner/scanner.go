// Package scanner is the public face of mudscan: attach to a running
// hackmud process, locate its terminal windows in managed-heap memory,
// and read their text while the game keeps running.
//
// A Scanner owns one memory connection and is not safe for concurrent
// use; construct one per goroutine or per target. Multiple independent
// Scanners against the same process are fine. The address cache they
// share is last-writer-wins, and every cached value is revalidated
// before trust, never believed blindly.
package scanner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zenchess/mudscan/internal/cache"
	"github.com/zenchess/mudscan/internal/layout"
	"github.com/zenchess/mudscan/internal/locate"
	"github.com/zenchess/mudscan/internal/markup"
	"github.com/zenchess/mudscan/internal/memio"
	"github.com/zenchess/mudscan/internal/region"
	"github.com/zenchess/mudscan/internal/scan"
	"github.com/zenchess/mudscan/internal/target"
	"github.com/zenchess/mudscan/internal/walk"
	"github.com/zenchess/mudscan/pkg/model"
)

var (
	// ErrProcessNotFound reports that no matching target process
	// exists. Fatal to Connect.
	ErrProcessNotFound = errors.New("game process not found")
	// ErrWindowNotFound is re-exported from the locator: neither cache
	// nor scan produced an anchor. Fatal to the call, not the
	// connection.
	ErrWindowNotFound = locate.ErrWindowNotFound
	// ErrUnknownWindow reports a window name outside the configured
	// set, rejected before any memory work.
	ErrUnknownWindow = errors.New("unknown window name")
	// ErrNotConnected reports an operation on a disconnected scanner.
	ErrNotConnected = errors.New("scanner is not connected")
)

// Seams for tests: the fake process is a memio.Image plus a canned
// region catalog.
var (
	openProcess = func(pid int) (memio.Reader, func() error, error) {
		conn, err := memio.Open(pid)
		if err != nil {
			return nil, nil, err
		}
		return conn, conn.Close, nil
	}
	listRegions  = region.List
	processAlive = target.Alive
	resolveName  = target.Resolve
)

// State of the connection machine: Disconnected, Connecting while
// attach is in flight, Connected, and back to Disconnected on Close or
// connect failure.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// DefaultWindows is the window set the game creates. Extend via
// Config.Windows when the game grows new panes.
var DefaultWindows = []string{"shell", "chat", "badge", "vitals"}

// Config controls scanner construction. The zero value targets a local
// hackmud process with current calibration.
type Config struct {
	// ProcessName matches against /proc comm and cmdline when PID is
	// zero.
	ProcessName string
	// PID pins an exact process, skipping name resolution.
	PID int
	// CachePath is the anchor cache file. Empty selects the default
	// under the user config dir; "-" disables caching.
	CachePath string
	// Offsets replaces the built-in calibration when non-nil.
	Offsets *layout.Table
	// Windows replaces DefaultWindows when non-empty.
	Windows []string
	// Class and Namespace name the window class in runtime metadata.
	Class     string
	Namespace string
	// MaxRegionSize caps scanned region size; 0 means the default
	// ceiling.
	MaxRegionSize uint64
}

func (c *Config) fill() {
	if c.ProcessName == "" {
		c.ProcessName = "hackmud"
	}
	if len(c.Windows) == 0 {
		c.Windows = DefaultWindows
	}
	if c.Class == "" {
		c.Class = "Window"
	}
	if c.Namespace == "" {
		c.Namespace = "hackmud"
	}
	if c.MaxRegionSize == 0 {
		c.MaxRegionSize = region.DefaultMaxSize
	}
	if c.CachePath == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			c.CachePath = filepath.Join(dir, "mudscan", "addresses.json")
		} else {
			c.CachePath = "-"
		}
	}
}

// Scanner reads terminal text out of one target process.
type Scanner struct {
	cfg     Config
	state   State
	pid     int
	r       memio.Reader
	closeFn func() error
	regions []model.Region
	offsets layout.Table
	cache   *cache.File
	locator *locate.Locator
	walker  *walk.Walker
	anchors map[string]model.Anchor
	vtable  uint64
}

// New builds a disconnected scanner. Call Connect before reading.
func New(cfg Config) *Scanner {
	cfg.fill()
	s := &Scanner{cfg: cfg, offsets: layout.Default()}
	if cfg.Offsets != nil {
		s.offsets = *cfg.Offsets
	}
	path := cfg.CachePath
	if path == "-" {
		path = ""
	}
	s.cache = &cache.File{Path: path}
	return s
}

// State reports the connection state.
func (s *Scanner) State() State { return s.state }

// PID returns the attached process id, 0 before the first Connect.
func (s *Scanner) PID() int { return s.pid }

// Connect resolves the target process, opens its memory, and primes
// the window anchors from cache or a full scan. Idempotent while
// connected.
func (s *Scanner) Connect() error {
	if s.state == Connected {
		return nil
	}
	pid := s.cfg.PID
	if pid == 0 {
		pids, err := resolveName(s.cfg.ProcessName)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrProcessNotFound, err)
		}
		// Prefer the lowest pid: game launchers spawn helper processes
		// after the game itself.
		pid = pids[0]
		for _, p := range pids[1:] {
			if p < pid {
				pid = p
			}
		}
	} else if !processAlive(pid) {
		return fmt.Errorf("%w: pid %d", ErrProcessNotFound, pid)
	}

	s.state = Connecting
	r, closeFn, err := openProcess(pid)
	if err != nil {
		s.state = Disconnected
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: pid %d", ErrProcessNotFound, pid)
		}
		return err
	}
	s.pid = pid
	s.r = r
	s.closeFn = closeFn

	if err := s.attach(); err != nil {
		s.Close()
		return err
	}
	s.state = Connected
	return nil
}

// attach snapshots the region catalog and primes anchors.
func (s *Scanner) attach() error {
	regions, err := listRegions(s.pid)
	if err != nil {
		if errors.Is(err, region.ErrProcessGone) {
			return fmt.Errorf("%w: pid %d", ErrProcessNotFound, s.pid)
		}
		return err
	}
	s.regions = regions
	s.locator = &locate.Locator{
		R:         s.r,
		Scan:      &scan.Scanner{R: s.r},
		Offsets:   s.offsets,
		Class:     s.cfg.Class,
		Namespace: s.cfg.Namespace,
		Windows:   s.cfg.Windows,
	}
	s.walker = &walk.Walker{R: s.r, Offsets: s.offsets}
	return s.primeAnchors(false)
}

// primeAnchors fills the anchor map: validated cache entries first,
// then one full scan for whatever is missing or stale. force skips the
// cache entirely.
func (s *Scanner) primeAnchors(force bool) error {
	s.anchors = make(map[string]model.Anchor)
	s.vtable = 0
	stale := false

	if !force {
		if entry, ok := s.cache.Load(s.pid); ok {
			s.vtable = entry.Vtable
			for name, a := range entry.Windows {
				if s.locator.Probe(name, a) {
					s.anchors[name] = a
				} else {
					stale = true
				}
			}
			if len(s.anchors) > 0 && !stale {
				// Fast path: every cached anchor revalidated, no scan.
				return nil
			}
		}
	}
	return s.rescan()
}

// rescan runs the slow path: vtable discovery plus a window sweep.
// Anchors that already validated are kept; scan results fill the rest.
func (s *Scanner) rescan() error {
	sweep := s.scanRegions()
	if s.vtable == 0 {
		heap, ok := region.Heap(s.regions)
		if !ok {
			return fmt.Errorf("target has no heap region: %w", locate.ErrClassNotFound)
		}
		vt, err := s.locator.FindVtable(heap)
		if err != nil {
			return err
		}
		s.vtable = vt
	}
	found, err := s.locator.ScanWindows(s.vtable, sweep)
	if err != nil {
		return err
	}
	if len(found) == 0 && len(s.anchors) == 0 {
		// The cached vtable may predate a relocation; one retry with a
		// freshly discovered vtable is the only second look we take.
		if vt, err := s.rediscoverVtable(); err == nil && vt != 0 {
			s.vtable = vt
			if found, err = s.locator.ScanWindows(vt, sweep); err != nil {
				return err
			}
		}
	}
	for name, a := range found {
		if _, ok := s.anchors[name]; !ok {
			s.anchors[name] = a
		}
	}
	s.storeCache()
	return nil
}

// rediscoverVtable repeats heap discovery, returning 0 when the result
// would not change anything.
func (s *Scanner) rediscoverVtable() (uint64, error) {
	heap, ok := region.Heap(s.regions)
	if !ok {
		return 0, nil
	}
	vt, err := s.locator.FindVtable(heap)
	if err != nil {
		return 0, err
	}
	if vt == s.vtable {
		return 0, nil
	}
	return vt, nil
}

func (s *Scanner) scanRegions() []model.Region {
	return region.Select(s.regions, region.Filter{
		Perms:     model.PermRead | model.PermWrite,
		MaxSize:   s.cfg.MaxRegionSize,
		Anonymous: true,
	})
}

func (s *Scanner) storeCache() {
	if len(s.anchors) == 0 && s.vtable == 0 {
		return
	}
	entry := model.CacheEntry{
		PID:     s.pid,
		Schema:  s.offsets.Schema,
		Vtable:  s.vtable,
		Windows: s.anchors,
	}
	// Best effort: a failed cache write only costs the next run a
	// rescan.
	_ = s.cache.Store(entry)
}

// Rescan drops all cached state and repeats the full discovery scan.
func (s *Scanner) Rescan() error {
	if s.state != Connected {
		return ErrNotConnected
	}
	return s.primeAnchors(true)
}

// Windows lists the configured window names.
func (s *Scanner) Windows() []string {
	out := make([]string, len(s.cfg.Windows))
	copy(out, s.cfg.Windows)
	return out
}

// Anchors returns a copy of the currently resolved window anchors.
func (s *Scanner) Anchors() map[string]model.Anchor {
	out := make(map[string]model.Anchor, len(s.anchors))
	for name, a := range s.anchors {
		out[name] = a
	}
	return out
}

// ReadWindow returns up to n of the named window's most recent lines,
// oldest first. n <= 0 means all buffered lines. Color markup is
// stripped unless raw is set.
//
// The anchor is revalidated with a probe read on every call; a stale
// anchor triggers one targeted rescan before the window is declared
// missing.
func (s *Scanner) ReadWindow(name string, n int, raw bool) ([]string, error) {
	if s.state != Connected {
		return nil, ErrNotConnected
	}
	if !s.knownWindow(name) {
		return nil, fmt.Errorf("%w: %q (valid: %v)", ErrUnknownWindow, name, s.cfg.Windows)
	}

	anchor, ok := s.anchors[name]
	if ok && !s.locator.Probe(name, anchor) {
		// The object moved or died: invalidate this entry alone and
		// fall through to a fresh scan.
		delete(s.anchors, name)
		_ = s.cache.Invalidate(s.pid, name)
		ok = false
	}
	if !ok {
		if err := s.rescan(); err != nil {
			return nil, err
		}
		if anchor, ok = s.anchors[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrWindowNotFound, name)
		}
	}

	lines, err := s.walker.Lines(anchor, n)
	if err != nil {
		return nil, fmt.Errorf("read window %q: %w", name, err)
	}
	if !raw {
		lines = markup.StripAll(lines)
	}
	return lines, nil
}

// Version scans for the game's version label. Best effort and
// advisory: the label has no structural anchor, so this is a shape
// heuristic (see locate.Version) and is independent of the window
// cache.
func (s *Scanner) Version() (string, error) {
	if s.state != Connected {
		return "", ErrNotConnected
	}
	return s.locator.Version(s.scanRegions())
}

// Close releases the memory handle and returns the scanner to
// Disconnected. Idempotent.
func (s *Scanner) Close() error {
	s.state = Disconnected
	if s.closeFn == nil {
		return nil
	}
	err := s.closeFn()
	s.closeFn = nil
	return err
}

func (s *Scanner) knownWindow(name string) bool {
	for _, w := range s.cfg.Windows {
		if w == name {
			return true
		}
	}
	return false
}
