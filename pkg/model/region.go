package model

// Perms describes a mapped region's access bits as parsed from the
// target's memory map.
type Perms uint8

const (
	PermRead Perms = 1 << iota
	PermWrite
	PermExec
	PermPrivate
)

func (p Perms) Has(want Perms) bool { return p&want == want }

func (p Perms) String() string {
	b := []byte("---p")
	if p.Has(PermRead) {
		b[0] = 'r'
	}
	if p.Has(PermWrite) {
		b[1] = 'w'
	}
	if p.Has(PermExec) {
		b[2] = 'x'
	}
	if !p.Has(PermPrivate) {
		b[3] = 's'
	}
	return string(b)
}

// Region is one mapped address range in the target process. Regions are
// sourced fresh from the OS on every scan and never persisted; a Region
// is only meaningful against the snapshot it was read from.
type Region struct {
	Start uint64
	End   uint64
	Perms Perms
	// Path is the backing file, "[heap]", "[stack]", or empty for
	// anonymous mappings.
	Path string
}

func (r Region) Size() uint64 { return r.End - r.Start }

func (r Region) Contains(addr uint64) bool { return addr >= r.Start && addr < r.End }
