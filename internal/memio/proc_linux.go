//go:build linux

package memio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// Conn is a live memory connection to a running process. It prefers
// process_vm_readv and falls back to pread on /proc/<pid>/mem when the
// syscall is refused (Yama ptrace scope, seccomp, old kernels). The
// /proc file is opened eagerly either way: it doubles as the liveness
// and permission check at connect time.
type Conn struct {
	pid int
	mem *os.File
	// vm flips off permanently after the first refused vm read.
	vm bool
}

// Open acquires read access to pid's memory. The handle is scoped to
// the connection: release it with Close.
func Open(pid int) (*Conn, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/mem", pid))
	if err != nil {
		return nil, fmt.Errorf("open memory of pid %d: %w", pid, err)
	}
	return &Conn{pid: pid, mem: f, vm: true}, nil
}

func (c *Conn) PID() int { return c.pid }

func (c *Conn) ReadAt(buf []byte, addr uint64) error {
	if len(buf) == 0 {
		return nil
	}
	if c.mem == nil {
		return &ReadFault{Addr: addr, Len: len(buf), Err: os.ErrClosed}
	}
	if c.vm {
		local := []unix.Iovec{{Base: &buf[0], Len: uint64(len(buf))}}
		remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(buf)}}
		n, err := unix.ProcessVMReadv(c.pid, local, remote, 0)
		switch {
		case err == nil && n == len(buf):
			return nil
		case errors.Is(err, unix.EPERM) || errors.Is(err, unix.ENOSYS):
			// Not allowed to use the syscall at all; pread may still
			// work through the already-open fd.
			c.vm = false
		default:
			return &ReadFault{Addr: addr, Len: len(buf), Err: err}
		}
	}
	n, err := c.mem.ReadAt(buf, int64(addr))
	if err != nil && err != io.EOF {
		return &ReadFault{Addr: addr, Len: len(buf), Err: err}
	}
	if n != len(buf) {
		return &ReadFault{Addr: addr, Len: len(buf)}
	}
	return nil
}

// Close releases the memory handle. Safe to call more than once.
func (c *Conn) Close() error {
	if c.mem == nil {
		return nil
	}
	err := c.mem.Close()
	c.mem = nil
	return err
}
