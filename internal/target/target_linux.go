//go:build linux

// Package target resolves which running process to attach to.
package target

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Resolve finds the pids of processes whose name or command line
// contains name (case-insensitive), walking /proc. The scanner itself
// and its parent are excluded so "mudscan hackmud" run from a shell
// script never matches the script.
func Resolve(name string) ([]int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	lowerName := strings.ToLower(name)
	selfPid := os.Getpid()
	parentPid := os.Getppid()

	var pids []int
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		if pid == selfPid || pid == parentPid {
			continue
		}
		comm, err := os.ReadFile("/proc/" + e.Name() + "/comm")
		if err == nil && strings.Contains(strings.ToLower(strings.TrimSpace(string(comm))), lowerName) {
			pids = append(pids, pid)
			continue
		}
		cmdline, err := os.ReadFile("/proc/" + e.Name() + "/cmdline")
		if err == nil {
			cmd := strings.ToLower(strings.ReplaceAll(string(cmdline), "\x00", " "))
			if strings.Contains(cmd, lowerName) {
				pids = append(pids, pid)
			}
		}
	}
	if len(pids) == 0 {
		return nil, fmt.Errorf("no running process named %q", name)
	}
	return pids, nil
}

// Alive reports whether pid still names a live process.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.Stat("/proc/" + strconv.Itoa(pid))
	return err == nil
}

// Cmdline returns pid's full command line for disambiguation output.
func Cmdline(pid int) string {
	raw, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.ReplaceAll(string(raw), "\x00", " "))
}
