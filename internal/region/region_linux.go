//go:build linux

package region

import (
	"fmt"
	"os"

	"github.com/zenchess/mudscan/pkg/model"
)

// List snapshots pid's memory map from /proc.
func List(pid int) ([]model.Region, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("pid %d: %w", pid, ErrProcessGone)
		}
		return nil, fmt.Errorf("open memory map of pid %d: %w", pid, err)
	}
	defer f.Close()
	return Parse(f)
}
