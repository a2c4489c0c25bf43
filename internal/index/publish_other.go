//go:build !windows

package index

import (
	"os"
	"path/filepath"
)

// publish renames tmp over dst and syncs the parent directory so the new
// entry survives a crash.
func publish(tmp, dst string) error {
	if err := os.Rename(tmp, dst); err != nil {
		return err
	}
	d, err := os.Open(filepath.Dir(dst))
	if err != nil {
		return nil
	}
	defer d.Close()
	_ = d.Sync()
	return nil
}
