//go:build windows

package index

import (
	"time"

	"golang.org/x/sys/windows"
)

// publish replaces dst with tmp.
//
// On Windows, antivirus/indexers can briefly hold a handle on the old file;
// the move is retried for a short period before giving up.
func publish(tmp, dst string) error {
	from, err := windows.UTF16PtrFromString(tmp)
	if err != nil {
		return err
	}
	to, err := windows.UTF16PtrFromString(dst)
	if err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < 15; i++ {
		lastErr = windows.MoveFileEx(from, to, windows.MOVEFILE_REPLACE_EXISTING|windows.MOVEFILE_WRITE_THROUGH)
		if lastErr == nil {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return lastErr
}
