package index

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 200 * time.Millisecond

// acquireBuildLock takes the cross-process build lock at path, waiting until
// it is free or ctx is done.
func acquireBuildLock(ctx context.Context, path string) (func(), error) {
	l := flock.New(path)
	for {
		locked, err := l.TryLock()
		if err != nil {
			return func() {}, fmt.Errorf("cannot acquire build lock: %w", err)
		}
		if locked {
			return func() { _ = l.Unlock() }, nil
		}
		select {
		case <-ctx.Done():
			return func() {}, fmt.Errorf("another build is in progress (lock: %s): %w", path, ctx.Err())
		case <-time.After(lockRetryDelay):
		}
	}
}
