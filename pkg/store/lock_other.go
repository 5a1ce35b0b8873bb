//go:build !unix && !windows

package store

import (
	"errors"
	"fmt"
	"os"
	"time"
)

const lockFileName = ".package-cache.lock"

// lockPollInterval is how often a waiting process retries O_EXCL creation.
const lockPollInterval = 100 * time.Millisecond

// Lock is a held package cache lock. Without flock the lock is the existence
// of the lock file, created with O_EXCL and deleted on release.
type Lock struct {
	path string
}

func acquire(path string) (*Lock, error) {
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
		if err == nil {
			f.Close()
			return &Lock{path: path}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("open lock file %s: %w", path, err)
		}
		time.Sleep(lockPollInterval)
	}
}

// Release removes the lock file. Calling it more than once is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	path := l.path
	l.path = ""
	return os.Remove(path)
}
