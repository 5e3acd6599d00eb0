// Package cachelock implements the global package-cache advisory lock:
// an OS-level file lock so two cargo processes never write the same
// cache directory concurrently, refcounted within
// one process so nested acquisitions (a workspace build calling into
// itself for a build-script sub-invocation) don't deadlock on their own
// lock, and degrading to a shared (read) lock when the cache directory
// turns out to be read-only.
//
// Grounded on golang-dep's vendored github.com/theckman/go-flock: the
// same Flock type, used here directly rather than reimplemented.
package cachelock

import (
	"path/filepath"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/theckman/go-flock"

	"github.com/ngiloq6/cargo/internal/cargoerr"
)

const lockFileName = ".cargo-lock"

// Lock guards one cache directory. Acquire/Release are refcounted so
// multiple callers within the same process can hold overlapping
// sections without the second Acquire blocking on the first.
type Lock struct {
	mu       sync.Mutex
	fl       *flock.Flock
	refs     int
	shared   bool // true once degraded to a shared lock
	cacheDir string
}

// New returns a Lock over <cacheDir>/.cargo-lock. The lock file itself
// is created lazily on first Acquire.
func New(cacheDir string) *Lock {
	return &Lock{fl: flock.NewFlock(filepath.Join(cacheDir, lockFileName)), cacheDir: cacheDir}
}

// Acquire takes an exclusive lock on first call; nested calls from the
// same process just bump the refcount. If the cache directory is
// read-only, Acquire transparently degrades to a shared lock — a
// non-fatal condition — and every later Acquire in this Lock's
// lifetime also uses the shared path, since an exclusive lock is
// definitionally impossible there.
func (l *Lock) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.refs > 0 {
		l.refs++
		return nil
	}

	if l.shared {
		if err := l.fl.RLock(); err != nil {
			return cargoerr.IO(err, "acquiring shared cache lock on %s", l.cacheDir)
		}
		l.refs++
		return nil
	}

	if err := l.fl.Lock(); err != nil {
		if isReadonly(err) {
			if rerr := l.fl.RLock(); rerr != nil {
				return cargoerr.IO(rerr, "acquiring shared cache lock on %s after readonly filesystem", l.cacheDir)
			}
			l.shared = true
			l.refs++
			return nil
		}
		return cargoerr.IO(err, "acquiring exclusive cache lock on %s", l.cacheDir)
	}
	l.refs++
	return nil
}

// Release drops one reference, unlocking the underlying file handle
// once the refcount reaches zero.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.refs == 0 {
		return errors.New("cachelock: Release called without a matching Acquire")
	}
	l.refs--
	if l.refs > 0 {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return cargoerr.IO(err, "releasing cache lock on %s", l.cacheDir)
	}
	return nil
}

// Shared reports whether this Lock degraded to a read-only shared
// lock, for diagnostics/logging.
func (l *Lock) Shared() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shared
}

func isReadonly(err error) bool {
	return errors.Is(err, syscall.EROFS) || errors.Is(err, syscall.EPERM)
}
