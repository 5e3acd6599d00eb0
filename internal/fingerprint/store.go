package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/ngiloq6/cargo/internal/fs"
)

// Store persists and loads per-unit fingerprint strings as plain
// files on disk directly under <target-dir>/<profile>/.fingerprint/,
// one file per unit named by the hex SHA-256 of its unit key; there is
// no per-package subdirectory. It is
// always the source of truth; BoltIndex in store_bolt.go is an
// optional accelerator in front of it, never a replacement.
type Store struct {
	Root string // <target-dir>/<profile>/.fingerprint
}

func (s *Store) path(unitKey string) string {
	sum := sha256.Sum256([]byte(unitKey))
	return filepath.Join(s.Root, hex.EncodeToString(sum[:]))
}

// Load returns the persisted fingerprint string for unitKey, or
// ok=false if none is recorded yet.
func (s *Store) Load(unitKey string) (string, bool, error) {
	b, err := os.ReadFile(s.path(unitKey))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "reading fingerprint for %s", unitKey)
	}
	return string(b), true, nil
}

// Save persists value for unitKey atomically (write-then-rename) so a
// crash mid-write never leaves a corrupt fingerprint file behind.
func (s *Store) Save(unitKey, value string) error {
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return errors.Wrapf(err, "creating fingerprint dir %s", s.Root)
	}
	final := s.path(unitKey)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0o644); err != nil {
		return errors.Wrapf(err, "writing fingerprint for %s", unitKey)
	}
	if err := fs.RenameWithFallback(tmp, final); err != nil {
		return errors.Wrapf(err, "committing fingerprint for %s", unitKey)
	}
	return nil
}

// ArtifactsExist reports whether every expected output path is present,
// the third freshness condition alongside a matching stored fingerprint:
// missing outputs force dirty regardless of fingerprint match.
func ArtifactsExist(paths []string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// IsFresh implements the full fingerprint freshness predicate: the stored
// fingerprint exists, matches the newly computed one, and every
// expected artifact is present.
func IsFresh(store *Store, unitKey string, computed Fingerprint, expectedArtifacts []string) (bool, error) {
	stored, ok, err := store.Load(unitKey)
	if err != nil {
		return false, err
	}
	if !ok || stored != computed.Combined {
		return false, nil
	}
	return ArtifactsExist(expectedArtifacts), nil
}
