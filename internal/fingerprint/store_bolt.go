package fingerprint

import (
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

var fingerprintBucket = []byte("fingerprints")

// BoltIndex is an accelerating cache in front of Store: most runs only
// need to answer "is this unit fresh?", which a single bucket lookup
// answers without the extra stat/read Store.Load costs on a cold page
// cache. A miss here always falls back to Store, which remains the
// sole source of truth — a corrupt or deleted bolt file never causes
// an incorrect freshness verdict, only a slower one.
//
// Grounded on golang-dep's internal/gps/source_cache_bolt.go: one
// top-level bucket, opened once per process with a short lock timeout
// so a crashed prior process doesn't wedge every subsequent run.
type BoltIndex struct {
	db    *bolt.DB
	store *Store
}

// OpenBoltIndex opens (creating if necessary) the bolt file backing
// store's fingerprint directory.
func OpenBoltIndex(store *Store) (*BoltIndex, error) {
	if err := os.MkdirAll(store.Root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating fingerprint dir %s", store.Root)
	}
	path := filepath.Join(store.Root, "fingerprint-cache.db")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening fingerprint cache %s", path)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(fingerprintBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initializing fingerprint cache bucket")
	}
	return &BoltIndex{db: db, store: store}, nil
}

func (idx *BoltIndex) Close() error {
	return errors.Wrap(idx.db.Close(), "closing fingerprint cache")
}

// Load returns the fingerprint for unitKey, consulting the bolt index
// first and repopulating it from Store on a miss.
func (idx *BoltIndex) Load(unitKey string) (string, bool, error) {
	var cached string
	var hit bool
	err := idx.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(fingerprintBucket).Get([]byte(unitKey))
		if v != nil {
			cached, hit = string(v), true
		}
		return nil
	})
	if err != nil {
		return "", false, errors.Wrap(err, "reading fingerprint cache")
	}
	if hit {
		return cached, true, nil
	}

	v, ok, err := idx.store.Load(unitKey)
	if err != nil || !ok {
		return v, ok, err
	}
	_ = idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(fingerprintBucket).Put([]byte(unitKey), []byte(v))
	})
	return v, true, nil
}

// Save writes value to both the durable Store and the bolt index.
func (idx *BoltIndex) Save(unitKey, value string) error {
	if err := idx.store.Save(unitKey, value); err != nil {
		return err
	}
	return idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(fingerprintBucket).Put([]byte(unitKey), []byte(value))
	})
}

// IsFresh mirrors the package-level IsFresh but through the
// accelerating index.
func (idx *BoltIndex) IsFresh(unitKey string, computed Fingerprint, expectedArtifacts []string) (bool, error) {
	stored, ok, err := idx.Load(unitKey)
	if err != nil {
		return false, err
	}
	if !ok || stored != computed.Combined {
		return false, nil
	}
	return ArtifactsExist(expectedArtifacts), nil
}
