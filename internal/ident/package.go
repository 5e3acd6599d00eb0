package ident

import (
	"fmt"
	"sync"

	"github.com/armon/go-radix"
)

// PackageId is the canonical triple (name, version, source) the rest of
// the system treats as an atomic, cheaply-comparable identity. Like
// SourceId, instances are interned: two PackageIds built from equal
// inputs are the same pointer.
type PackageId struct {
	Name    string
	Version Version
	Source  *SourceId

	key  string
	hash uint64
}

func (p *PackageId) String() string {
	return fmt.Sprintf("%s@%s", p.Name, p.Version)
}

// Key returns the interning key, also usable directly as a stable map
// key when a *PackageId pointer itself is inconvenient (e.g. when
// crossing a process boundary via JSON  unit graph
// serialization).
func (p *PackageId) Key() string { return p.key }

func (p *PackageId) Hash() uint64 { return p.hash }

type packageTable struct {
	mu sync.RWMutex
	t  *radix.Tree
}

var packages = &packageTable{t: radix.New()}

// Package interns a PackageId for (name, version, source).
func Package(name string, version Version, source *SourceId) *PackageId {
	key := fmt.Sprintf("%s\x00%s\x00%s", name, version, source.FullKey())

	packages.mu.RLock()
	if v, ok := packages.t.Get(key); ok {
		packages.mu.RUnlock()
		return v.(*PackageId)
	}
	packages.mu.RUnlock()

	packages.mu.Lock()
	defer packages.mu.Unlock()
	if v, ok := packages.t.Get(key); ok {
		return v.(*PackageId)
	}

	pid := &PackageId{
		Name:    name,
		Version: version,
		Source:  source,
		key:     key,
		hash:    fnv64(key),
	}
	packages.t.Insert(key, pid)
	return pid
}

// ByNamePrefix lists interned PackageIds whose name has the given
// prefix — used by CLI tree/search helpers, not by the resolver itself
// (the resolver always queries through the registry, never the
// interning table, since interning only records what has already been
// *seen*, not what is available).
func ByNamePrefix(prefix string) []*PackageId {
	packages.mu.RLock()
	defer packages.mu.RUnlock()

	var out []*PackageId
	packages.t.WalkPrefix(prefix, func(_ string, v interface{}) bool {
		out = append(out, v.(*PackageId))
		return false
	})
	return out
}
