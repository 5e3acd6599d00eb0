// Package ident provides canonical, interned identifiers for
// packages and sources.
//
// Two SourceIds or PackageIds built from equal inputs resolve to the
// exact same *SourceId / *PackageId pointer, so callers can use pointer
// equality and a precomputed hash anywhere the rest of the system
// needs a cheap identity check — the resolver's conflict cache and the
// fingerprint engine both lean on this.
package ident

import (
	"fmt"
	"sync"

	"github.com/armon/go-radix"
)

// SourceKind tags the provider behind a SourceId.
type SourceKind uint8

const (
	// KindPath is a local filesystem path dependency; mutable, never cached
	// by content hash.
	KindPath SourceKind = iota
	// KindGit is a git remote, optionally pinned to a precise revision.
	KindGit
	// KindRegistry is a remote package registry (the network protocol
	// itself is out of scope; this tags only the identity).
	KindRegistry
	// KindLocalRegistry is a filesystem-backed mirror of a registry.
	KindLocalRegistry
	// KindDirectory is a directory of unpacked package trees, used by
	// vendoring and by tests.
	KindDirectory
)

func (k SourceKind) String() string {
	switch k {
	case KindPath:
		return "path"
	case KindGit:
		return "git"
	case KindRegistry:
		return "registry"
	case KindLocalRegistry:
		return "local-registry"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// SourceId identifies a provider of packages: a URL plus a kind tag, with
// an optional precise locator (e.g. a resolved git commit).
//
// Two SourceIds may be "loosely" equal — same URL and Kind, different
// Precise — which is what the resolver uses to decide whether two
// dependency edges point at the "same" source for the purposes of
// single-selection. "Full" equality (Precise included) is what the
// fingerprint engine uses, since a path source has no Precise at all
// and a git source's Precise is exactly the thing that changes its
// content.
type SourceId struct {
	URL     string
	Kind    SourceKind
	GitRef  string // branch/tag/rev requested, Git kind only
	Precise string // resolved commit / content digest, once known

	looseKey string
	fullKey  string
	hash     uint64
}

// LooseKey returns the string used to intern/compare ignoring Precise.
func (s *SourceId) LooseKey() string { return s.looseKey }

// FullKey returns the string used to intern/compare including Precise.
func (s *SourceId) FullKey() string { return s.fullKey }

// Hash is a cheap, stable-for-process-lifetime hash suitable for map
// keys that need an integer rather than a struct.
func (s *SourceId) Hash() uint64 { return s.hash }

func (s *SourceId) String() string {
	if s.Precise != "" {
		return fmt.Sprintf("%s+%s#%s", s.Kind, s.URL, s.Precise)
	}
	return fmt.Sprintf("%s+%s", s.Kind, s.URL)
}

// LooseEq reports whether two SourceIds refer to the same provider,
// ignoring any precise locator.
func (s *SourceId) LooseEq(o *SourceId) bool {
	if s == o {
		return true
	}
	return s.looseKey == o.looseKey
}

// Immutable reports whether this source's content, once fetched at a
// given Precise, can never change underneath the cache — true for a
// pinned git revision or a registry package, false for a path source.
func (s *SourceId) Immutable() bool {
	switch s.Kind {
	case KindPath:
		return false
	case KindGit:
		return s.Precise != ""
	default:
		return true
	}
}

type sourceTable struct {
	mu sync.RWMutex
	t  *radix.Tree
}

var sources = &sourceTable{t: radix.New()}

// Source interns a SourceId, returning the canonical, shared pointer
// for its (URL, Kind, GitRef, Precise) tuple. Once issued, a pointer
// stays valid and is never mutated or invalidated — the table only
// ever grows (leaked-immortal strategy, per the interning tables'
// concurrency contract).
func Source(url string, kind SourceKind, gitRef, precise string) *SourceId {
	loose := fmt.Sprintf("%d\x00%s\x00%s", kind, url, gitRef)
	full := loose + "\x00" + precise

	sources.mu.RLock()
	if v, ok := sources.t.Get(full); ok {
		sources.mu.RUnlock()
		return v.(*SourceId)
	}
	sources.mu.RUnlock()

	sources.mu.Lock()
	defer sources.mu.Unlock()
	if v, ok := sources.t.Get(full); ok {
		return v.(*SourceId)
	}

	sid := &SourceId{
		URL:      url,
		Kind:     kind,
		GitRef:   gitRef,
		Precise:  precise,
		looseKey: loose,
		fullKey:  full,
		hash:     fnv64(full),
	}
	sources.t.Insert(full, sid)
	return sid
}

// SourcesWithLoosePrefix returns every interned SourceId sharing a
// loose-key prefix; used by the registry to find all variants (e.g.
// different pinned revisions) of a configured override target.
func SourcesWithLoosePrefix(loosePrefix string) []*SourceId {
	sources.mu.RLock()
	defer sources.mu.RUnlock()

	var out []*SourceId
	sources.t.WalkPrefix(loosePrefix, func(_ string, v interface{}) bool {
		out = append(out, v.(*SourceId))
		return false
	})
	return out
}

func fnv64(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}
