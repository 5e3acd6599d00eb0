// Package registry aggregates N sources, honors
// per-source overrides, and answers "which candidates satisfy this
// requirement?" in a deterministic, policy-governed order.
//
// Grounded on golang-dep's SourceMgr/bridge split (source_manager.go,
// bridge.go): a manager owns and caches sources, while a thin
// query-time layer handles version-list sorting and memoization for
// one resolution.
package registry

import (
	"sort"
	"sync"

	"github.com/ngiloq6/cargo/internal/ident"
	"github.com/ngiloq6/cargo/internal/source"
	"github.com/pkg/errors"
)

// Policy governs candidate precedence.
type Policy uint8

const (
	// PreferLatest returns candidates highest-version-first (the
	// default).
	PreferLatest Policy = iota
	// PreferMinimal reverses precedence to lowest-version-first —
	// this "minimal versions" policy. It does not change the
	// *set* of possible solutions, only which one is found first.
	PreferMinimal
)

// Candidate is a Summary paired with the source it came from, so the
// resolver can ask for a package once a version is chosen.
type Candidate struct {
	Summary source.Summary
	Source  *ident.SourceId
}

// Registry aggregates sources and answers candidate queries.
type Registry struct {
	mu        sync.Mutex
	sources   map[string]source.Source // keyed by SourceId.FullKey()
	overrides map[string]*ident.SourceId // loose-key -> replacement source id
	cache     map[string][]Candidate    // per-resolution cache, keyed by dep name+source+requirement+features
	policy    Policy
}

func New(policy Policy) *Registry {
	return &Registry{
		sources:   make(map[string]source.Source),
		overrides: make(map[string]*ident.SourceId),
		cache:     make(map[string][]Candidate),
		policy:    policy,
	}
}

// AddSource registers a concrete Source for a SourceId.
func (r *Registry) AddSource(id *ident.SourceId, s source.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[id.FullKey()] = s
}

// SourceFor returns the concrete Source registered for id, if any —
// used by test fixtures that need to add further versions to a source
// they already registered.
func (r *Registry) SourceFor(id *ident.SourceId) (source.Source, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sources[id.FullKey()]
	return s, ok
}

// Override replaces every query against `from` (matched loosely) with
// queries against `to`, mirroring golang-dep's [[override]] manifest
// stanza.
func (r *Registry) Override(from, to *ident.SourceId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[from.LooseKey()] = to
}

func (r *Registry) resolveOverride(id *ident.SourceId) *ident.SourceId {
	if to, ok := r.overrides[id.LooseKey()]; ok {
		return to
	}
	return id
}

// EffectiveSource resolves id through the override table without
// performing a query, so callers that need to compare source identity
// (the resolver's coexistence checks) see the same source Query would
// have used.
func (r *Registry) EffectiveSource(id *ident.SourceId) *ident.SourceId {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveOverride(id)
}

// DescribeSource reports whether id is overridden and whether its
// backing source is immutable.
func (r *Registry) DescribeSource(id *ident.SourceId) source.Description {
	r.mu.Lock()
	defer r.mu.Unlock()
	eff := r.resolveOverride(id)
	return source.Description{
		Id:         eff,
		Immutable:  eff.Immutable(),
		Overridden: eff != id,
	}
}

// Query returns every candidate that could satisfy dep, in
// deterministic precedence order: by default highest version first,
// reversed under PreferMinimal. Overrides are applied before
// delegating to the concrete source.
func (r *Registry) Query(dep source.Dependency) ([]Candidate, error) {
	r.mu.Lock()
	eff := r.resolveOverride(dep.Source)
	cacheKey := dep.Name + "\x00" + eff.FullKey() + "\x00" + dep.Requirement.String()
	for _, f := range dep.FeaturesRequested {
		cacheKey += "\x00" + f
	}
	if cached, ok := r.cache[cacheKey]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	src, ok := r.sources[eff.FullKey()]
	r.mu.Unlock()
	if !ok {
		return nil, errors.Errorf("no source registered for %s", eff)
	}

	versions, err := src.ListVersions()
	if err != nil {
		return nil, errors.Wrapf(err, "listing versions of %s from %s", dep.Name, eff)
	}

	var candidates []Candidate
	for _, v := range versions {
		if !dep.Requirement.Matches(v) {
			continue
		}
		sum, err := src.Summary(dep.Name, v)
		if err != nil {
			return nil, errors.Wrapf(err, "reading summary for %s@%s", dep.Name, v)
		}
		if !hasAllFeatures(sum, dep.FeaturesRequested) {
			continue
		}
		candidates = append(candidates, Candidate{Summary: sum, Source: eff})
	}

	sortCandidates(candidates, r.policy)

	r.mu.Lock()
	r.cache[cacheKey] = candidates
	r.mu.Unlock()
	return candidates, nil
}

// hasAllFeatures checks only that each requested feature is *declared*
// by the package (resolvable at all) — activation itself is the
// resolver's job (resolve), not the registry's.
func hasAllFeatures(sum source.Summary, requested []string) bool {
	for _, f := range requested {
		if _, ok := sum.Features[f]; !ok {
			// A feature name that also names an optional dependency is
			// implicitly valid, mirroring Cargo's `dep:name` / weak-dep
			// feature convention.
			found := false
			for _, d := range sum.Dependencies {
				if d.Optional && d.Name == f {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func sortCandidates(cs []Candidate, policy Policy) {
	sort.SliceStable(cs, func(i, j int) bool {
		vi, vj := cs[i].Summary.Id.Version, cs[j].Summary.Id.Version
		less := versionLess(vi, vj)
		if policy == PreferMinimal {
			return less
		}
		return !less && vi.String() != vj.String()
	})
}

// versionLess provides a best-effort total order: real SemVers compare
// numerically, anything else (Revisions) falls back to lexical so the
// sort is at least stable and deterministic.
func versionLess(a, b ident.Version) bool {
	sa, aok := a.(ident.SemVersion)
	sb, bok := b.(ident.SemVersion)
	if aok && bok {
		return sa.V.LessThan(sb.V)
	}
	return a.String() < b.String()
}

// Reset drops the per-resolution candidate cache; call between
// independent resolutions so overrides/sources can change without
// stale results leaking across runs — the cache is meant to live for
// the lifetime of a single resolution, not the whole process.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string][]Candidate)
}
