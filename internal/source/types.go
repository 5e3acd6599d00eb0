// Package source provides a uniform read interface over path,
// git, registry and directory sources, plus the lightweight
// Dependency/Summary/Package data model registry/resolve query against.
//
// Grounded on golang-dep's source.go/vcs_source.go/maybe_source.go
// trio: a small `Source` interface any provider satisfies, backed by
// concrete path/git/directory implementations, with registry network
// fetch itself left as a separate collaborator.
package source

import (
	"fmt"

	"github.com/Masterminds/semver"
	"github.com/ngiloq6/cargo/internal/ident"
)

// DependencyKind distinguishes normal, build-time, and dev-only edges.
type DependencyKind uint8

const (
	KindNormal DependencyKind = iota
	KindBuild
	KindDev
)

func (k DependencyKind) String() string {
	switch k {
	case KindBuild:
		return "build"
	case KindDev:
		return "dev"
	default:
		return "normal"
	}
}

// Constraint is a version-requirement predicate. Concrete constraints
// are built from Masterminds/semver for registry/git-tagged deps, or
// are an exact Revision match for path/git-pinned deps.
type Constraint interface {
	Matches(v ident.Version) bool
	String() string
}

// SemverConstraint wraps a Masterminds/semver.Constraints.
type SemverConstraint struct {
	raw string
	c   *semver.Constraints
}

func ParseSemverConstraint(s string) (SemverConstraint, error) {
	c, err := semver.NewConstraint(s)
	if err != nil {
		return SemverConstraint{}, fmt.Errorf("parsing constraint %q: %w", s, err)
	}
	return SemverConstraint{raw: s, c: c}, nil
}

func (sc SemverConstraint) Matches(v ident.Version) bool {
	sv, ok := v.(ident.SemVersion)
	if !ok {
		return false
	}
	return sc.c.Check(sv.V)
}

func (sc SemverConstraint) String() string { return sc.raw }

// ExactRevision matches only one specific Revision — used for path
// dependencies (always "current") and git dependencies pinned to a
// commit.
type ExactRevision struct{ Rev ident.Revision }

func (e ExactRevision) Matches(v ident.Version) bool {
	r, ok := v.(ident.Revision)
	return ok && r == e.Rev
}
func (e ExactRevision) String() string { return string(e.Rev) }

// Any matches every version; used for path dependencies, which carry
// no real requirement since there is only ever one version present on
// disk.
type anyConstraint struct{}

func (anyConstraint) Matches(ident.Version) bool { return true }
func (anyConstraint) String() string             { return "*" }

func Any() Constraint { return anyConstraint{} }

// TargetPredicate gates a dependency to a subset of build platforms
// (e.g. `cfg(windows)`); empty means unconditional. Evaluation of the
// predicate language itself belongs to the manifest-parsing
// collaborator — unit only needs to ask
// whether a given already-evaluated predicate is satisfied for a
// target triple, which callers precompute and pass in as a plain bool
// per (predicate, triple) pair.
type TargetPredicate string

// Dependency is an edge as declared in a manifest, not yet resolved to
// a concrete package.
type Dependency struct {
	Name                string
	Source              *ident.SourceId
	Requirement         Constraint
	Kind                DependencyKind
	FeaturesRequested   []string
	UsesDefaultFeatures bool
	Optional            bool
	Target              TargetPredicate
	Rename              string // the name the parent refers to this dep by, if different
}

// ExternName is the name dependents use in their `extern` flag — the
// rename if present, else Name.
func (d Dependency) ExternName() string {
	if d.Rename != "" {
		return d.Rename
	}
	return d.Name
}

// FeatureRule says what a feature turns on: other features of the same
// package, and/or optional dependencies (by their bare name; a "dep:"
// prefix is not recognized).
type FeatureRule []string

// Summary is the lightweight package record registry/resolve query without
// reading full package contents.
type Summary struct {
	Id           *ident.PackageId
	Dependencies []Dependency
	Features     map[string]FeatureRule
	LinksName    string
}

// TargetKind enumerates the kinds of build target a Package can carry.
type TargetKind uint8

const (
	TargetLib TargetKind = iota
	TargetBin
	TargetExample
	TargetTest
	TargetBench
	TargetBuildScript
)

func (k TargetKind) String() string {
	switch k {
	case TargetLib:
		return "lib"
	case TargetBin:
		return "bin"
	case TargetExample:
		return "example"
	case TargetTest:
		return "test"
	case TargetBench:
		return "bench"
	case TargetBuildScript:
		return "build-script"
	default:
		return "unknown"
	}
}

// Target is one compilable artifact root declared by a package.
type Target struct {
	Name     string
	Kind     TargetKind
	Path     string // source file, relative to the package root
	RequiredFeatures []string
}

// Package is a Summary plus its full target list.
type Package struct {
	Summary
	Root    string // absolute path to the package root on disk
	Targets []Target
	Edition string
}

func (p *Package) BuildScriptTarget() (Target, bool) {
	for _, t := range p.Targets {
		if t.Kind == TargetBuildScript {
			return t, true
		}
	}
	return Target{}, false
}
