package ident

import (
	"fmt"

	"github.com/Masterminds/semver"
)

// Version is anything PackageId can carry as a resolved version: a
// proper SemVer for registry/git-tagged packages, or a Revision for a
// git commit / path dependency that has no SemVer at all.
//
// Mirrors golang-dep's UnpairedVersion/Revision split (gps' version
// model) but trimmed to what the resolver and fingerprint engine
// actually need: ordering for precedence queries, and a stable string
// form for interning keys and lockfile persistence.
type Version interface {
	String() string
	// CompatClass returns a key such that two Versions in the same
	// SemVer-compatibility class (major for >=1.0.0, minor for 0.x,
	// patch for 0.0.x) return equal keys. Revisions are each their own
	// class.
	CompatClass() string
}

// SemVersion wraps a concrete SemVer.
type SemVersion struct{ V *semver.Version }

func NewSemVersion(s string) (SemVersion, error) {
	v, err := semver.NewVersion(s)
	if err != nil {
		return SemVersion{}, err
	}
	return SemVersion{V: v}, nil
}

func (v SemVersion) String() string { return v.V.String() }

func (v SemVersion) CompatClass() string {
	switch {
	case v.V.Major() > 0:
		return fmt.Sprintf("%d", v.V.Major())
	case v.V.Minor() > 0:
		return fmt.Sprintf("0.%d", v.V.Minor())
	default:
		return fmt.Sprintf("0.0.%d", v.V.Patch())
	}
}

// Revision is an opaque, exact identifier — a git commit hash or a
// path dependency's synthetic marker. Revisions never compare equal to
// each other across different values, so every Revision is its own
// compatibility class (coexistence is always allowed; it is resolved
// to a hard conflict only via links-uniqueness, not via the version
// compatibility rule).
type Revision string

func (r Revision) String() string      { return string(r) }
func (r Revision) CompatClass() string { return "rev:" + string(r) }

// CompatibleClasses reports whether a and b may legally coexist as two
// different selected versions of the same-named package: they must
// fall in *different* SemVer-compatibility classes 
func CompatibleClasses(a, b Version) bool {
	return a.CompatClass() != b.CompatClass()
}
