package source

import "github.com/ngiloq6/cargo/internal/ident"

// Source is the uniform read interface registry delegates candidate queries
// to. Every concrete provider (path, git, directory, local registry)
// implements it; network registry fetch is a separate collaborator
// that would sit behind the same interface in a full build.
type Source interface {
	// ListVersions returns every Version this source can produce,
	// in no particular order — the registry is responsible for
	// precedence ordering, not the source itself.
	ListVersions() ([]ident.Version, error)

	// Summary returns the lightweight record for one version, without
	// reading the full package (targets, edition, etc).
	Summary(name string, v ident.Version) (Summary, error)

	// Package returns the full package record for one version,
	// including its target list — used once a version has been
	// selected by the resolver and unit needs to lower it into units.
	Package(name string, v ident.Version) (*Package, error)

	// ExportTo materializes the package tree for v at dir, for builds
	// that need real files on disk (anything beyond Host-to-host
	// compile-in-place path deps).
	ExportTo(v ident.Version, dir string) error
}

// Description is the registry-level description of a source, returned
// when a caller needs to know whether a source is immutable or
// overridden without walking its full candidate list.
type Description struct {
	Id        *ident.SourceId
	Immutable bool
	Overridden bool
	LocalPath string // Registry.DescribeSource never fills this in, so it is empty there
}
