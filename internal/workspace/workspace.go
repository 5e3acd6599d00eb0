// Package workspace implements a multi-manifest workspace: several
// packages sharing one resolve and one target directory, built from a
// single virtual root instead of picking one member to stand in as
// primary.
//
// Grounded on golang-dep's Project (project.go, a directory plus its
// loaded manifest/lock): Member here is that same pairing, generalized
// from one project to the many a workspace holds at once.
package workspace

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/ngiloq6/cargo/internal/ident"
	"github.com/ngiloq6/cargo/internal/source"
	"github.com/ngiloq6/cargo/internal/unit"
)

// pathRevision mirrors source.PathSource's synthetic version: a
// workspace member, like any path dependency, has exactly one copy on
// disk and so exactly one version to report.
const pathRevision = ident.Revision("path")

// virtualRootKind tags the synthetic source VirtualRoot's PackageId is
// interned under — KindDirectory rather than KindPath since the
// virtual root is not itself a package on disk anyone depends on.
const virtualRootKind = ident.KindDirectory

// Member is one workspace package: its loaded record plus the
// PathSource wrapping it, ready to register with a registry.Registry.
type Member struct {
	Pkg    *source.Package
	Source *source.PathSource
}

// Workspace aggregates a root directory's member packages under one
// resolve and one target directory.
type Workspace struct {
	Root     string
	members  map[string]*Member
	order    []string // member names, sorted
	defaults map[string]bool
}

// New builds a Workspace from already-loaded member packages (the
// manifest-parsing collaborator that produced them is a separate
// concern). defaultNames selects which members a bare `cargo build`
// (no -p/--workspace) targets; empty means every member, matching a
// `[workspace]` table with no explicit `default-members`.
func New(root string, members []*source.Package, defaultNames []string) (*Workspace, error) {
	if len(members) == 0 {
		return nil, errors.New("workspace: at least one member package is required")
	}

	ws := &Workspace{
		Root:     root,
		members:  make(map[string]*Member, len(members)),
		defaults: make(map[string]bool, len(defaultNames)),
	}
	for _, pkg := range members {
		if _, dup := ws.members[pkg.Id.Name]; dup {
			return nil, errors.Errorf("workspace: duplicate member package %q", pkg.Id.Name)
		}
		if err := checkMemberWithinRoot(root, pkg.Root); err != nil {
			return nil, err
		}
		ws.members[pkg.Id.Name] = &Member{Pkg: pkg, Source: source.NewPathSource(pkg)}
		ws.order = append(ws.order, pkg.Id.Name)
	}
	sort.Strings(ws.order)

	if len(defaultNames) == 0 {
		defaultNames = ws.order
	}
	for _, n := range defaultNames {
		if _, ok := ws.members[n]; !ok {
			return nil, errors.Errorf("workspace: default member %q is not a workspace member", n)
		}
		ws.defaults[n] = true
	}
	return ws, nil
}

// Member looks up one workspace member by package name.
func (ws *Workspace) Member(name string) (*Member, bool) {
	m, ok := ws.members[name]
	return m, ok
}

// Members returns every member, name-sorted for deterministic
// iteration (mirrored from resolve.Resolve.SortedKeys's rationale:
// anything iterated to build output must sort first).
func (ws *Workspace) Members() []*Member {
	out := make([]*Member, 0, len(ws.order))
	for _, n := range ws.order {
		out = append(out, ws.members[n])
	}
	return out
}

// VirtualRoot synthesizes the package resolve.Solve resolves against:
// a dependency-only package whose Normal edges point at every
// workspace member as a path dependency, so the solver activates each
// member, and transitively its own real dependencies, without any one
// member's manifest acting as the literal root.
//
// Grounded on original_source/src/cargo/core/workspace.rs's virtual
// manifest: a workspace with no primary package still resolves all
// members together through exactly this kind of synthetic aggregate.
func (ws *Workspace) VirtualRoot() *source.Package {
	sid := ident.Source(ws.Root, virtualRootKind, "", "")
	id := ident.Package("workspace-root", pathRevision, sid)

	deps := make([]source.Dependency, 0, len(ws.order))
	for _, n := range ws.order {
		m := ws.members[n]
		deps = append(deps, source.Dependency{
			Name:                n,
			Source:              m.Pkg.Id.Source,
			Requirement:         source.Any(),
			Kind:                source.KindNormal,
			UsesDefaultFeatures: true,
		})
	}

	return &source.Package{
		Summary: source.Summary{
			Id:           id,
			Dependencies: deps,
			Features:     map[string]source.FeatureRule{},
		},
		Root: ws.Root,
	}
}

// RootRequests builds unit's root-request list for the named members
// (nil/empty selects the workspace's default members) under modes.
func (ws *Workspace) RootRequests(names []string, modes []unit.CompileMode) ([]unit.RootRequest, error) {
	if len(names) == 0 {
		for _, n := range ws.order {
			if ws.defaults[n] {
				names = append(names, n)
			}
		}
	}

	reqs := make([]unit.RootRequest, 0, len(names))
	for _, n := range names {
		m, ok := ws.members[n]
		if !ok {
			return nil, errors.Errorf("workspace: %q is not a workspace member", n)
		}
		reqs = append(reqs, unit.RootRequest{Pkg: m.Pkg.Id, Modes: modes})
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].Pkg.Key() < reqs[j].Pkg.Key() })
	return reqs, nil
}
