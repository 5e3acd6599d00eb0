package unit

import (
	"sort"

	"github.com/ngiloq6/cargo/internal/ident"
	"github.com/ngiloq6/cargo/internal/resolve"
	"github.com/ngiloq6/cargo/internal/source"
	"github.com/pkg/errors"
)

// PackageLoader resolves a selected PackageId to its full Package
// record (targets, build-script presence) — the unit lowerer never
// talks to a Source directly, mirroring how the registry, not the
// resolver, owns source access.
type PackageLoader func(id *ident.PackageId) (*source.Package, error)

// RootRequest is one user-requested build target: "build the binaries
// of workspace member X", "run the tests of the root package".
type RootRequest struct {
	Pkg   *ident.PackageId
	Modes []CompileMode
}

// Lowerer turns a Resolve plus a RootRequest set into a UnitGraph.
type Lowerer struct {
	Resolve  *resolve.Resolve
	Load     PackageLoader
	Platform CompileKind // CompileKind normal (non-build) dependencies build for
	Release  bool
}

// Lower turns a resolved dependency graph into a unit graph: one Unit
// per (package, profile, compile-kind, mode) combination the build
// actually needs.
func (l *Lowerer) Lower(roots []RootRequest) (*UnitGraph, *Roots, error) {
	ug := newGraph()
	var rootUnits []*Unit

	for _, rr := range roots {
		pkg, err := l.Load(rr.Pkg)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "loading root package %s", rr.Pkg)
		}
		for _, mode := range rr.Modes {
			for _, t := range pkg.Targets {
				if t.Kind == source.TargetBuildScript {
					continue // never a direct build root
				}
				if !modeAppliesToTarget(mode, t.Kind) {
					continue
				}
				u, err := l.unitFor(ug, pkg, t, mode, l.Platform)
				if err != nil {
					return nil, nil, err
				}
				rootUnits = append(rootUnits, u)
			}
		}
	}

	if _, err := ug.TopoSorted(); err != nil {
		return nil, nil, err
	}

	sort.Slice(rootUnits, func(i, j int) bool { return rootUnits[i].key() < rootUnits[j].key() })
	return ug, &Roots{Units: rootUnits}, nil
}

func modeAppliesToTarget(mode CompileMode, kind source.TargetKind) bool {
	switch mode {
	case Test:
		return kind == source.TargetLib || kind == source.TargetTest
	case Bench:
		return kind == source.TargetLib || kind == source.TargetBench
	case Doc, Doctest:
		return kind == source.TargetLib
	default:
		return kind == source.TargetLib || kind == source.TargetBin || kind == source.TargetExample
	}
}

// unitFor returns (creating if necessary) the unit for target t of pkg
// under mode/kind, wiring its full dependency subtree first so the
// returned Unit's UnitDeps are complete before it is handed to a
// caller.
func (l *Lowerer) unitFor(ug *UnitGraph, pkg *source.Package, t source.Target, mode CompileMode, kind CompileKind) (*Unit, error) {
	sel, ok := l.Resolve.Get(pkg.Id)
	if !ok {
		return nil, errors.Errorf("package %s has a target but is not part of the resolve", pkg.Id)
	}

	u := &Unit{
		Pkg:      pkg.Id,
		Target:   t,
		Profile:  ProfileFor(mode, l.Release),
		Kind:     kind,
		Mode:     mode,
		Features: sel.Features,
	}
	existing := ug.getOrCreate(u)
	if existing != u {
		return existing, nil // already fully wired by an earlier caller
	}

	// Normal edges: inherit this unit's CompileKind.
	for _, e := range sel.Edges {
		if e.Kind != source.KindNormal {
			continue
		}
		dep, err := l.libUnitFor(ug, e.To, kind)
		if err != nil {
			return nil, err
		}
		ug.addDep(u, UnitDep{To: dep, ExternName: e.ExternName, Public: e.Public})
	}

	// Dev edges only attach to Test/Bench units, and only of the root
	// (callers never request Test/Bench for a non-root transitively,
	// since unitFor is only reached for dev edges through a direct
	// RootRequest).
	if mode == Test || mode == Bench {
		for _, e := range sel.Edges {
			if e.Kind != source.KindDev {
				continue
			}
			dep, err := l.libUnitFor(ug, e.To, kind)
			if err != nil {
				return nil, err
			}
			ug.addDep(u, UnitDep{To: dep, ExternName: e.ExternName, Public: e.Public})
		}
	}

	// Build-script wiring: if this package has one, it produces a
	// RunCustomBuild unit every non-build-script unit of the same
	// package consumes.
	if bt, ok := pkg.BuildScriptTarget(); ok && t.Kind != source.TargetBuildScript {
		runUnit, err := l.buildScriptUnitFor(ug, pkg, bt, sel)
		if err != nil {
			return nil, err
		}
		ug.addDep(u, UnitDep{To: runUnit, ExternName: "build-script-output", Public: false})
	}

	return u, nil
}

// libUnitFor resolves to's lib target and lowers it at kind (Normal
// edges inherit kind, Build edges force Host via the caller).
func (l *Lowerer) libUnitFor(ug *UnitGraph, to *ident.PackageId, kind CompileKind) (*Unit, error) {
	pkg, err := l.Load(to)
	if err != nil {
		return nil, errors.Wrapf(err, "loading dependency %s", to)
	}
	lib, ok := libTarget(pkg)
	if !ok {
		return nil, errors.Errorf("package %s has no library target to depend on", to)
	}
	return l.unitFor(ug, pkg, lib, Build, kind)
}

func libTarget(pkg *source.Package) (source.Target, bool) {
	for _, t := range pkg.Targets {
		if t.Kind == source.TargetLib {
			return t, true
		}
	}
	return source.Target{}, false
}

// buildScriptUnitFor builds (memoized, like any other unit) the
// compile-then-run pair for pkg's build script: a host-profile compile
// unit for the build-script target, forcing Host CompileKind on its
// own dependency subtree (build-dependencies never cross-compile,
// they always run on the host), feeding a RunCustomBuild unit.
func (l *Lowerer) buildScriptUnitFor(ug *UnitGraph, pkg *source.Package, bt source.Target, sel *resolve.Selection) (*Unit, error) {
	compile := &Unit{
		Pkg:      pkg.Id,
		Target:   bt,
		Profile:  ProfileBuildScript,
		Kind:     Host(),
		Mode:     Build,
		Features: sel.Features,
	}
	compile = ug.getOrCreate(compile)

	for _, e := range sel.Edges {
		if e.Kind != source.KindBuild {
			continue
		}
		dep, err := l.libUnitFor(ug, e.To, Host())
		if err != nil {
			return nil, err
		}
		ug.addDep(compile, UnitDep{To: dep, ExternName: e.ExternName, Public: e.Public})
	}

	run := &Unit{
		Pkg:      pkg.Id,
		Target:   bt,
		Profile:  ProfileBuildScript,
		Kind:     Host(),
		Mode:     RunCustomBuild,
		Features: sel.Features,
	}
	run = ug.getOrCreate(run)
	ug.addDep(run, UnitDep{To: compile, ExternName: "build-script-build", Public: false})
	return run, nil
}
