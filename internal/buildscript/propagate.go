package buildscript

import (
	"github.com/ngiloq6/cargo/internal/ident"
	"github.com/ngiloq6/cargo/internal/source"
	"github.com/ngiloq6/cargo/internal/unit"
)

// LinkTarget names one build-script whose output must be applied when
// compiling a unit: the owning package, at the CompileKind that build
// script ran (and was compiled) for.
type LinkTarget struct {
	Pkg  *ident.PackageId
	Kind unit.CompileKind
}

// Propagation is the transitive set of build-script outputs a unit
// must fold in: ToLink for the units it links against normally,
// Plugins for the host-side build-dependency subtree that never links
// into the final artifact but whose -L/cfg/env effects still apply
// while compiling the build script itself.
type Propagation struct {
	ToLink  []LinkTarget
	Plugins []LinkTarget
}

const (
	externNameBuildScriptOutput = "build-script-output"
	externNameBuildScriptBuild  = "build-script-build"
)

// Propagator computes Propagation per unit, memoized across a single
// UnitGraph the way cargo's build_map recursion memoizes into a
// HashMap keyed by Unit.
//
// Grounded on original_source/src/cargo/core/compiler/custom_build.rs's
// build_map: recurse into dependencies first, then decide whether each
// dependency's own to_link set folds into this unit's to_link (plain
// linkable dependency) or plugins (a build-script's own build-time
// dependency subtree, which never links into the final artifact).
type Propagator struct {
	ug   *unit.UnitGraph
	memo map[int64]*Propagation
}

func NewPropagator(ug *unit.UnitGraph) *Propagator {
	return &Propagator{ug: ug, memo: make(map[int64]*Propagation)}
}

// For returns u's Propagation, computing and memoizing it (and that of
// every unit it transitively depends on) on first request.
func (p *Propagator) For(u *unit.Unit) *Propagation {
	if cached, ok := p.memo[u.ID()]; ok {
		return cached
	}

	ret := &Propagation{}
	seenToLink := make(map[string]bool)
	seenPlugin := make(map[string]bool)
	addToLink := func(t LinkTarget) {
		k := t.Pkg.Key() + "\x00" + t.Kind.String()
		if !seenToLink[k] {
			seenToLink[k] = true
			ret.ToLink = append(ret.ToLink, t)
		}
	}
	addPlugin := func(t LinkTarget) {
		k := t.Pkg.Key() + "\x00" + t.Kind.String()
		if !seenPlugin[k] {
			seenPlugin[k] = true
			ret.Plugins = append(ret.Plugins, t)
		}
	}

	if u.Mode != unit.RunCustomBuild && hasOwnBuildScript(p.ug, u) {
		addToLink(LinkTarget{Pkg: u.Pkg, Kind: u.Kind})
	}

	isBuildDepWalk := u.Target.Kind == source.TargetBuildScript && u.Mode == unit.Build

	for _, dep := range p.ug.Deps(u) {
		if dep.ExternName == externNameBuildScriptOutput || dep.ExternName == externNameBuildScriptBuild {
			continue
		}
		childProp := p.For(dep.To)
		if isBuildDepWalk {
			addPlugin(LinkTarget{Pkg: dep.To.Pkg, Kind: dep.To.Kind})
			for _, t := range childProp.ToLink {
				addPlugin(t)
			}
			continue
		}
		for _, t := range childProp.ToLink {
			addToLink(t)
		}
	}

	p.memo[u.ID()] = ret
	return ret
}

func hasOwnBuildScript(ug *unit.UnitGraph, u *unit.Unit) bool {
	if u.Target.Kind == source.TargetBuildScript {
		return false
	}
	for _, dep := range ug.Deps(u) {
		if dep.ExternName == externNameBuildScriptOutput {
			return true
		}
	}
	return false
}
