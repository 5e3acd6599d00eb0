// Package unit lowers a Resolve plus a set of
// requested root targets into a UnitGraph, the DAG of compiler
// invocations the scheduler (schedule) actually executes.
//
// Grounded on distr1-distri's internal/batch.Build: a
// gonum/graph/simple.DirectedGraph of package nodes, built by walking
// a dependency table and wiring graph.Edge per dependency, with
// gonum/graph/topo used to detect (and, there, break) cycles. This
// package keeps the cycle *detection* but treats a cycle as a hard
// error rather than something to auto-break — a unit graph is
// required to be a DAG by construction.
package unit

import (
	"fmt"

	"github.com/ngiloq6/cargo/internal/ident"
	"github.com/ngiloq6/cargo/internal/source"
)

// CompileKind is host or a specific target triple.
type CompileKind struct {
	Triple string // "" means Host
}

func Host() CompileKind { return CompileKind{} }

func Target(triple string) CompileKind { return CompileKind{Triple: triple} }

func (k CompileKind) IsHost() bool { return k.Triple == "" }

func (k CompileKind) String() string {
	if k.IsHost() {
		return "host"
	}
	return k.Triple
}

// Profile is a named collection of codegen/debug settings.
type Profile struct {
	Name           string
	OptLevel       int
	Debuginfo      bool
	LTO            bool
	CodegenUnits   int
	OverflowChecks bool
}

var (
	ProfileDev = Profile{Name: "dev", OptLevel: 0, Debuginfo: true, CodegenUnits: 16, OverflowChecks: true}

	ProfileRelease = Profile{Name: "release", OptLevel: 3, Debuginfo: false, LTO: true, CodegenUnits: 1}

	ProfileTest = Profile{Name: "test", OptLevel: 0, Debuginfo: true, CodegenUnits: 16, OverflowChecks: true}

	ProfileBench = Profile{Name: "bench", OptLevel: 3, Debuginfo: false, LTO: true, CodegenUnits: 1}

	ProfileDoc = Profile{Name: "doc", OptLevel: 0, Debuginfo: false, CodegenUnits: 16}

	// ProfileBuildScript is always used for build-script compile and
	// RunCustomBuild units, regardless of the profile the rest of the
	// graph is built under.
	ProfileBuildScript = Profile{Name: "build-script", OptLevel: 0, Debuginfo: true, CodegenUnits: 16}
)

// CompileMode is the purpose a Unit serves.
type CompileMode uint8

const (
	Build CompileMode = iota
	Test
	Bench
	Check
	Doc
	Doctest
	RunCustomBuild
)

func (m CompileMode) String() string {
	switch m {
	case Test:
		return "test"
	case Bench:
		return "bench"
	case Check:
		return "check"
	case Doc:
		return "doc"
	case Doctest:
		return "doctest"
	case RunCustomBuild:
		return "run-custom-build"
	default:
		return "build"
	}
}

// ProfileFor returns the default profile for a mode, release selecting
// the optimized variant of Build/Test/Bench.
func ProfileFor(mode CompileMode, release bool) Profile {
	switch mode {
	case Test:
		if release {
			p := ProfileTest
			p.OptLevel, p.LTO, p.CodegenUnits = 3, true, 1
			return p
		}
		return ProfileTest
	case Bench:
		return ProfileBench
	case Doc, Doctest:
		return ProfileDoc
	case RunCustomBuild:
		return ProfileBuildScript
	default:
		if release {
			return ProfileRelease
		}
		return ProfileDev
	}
}

// Unit is one atomic compiler invocation.
type Unit struct {
	id int64

	Pkg      *ident.PackageId
	Target   source.Target
	Profile  Profile
	Kind     CompileKind
	Mode     CompileMode
	Features map[string]bool
	IsStd    bool
}

func (u *Unit) ID() int64 { return u.id }

// Key is the stable string identity memoization and downstream callers
// (fingerprint store paths, scheduler job ids, assembled command
// caches) key off, distinct from ID which is only a gonum graph node
// handle valid for one process lifetime.
func (u *Unit) Key() string { return u.key() }

func (u *Unit) String() string {
	return fmt.Sprintf("%s/%s[%s,%s,%s]", u.Pkg, u.Target.Name, u.Kind, u.Mode, u.Profile.Name)
}

func (u *Unit) key() string {
	return fmt.Sprintf("%s\x00%s\x00%s\x00%s\x00%s", u.Pkg.Key(), u.Target.Name, u.Kind, u.Mode, u.Profile.Name)
}

// UnitDep is one resolved edge in the unit graph.
type UnitDep struct {
	To         *Unit
	ExternName string
	Public     bool
	NoPrelude bool
}
