// Package assemble turns one compile Unit into the
// concrete compiler invocation (path, argument list, environment, and
// library search path) the scheduler's Work closure actually execs.
//
// Grounded on original_source/src/cargo/core/compiler/compilation.rs's
// Compilation::fill_env/rustc_process: the same ingredients (deps
// output dir, root output dir, native dirs from build outputs, sysroot
// libdir, inherited loader path, assembled into one platform-specific
// env var), expressed as a pure function over a Unit plus a narrow
// Config interface instead of a stateful struct threaded through the
// whole build.
package assemble

import (
	"runtime"

	"github.com/ngiloq6/cargo/internal/unit"
)

// Config is the slice of the root orchestrator's configuration bag
// that invocation assembly actually consults. Kept narrow and defined
// here, not imported from the root orchestration package, so this
// package has no dependency on anything above it in the layering.
type Config interface {
	RustcPath() string
	RustcWrapper() string // "" if none configured
	TargetDir() string
	Rustflags(kind unit.CompileKind) []string
	Linker(kind unit.CompileKind) (path string, ok bool)
}

// Context is everything shared across every unit's invocation in one
// build: compiler/platform facts that don't vary per-unit, plus the
// shared build-output table RunCustomBuild units publish into.
type Context struct {
	Config Config

	HostTriple      string
	CompilerVersion string // full `rustc --version --verbose`, folded into fingerprints elsewhere

	// SysrootLibdir is the compiler's own lib directory for kind, always
	// present in the dynamic search path so a freshly built artifact can
	// still find libstd.
	SysrootLibdir map[unit.CompileKind]string

	// InheritedDylibPath is the loader-path env var's value as this
	// process itself inherited it, appended last so system libraries
	// already on the path remain reachable.
	InheritedDylibPath []string

	Outputs *OutputTable

	// Load resolves a Unit's Pkg to its full Package record — assembly
	// needs the declared edition, which a bare Unit doesn't carry.
	// Shares the lowerer's own PackageLoader contract (internal/unit)
	// rather than inventing a second one.
	Load unit.PackageLoader
}

// DylibPathEnvVar is the platform-appropriate dynamic loader search
// path variable: LD_LIBRARY_PATH, DYLD_FALLBACK_LIBRARY_PATH, or PATH.
func DylibPathEnvVar() string {
	switch runtime.GOOS {
	case "darwin":
		return "DYLD_FALLBACK_LIBRARY_PATH"
	case "windows":
		return "PATH"
	default:
		return "LD_LIBRARY_PATH"
	}
}
