package assemble

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ngiloq6/cargo/internal/buildscript"
	"github.com/ngiloq6/cargo/internal/source"
	"github.com/ngiloq6/cargo/internal/unit"
	"github.com/pkg/errors"
)

// pseudo extern names the propagator wires for RunCustomBuild edges;
// these never become a real --extern flag, mirroring buildscript's own
// exclusion in Propagator.For.
const (
	externBuildScriptOutput = "build-script-output"
	externBuildScriptBuild  = "build-script-build"
)

// Invocation is a fully assembled, ready-to-exec compiler command.
type Invocation struct {
	Path string
	Args []string
	Env  []string
	Dir  string
}

// Assembler builds Invocations for the units of one UnitGraph, sharing
// a Propagator so each unit's upstream build-script effects are
// computed (and memoized) once regardless of how many times this
// Assembler is asked about units along the same dependency chain.
type Assembler struct {
	cx   *Context
	ug   *unit.UnitGraph
	prop *buildscript.Propagator
}

func NewAssembler(cx *Context, ug *unit.UnitGraph) *Assembler {
	return &Assembler{cx: cx, ug: ug, prop: buildscript.NewPropagator(ug)}
}

// Rustc assembles the rustc invocation for a Build/Check/Test/Bench
// unit. RunCustomBuild units are executed directly (they're already a
// compiled binary being run, not compiled) and Doc/Doctest units go
// through rustdoc instead — both are the caller's responsibility, not
// this method's.
func (a *Assembler) Rustc(u *unit.Unit) (*Invocation, error) {
	if u.Mode == unit.RunCustomBuild {
		return nil, errors.Errorf("assemble: %s is a RunCustomBuild unit, not a compile unit", u)
	}

	path := a.cx.Config.RustcPath()
	var args []string
	if wrapper := a.cx.Config.RustcWrapper(); wrapper != "" {
		args = append(args, path)
		path = wrapper
	}

	pkg, err := a.cx.Load(u.Pkg)
	if err != nil {
		return nil, errors.Wrapf(err, "loading package for %s", u)
	}

	crateName := strings.ReplaceAll(u.Target.Name, "-", "_")
	outDir := a.outDir(u)
	depsDir := filepath.Join(outDir, "deps")
	hash := metadataHash(u)
	edition := pkg.Edition
	if edition == "" {
		edition = "2015"
	}

	args = append(args,
		"--crate-name", crateName,
		"--crate-type", crateType(u),
		"--edition", edition,
		"--out-dir", depsDir,
		"-C", "metadata="+hash,
		"-C", "extra-filename=-"+hash,
	)
	if !u.Kind.IsHost() {
		args = append(args, "--target", u.Kind.Triple)
	}
	args = append(args, "--emit", emitKinds(u.Mode))
	if u.Mode == unit.Test || u.Mode == unit.Bench {
		args = append(args, "--test")
	}

	args = append(args, codegenFlags(u.Profile)...)
	if linker, ok := a.cx.Config.Linker(u.Kind); ok {
		args = append(args, "-C", "linker="+linker)
	}

	for _, f := range sortedFeatures(u.Features) {
		args = append(args, "--cfg", fmt.Sprintf(`feature="%s"`, f))
	}

	prop := a.prop.For(u)
	var nativePaths []string
	for _, lt := range prop.ToLink {
		out, ok := a.cx.Outputs.Get(lt.Pkg, lt.Kind)
		if !ok {
			continue
		}
		nativePaths = append(nativePaths, out.LibraryPaths...)
		if lt.Pkg == u.Pkg && lt.Kind == u.Kind {
			for _, cfg := range out.Cfgs {
				args = append(args, "--cfg", cfg)
			}
		}
	}
	sort.Strings(nativePaths)
	for _, p := range dedupe(nativePaths) {
		args = append(args, "-L", "native="+p)
	}
	args = append(args, "-L", "dependency="+depsDir)

	for _, dep := range a.ug.Deps(u) {
		if dep.ExternName == externBuildScriptOutput || dep.ExternName == externBuildScriptBuild {
			continue
		}
		artifact, err := a.externArtifact(dep.To)
		if err != nil {
			return nil, errors.Wrapf(err, "assembling extern flag for %s", u)
		}
		args = append(args, "--extern", dep.ExternName+"="+artifact)
	}

	args = append(args, a.cx.Config.Rustflags(u.Kind)...)

	env := a.dylibEnv(u, nativePaths)

	return &Invocation{Path: path, Args: args, Env: env, Dir: pkg.Root}, nil
}

// ArtifactPath names the primary output file a unit's invocation
// produces: the same path a dependent's --extern flag would use for a
// lib target, or the plain binary path under its out-dir otherwise.
// Callers use this to ask the fingerprint engine whether a unit's
// output is still present, the "missing outputs force dirty" freshness
// condition, without duplicating the naming convention
// Rustc/externArtifact already know.
func (a *Assembler) ArtifactPath(u *unit.Unit) (string, error) {
	if u.Target.Kind == source.TargetLib {
		return a.externArtifact(u)
	}
	crateName := strings.ReplaceAll(u.Target.Name, "-", "_")
	name := fmt.Sprintf("%s-%s", crateName, metadataHash(u))
	return filepath.Join(a.outDir(u), "deps", name), nil
}

// externArtifact names the file a --extern flag should point at:
// consumers of a Check-mode unit link against its .rmeta, everyone
// else links against the .rlib the same unit's Build-mode compile
// produced.
func (a *Assembler) externArtifact(dep *unit.Unit) (string, error) {
	if dep.Target.Kind != source.TargetLib {
		return "", errors.Errorf("unit %s cannot be an extern dependency: not a lib target", dep)
	}
	ext := ".rlib"
	if dep.Mode == unit.Check {
		ext = ".rmeta"
	}
	crateName := strings.ReplaceAll(dep.Target.Name, "-", "_")
	name := fmt.Sprintf("lib%s-%s%s", crateName, metadataHash(dep), ext)
	return filepath.Join(a.outDir(dep), "deps", name), nil
}

func (a *Assembler) outDir(u *unit.Unit) string {
	base := a.cx.Config.TargetDir()
	if !u.Kind.IsHost() {
		base = filepath.Join(base, u.Kind.Triple)
	}
	return filepath.Join(base, u.Profile.Name)
}

// ProfileDir exposes a unit's profile output directory — the root the
// fingerprint store and a build script's OUT_DIR both nest under, so
// the orchestrator never has to recompute the target-dir/triple/profile
// convention this package already owns.
func (a *Assembler) ProfileDir(u *unit.Unit) string {
	return a.outDir(u)
}

// BuildScriptOutDir is the OUT_DIR a RunCustomBuild unit's script runs
// under, distinct from the path its own compiled binary lives at.
func (a *Assembler) BuildScriptOutDir(u *unit.Unit) string {
	crateName := strings.ReplaceAll(u.Pkg.Name, "-", "_")
	return filepath.Join(a.ProfileDir(u), "build", fmt.Sprintf("%s-%s", crateName, metadataHash(u)))
}

// dylibEnv assembles the dynamic loader search path: the deps output
// directory, the package root output directory, native directories
// from upstream build outputs, the compiler's sysroot libdir, and
// finally whatever this process itself inherited, joined in that
// order under the platform-appropriate env var.
func (a *Assembler) dylibEnv(u *unit.Unit, nativePaths []string) []string {
	outDir := a.outDir(u)
	search := []string{filepath.Join(outDir, "deps"), outDir}
	search = append(search, nativePaths...)
	if libdir, ok := a.cx.SysrootLibdir[u.Kind]; ok {
		search = append(search, libdir)
	}
	search = append(search, a.cx.InheritedDylibPath...)

	return []string{DylibPathEnvVar() + "=" + strings.Join(dedupe(search), string(filepath.ListSeparator))}
}

func crateType(u *unit.Unit) string {
	switch u.Target.Kind {
	case source.TargetLib:
		return "lib"
	default:
		return "bin"
	}
}

func emitKinds(mode unit.CompileMode) string {
	if mode == unit.Check {
		return "metadata"
	}
	return "link"
}

func codegenFlags(p unit.Profile) []string {
	var out []string
	out = append(out, "-C", "opt-level="+strconv.Itoa(p.OptLevel))
	if p.Debuginfo {
		out = append(out, "-C", "debuginfo=2")
	} else {
		out = append(out, "-C", "debuginfo=0")
	}
	out = append(out, "-C", "codegen-units="+strconv.Itoa(p.CodegenUnits))
	if p.LTO {
		out = append(out, "-C", "lto")
	}
	if p.OverflowChecks {
		out = append(out, "-C", "overflow-checks=yes")
	} else {
		out = append(out, "-C", "overflow-checks=no")
	}
	return out
}

func sortedFeatures(m map[string]bool) []string {
	out := featureList(m)
	sort.Strings(out)
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
