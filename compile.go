package cargo

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/ngiloq6/cargo/internal/assemble"
	"github.com/ngiloq6/cargo/internal/buildscript"
	"github.com/ngiloq6/cargo/internal/cargoerr"
	"github.com/ngiloq6/cargo/internal/fingerprint"
	"github.com/ngiloq6/cargo/internal/ident"
	"github.com/ngiloq6/cargo/internal/locktoml"
	"github.com/ngiloq6/cargo/internal/registry"
	"github.com/ngiloq6/cargo/internal/resolve"
	"github.com/ngiloq6/cargo/internal/schedule"
	"github.com/ngiloq6/cargo/internal/source"
	"github.com/ngiloq6/cargo/internal/unit"
)

// CompileRequest is everything one build invocation needs: what to
// resolve against, which root targets to lower, and the knobs that
// vary per invocation rather than per Ctx.
type CompileRequest struct {
	Root  *source.Package   // the package, or workspace.Workspace.VirtualRoot(), to resolve against
	Roots []unit.RootRequest

	Release  bool
	Platform unit.CompileKind // zero value means Host()

	Hints     map[string]ident.Version
	ToChange  map[string]bool
	ChangeAll bool

	TargetEval func(source.TargetPredicate) bool

	FailFast bool
	Output   io.Writer // diagnostics sink; defaults to os.Stderr

	// LockPath overrides where the lockfile is written; empty means
	// <Root.Root>/Cargo.lock, mirroring where a manifest's own lock
	// lives alongside it.
	LockPath string
	SkipLock bool
}

func (r CompileRequest) output() io.Writer {
	if r.Output != nil {
		return r.Output
	}
	return os.Stderr
}

func (r CompileRequest) lockPath() string {
	if r.LockPath != "" {
		return r.LockPath
	}
	return filepath.Join(r.Root.Root, locktoml.LockName)
}

// CompileResult is everything a caller (the CLI, a test) might want to
// inspect after a build.
type CompileResult struct {
	Resolve   *resolve.Resolve
	Units     *unit.UnitGraph
	Scheduled *schedule.Result
}

// Compile drives the full resolve -> lower -> fingerprint ->
// buildscript/schedule -> assemble pipeline for one request, the
// orchestration entry point every other package in this repository exists to serve.
func (c *Ctx) Compile(pctx context.Context, req CompileRequest) (*CompileResult, error) {
	if err := c.Lock.Acquire(); err != nil {
		return nil, err
	}
	defer c.Lock.Release()

	c.Registry.Reset()
	solved, err := resolve.Solve(resolve.Params{
		Root:       req.Root,
		Registry:   c.Registry,
		Policy:     registry.PreferLatest,
		Hints:      req.Hints,
		ToChange:   req.ToChange,
		ChangeAll:  req.ChangeAll,
		TargetEval: req.TargetEval,
	})
	if err != nil {
		return nil, cargoerr.Wrap(cargoerr.KindResolution, err, "resolving dependencies")
	}

	if !req.SkipLock {
		if err := c.writeLockfile(req.lockPath(), solved); err != nil {
			return nil, err
		}
	}

	platform := req.Platform
	if platform == (unit.CompileKind{}) {
		platform = unit.Host()
	}
	lowerer := &unit.Lowerer{Resolve: solved, Load: c.load, Platform: platform, Release: req.Release}
	ug, _, err := lowerer.Lower(req.Roots)
	if err != nil {
		return nil, cargoerr.Wrap(cargoerr.KindInternal, err, "lowering unit graph")
	}

	units, err := ug.TopoSorted()
	if err != nil {
		return nil, cargoerr.Wrap(cargoerr.KindInternal, err, "ordering unit graph")
	}

	rustcVer, err := c.rustcVersionString()
	if err != nil {
		return nil, err
	}

	cx := &assemble.Context{
		Config:             c.Config,
		HostTriple:         hostTriple(),
		CompilerVersion:    rustcVer,
		SysrootLibdir:      map[unit.CompileKind]string{},
		InheritedDylibPath: splitSearchPath(os.Getenv(assemble.DylibPathEnvVar())),
		Outputs:            assemble.NewOutputTable(),
		Load:               c.load,
	}
	for _, u := range units {
		if _, ok := cx.SysrootLibdir[u.Kind]; ok {
			continue
		}
		dir, err := c.rustcSysrootLibdir(u.Kind)
		if err != nil {
			return nil, err
		}
		cx.SysrootLibdir[u.Kind] = dir
	}

	a := assemble.NewAssembler(cx, ug)
	sink := schedule.NewLineSink(req.output())

	boltIndexes := make(map[string]*fingerprint.BoltIndex)
	defer func() {
		for _, idx := range boltIndexes {
			_ = idx.Close()
		}
	}()
	getIndex := func(root string) (*fingerprint.BoltIndex, error) {
		if idx, ok := boltIndexes[root]; ok {
			return idx, nil
		}
		idx, err := fingerprint.OpenBoltIndex(&fingerprint.Store{Root: root})
		if err != nil {
			return nil, cargoerr.IO(err, "opening fingerprint cache at %s", root)
		}
		boltIndexes[root] = idx
		return idx, nil
	}

	fps := make(map[string]fingerprint.Fingerprint, len(units))
	jobs := make([]*schedule.Job, 0, len(units))
	for _, u := range units {
		u := u

		pkg, err := c.load(u.Pkg)
		if err != nil {
			return nil, cargoerr.IO(err, "loading package %s", u.Pkg)
		}

		var depFPs []string
		for _, d := range ug.Deps(u) {
			if fp, ok := fps[d.To.Key()]; ok {
				depFPs = append(depFPs, fp.Combined)
			}
		}
		fp, err := c.computeFingerprint(a, u, pkg, depFPs)
		if err != nil {
			return nil, cargoerr.Wrap(cargoerr.KindInternal, err, "computing fingerprint for %s", u)
		}
		fps[u.Key()] = fp

		storeRoot := filepath.Join(a.ProfileDir(u), ".fingerprint")
		idx, err := getIndex(storeRoot)
		if err != nil {
			return nil, err
		}

		var artifacts []string
		if u.Mode != unit.RunCustomBuild {
			artifact, err := a.ArtifactPath(u)
			if err != nil {
				return nil, cargoerr.Wrap(cargoerr.KindInternal, err, "naming artifact for %s", u)
			}
			artifacts = []string{artifact}
		}

		fresh, err := idx.IsFresh(u.Key(), fp, artifacts)
		if err != nil {
			return nil, cargoerr.IO(err, "checking freshness of %s", u)
		}

		deps := make([]string, 0, len(ug.Deps(u)))
		for _, d := range ug.Deps(u) {
			deps = append(deps, d.To.Key())
		}

		fpCopy := fp
		jobs = append(jobs, &schedule.Job{
			Key:     u.Key(),
			PkgKey:  u.Pkg.Key(),
			Deps:    deps,
			IsFresh: fresh,
			Fresh: func(ctx context.Context) error {
				return c.replayIfBuildScript(cx, a, u)
			},
			Dirty: func(ctx context.Context) error {
				if err := c.runUnit(ctx, cx, a, ug, u, sink); err != nil {
					return err
				}
				return idx.Save(u.Key(), fpCopy.Combined)
			},
		})
	}

	sched := &schedule.Scheduler{Jobs: jobs, Tokens: c.tokenSource(), FailFast: req.FailFast}
	result, runErr := sched.Run(pctx)
	out := &CompileResult{Resolve: solved, Units: ug, Scheduled: result}
	if runErr != nil {
		return out, cargoerr.Wrap(cargoerr.KindCompilation, runErr, "build failed")
	}
	return out, nil
}

// writeLockfile persists solved deterministically, so a rerun against
// an unchanged manifest reproduces the same lockfile byte-for-byte.
func (c *Ctx) writeLockfile(path string, res *resolve.Resolve) error {
	f, err := os.Create(path)
	if err != nil {
		return cargoerr.IO(err, "creating lockfile %s", path)
	}
	defer f.Close()
	if err := locktoml.Write(f, res); err != nil {
		return cargoerr.Wrap(cargoerr.KindIO, err, "writing lockfile %s", path)
	}
	return nil
}

// LoadLockHints reads a previously persisted lockfile into the
// name->version hint map resolve.Params.Hints expects, so the resolver
// can reuse prior selections instead of re-picking from scratch. A
// version string that does not parse as SemVer is carried as a Revision, the
// same fallback a path/git-pinned selection would resolve to.
func LoadLockHints(r io.Reader) (map[string]ident.Version, error) {
	h, err := locktoml.Read(r)
	if err != nil {
		return nil, cargoerr.Wrap(cargoerr.KindIO, err, "reading lockfile")
	}
	out := make(map[string]ident.Version, len(h.Packages))
	for _, p := range h.Packages {
		if sv, err := ident.NewSemVersion(p.Version); err == nil {
			out[p.Name] = sv
		} else {
			out[p.Name] = ident.Revision(p.Version)
		}
	}
	return out, nil
}

// computeFingerprint derives u's Fingerprint, choosing the personal
// ingredient by the unit's own shape: a RunCustomBuild unit uses the
// rerun-if-changed-aware build-script content hash, any unit backed by
// an immutable source uses a content hash derived from its
// resolved identity, and everything else (a path-source compile unit)
// falls back to a simplified mtime-of-package-root probe rather than a
// real rustc-emitted dep-info file — assemble.Rustc never emits
// `--emit dep-info` (see DESIGN.md), so there is no dep-info file for
// fingerprint.MtimeProbe to read for these units.
func (c *Ctx) computeFingerprint(a *assemble.Assembler, u *unit.Unit, pkg *source.Package, depFPs []string) (fingerprint.Fingerprint, error) {
	rustcVer, err := c.rustcVersionString()
	if err != nil {
		return fingerprint.Fingerprint{}, err
	}

	in := fingerprint.Inputs{
		CompilerVersion: rustcVer,
		Profile:         u.Profile,
		Platform:        u.Kind,
		Rustflags:       c.Config.Rustflags(u.Kind),
		Features:        featureNames(u.Features),
		Edition:         pkg.Edition,
		TargetName:      u.Target.Name,
		TargetKind:      u.Target.Kind.String(),
		DepFingerprints: depFPs,
	}

	switch {
	case u.Mode == unit.RunCustomBuild:
		personal, err := c.buildScriptPersonal(a, u, pkg)
		if err != nil {
			return fingerprint.Fingerprint{}, err
		}
		in.ContentHash = personal
	case c.Registry.DescribeSource(u.Pkg.Source).Immutable:
		in.ContentHash = fmt.Sprintf("%s@%s", u.Pkg.Source.FullKey(), u.Pkg.Version)
	default:
		in.DepInfoProbe = pathMtimeProbe(pkg.Root)
	}

	return fingerprint.Compute(in)
}

// buildScriptPersonal re-derives the prior run's rerun-if-changed list
// (by replaying its last captured output, if any) before asking
// fingerprint.BuildScriptInputs/BuildScriptPersonal for the current
// content hash: a recorded rerun-if-changed list replaces the
// whole-directory heuristic once one is available.
func (c *Ctx) buildScriptPersonal(a *assemble.Assembler, u *unit.Unit, pkg *source.Package) (string, error) {
	scratchDir := filepath.Dir(a.BuildScriptOutDir(u))

	var prior []string
	if out, err := buildscript.Replay(filepath.Join(scratchDir, "output"), pkg.Id.Name, scratchDir, scratchDir); err == nil {
		prior = out.RerunIfChanged
	}

	inputs, err := fingerprint.BuildScriptInputs(pkg.Root, prior)
	if err != nil {
		return "", err
	}
	return fingerprint.BuildScriptPersonal(inputs)
}

func pathMtimeProbe(root string) func() (string, error) {
	return func() (string, error) {
		fi, err := os.Stat(root)
		if err != nil {
			return "", errors.Wrapf(err, "probing path source mtime for %s", root)
		}
		return fmt.Sprintf("mtime:%d", fi.ModTime().UnixNano()), nil
	}
}

// runUnit executes a dirty unit: a RunCustomBuild unit is dispatched to
// runBuildScript, everything else is assembled into a plain rustc
// invocation and run as a one-shot subprocess.
func (c *Ctx) runUnit(pctx context.Context, cx *assemble.Context, a *assemble.Assembler, ug *unit.UnitGraph, u *unit.Unit, sink *schedule.LineSink) error {
	if u.Mode == unit.RunCustomBuild {
		return c.runBuildScript(pctx, cx, a, ug, u, sink)
	}

	inv, err := a.Rustc(u)
	if err != nil {
		return cargoerr.Wrap(cargoerr.KindInternal, err, "assembling invocation for %s", u)
	}

	if artifact, err := a.ArtifactPath(u); err == nil {
		if mkErr := os.MkdirAll(filepath.Dir(artifact), 0o755); mkErr != nil {
			return cargoerr.IO(mkErr, "preparing output directory for %s", u)
		}
	}

	cmd := exec.CommandContext(pctx, inv.Path, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = append(os.Environ(), inv.Env...)
	out, runErr := cmd.CombinedOutput()
	if len(out) > 0 {
		sink.WriteLine(fmt.Sprintf("[%s] %s", u.Key(), trimTrailingNewline(string(out))))
	}
	if runErr != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		return cargoerr.Compilation(u.Pkg.Name, code, string(out))
	}
	return nil
}

// runBuildScript compiles-and-runs... actually only *runs*: compiling
// the build-script binary itself is a normal Build-mode unit the
// scheduler already dispatched as compileUnit's own job, ahead of this
// one by dependency order. runBuildScript locates that binary, builds
// its controlled environment from upstream `links` metadata already
// published into cx.Outputs, executes it, and publishes its own parsed
// output for this package's other units to consume.
func (c *Ctx) runBuildScript(pctx context.Context, cx *assemble.Context, a *assemble.Assembler, ug *unit.UnitGraph, u *unit.Unit, sink *schedule.LineSink) error {
	var compileUnit *unit.Unit
	for _, d := range ug.Deps(u) {
		if d.ExternName == "build-script-build" {
			compileUnit = d.To
		}
	}
	if compileUnit == nil {
		return cargoerr.Internal(u.Pkg.String(), "%s has no build-script-build dependency", u)
	}

	programPath, err := a.ArtifactPath(compileUnit)
	if err != nil {
		return cargoerr.Wrap(cargoerr.KindInternal, err, "locating compiled build script for %s", u)
	}

	pkg, err := c.load(u.Pkg)
	if err != nil {
		return cargoerr.IO(err, "loading package for build script %s", u)
	}

	outDir := a.BuildScriptOutDir(u)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return cargoerr.IO(err, "creating OUT_DIR for %s", u)
	}

	var upstream []buildscript.DepMetadata
	for _, d := range ug.Deps(compileUnit) {
		if d.ExternName == "build-script-output" || d.ExternName == "build-script-build" {
			continue
		}
		out, ok := cx.Outputs.Get(d.To.Pkg, d.To.Kind)
		if !ok || len(out.Metadata) == 0 {
			continue
		}
		depPkg, err := c.load(d.To.Pkg)
		if err != nil || depPkg.LinksName == "" {
			continue
		}
		upstream = append(upstream, buildscript.DepMetadata{LinksName: depPkg.LinksName, Metadata: out.Metadata})
	}

	env := buildscript.Assemble(buildscript.EnvSpec{
		OutDir:           outDir,
		ManifestDir:      pkg.Root,
		ManifestLinks:    pkg.LinksName,
		TargetTriple:     cx.HostTriple,
		HostTriple:       cx.HostTriple,
		IsHostUnit:       u.Kind.IsHost(),
		NumJobs:          c.Config.Jobs(),
		OptLevel:         u.Profile.OptLevel,
		Debug:            u.Profile.Debuginfo,
		ProfileName:      u.Profile.Name,
		RustcPath:        cx.Config.RustcPath(),
		RustdocPath:      c.Config.Rustdoc(),
		Features:         featureNames(u.Features),
		UpstreamMetadata: upstream,
	})

	scratchDir := filepath.Dir(outDir)
	result, err := buildscript.Run(pctx, programPath, u.Pkg.Name, pkg.Root, scratchDir, env, sink.ForJob(u.Key()+"/stdout"), sink.ForJob(u.Key()+"/stderr"))
	if err != nil {
		return cargoerr.BuildScript(u.Pkg.Name, "", "%s", err)
	}

	cx.Outputs.Set(u.Pkg, u.Kind, result.Output)
	return nil
}

// replayIfBuildScript re-populates cx.Outputs for a fresh RunCustomBuild
// unit from its last captured output, without re-executing the script —
// every downstream unit assembling an invocation still needs this
// unit's published cfgs/paths/metadata even when it didn't run this
// time.
func (c *Ctx) replayIfBuildScript(cx *assemble.Context, a *assemble.Assembler, u *unit.Unit) error {
	if u.Mode != unit.RunCustomBuild {
		return nil
	}
	outDir := a.BuildScriptOutDir(u)
	scratchDir := filepath.Dir(outDir)
	output, err := buildscript.Replay(filepath.Join(scratchDir, "output"), u.Pkg.Name, scratchDir, scratchDir)
	if err != nil {
		return cargoerr.IO(err, "replaying cached build script output for %s", u)
	}
	cx.Outputs.Set(u.Pkg, u.Kind, output)
	return nil
}

func trimTrailingNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
