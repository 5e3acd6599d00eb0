// Package cargo is the top-level orchestrator: the one driver wiring
// package registry, resolver, unit lowering, fingerprinting,
// build-script execution, and compilation assembly into a single
// end-to-end build, the way original_source/src/cargo/ops/cargo_compile.rs's
// compile() sits above every other module in the real cargo.
//
// Grounded on golang-dep's Ctx (context.go): a small struct of ambient
// facts plus a constructor, threaded through every collaborator the
// tool drives, generalized here from a bare GOPATH to a merged config
// bag, a source registry, and the package-cache lock.
package cargo

import (
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/ngiloq6/cargo/internal/cachelock"
	"github.com/ngiloq6/cargo/internal/cargocfg"
	"github.com/ngiloq6/cargo/internal/cargoerr"
	"github.com/ngiloq6/cargo/internal/ident"
	"github.com/ngiloq6/cargo/internal/registry"
	"github.com/ngiloq6/cargo/internal/schedule"
	"github.com/ngiloq6/cargo/internal/source"
	"github.com/ngiloq6/cargo/internal/unit"
)

// ConfigBag is the configuration surface the orchestrator itself
// consults, a superset of assemble.Config (the narrower slice
// invocation assembly needs). cargocfg.Bag is this repository's only
// implementation; a real CLI could substitute another without
// touching the rest of the pipeline.
type ConfigBag interface {
	Jobs() int
	RustcPath() string
	RustcWrapper() string
	Rustdoc() string
	TargetDir() string
	Rustflags(kind unit.CompileKind) []string
	Linker(kind unit.CompileKind) (string, bool)
	NetOffline() bool
	Verbose() bool
}

// ManifestSource resolves a manifest file on disk into the package
// record and root dependency set the rest of the system consumes,
// satisfied concretely by internal/manifest's TOML reader so the
// orchestrator is runnable end-to-end.
type ManifestSource interface {
	Load(path string) (*source.Package, error)
}

// ShellSink is where build diagnostics and status lines go — the same
// narrow "write status/warn/error lines somewhere" contract
// golang-dep's cmd.Loggers exposes, kept as an interface here so a CLI
// can swap in a color/verbosity-aware writer.
type ShellSink interface {
	Status(pkg, action, detail string)
	Warn(pkg, msg string)
}

// Ctx is the struct a cargo invocation threads through every module it
// drives.
type Ctx struct {
	Config   ConfigBag
	Registry *registry.Registry
	Lock     *cachelock.Lock

	rustcVersion  string
	sysrootLibdir map[string]string // CompileKind.String() -> libdir
}

// NewContext builds a Ctx from an already-loaded config bag and a
// registry with every needed source already added. The rustc
// self-probe (version, sysroot) happens lazily on first Compile call,
// so constructing a Ctx never shells out.
func NewContext(cfg *cargocfg.Bag, reg *registry.Registry, cacheDir string) *Ctx {
	return &Ctx{
		Config:        cfg,
		Registry:      reg,
		Lock:          cachelock.New(cacheDir),
		sysrootLibdir: make(map[string]string),
	}
}

// load resolves id to its full Package record via the registry's
// source for id.Source, the PackageLoader contract internal/unit and
// internal/assemble both share.
func (c *Ctx) load(id *ident.PackageId) (*source.Package, error) {
	src, ok := c.Registry.SourceFor(id.Source)
	if !ok {
		return nil, cargoerr.Internal(id.String(), "no source registered for %s", id.Source)
	}
	return src.Package(id.Name, id.Version)
}

// tokenSource picks an inherited GNU-make jobserver over a freshly
// sized local pool, letting this build cooperate with an enclosing
// `make -j` invocation's token pool instead of oversubscribing it.
func (c *Ctx) tokenSource() schedule.TokenSource {
	if js, ok := schedule.DetectJobserver(); ok {
		return js
	}
	return schedule.NewLocalPool(c.Config.Jobs())
}

// rustcVersionString runs `rustc --version --verbose` once per Ctx and
// caches it — the one ingredient of a fingerprint's CompilerVersion
// that only the real toolchain can supply.
func (c *Ctx) rustcVersionString() (string, error) {
	if c.rustcVersion != "" {
		return c.rustcVersion, nil
	}
	out, err := exec.Command(c.Config.RustcPath(), "--version", "--verbose").Output()
	if err != nil {
		return "", cargoerr.IO(err, "probing rustc version")
	}
	c.rustcVersion = strings.TrimSpace(string(out))
	return c.rustcVersion, nil
}

// rustcSysrootLibdir runs `rustc --print target-libdir`, optionally
// cross-compiling via --target, caching the result per CompileKind.
func (c *Ctx) rustcSysrootLibdir(kind unit.CompileKind) (string, error) {
	if dir, ok := c.sysrootLibdir[kind.String()]; ok {
		return dir, nil
	}
	args := []string{"--print", "target-libdir"}
	if !kind.IsHost() {
		args = append(args, "--target", kind.Triple)
	}
	out, err := exec.Command(c.Config.RustcPath(), args...).Output()
	if err != nil {
		return "", cargoerr.IO(err, "probing rustc sysroot libdir for %s", kind)
	}
	dir := strings.TrimSpace(string(out))
	c.sysrootLibdir[kind.String()] = dir
	return dir, nil
}

// hostTriple approximates the running Rust target triple from Go's own
// GOOS/GOARCH. There is no full Rust target-spec database available to
// this orchestrator, so this is good enough to key
// assemble.Context.HostTriple and label host-kind units, not a
// substitute for `rustc --print host-tuple` when exact cross-compile
// correctness matters.
func hostTriple() string {
	arch := map[string]string{
		"amd64": "x86_64",
		"386":   "i686",
		"arm64": "aarch64",
		"arm":   "armv7",
	}[runtime.GOARCH]
	if arch == "" {
		arch = runtime.GOARCH
	}
	switch runtime.GOOS {
	case "darwin":
		return arch + "-apple-darwin"
	case "windows":
		return arch + "-pc-windows-msvc"
	default:
		return arch + "-unknown-linux-gnu"
	}
}

func featureNames(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for name, on := range m {
		if on {
			out = append(out, name)
		}
	}
	return out
}

func splitSearchPath(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, string(filepath.ListSeparator))
}
