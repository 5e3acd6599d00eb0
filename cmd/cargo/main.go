// Command cargo is this repository's CLI entry point: it parses a
// Cargo.toml, merges configuration, and drives the root orchestrator's
// resolve/build pipeline against the result.
//
// Grounded on golang-dep's cmd/dep/main.go: a `command` interface, one
// flag.FlagSet per subcommand, and a Config struct bundling the
// process's args/env/streams so Run is testable without touching
// os.Args directly.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	cargo "github.com/ngiloq6/cargo"
	"github.com/ngiloq6/cargo/internal/cargocfg"
	"github.com/ngiloq6/cargo/internal/ident"
	"github.com/ngiloq6/cargo/internal/manifest"
	"github.com/ngiloq6/cargo/internal/registry"
	"github.com/ngiloq6/cargo/internal/resolve"
	"github.com/ngiloq6/cargo/internal/source"
	"github.com/ngiloq6/cargo/internal/unit"
	"github.com/ngiloq6/cargo/internal/workspace"
)

type command interface {
	Name() string
	ShortHelp() string
	Register(*flag.FlagSet)
	Run(fs *flag.FlagSet, c *Config) error
}

func main() {
	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cargo: failed to get working directory:", err)
		os.Exit(1)
	}
	c := &Config{Args: os.Args, Stdout: os.Stdout, Stderr: os.Stderr, WorkingDir: wd, Env: os.Environ()}
	os.Exit(c.Run())
}

// Config bundles one process invocation's argv/env/streams, mirroring
// golang-dep's own Config shape so main stays a thin os.Exit wrapper.
type Config struct {
	WorkingDir     string
	Args           []string
	Env            []string
	Stdout, Stderr io.Writer
}

func (c *Config) Run() int {
	commands := []command{
		&buildCommand{mode: unit.Build},
		&buildCommand{mode: unit.Check},
		&buildCommand{mode: unit.Test},
		&treeCommand{},
	}
	commands[2].(*buildCommand).name = "test"
	commands[1].(*buildCommand).name = "check"
	commands[0].(*buildCommand).name = "build"

	if len(c.Args) < 2 {
		c.usage(commands)
		return 1
	}
	name := c.Args[1]

	for _, cmd := range commands {
		if cmd.Name() != name {
			continue
		}
		fs := flag.NewFlagSet(name, flag.ContinueOnError)
		fs.SetOutput(c.Stderr)
		cmd.Register(fs)
		if err := fs.Parse(c.Args[2:]); err != nil {
			return 1
		}
		if err := cmd.Run(fs, c); err != nil {
			fmt.Fprintln(c.Stderr, "cargo:", err)
			return 1
		}
		return 0
	}

	c.usage(commands)
	return 1
}

func (c *Config) usage(commands []command) {
	fmt.Fprintln(c.Stderr, "usage: cargo <command> [flags]")
	fmt.Fprintln(c.Stderr, "\ncommands:")
	for _, cmd := range commands {
		fmt.Fprintf(c.Stderr, "  %-10s %s\n", cmd.Name(), cmd.ShortHelp())
	}
}

// buildCommand implements build/check/test, the three subcommands that
// differ only in which unit.CompileMode they request.
type buildCommand struct {
	mode unit.CompileMode
	name string

	manifestPath string
	release      bool
	jobs         int
	target       string
	targetDir    string
	rustc        string
	verbose      bool
	workspace    bool
}

func (b *buildCommand) Name() string { return b.name }

func (b *buildCommand) ShortHelp() string {
	switch b.mode {
	case unit.Check:
		return "check a package for errors without producing binaries"
	case unit.Test:
		return "build and run a package's tests"
	default:
		return "compile a package and its dependencies"
	}
}

func (b *buildCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&b.manifestPath, "manifest-path", "Cargo.toml", "path to the package manifest")
	fs.BoolVar(&b.release, "release", false, "build with the release profile")
	fs.IntVar(&b.jobs, "j", 0, "number of parallel jobs, 0 uses the configured default")
	fs.StringVar(&b.target, "target", "", "build for a cross-compiled target triple")
	fs.StringVar(&b.targetDir, "target-dir", "", "override the output directory")
	fs.StringVar(&b.rustc, "rustc", "", "override the rustc binary to use")
	fs.BoolVar(&b.verbose, "v", false, "enable verbose logging")
	fs.BoolVar(&b.workspace, "workspace", false, "build every default member of the workspace rooted at the manifest")
}

func (b *buildCommand) Run(fs *flag.FlagSet, c *Config) error {
	overrides := cargocfg.Overrides{Target: b.target, TargetDir: b.targetDir, Rustc: b.rustc, Verbose: &b.verbose}
	if b.jobs > 0 {
		overrides.Jobs = &b.jobs
	}
	cfg, err := cargocfg.Load(nil, nil, c.Env, overrides)
	if err != nil {
		return err
	}

	log := newLogShell(b.verbose)

	manifestPath := b.manifestPath
	if !filepath.IsAbs(manifestPath) {
		manifestPath = filepath.Join(c.WorkingDir, manifestPath)
	}
	reg := registry.New(registry.PreferLatest)
	modes := []unit.CompileMode{b.mode}

	var root *source.Package
	var roots []unit.RootRequest
	if b.workspace {
		ws, err := loadWorkspace(manifestPath, reg)
		if err != nil {
			return err
		}
		root = ws.VirtualRoot()
		roots, err = ws.RootRequests(nil, modes)
		if err != nil {
			return err
		}
	} else {
		var err error
		root, err = loadWithPathDependencies(manifestPath, reg)
		if err != nil {
			return err
		}
		for _, t := range root.Targets {
			if t.Kind == source.TargetBuildScript {
				continue
			}
			roots = append(roots, unit.RootRequest{Pkg: root.Id, Modes: modes})
			break
		}
	}

	ctx := cargo.NewContext(cfg, reg, filepath.Join(c.WorkingDir, ".cargo-cache"))

	result, err := ctx.Compile(context.Background(), cargo.CompileRequest{
		Root:    root,
		Roots:   roots,
		Release: b.release,
		Output:  c.Stderr,
	})
	if err != nil {
		return err
	}

	for _, key := range result.Resolve.SortedKeys() {
		sel := result.Resolve.Selections[key]
		log.Status(sel.Id.Name, "resolved", sel.Id.Version.String())
	}
	return nil
}

// treeCommand prints the resolved dependency graph, an introspection
// surface alongside the build itself — grounded on golang-dep's
// cmd/dep status.go, which walks the same kind of resolved-selection
// table to report one line per project.
type treeCommand struct {
	manifestPath string
	workspace    bool
}

func (t *treeCommand) Name() string      { return "tree" }
func (t *treeCommand) ShortHelp() string { return "print the resolved dependency graph" }

func (t *treeCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&t.manifestPath, "manifest-path", "Cargo.toml", "path to the package manifest")
	fs.BoolVar(&t.workspace, "workspace", false, "print the graph for the whole workspace rooted at the manifest")
}

func (t *treeCommand) Run(fs *flag.FlagSet, c *Config) error {
	manifestPath := t.manifestPath
	if !filepath.IsAbs(manifestPath) {
		manifestPath = filepath.Join(c.WorkingDir, manifestPath)
	}
	reg := registry.New(registry.PreferLatest)

	var root *source.Package
	if t.workspace {
		ws, err := loadWorkspace(manifestPath, reg)
		if err != nil {
			return err
		}
		root = ws.VirtualRoot()
	} else {
		var err error
		root, err = loadWithPathDependencies(manifestPath, reg)
		if err != nil {
			return err
		}
	}

	cfg, err := cargocfg.Load(nil, nil, c.Env, cargocfg.Overrides{})
	if err != nil {
		return err
	}
	ctx := cargo.NewContext(cfg, reg, filepath.Join(c.WorkingDir, ".cargo-cache"))
	result, err := ctx.Compile(context.Background(), cargo.CompileRequest{
		Root:     root,
		Roots:    nil,
		SkipLock: true,
		Output:   c.Stderr,
	})
	if err != nil {
		return err
	}

	printTree(c.Stdout, result.Resolve, root.Id, 0, map[string]bool{})
	return nil
}

// printTree walks a resolved graph depth-first, printing one indented
// line per package the way `cargo tree` does; a package already printed
// anywhere earlier in the walk is noted but not expanded again, since
// the unit graph (and the resolve beneath it) is a DAG, not a tree.
func printTree(w io.Writer, res *resolve.Resolve, id *ident.PackageId, depth int, seen map[string]bool) {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	sel, ok := res.Get(id)
	if !ok {
		fmt.Fprintf(w, "%s%s (unresolved)\n", indent, id)
		return
	}
	if seen[id.Key()] {
		fmt.Fprintf(w, "%s%s (*)\n", indent, id)
		return
	}
	seen[id.Key()] = true
	fmt.Fprintf(w, "%s%s\n", indent, id)

	edges := append([]resolve.Edge(nil), sel.Edges...)
	sort.Slice(edges, func(i, j int) bool { return edges[i].ExternName < edges[j].ExternName })
	for _, e := range edges {
		printTree(w, res, e.To, depth+1, seen)
	}
}

// loadWithPathDependencies loads the manifest at path and every path
// dependency it transitively reaches, registering a PathSource for
// each so resolve.Solve can activate the whole local graph offline —
// registry-backed dependencies still need a network source registered
// by the caller; this CLI only wires up local path sources on its own.
func loadWithPathDependencies(manifestPath string, reg *registry.Registry) (*source.Package, error) {
	seen := map[string]bool{}
	var load func(path string) (*source.Package, error)
	load = func(path string) (*source.Package, error) {
		pkg, err := manifest.Load(path)
		if err != nil {
			return nil, err
		}
		if seen[pkg.Id.Key()] {
			return pkg, nil
		}
		seen[pkg.Id.Key()] = true
		reg.AddSource(pkg.Id.Source, source.NewPathSource(pkg))

		deps := append([]source.Dependency(nil), pkg.Dependencies...)
		sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })
		for _, d := range deps {
			if d.Source == nil || d.Source.Kind != ident.KindPath {
				continue
			}
			depManifest := filepath.Join(d.Source.URL, manifest.Name)
			if _, err := load(depManifest); err != nil {
				return nil, err
			}
		}
		return pkg, nil
	}
	return load(manifestPath)
}

// loadWorkspace reads manifestPath's `[workspace]` table, expands its
// member/default-member glob patterns against the manifest's directory,
// loads each resulting member (and that member's own path dependencies,
// via loadWithPathDependencies) into reg, and returns the assembled
// workspace.Workspace.
func loadWorkspace(manifestPath string, reg *registry.Registry) (*workspace.Workspace, error) {
	root := filepath.Dir(manifestPath)
	memberGlobs, defaultGlobs, ok, err := manifest.WorkspaceMembers(manifestPath)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Errorf("%s has no [workspace] table", manifestPath)
	}

	dirs, err := expandMemberGlobs(root, memberGlobs)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return nil, errors.Errorf("workspace at %s declares no members", manifestPath)
	}
	defaultDirs, err := expandMemberGlobs(root, defaultGlobs)
	if err != nil {
		return nil, err
	}
	inDefault := make(map[string]bool, len(defaultDirs))
	for _, d := range defaultDirs {
		inDefault[d] = true
	}

	var members []*source.Package
	var defaultNames []string
	for _, dir := range dirs {
		pkg, err := loadWithPathDependencies(filepath.Join(dir, manifest.Name), reg)
		if err != nil {
			return nil, err
		}
		members = append(members, pkg)
		if len(defaultDirs) == 0 || inDefault[dir] {
			defaultNames = append(defaultNames, pkg.Id.Name)
		}
	}
	return workspace.New(root, members, defaultNames)
}

// expandMemberGlobs resolves each of patterns (relative to root) to the
// directories it matches on disk, preserving cargo's own glob-style
// `[workspace] members = ["crates/*"]` convention.
func expandMemberGlobs(root string, patterns []string) ([]string, error) {
	var out []string
	for _, pat := range patterns {
		matches, err := filepath.Glob(filepath.Join(root, pat))
		if err != nil {
			return nil, errors.Wrapf(err, "expanding workspace member pattern %q", pat)
		}
		sort.Strings(matches)
		out = append(out, matches...)
	}
	return out, nil
}

func newLogShell(verbose bool) *logShell {
	l := logrus.New()
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	return &logShell{log: l}
}

// logShell implements the root package's ShellSink contract over
// logrus, the same structured-logging library internal/schedule
// already drives its own diagnostics through.
type logShell struct {
	log *logrus.Logger
}

func (s *logShell) Status(pkg, action, detail string) {
	s.log.WithFields(logrus.Fields{"pkg": pkg, "action": action}).Info(detail)
}

func (s *logShell) Warn(pkg, msg string) {
	s.log.WithField("pkg", pkg).Warn(msg)
}
