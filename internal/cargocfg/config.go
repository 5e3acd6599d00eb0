// Package cargocfg implements a merged configuration bag: one
// precedence order over CLI flags, environment variables, a project
// config file, a global config file, and built-in defaults, consulted
// when a key from the
// recognized table (build.jobs, target.<triple>.linker, net.offline,
// term.verbose, ...) is looked up, with the exceptions listed on Bag.
//
// Grounded on registry_config.go's raw-struct/toml.Unmarshal pattern
// for reading a TOML file into a typed tree, and on context.go's Ctx
// for the "one struct the rest of the tool asks" shape.
package cargocfg

import (
	"io"
	"runtime"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/ngiloq6/cargo/internal/unit"
)

// rawTriple is the config for one `[target.<triple>]` or
// `[target.'cfg(...)']` table.
type rawTriple struct {
	Linker     string   `toml:"linker"`
	Runner     string   `toml:"runner"`
	RunnerArgs []string `toml:"runner-args"`
	Ar         string   `toml:"ar"`
	Rustflags  []string `toml:"rustflags"`
}

type rawBuild struct {
	Jobs         int      `toml:"jobs"`
	Target       string   `toml:"target"`
	Rustflags    []string `toml:"rustflags"`
	Rustdocflags []string `toml:"rustdocflags"`
	Rustc        string   `toml:"rustc"`
	RustcWrapper string   `toml:"rustc-wrapper"`
	Rustdoc      string   `toml:"rustdoc"`
	TargetDir    string   `toml:"target-dir"`
	Incremental  *bool    `toml:"incremental"`
}

type rawNet struct {
	Offline bool `toml:"offline"`
	Retry   int  `toml:"retry"`
}

type rawHTTP struct {
	Timeout int `toml:"timeout"`
}

type rawTerm struct {
	Verbose bool   `toml:"verbose"`
	Color   string `toml:"color"`
}

type rawFile struct {
	Build  rawBuild             `toml:"build"`
	Net    rawNet               `toml:"net"`
	HTTP   rawHTTP              `toml:"http"`
	Term   rawTerm              `toml:"term"`
	Target map[string]rawTriple `toml:"target"`
}

// Overrides is the highest-precedence layer: values an explicit CLI
// flag pinned for this invocation (-j, --target, --target-dir, ...).
type Overrides struct {
	Jobs      *int
	Target    string
	TargetDir string
	Rustc     string
	Verbose   *bool
	Color     *string
}

// Bag is the fully merged configuration tree. Load builds one from a
// project file, a global file, the process environment, and an
// Overrides layer, applying this precedence: flag > env > project
// file > global file > built-in default. Four accessors differ:
// Incremental, NetRetry and HTTPTimeoutSeconds read only the project
// file, then the global file, then the default; Verbose reads the
// flag and otherwise reports true if either file sets term.verbose.
// None of these four reads the environment.
type Bag struct {
	project   rawFile
	global    rawFile
	overrides Overrides
	env       map[string]string
}

// Load reads project and global config files (either may be nil,
// meaning "not present"), merges in the process environment (CARGO_*
// variables, uppercased-dotted per Cargo's own convention, e.g.
// CARGO_BUILD_JOBS), and layers overrides on top.
func Load(project, global io.Reader, environ []string, overrides Overrides) (*Bag, error) {
	b := &Bag{overrides: overrides, env: envTable(environ)}

	if project != nil {
		rf, err := readRawFile(project)
		if err != nil {
			return nil, errors.Wrap(err, "parsing project cargo config")
		}
		b.project = rf
	}
	if global != nil {
		rf, err := readRawFile(global)
		if err != nil {
			return nil, errors.Wrap(err, "parsing global cargo config")
		}
		b.global = rf
	}
	return b, nil
}

func readRawFile(r io.Reader) (rawFile, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return rawFile{}, errors.Wrap(err, "reading config")
	}
	var rf rawFile
	if err := toml.Unmarshal(buf, &rf); err != nil {
		return rawFile{}, errors.Wrap(err, "unable to parse config as TOML")
	}
	return rf, nil
}

// envTable maps CARGO_BUILD_JOBS=4 -> "build.jobs"="4", the same
// dotted-key space the TOML tables use, so env and file values merge
// through one lookup path.
func envTable(environ []string) map[string]string {
	out := make(map[string]string)
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, "CARGO_") {
			continue
		}
		dotted := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(k, "CARGO_"), "_", "."))
		out[dotted] = v
	}
	return out
}

// --- build.* ---

// Jobs returns the configured parallelism, defaulting to
// runtime.NumCPU() when nothing in any layer pins it — matching schedule's
// own default token-pool size.
func (b *Bag) Jobs() int {
	if b.overrides.Jobs != nil {
		return *b.overrides.Jobs
	}
	if v, ok := b.env["build.jobs"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if b.project.Build.Jobs != 0 {
		return b.project.Build.Jobs
	}
	if b.global.Build.Jobs != 0 {
		return b.global.Build.Jobs
	}
	return runtime.NumCPU()
}

func (b *Bag) Target() string {
	return b.first(b.overrides.Target, "build.target", b.project.Build.Target, b.global.Build.Target)
}

// RustcPath implements assemble.Config.
func (b *Bag) RustcPath() string {
	if v := b.first(b.overrides.Rustc, "build.rustc", b.project.Build.Rustc, b.global.Build.Rustc); v != "" {
		return v
	}
	return "rustc"
}

// RustcWrapper implements assemble.Config.
func (b *Bag) RustcWrapper() string {
	return b.first("", "build.rustc-wrapper", b.project.Build.RustcWrapper, b.global.Build.RustcWrapper)
}

func (b *Bag) Rustdoc() string {
	v := b.first("", "build.rustdoc", b.project.Build.Rustdoc, b.global.Build.Rustdoc)
	if v == "" {
		return "rustdoc"
	}
	return v
}

// TargetDir implements assemble.Config.
func (b *Bag) TargetDir() string {
	if v := b.first(b.overrides.TargetDir, "build.target-dir", b.project.Build.TargetDir, b.global.Build.TargetDir); v != "" {
		return v
	}
	return "target"
}

func (b *Bag) Incremental() bool {
	if b.project.Build.Incremental != nil {
		return *b.project.Build.Incremental
	}
	if b.global.Build.Incremental != nil {
		return *b.global.Build.Incremental
	}
	return true
}

// Rustflags implements assemble.Config: build.rustflags plus any
// target.<triple>.rustflags for a non-host unit, project file winning
// over global.
func (b *Bag) Rustflags(kind unit.CompileKind) []string {
	out := append([]string(nil), b.pickFlags("build.rustflags", b.project.Build.Rustflags, b.global.Build.Rustflags)...)
	if !kind.IsHost() {
		if t, ok := b.triple(kind.Triple); ok {
			out = append(out, t.Rustflags...)
		}
	}
	return out
}

func (b *Bag) pickFlags(envKey string, project, global []string) []string {
	if v, ok := b.env[envKey]; ok {
		return strings.Fields(v)
	}
	if len(project) > 0 {
		return project
	}
	return global
}

// Linker implements assemble.Config.
func (b *Bag) Linker(kind unit.CompileKind) (string, bool) {
	if kind.IsHost() {
		return "", false
	}
	t, ok := b.triple(kind.Triple)
	if !ok || t.Linker == "" {
		return "", false
	}
	return t.Linker, true
}

// Runner returns the configured `target.<triple>.runner`, if any.
func (b *Bag) Runner(kind unit.CompileKind) (path string, args []string, ok bool) {
	if kind.IsHost() {
		return "", nil, false
	}
	t, has := b.triple(kind.Triple)
	if !has || t.Runner == "" {
		return "", nil, false
	}
	return t.Runner, t.RunnerArgs, true
}

// Ar returns the configured `target.<triple>.ar`, if any.
func (b *Bag) Ar(kind unit.CompileKind) (string, bool) {
	if kind.IsHost() {
		return "", false
	}
	t, ok := b.triple(kind.Triple)
	if !ok || t.Ar == "" {
		return "", false
	}
	return t.Ar, true
}

func (b *Bag) triple(name string) (rawTriple, bool) {
	if t, ok := b.project.Target[name]; ok {
		return t, true
	}
	if t, ok := b.global.Target[name]; ok {
		return t, true
	}
	return rawTriple{}, false
}

// --- net.*/http.*/term.* ---

func (b *Bag) NetOffline() bool {
	if v, ok := b.env["net.offline"]; ok {
		return v == "1" || v == "true"
	}
	return b.project.Net.Offline || b.global.Net.Offline
}

func (b *Bag) NetRetry() int {
	if b.project.Net.Retry != 0 {
		return b.project.Net.Retry
	}
	if b.global.Net.Retry != 0 {
		return b.global.Net.Retry
	}
	return 2
}

func (b *Bag) HTTPTimeoutSeconds() int {
	if b.project.HTTP.Timeout != 0 {
		return b.project.HTTP.Timeout
	}
	if b.global.HTTP.Timeout != 0 {
		return b.global.HTTP.Timeout
	}
	return 30
}

func (b *Bag) Verbose() bool {
	if b.overrides.Verbose != nil {
		return *b.overrides.Verbose
	}
	return b.project.Term.Verbose || b.global.Term.Verbose
}

// Color resolves term.color; "auto" (Cargo's own default) defers to
// the caller checking whether stdout is a terminal.
func (b *Bag) Color() string {
	if b.overrides.Color != nil {
		return *b.overrides.Color
	}
	v := b.first("", "term.color", b.project.Term.Color, b.global.Term.Color)
	if v == "" {
		return "auto"
	}
	return v
}

// first returns the first non-empty value among an override, an
// environment key, a project-file value, and a global-file value —
// the package's precedence order for string-valued keys.
func (b *Bag) first(override, envKey, project, global string) string {
	if override != "" {
		return override
	}
	if v, ok := b.env[envKey]; ok && v != "" {
		return v
	}
	if project != "" {
		return project
	}
	return global
}
