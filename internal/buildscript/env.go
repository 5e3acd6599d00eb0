package buildscript

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Cfg is one active `--cfg` predicate, either a bare name (`unix`) or a
// key/value pair (`target_os="linux"`) — values sharing a key are
// exposed to the build script as one comma-joined CARGO_CFG_<KEY>.
type Cfg struct {
	Key   string
	Value string // empty for a bare name
}

// DepMetadata is the `cargo:K=V` metadata a same-build upstream `links`
// package has already emitted, keyed by its links name.
type DepMetadata struct {
	LinksName string
	Metadata  []KV
}

// EnvSpec is every ingredient needed to assemble a build script's
// environment, gathered by the caller (the root package's
// runBuildScript) from the unit graph and the active platform/profile.
type EnvSpec struct {
	OutDir           string
	ManifestDir      string
	ManifestLinks    string // "" if this package has no `links` key
	TargetTriple     string
	HostTriple       string
	IsHostUnit       bool // TARGET == HOST when this unit's CompileKind is Host
	NumJobs          int
	OptLevel         int
	Debug            bool
	ProfileName      string // "debug" or "release", matching the compiler's own vocabulary
	RustcPath        string
	RustdocPath      string
	Cfgs             []Cfg
	Features         []string
	UpstreamMetadata []DepMetadata
	Extra            []KV // caller-supplied overrides (e.g. RUSTC_LINKER), applied last
}

// Assemble builds the full controlled environment table for a
// RunCustomBuild unit, as a sorted "KEY=VALUE" slice so invocations are
// byte-reproducible across runs with identical inputs.
func Assemble(spec EnvSpec) []string {
	env := map[string]string{
		"OUT_DIR":            spec.OutDir,
		"CARGO_MANIFEST_DIR": spec.ManifestDir,
		"NUM_JOBS":           strconv.Itoa(spec.NumJobs),
		"TARGET":             spec.TargetTriple,
		"HOST":               spec.HostTriple,
		"DEBUG":              strconv.FormatBool(spec.Debug),
		"OPT_LEVEL":          strconv.Itoa(spec.OptLevel),
		"PROFILE":            spec.ProfileName,
		"RUSTC":              spec.RustcPath,
		"RUSTDOC":            spec.RustdocPath,
	}
	if spec.IsHostUnit {
		env["TARGET"] = spec.HostTriple
	}
	if spec.ManifestLinks != "" {
		env["CARGO_MANIFEST_LINKS"] = spec.ManifestLinks
	}

	for _, f := range spec.Features {
		env["CARGO_FEATURE_"+envify(f)] = "1"
	}

	cfgValues := make(map[string][]string)
	var cfgOrder []string
	cfgSeen := make(map[string]bool)
	for _, c := range spec.Cfgs {
		k := envify(c.Key)
		if !cfgSeen[k] {
			cfgSeen[k] = true
			cfgOrder = append(cfgOrder, k)
		}
		if c.Value != "" {
			cfgValues[k] = append(cfgValues[k], c.Value)
		}
	}
	for _, k := range cfgOrder {
		env["CARGO_CFG_"+k] = strings.Join(cfgValues[k], ",")
	}

	for _, dm := range spec.UpstreamMetadata {
		for _, kv := range dm.Metadata {
			env[fmt.Sprintf("DEP_%s_%s", envify(dm.LinksName), envify(kv.Key))] = kv.Value
		}
	}

	for _, kv := range spec.Extra {
		env[kv.Key] = kv.Value
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// envify mirrors the controlled-environment naming convention:
// upper-case, with any byte that isn't an ASCII letter, digit, or
// underscore replaced by an underscore, so a feature or cfg key like
// "foo-bar" becomes FOO_BAR.
func envify(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToUpper(s) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
