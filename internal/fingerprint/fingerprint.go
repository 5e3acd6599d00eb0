// Package fingerprint is a per-unit freshness key computed
// from two ingredients — a hash of statically known inputs ("extra")
// and either a precomputed content hash (immutable sources) or an
// mtime probe over a compiler-emitted dep-info file (path sources)
// ("personal") — plus the sorted fingerprints of the unit's
// dependencies, so that a change anywhere upstream invalidates
// everything downstream without re-hashing file contents at every
// level.
//
// Grounded on the freshness-check shape of golang-dep's own source
// caching (internal/gps/source_cache_bolt.go for the accelerating
// on-disk index; gps/verify/lock.go for the "hash of static inputs,
// compared byte-for-byte" pattern that decides trust).
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/ngiloq6/cargo/internal/unit"
)

// Inputs is everything needed to compute one unit's Fingerprint.
type Inputs struct {
	CompilerVersion string // full `--version --verbose` output
	Profile         unit.Profile
	Platform        unit.CompileKind
	Rustflags       []string
	Features        []string // need not be pre-sorted
	Edition         string
	TargetName      string
	TargetKind      string

	// Exactly one of ContentHash or DepInfoProbe is set, matching
	// whether the unit's package source is immutable or path-based.
	ContentHash string
	DepInfoProbe func() (string, error) // lazy: only invoked for path sources

	// DepFingerprints are the already-computed Combined fingerprints of
	// every unit this one depends on.
	DepFingerprints []string
}

// Fingerprint is the freshness key for one unit.
type Fingerprint struct {
	Extra    string
	Personal string
	Combined string
}

// Compute derives a Fingerprint from in. It never touches the
// filesystem itself beyond invoking in.DepInfoProbe — all other inputs
// are assumed already gathered by the caller (the build driver in the
// root package's compile.go).
func Compute(in Inputs) (Fingerprint, error) {
	extra := hashExtra(in)

	personal := in.ContentHash
	if personal == "" {
		if in.DepInfoProbe == nil {
			return Fingerprint{}, fmt.Errorf("fingerprint: neither ContentHash nor DepInfoProbe set")
		}
		p, err := in.DepInfoProbe()
		if err != nil {
			return Fingerprint{}, err
		}
		personal = p
	}

	deps := append([]string(nil), in.DepFingerprints...)
	sort.Strings(deps)

	h := sha256.New()
	fmt.Fprintf(h, "personal:%s\nextra:%s\n", personal, extra)
	for _, d := range deps {
		fmt.Fprintf(h, "dep:%s\n", d)
	}

	return Fingerprint{
		Extra:    extra,
		Personal: personal,
		Combined: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

func hashExtra(in Inputs) string {
	features := append([]string(nil), in.Features...)
	sort.Strings(features)
	rustflags := append([]string(nil), in.Rustflags...)

	h := sha256.New()
	fmt.Fprintf(h, "compiler:%s\n", in.CompilerVersion)
	fmt.Fprintf(h, "profile:%s,opt=%d,debug=%t,lto=%t,cgu=%d,overflow=%t\n",
		in.Profile.Name, in.Profile.OptLevel, in.Profile.Debuginfo, in.Profile.LTO,
		in.Profile.CodegenUnits, in.Profile.OverflowChecks)
	fmt.Fprintf(h, "platform:%s\n", in.Platform)
	fmt.Fprintf(h, "rustflags:%s\n", strings.Join(rustflags, " "))
	fmt.Fprintf(h, "features:%s\n", strings.Join(features, ","))
	fmt.Fprintf(h, "edition:%s\n", in.Edition)
	fmt.Fprintf(h, "target:%s/%s\n", in.TargetName, in.TargetKind)
	return hex.EncodeToString(h.Sum(nil))
}
