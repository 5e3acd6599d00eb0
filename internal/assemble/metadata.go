package assemble

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/ngiloq6/cargo/internal/unit"
)

// metadataHash computes rustc's `-C metadata=`/`-C extra-filename=`
// disambiguator: two units sharing a crate name (different versions of
// the same dependency, or the same package built for host and target)
// must still produce distinctly named .rlib files, or the linker picks
// one arbitrarily.
//
// Grounded on fingerprint.go's Compute: the same sha256-then-hex-encode
// shape, truncated to rustc's own convention of a short hex suffix
// rather than a full digest.
func metadataHash(u *unit.Unit) string {
	features := append([]string(nil), featureList(u.Features)...)
	sort.Strings(features)

	h := sha256.New()
	fmt.Fprintf(h, "pkg:%s\n", u.Pkg.Key())
	fmt.Fprintf(h, "target:%s/%s\n", u.Target.Name, u.Target.Kind)
	fmt.Fprintf(h, "kind:%s\n", u.Kind)
	fmt.Fprintf(h, "mode:%s\n", u.Mode)
	fmt.Fprintf(h, "profile:%s\n", u.Profile.Name)
	fmt.Fprintf(h, "features:%s\n", strings.Join(features, ","))

	return hex.EncodeToString(h.Sum(nil))[:16]
}

func featureList(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for name, on := range m {
		if on {
			out = append(out, name)
		}
	}
	return out
}
