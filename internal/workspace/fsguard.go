package workspace

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// hasFilepathPrefix reports whether path is prefix or a descendant of
// prefix, component-wise rather than by raw string comparison, so a
// sibling directory that merely shares a string prefix (/foo vs
// /foobar) is correctly rejected.
//
// Grounded on golang-dep's internal/fs.go HasFilepathPrefix, trimmed
// here to the plain component-wise comparison: that helper's
// case-insensitive-filesystem fallback guarded against a mismatched
// macOS/Windows mount under a Linux build, a concern this package has
// no analog for since every path it compares is already an absolute,
// glob-resolved directory on the same filesystem as the workspace
// root.
func hasFilepathPrefix(path, prefix string) bool {
	if filepath.VolumeName(path) != filepath.VolumeName(prefix) {
		return false
	}
	path = strings.TrimSuffix(filepath.Clean(path), string(os.PathSeparator))
	prefix = strings.TrimSuffix(filepath.Clean(prefix), string(os.PathSeparator))
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+string(os.PathSeparator))
}

// checkMemberWithinRoot rejects a member whose manifest resolved (after
// following any `path = ".."`-style glob pattern) outside the workspace
// root — the boundary a `[workspace] members` table should never be
// able to cross, the same directory-escape guard golang-dep's path
// handling exists to enforce.
func checkMemberWithinRoot(root, memberRoot string) error {
	if !hasFilepathPrefix(memberRoot, root) {
		return errors.Errorf("workspace: member %q is outside workspace root %q", memberRoot, root)
	}
	return nil
}
