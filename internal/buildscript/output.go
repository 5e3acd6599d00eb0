// Package buildscript runs a package's build-script
// unit as a subprocess under a controlled environment, parsing its
// `cargo:` directive stream, and propagating the result to the units
// that depend on it.
//
// Grounded on original_source/src/cargo/core/compiler/custom_build.rs:
// the same directive table, the same env-var names, and the same
// to_link/plugins propagation shape, expressed with Go's error
// handling and concurrency idioms instead.
package buildscript

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// BuildOutput is the parsed, structured result of one build-script run.
type BuildOutput struct {
	LibraryPaths      []string
	LibraryLinks      []string
	Cfgs              []string
	Env               []KV
	Metadata          []KV
	RerunIfChanged    []string
	RerunIfEnvChanged []string
	Warnings          []string
}

// KV is an ordered key/value pair — Env and Metadata preserve
// declaration order since later directives may legitimately repeat an
// earlier key.
type KV struct {
	Key   string
	Value string
}

// DirectiveError reports a malformed `cargo:` line, naming the
// offending package the way a failed compile names its crate.
type DirectiveError struct {
	Package string
	Line    string
	Reason  string
}

func (e *DirectiveError) Error() string {
	return fmt.Sprintf("invalid build script output in package %s: %s: %q", e.Package, e.Reason, e.Line)
}

// ParseOutput parses a build script's captured stdout. Lines not
// starting with "cargo:" are ignored here — callers that also want the
// plain build log pass stdout to their own diagnostics sink before (or
// instead of) calling ParseOutput.
//
// generatedDir is the OUT_DIR the script ran under when this output
// was produced; currentDir is the OUT_DIR of the current invocation.
// Any library-search-path/rerun-if-changed path rooted under
// generatedDir is rewritten to the equivalent path under currentDir,
// so a replayed cached output still resolves to paths that exist on
// disk even if OUT_DIR's absolute location shifted between runs. Only
// a value that begins with generatedDir is rewritten: a link-search
// value carrying a KIND= prefix (such as native=) is kept unchanged.
func ParseOutput(stdout []byte, pkgName, generatedDir, currentDir string) (*BuildOutput, error) {
	out := &BuildOutput{}
	remap := func(val string) string {
		rel, err := filepath.Rel(generatedDir, val)
		if err != nil || strings.HasPrefix(rel, "..") {
			return val
		}
		return filepath.Join(currentDir, rel)
	}

	sc := bufio.NewScanner(bytes.NewReader(stdout))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		rest, ok := cutPrefix(line, "cargo:")
		if !ok {
			continue
		}
		key, value, ok := splitOnce(rest, '=')
		if !ok {
			return nil, &DirectiveError{Package: pkgName, Line: line, Reason: "missing `=value`"}
		}

		switch key {
		case "rustc-flags":
			paths, links, err := parseRustcFlags(value, pkgName, line)
			if err != nil {
				return nil, err
			}
			out.LibraryPaths = append(out.LibraryPaths, paths...)
			out.LibraryLinks = append(out.LibraryLinks, links...)
		case "rustc-link-lib":
			out.LibraryLinks = append(out.LibraryLinks, value)
		case "rustc-link-search":
			out.LibraryPaths = append(out.LibraryPaths, remap(value))
		case "rustc-cfg":
			out.Cfgs = append(out.Cfgs, value)
		case "rustc-env":
			k, v, ok := splitOnce(value, '=')
			if !ok {
				return nil, &DirectiveError{Package: pkgName, Line: line, Reason: "rustc-env has no value"}
			}
			out.Env = append(out.Env, KV{Key: k, Value: v})
		case "warning":
			out.Warnings = append(out.Warnings, value)
		case "rerun-if-changed":
			out.RerunIfChanged = append(out.RerunIfChanged, remap(value))
		case "rerun-if-env-changed":
			out.RerunIfEnvChanged = append(out.RerunIfEnvChanged, value)
		default:
			out.Metadata = append(out.Metadata, KV{Key: key, Value: value})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "scanning build script output of %s", pkgName)
	}
	return out, nil
}

// parseRustcFlags accepts only `-l` and `-L` tokens, the tool's explicit
// restriction on the rustc-flags directive — anything else is a fatal
// directive error naming the offending flag.
func parseRustcFlags(value, pkgName, line string) ([]string, []string, error) {
	fields := strings.Fields(value)
	var paths, links []string
	for i := 0; i < len(fields); i++ {
		flag := fields[i]
		if flag != "-l" && flag != "-L" {
			return nil, nil, &DirectiveError{Package: pkgName, Line: line, Reason: fmt.Sprintf("disallowed flag %q in rustc-flags (only -l and -L are permitted)", flag)}
		}
		i++
		if i >= len(fields) {
			return nil, nil, &DirectiveError{Package: pkgName, Line: line, Reason: fmt.Sprintf("flag %s has no value", flag)}
		}
		if flag == "-l" {
			links = append(links, fields[i])
		} else {
			paths = append(paths, fields[i])
		}
	}
	return paths, links, nil
}

func cutPrefix(s, prefix string) (string, bool) {
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	return s[len(prefix):], true
}

func splitOnce(s string, sep byte) (string, string, bool) {
	i := strings.IndexByte(s, sep)
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}
