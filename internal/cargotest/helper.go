package cargotest

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

// ExeSuffix is appended to binary names this package execs; ".exe" on
// Windows.
var ExeSuffix string

func init() {
	if runtime.GOOS == "windows" {
		ExeSuffix = ".exe"
	}
}

// Helper drives a built cargo binary as a subprocess against a
// scratch directory, the way an integration test exercises the CLI
// without reaching into its internal packages.
type Helper struct {
	t      *testing.T
	binary string
	dir    string
	env    []string

	ran            bool
	stdout, stderr bytes.Buffer
}

// NewHelper builds a Helper that runs binary (an already-built cargo
// executable) with cwd as its working directory.
func NewHelper(t *testing.T, binary, cwd string) *Helper {
	t.Helper()
	return &Helper{t: t, binary: binary, dir: cwd, env: append([]string(nil), os.Environ()...)}
}

// Setenv overrides (or adds) an environment variable for subsequent
// runs.
func (h *Helper) Setenv(name, val string) {
	prefix := name + "="
	for i, e := range h.env {
		if strings.HasPrefix(e, prefix) {
			h.env[i] = prefix + val
			return
		}
	}
	h.env = append(h.env, prefix+val)
}

// DoRun execs the binary with args, capturing stdout/stderr, and
// returns the run's error (nil on a zero exit status).
func (h *Helper) DoRun(args ...string) error {
	cmd := exec.Command(h.binary+ExeSuffix, args...)
	cmd.Dir = h.dir
	cmd.Env = h.env
	h.stdout.Reset()
	h.stderr.Reset()
	cmd.Stdout = &h.stdout
	cmd.Stderr = &h.stderr
	err := cmd.Run()
	h.ran = true
	return errors.Wrapf(err, "running %s %s\n%s", h.binary, strings.Join(args, " "), h.stderr.String())
}

// Run execs the binary and fails the test if it exits non-zero.
func (h *Helper) Run(args ...string) {
	h.t.Helper()
	if err := h.DoRun(args...); err != nil {
		h.t.Fatalf("%s %v failed unexpectedly: %+v", h.binary, args, err)
	}
}

// RunFail execs the binary and fails the test if it exits zero.
func (h *Helper) RunFail(args ...string) {
	h.t.Helper()
	if err := h.DoRun(args...); err == nil {
		h.t.Fatalf("%s %v succeeded unexpectedly", h.binary, args)
	}
}

// Stdout returns the most recent run's captured standard output.
func (h *Helper) Stdout() string {
	if !h.ran {
		h.t.Fatalf("Stdout called before any Run")
	}
	return h.stdout.String()
}

// Stderr returns the most recent run's captured standard error.
func (h *Helper) Stderr() string {
	if !h.ran {
		h.t.Fatalf("Stderr called before any Run")
	}
	return h.stderr.String()
}

// WriteFile writes content to name under the helper's working
// directory, creating parent directories as needed.
func (h *Helper) WriteFile(name, content string) string {
	h.t.Helper()
	path := filepath.Join(h.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		h.t.Fatalf("%+v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		h.t.Fatalf("%+v", err)
	}
	return path
}
