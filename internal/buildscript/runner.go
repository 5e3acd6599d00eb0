package buildscript

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
)

// Result is everything a RunCustomBuild unit's execution (or replay)
// produces.
type Result struct {
	Stdout []byte
	Stderr []byte
	Output *BuildOutput
}

// LineSink receives one line of captured output as it arrives, e.g. to
// forward it to a shell sink — the diagnostics path stays decoupled
// from persistence.
type LineSink func(line string)

// Run executes programPath as a build script under the given
// environment, streaming its stdout/stderr to the given sinks (pass
// nil to discard) and recording the raw stdout to scratchDir/output and
// raw stderr to scratchDir/stderr, the on-disk layout this package
// uses for build-script scratch state. A non-zero exit is a fatal error
// naming pkgName and including the captured stderr.
func Run(ctx context.Context, programPath, pkgName, workDir, scratchDir string, env []string, onStdout, onStderr LineSink) (*Result, error) {
	cmd := exec.CommandContext(ctx, programPath)
	cmd.Dir = workDir
	cmd.Env = env

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrapf(err, "opening stdout pipe for build script of %s", pkgName)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrapf(err, "opening stderr pipe for build script of %s", pkgName)
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "starting build script of %s", pkgName)
	}

	done := make(chan error, 2)
	go func() { done <- streamLines(stdoutPipe, &stdoutBuf, onStdout) }()
	go func() { done <- streamLines(stderrPipe, &stderrBuf, onStderr) }()
	streamErr1 := <-done
	streamErr2 := <-done

	runErr := cmd.Wait()
	if runErr == nil {
		if streamErr1 != nil {
			runErr = streamErr1
		} else if streamErr2 != nil {
			runErr = streamErr2
		}
	}

	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating build script scratch dir %s", scratchDir)
	}
	if err := os.WriteFile(filepath.Join(scratchDir, "output"), stdoutBuf.Bytes(), 0o644); err != nil {
		return nil, errors.Wrapf(err, "writing build script output for %s", pkgName)
	}
	if err := os.WriteFile(filepath.Join(scratchDir, "stderr"), stderrBuf.Bytes(), 0o644); err != nil {
		return nil, errors.Wrapf(err, "writing build script stderr for %s", pkgName)
	}

	if runErr != nil {
		return nil, errors.Wrapf(runErr, "failed to run custom build command for `%s`\n%s", pkgName, stderrBuf.String())
	}

	out, err := ParseOutput(stdoutBuf.Bytes(), pkgName, scratchDir, scratchDir)
	if err != nil {
		return nil, err
	}
	return &Result{Stdout: stdoutBuf.Bytes(), Stderr: stderrBuf.Bytes(), Output: out}, nil
}

func streamLines(r io.Reader, into *bytes.Buffer, sink LineSink) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		into.WriteString(line)
		into.WriteByte('\n')
		if sink != nil {
			sink(line)
		}
	}
	return sc.Err()
}

// Replay re-derives a BuildOutput from a previously captured stdout
// file without re-running the script, used when a RunCustomBuild
// unit's fingerprint is unchanged. generatedDir/currentDir let the
// replayed paths be re-rooted the same way a fresh run's would be.
func Replay(outputFile, pkgName, generatedDir, currentDir string) (*BuildOutput, error) {
	raw, err := os.ReadFile(outputFile)
	if err != nil {
		return nil, errors.Wrapf(err, "reading cached build script output for %s", pkgName)
	}
	return ParseOutput(raw, pkgName, generatedDir, currentDir)
}
