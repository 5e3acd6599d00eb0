package schedule

import (
	"fmt"
	"io"
	"sync"
)

// LineSink serializes writes from concurrently running jobs onto a single
// io.Writer one line at a time, so two workers' output never interleaves
// mid-line the way plain concurrent writes to os.Stdout would.
//
// Grounded on golang-dep's cmd.go activityBuffer, which wraps a buffer in
// a mutex for the same reason: multiple monitoredCmd goroutines write to
// it concurrently and the buffer itself has no synchronization of its own.
type LineSink struct {
	mu  sync.Mutex
	out io.Writer
}

func NewLineSink(out io.Writer) *LineSink {
	return &LineSink{out: out}
}

// ForJob returns a callback suitable for buildscript.Run's onStdout or
// onStderr parameter, prefixing each line with the job it came from.
func (s *LineSink) ForJob(jobKey string) func(line string) {
	return func(line string) {
		s.mu.Lock()
		defer s.mu.Unlock()
		fmt.Fprintf(s.out, "[%s] %s\n", jobKey, line)
	}
}

func (s *LineSink) WriteLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, line)
}
