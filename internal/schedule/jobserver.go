package schedule

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// TokenSource bounds scheduler concurrency: a worker acquires a token
// before spawning a compiler process and releases it on exit. The two
// implementations below are interchangeable — a recursive invocation
// of the orchestrator that inherits a jobserver transparently shares
// its parent's pool instead of creating a second, oversubscribing one.
type TokenSource interface {
	Acquire(ctx context.Context) error
	Release()
}

// LocalPool is a bounded token pool backed by a pre-filled buffered
// channel, the default TokenSource when no jobserver is inherited.
type LocalPool struct {
	tokens chan struct{}
}

// NewLocalPool returns a pool of n tokens. n must be at least 1.
func NewLocalPool(n int) *LocalPool {
	if n < 1 {
		n = 1
	}
	tokens := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		tokens <- struct{}{}
	}
	return &LocalPool{tokens: tokens}
}

func (p *LocalPool) Acquire(ctx context.Context) error {
	select {
	case <-p.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *LocalPool) Release() {
	select {
	case p.tokens <- struct{}{}:
	default: // pool already full; a double-release would otherwise block forever
	}
}

// JobserverClient speaks the GNU make jobserver protocol: one byte
// read from the inherited read-fd acquires a token, one byte written
// to the inherited write-fd releases it. This lets a build invoked as
// part of a larger `make -j`-driven tree share that tree's token pool
// instead of spawning its own on top.
type JobserverClient struct {
	r, w *os.File
}

// DetectJobserver inspects MAKEFLAGS for a `--jobserver-auth=R,W` (or
// the older `--jobserver-fds=R,W`) token and, if present with two
// non-negative descriptor numbers, returns a client for it; whether
// those descriptors are open is not checked.
func DetectJobserver() (*JobserverClient, bool) {
	mf := os.Getenv("MAKEFLAGS")
	if mf == "" {
		return nil, false
	}
	for _, tok := range strings.Fields(mf) {
		r, w, ok := parseJobserverAuth(tok)
		if !ok {
			continue
		}
		rf := os.NewFile(uintptr(r), "jobserver-r")
		wf := os.NewFile(uintptr(w), "jobserver-w")
		if rf == nil || wf == nil {
			return nil, false
		}
		return &JobserverClient{r: rf, w: wf}, true
	}
	return nil, false
}

func parseJobserverAuth(tok string) (r, w int, ok bool) {
	var rest string
	switch {
	case strings.HasPrefix(tok, "--jobserver-auth="):
		rest = strings.TrimPrefix(tok, "--jobserver-auth=")
	case strings.HasPrefix(tok, "--jobserver-fds="):
		rest = strings.TrimPrefix(tok, "--jobserver-fds=")
	default:
		return 0, 0, false
	}
	parts := strings.SplitN(rest, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	ri, err1 := strconv.Atoi(parts[0])
	wi, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return ri, wi, true
}

// Acquire blocks until a token byte is available or ctx is done. The
// underlying fd read cannot itself be interrupted by ctx cancellation;
// on cancellation Acquire returns promptly but the spawned reader
// goroutine is abandoned, and the byte it reads once the pipe does
// produce one is consumed and never written back — an accepted leak scoped to
// process shutdown, matching the fact that the pipe itself closes when
// the parent make process exits.
func (c *JobserverClient) Acquire(ctx context.Context) error {
	result := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := c.r.Read(buf)
		result <- err
	}()
	select {
	case err := <-result:
		return errors.Wrap(err, "reading jobserver token")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *JobserverClient) Release() {
	_, _ = c.w.Write([]byte{'+'})
}
