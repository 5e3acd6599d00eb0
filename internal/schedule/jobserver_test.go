package schedule

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"
)

func TestLocalPoolBoundsConcurrency(t *testing.T) {
	pool := NewLocalPool(2)
	ctx := context.Background()

	if err := pool.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if err := pool.Acquire(ctx); err != nil {
		t.Fatal(err)
	}

	acquired := make(chan struct{})
	go func() {
		_ = pool.Acquire(context.Background())
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("expected a third Acquire to block while both tokens are held")
	case <-time.After(20 * time.Millisecond):
	}

	pool.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("expected the third Acquire to succeed once a token was released")
	}
}

func TestLocalPoolAcquireRespectsContextCancellation(t *testing.T) {
	pool := NewLocalPool(1)
	if err := pool.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pool.Acquire(ctx); err == nil {
		t.Fatal("expected Acquire to fail once ctx is already cancelled")
	}
}

func TestLocalPoolReleaseBeyondCapacityDoesNotBlock(t *testing.T) {
	pool := NewLocalPool(1)
	done := make(chan struct{})
	go func() {
		pool.Release() // no matching Acquire; must not block
		pool.Release()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Release beyond capacity blocked")
	}
}

func TestDetectJobserverParsesAuthToken(t *testing.T) {
	old := os.Getenv("MAKEFLAGS")
	defer os.Setenv("MAKEFLAGS", old)

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	os.Setenv("MAKEFLAGS", "-j --jobserver-auth="+strconv.Itoa(int(r.Fd()))+","+strconv.Itoa(int(w.Fd())))

	client, ok := DetectJobserver()
	if !ok {
		t.Fatal("expected DetectJobserver to recognize --jobserver-auth")
	}

	if _, err := w.Write([]byte{'+'}); err != nil {
		t.Fatal(err)
	}
	if err := client.Acquire(context.Background()); err != nil {
		t.Fatalf("expected Acquire to read the token byte, got %v", err)
	}
}

func TestDetectJobserverAbsentWithoutMakeflags(t *testing.T) {
	old := os.Getenv("MAKEFLAGS")
	defer os.Setenv("MAKEFLAGS", old)
	os.Unsetenv("MAKEFLAGS")

	if _, ok := DetectJobserver(); ok {
		t.Fatal("expected no jobserver to be detected without MAKEFLAGS")
	}
}
