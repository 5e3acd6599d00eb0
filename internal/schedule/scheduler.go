package schedule

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var errSkipped = errors.New("skipped: a dependency did not finish successfully")

// Result is the outcome of one Scheduler.Run: which jobs failed outright,
// which were skipped because a dependency failed (or, in fail-fast mode,
// because dispatch had already stopped), and the first error observed.
type Result struct {
	Failed  []string
	Skipped []string
	Err     error
}

// Scheduler executes a set of Jobs respecting the dependency order given
// by each Job's Deps, bounding concurrency via Tokens rather than a fixed
// goroutine pool so an inherited jobserver's token pool is shared as-is.
//
// Grounded on distr1-distri/internal/batch.scheduler.run: one goroutine
// (admit) owns token acquisition and ordering, a second (the caller of
// Run itself) owns readiness bookkeeping and token release, and a done
// channel is how the second tells the first what finished. Splitting
// these two responsibilities across goroutines is what lets admission
// block on a scarce token without deadlocking against the release that
// frees it up again. Both admit and the per-job work it spawns run under
// an errgroup.Group; its closures always return nil, since job failure
// is carried through done/Job.state rather than errgroup's own error
// aggregation — the group just gives Run a single Wait() to drain on.
type Scheduler struct {
	Jobs     []*Job
	Tokens   TokenSource
	FailFast bool
	Log      *logrus.Logger
}

func (s *Scheduler) logger() *logrus.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logrus.StandardLogger()
}

// doneMsg is what crosses from a job's completion back to the readiness
// loop. holdsToken is true only for a job that actually acquired one via
// admit and ran — its token is released by the readiness loop itself,
// after that loop has already folded the job's outcome into `stop`, so a
// sibling blocked waiting for that very token can never acquire it and
// then see a stale, not-yet-failed view of the run.
type doneMsg struct {
	job        *Job
	holdsToken bool
}

// Run drives every Job to a terminal state and returns once all of them
// have finished or been skipped. PackageId order (Job.PkgKey) breaks ties
// among jobs that become ready at the same time, so two runs over the
// same graph with the same freshness verdicts dispatch identically.
func (s *Scheduler) Run(ctx context.Context) (*Result, error) {
	byKey := make(map[string]*Job, len(s.Jobs))
	childrenOf := make(map[string][]*Job)
	remaining := make(map[string]int, len(s.Jobs))
	for _, j := range s.Jobs {
		byKey[j.Key] = j
	}
	for _, j := range s.Jobs {
		n := 0
		for _, d := range j.Deps {
			if _, ok := byKey[d]; ok {
				n++
				childrenOf[d] = append(childrenOf[d], j)
			}
		}
		remaining[j.Key] = n
	}

	var stop atomic.Bool
	var resMu sync.Mutex
	skipped := make(map[string]bool)
	result := &Result{}
	done := make(chan doneMsg, len(s.Jobs))

	// Workers run under one errgroup: the admit goroutine plus one
	// goroutine per admitted job's actual work. g.Go closures always
	// return nil here — job failure is carried through done/Job.state,
	// never through errgroup's own error aggregation, so a job failing
	// never cancels the group's derived context out from under an
	// already-Running sibling in non-fail-fast mode.
	g, gctx := errgroup.WithContext(ctx)

	// admit is the sole admission queue: the readiness loop below pushes
	// jobs onto it in PkgKey-sorted batches as they become ready, and a
	// single dedicated goroutine drains it, acquiring a token for each
	// job (possibly blocking) before spawning its actual work. Because
	// exactly one goroutine ever calls Tokens.Acquire, admission order
	// matches push order even when tokens are scarce enough to serialize
	// everything.
	admit := make(chan *Job, len(s.Jobs))
	g.Go(func() error {
		for j := range admit {
			j.setState(Ready, nil)
			if s.Tokens != nil {
				if err := s.Tokens.Acquire(ctx); err != nil {
					j.setState(FinishedErr, err)
					done <- doneMsg{job: j}
					continue
				}
			}
			if stop.Load() {
				if s.Tokens != nil {
					s.Tokens.Release()
				}
				s.markSkipped(j, &resMu, skipped, result, done)
				continue
			}
			j := j
			g.Go(func() error {
				s.runOne(gctx, j, done)
				return nil
			})
		}
		return nil
	})

	var cascadeSkip func(failedKey string)
	cascadeSkip = func(failedKey string) {
		for _, child := range childrenOf[failedKey] {
			if child.State() == FinishedOk || child.State() == FinishedErr {
				continue
			}
			if s.markSkipped(child, &resMu, skipped, result, done) {
				cascadeSkip(child.Key)
			}
		}
	}

	var initiallyReady []*Job
	for _, j := range s.Jobs {
		if remaining[j.Key] == 0 {
			initiallyReady = append(initiallyReady, j)
		}
	}
	sort.Slice(initiallyReady, func(a, b int) bool { return initiallyReady[a].PkgKey < initiallyReady[b].PkgKey })
	for _, j := range initiallyReady {
		admit <- j
	}

	// Every job, whether it runs, fails, or is skipped, is reported on
	// done exactly once (markSkipped and runOne both do), so the total
	// job count is the right thing to wait for regardless of path.
	pending := len(s.Jobs)
	for pending > 0 {
		msg := <-done
		j := msg.job
		pending--

		switch {
		case j.State() == FinishedErr && j.Err() == errSkipped:
			// already recorded into result.Skipped by markSkipped
		case j.State() == FinishedErr:
			resMu.Lock()
			result.Failed = append(result.Failed, j.Key)
			if result.Err == nil {
				result.Err = j.Err()
			}
			resMu.Unlock()
			if s.FailFast {
				stop.Store(true)
			}
			cascadeSkip(j.Key)
		default:
			var ready []*Job
			for _, child := range childrenOf[j.Key] {
				if isSkipped(&resMu, skipped, child.Key) {
					continue
				}
				remaining[child.Key]--
				if remaining[child.Key] == 0 {
					ready = append(ready, child)
				}
			}
			sort.Slice(ready, func(a, b int) bool { return ready[a].PkgKey < ready[b].PkgKey })
			for _, child := range ready {
				admit <- child
			}
		}

		// Released only now, after stop has already absorbed this job's
		// outcome: a sibling blocked on this very token can never
		// acquire it and then see a stale, not-yet-failed stop.
		if msg.holdsToken && s.Tokens != nil {
			s.Tokens.Release()
		}
	}
	close(admit)
	_ = g.Wait() // closures above always return nil; this just waits for drain

	return result, result.Err
}

func isSkipped(mu *sync.Mutex, skipped map[string]bool, key string) bool {
	mu.Lock()
	defer mu.Unlock()
	return skipped[key]
}

// markSkipped records j as skipped and reports it on done, unless it was
// already marked (the diamond-dependency case, where two failed ancestors
// both try to cascade into the same downstream job). Returns whether this
// call was the one that actually marked it, so callers only cascade
// further through a job once.
func (s *Scheduler) markSkipped(j *Job, mu *sync.Mutex, skipped map[string]bool, result *Result, done chan<- doneMsg) bool {
	mu.Lock()
	if skipped[j.Key] {
		mu.Unlock()
		return false
	}
	skipped[j.Key] = true
	result.Skipped = append(result.Skipped, j.Key)
	mu.Unlock()
	j.setState(FinishedErr, errSkipped)
	done <- doneMsg{job: j}
	return true
}

// runOne executes a job's work once a token has already been secured for
// it by admit. The token itself is released by the readiness loop after
// it processes this job's doneMsg, not here.
func (s *Scheduler) runOne(ctx context.Context, j *Job, done chan<- doneMsg) {
	j.setState(Running, nil)
	s.logger().WithField("job", j.Key).Debug("running job")
	err := j.run(ctx)
	if err != nil {
		j.setState(FinishedErr, err)
	} else {
		j.setState(FinishedOk, nil)
	}
	done <- doneMsg{job: j, holdsToken: s.Tokens != nil}
}
