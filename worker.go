package kibitz

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/discochess/kibitz/internal/engine"
	"github.com/discochess/kibitz/internal/eval"
	"github.com/discochess/kibitz/internal/stats"
	"github.com/discochess/kibitz/internal/uci"
)

// job is one search waiting for the engine.
type job struct {
	ctx       context.Context
	sessionID uint64
	fen       string
	depth     int
	onInfo    func(uci.Info)
	slot      *admission
	done      chan jobResult
}

type jobResult struct {
	out engine.Outcome
	err error
}

// admission is a held queue slot. Once its job reaches the worker the
// worker owns the slot and frees it after the search has fully ended,
// including any stop and drain.
type admission struct {
	state   atomic.Int32
	release func()
}

const (
	slotHeld int32 = iota
	slotWorker
	slotFree
)

// Release frees the slot unless the worker has taken it over.
func (a *admission) Release() {
	if a.state.CompareAndSwap(slotHeld, slotFree) {
		a.release()
	}
}

// handOff transfers the slot to the worker. It fails if the slot is
// already free.
func (a *admission) handOff() bool {
	return a.state.CompareAndSwap(slotHeld, slotWorker)
}

// finish frees a slot owned by the worker.
func (a *admission) finish() {
	if a.state.CompareAndSwap(slotWorker, slotFree) {
		a.release()
	}
}

type admissionKey struct{}

func withAdmission(ctx context.Context, a *admission) context.Context {
	return context.WithValue(ctx, admissionKey{}, a)
}

func admissionFrom(ctx context.Context) *admission {
	a, _ := ctx.Value(admissionKey{}).(*admission)
	return a
}

// worker owns the engine process. Jobs run one at a time in arrival
// order; the semaphore bounds queued plus running jobs.
type worker struct {
	proc      *engine.Process
	jobs      chan *job
	sem       *semaphore.Weighted
	queueLen  int
	pending   atomic.Int64
	restarts  atomic.Int64
	attempts  uint
	backoff   time.Duration
	collector stats.Collector
	logger    *zap.Logger
}

func newWorker(proc *engine.Process, queueLen int, attempts uint, initialBackoff time.Duration, collector stats.Collector, logger *zap.Logger) *worker {
	return &worker{
		proc:      proc,
		jobs:      make(chan *job),
		sem:       semaphore.NewWeighted(int64(queueLen)),
		queueLen:  queueLen,
		attempts:  attempts,
		backoff:   initialBackoff,
		collector: collector,
		logger:    logger.Named("worker"),
	}
}

// admit reserves a queue slot without waiting.
func (w *worker) admit() (*admission, bool) {
	if !w.sem.TryAcquire(1) {
		w.collector.IncCounter(stats.MetricQueueRejected, 1)
		return nil, false
	}
	w.collector.SetGauge(stats.MetricQueueDepth, w.pending.Add(1))
	return &admission{release: func() {
		w.collector.SetGauge(stats.MetricQueueDepth, w.pending.Add(-1))
		w.sem.Release(1)
	}}, true
}

// depth returns the number of admitted jobs.
func (w *worker) depth() int64 {
	return w.pending.Load()
}

// run serves jobs until ctx is done.
func (w *worker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-w.jobs:
			out, err := w.handle(ctx, j)
			j.slot.finish()
			j.done <- jobResult{out: out, err: err}
		}
	}
}

// submit hands a job and its queue slot to the worker and waits for it.
// When ctx ends first submit returns at once; the worker stops the search,
// drains the engine and only then frees the slot.
func (w *worker) submit(ctx context.Context, slot *admission, sessionID uint64, fenStr string, depth int, onInfo func(uci.Info)) (engine.Outcome, error) {
	j := &job{
		ctx:       ctx,
		sessionID: sessionID,
		fen:       fenStr,
		depth:     depth,
		onInfo:    onInfo,
		slot:      slot,
		done:      make(chan jobResult, 1),
	}
	if !slot.handOff() {
		return engine.Outcome{}, eval.ErrQueueFull
	}

	select {
	case <-ctx.Done():
		slot.finish()
		return engine.Outcome{}, ctx.Err()
	case w.jobs <- j:
	}

	select {
	case <-ctx.Done():
		return engine.Outcome{}, ctx.Err()
	case res := <-j.done:
		return res.out, res.err
	}
}

// handle runs one job, restarting a crashed or unstarted engine with
// exponential backoff up to the configured number of attempts.
func (w *worker) handle(ctx context.Context, j *job) (engine.Outcome, error) {
	if err := j.ctx.Err(); err != nil {
		return engine.Outcome{}, err
	}

	jctx, cancel := context.WithCancel(j.ctx)
	defer cancel()
	// Closing the service stops the search too.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.backoff

	op := func() (engine.Outcome, error) {
		if w.proc.State() == engine.StateCrashed {
			w.restarts.Add(1)
			w.collector.IncCounter(stats.MetricEngineRestarts, 1)
			w.logger.Info("restarting engine", zap.Uint64("session", j.sessionID))
		}
		if err := w.proc.Start(jctx); err != nil {
			return engine.Outcome{}, retryable(jctx, err)
		}
		out, err := w.proc.Analyze(jctx, j.sessionID, j.fen, j.depth, j.onInfo)
		if err != nil {
			return out, retryable(jctx, err)
		}
		return out, nil
	}

	out, err := backoff.Retry(jctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(w.attempts),
	)
	if err != nil {
		return out, fmt.Errorf("local engine: %w", err)
	}
	return out, nil
}

// retryable marks errors that a fresh engine cannot fix as permanent.
func retryable(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, engine.ErrClosed) || !eval.Restartable(err) {
		return backoff.Permanent(err)
	}
	return err
}

func (w *worker) engineState() engine.State {
	return w.proc.State()
}
