package kibitz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/discochess/kibitz/internal/book"
	"github.com/discochess/kibitz/internal/cache"
	"github.com/discochess/kibitz/internal/chain"
	"github.com/discochess/kibitz/internal/engine"
	"github.com/discochess/kibitz/internal/eval"
	"github.com/discochess/kibitz/internal/fen"
	"github.com/discochess/kibitz/internal/ratelimit"
	"github.com/discochess/kibitz/internal/stats"
)

// idleCaller is how long a caller's rate-limit state survives without
// requests.
const idleCaller = 10 * time.Minute

// Service answers analysis requests. A Service is safe for concurrent use
// by multiple goroutines.
type Service struct {
	opts    options
	cache   *cache.Cache
	limiter *ratelimit.Limiter
	chain   *chain.Chain
	book    *book.Book
	ownBook bool
	worker  *worker
	proc    *engine.Process

	stats  stats.Collector
	logger *zap.Logger

	nextID      atomic.Uint64
	requests    atomic.Int64
	rateLimited atomic.Int64
	queueFull   atomic.Int64

	mu      sync.Mutex
	current map[string]*Session
	results map[eval.Source]int64

	lifeMu  sync.Mutex // serializes Start and Close
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
	closed  atomic.Bool
}

// New creates a Service. Call Start before Analyze.
func New(opts ...Option) (*Service, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	s := &Service{
		opts:    cfg,
		limiter: ratelimit.New(cfg.ratePerMinute),
		stats:   cfg.stats,
		logger:  cfg.logger.Named("kibitz"),
		current: make(map[string]*Session),
		results: make(map[eval.Source]int64),
	}

	var err error
	s.cache, err = cache.New(
		cache.WithCapacity(cfg.cacheCapacity),
		cache.WithTTL(cfg.cacheTTL),
		cache.WithStats(cfg.stats),
		cache.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	s.book = cfg.book
	if s.book == nil {
		s.book, err = book.New(book.WithStats(cfg.stats), book.WithLogger(cfg.logger))
		if err != nil {
			return nil, fmt.Errorf("creating opening book: %w", err)
		}
		s.ownBook = true
	}

	var entries []chain.Entry
	if cfg.transport != nil {
		engineOpts := append([]engine.Option{engine.WithLogger(cfg.logger)}, cfg.engineOpts...)
		s.proc = engine.New(cfg.transport, engineOpts...)
		s.worker = newWorker(s.proc, cfg.queueLength, uint(cfg.restartAttempts), cfg.restartBackoff, cfg.stats, s.logger)
		entries = append(entries, chain.Entry{Strategy: &localStrategy{worker: s.worker}, Timeout: cfg.localTimeout})
	}
	if cfg.cloud != nil {
		entries = append(entries, chain.Entry{Strategy: &cloudStrategy{client: cfg.cloud}, Timeout: cfg.cloudTimeout})
	}
	entries = append(entries,
		chain.Entry{Strategy: &bookStrategy{book: s.book}},
		chain.Entry{Strategy: heuristicStrategy()},
	)
	s.chain = chain.New(entries, chain.WithStats(cfg.stats), chain.WithLogger(s.logger))

	return s, nil
}

// Start launches the engine worker and the periodic sweep. The engine is
// started eagerly; a failure is logged and retried on first use.
func (s *Service) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.closed.Load() {
		return ErrClosed
	}
	if s.started.Load() {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	if s.worker != nil {
		if err := s.proc.Start(ctx); err != nil {
			s.logger.Warn("engine not available at startup", zap.Error(err))
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.worker.run(s.ctx)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sweepLoop(s.ctx)
	}()
	s.started.Store(true)

	s.logger.Info("service started",
		zap.Strings("sources", sourceNames(s.chain.Sources())),
		zap.Int("queueLength", s.opts.queueLength),
	)
	return nil
}

// Analyze starts analysis of fenStr to depth for callerID and returns
// at once. Any earlier session of the same caller is cancelled. Depth is
// clamped to the configured maximum.
//
// Only ErrInvalidFEN, ErrInvalidDepth, ErrNotStarted and ErrClosed are
// returned; backend failures surface as fallback sources on the result.
func (s *Service) Analyze(ctx context.Context, fenStr string, depth int, callerID string, opts ...AnalyzeOption) (*Session, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if !s.started.Load() {
		return nil, ErrNotStarted
	}
	if _, err := fen.Normalize(fenStr); err != nil {
		return nil, err
	}
	if depth < 1 {
		return nil, ErrInvalidDepth
	}
	depth = min(depth, s.opts.maxDepth)
	ao := analyzeOptions{rateKey: callerID}
	for _, opt := range opts {
		opt(&ao)
	}

	sctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	sess := newSession(s.nextID.Add(1), callerID, fenStr, depth, func() {
		stop()
		cancel()
	})
	sess.rateKey = ao.rateKey

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	prev := s.current[callerID]
	s.current[callerID] = sess
	if prev != nil {
		prev.abort()
	}
	active := len(s.current)
	s.wg.Add(1)
	s.mu.Unlock()

	if prev != nil {
		s.stats.IncCounter(stats.MetricSuperseded, 1)
		s.logger.Debug("session superseded",
			zap.String("caller", callerID),
			zap.Uint64("old", prev.id),
			zap.Uint64("new", sess.id),
		)
	}
	s.requests.Add(1)
	s.stats.IncCounter(stats.MetricRequests, 1)
	s.stats.SetGauge(stats.MetricActiveSessions, int64(active))

	go func() {
		defer s.wg.Done()
		s.run(sctx, sess)
	}()
	return sess, nil
}

// Cancel cancels the current session of callerID, reporting whether
// there was one.
func (s *Service) Cancel(callerID string) bool {
	s.mu.Lock()
	sess := s.current[callerID]
	if sess != nil {
		delete(s.current, callerID)
		sess.abort()
	}
	active := len(s.current)
	s.mu.Unlock()

	if sess == nil {
		return false
	}
	s.stats.SetGauge(stats.MetricActiveSessions, int64(active))
	s.logger.Debug("session cancelled", zap.String("caller", callerID), zap.Uint64("session", sess.id))
	return true
}

func (s *Service) run(ctx context.Context, sess *Session) {
	if !sess.start() {
		return
	}
	start := time.Now()

	if r, ok := s.cache.Get(sess.fen, sess.depth); ok {
		s.finish(sess, r.WithSource(eval.SourceCache), start)
		return
	}

	req := chain.Request{
		SessionID: sess.id,
		FEN:       sess.fen,
		Depth:     sess.depth,
		CallerID:  sess.callerID,
		Progress:  func(r eval.Result) { s.progress(sess, r) },
	}

	degraded := eval.DegradedNone
	var skip []eval.Source
	switch {
	case !s.limiter.Allow(sess.rateKey):
		degraded = eval.DegradedRateLimited
		skip = []eval.Source{eval.SourceLocalEngine, eval.SourceCloud}
		s.rateLimited.Add(1)
		s.stats.IncCounter(stats.MetricRateLimited, 1)
	case s.worker != nil:
		a, ok := s.worker.admit()
		if !ok {
			degraded = eval.DegradedQueueFull
			skip = []eval.Source{eval.SourceLocalEngine, eval.SourceCloud}
			s.queueFull.Add(1)
			break
		}
		defer a.Release()
		ctx = withAdmission(ctx, a)
	}

	r, failures, err := s.chain.Run(ctx, req, skip...)
	if err != nil {
		if ctx.Err() != nil {
			s.abandon(sess)
			return
		}
		s.logger.Error("every strategy failed",
			zap.Uint64("session", sess.id),
			zap.Int("failures", len(failures)),
			zap.Error(err),
		)
		s.fail(sess, err)
		return
	}

	if (r.Source == eval.SourceLocalEngine || r.Source == eval.SourceCloud) && r.Depth > 0 {
		if err := s.cache.Put(sess.fen, r.Depth, r); err != nil {
			s.logger.Warn("caching result", zap.Error(err))
		}
	}
	if degraded != eval.DegradedNone {
		r = r.WithDegradation(degraded)
	}
	s.finish(sess, r, start)
}

// progress delivers an intermediate result if sess is still current.
func (s *Service) progress(sess *Session, r eval.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current[sess.callerID] != sess {
		return
	}
	sess.push(r)
}

// finish delivers the final result if sess is still current.
func (s *Service) finish(sess *Session, r eval.Result, start time.Time) {
	s.mu.Lock()
	if s.current[sess.callerID] != sess {
		s.mu.Unlock()
		return
	}
	r = sess.complete(r)
	delete(s.current, sess.callerID)
	active := len(s.current)
	s.results[r.Source]++
	s.mu.Unlock()

	src := stats.L("source", r.Source.String())
	s.stats.IncCounter(stats.MetricResults, 1, src)
	s.stats.ObserveDuration(stats.MetricAnalysisDuration, time.Since(start), src)
	s.stats.SetGauge(stats.MetricActiveSessions, int64(active))
}

func (s *Service) fail(sess *Session, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current[sess.callerID] == sess {
		delete(s.current, sess.callerID)
	}
	sess.fail(err)
}

// abandon ends a session whose context is done, e.g. because the caller's
// context was cancelled.
func (s *Service) abandon(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current[sess.callerID] == sess {
		delete(s.current, sess.callerID)
	}
	sess.abort()
}

func (s *Service) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired := s.cache.Sweep()
			idle := s.limiter.Sweep(idleCaller)
			if expired > 0 || idle > 0 {
				s.logger.Debug("sweep",
					zap.Int("expiredResults", expired),
					zap.Int("idleCallers", idle),
				)
			}
		}
	}
}

// Close cancels every session, stops the worker and shuts the engine
// down. Close is idempotent after the first call, which returns its
// error; later calls return ErrClosed.
func (s *Service) Close() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	s.mu.Lock()
	for id, sess := range s.current {
		sess.abort()
		delete(s.current, id)
	}
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	var errs []error
	if s.proc != nil {
		if err := s.proc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing engine: %w", err))
		}
	}
	if s.ownBook {
		if err := s.book.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing book: %w", err))
		}
	}
	s.logger.Info("service closed")
	return errors.Join(errs...)
}

func sourceNames(srcs []eval.Source) []string {
	names := make([]string, len(srcs))
	for i, src := range srcs {
		names[i] = src.String()
	}
	return names
}
