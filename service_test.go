package kibitz_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/discochess/kibitz"
	"github.com/discochess/kibitz/internal/book"
	"github.com/discochess/kibitz/internal/cloud"
	"github.com/discochess/kibitz/internal/engine"
	"github.com/discochess/kibitz/internal/engine/enginetest"
)

const (
	startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	// Not in the built-in book.
	offBookFEN = "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3"
)

func newService(t *testing.T, opts ...kibitz.Option) *kibitz.Service {
	t.Helper()
	svc, err := kibitz.New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

// collect reads a session's updates until the channel closes.
func collect(t *testing.T, sess *kibitz.Session) []kibitz.Update {
	t.Helper()
	var got []kibitz.Update
	timeout := time.After(5 * time.Second)
	for {
		select {
		case u, ok := <-sess.Updates():
			if !ok {
				return got
			}
			got = append(got, u)
		case <-timeout:
			t.Fatalf("session %d did not finish, state %v", sess.ID(), sess.State())
		}
	}
}

func finalOf(t *testing.T, updates []kibitz.Update) kibitz.Result {
	t.Helper()
	if len(updates) == 0 || !updates[len(updates)-1].Final {
		t.Fatalf("updates = %+v, want a final update last", updates)
	}
	return updates[len(updates)-1].Result
}

func cloudStatus(t *testing.T, status int) *cloud.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return cloud.New(cloud.WithBaseURL(srv.URL))
}

func TestAnalyze_StartPositionFromEngine(t *testing.T) {
	fake := &enginetest.Engine{}
	svc := newService(t, kibitz.WithEngine(fake))

	sess, err := svc.Analyze(context.Background(), startFEN, 10, "alice")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	updates := collect(t, sess)

	if len(updates) != 2 {
		t.Fatalf("got %d updates, want one progressive and one final: %+v", len(updates), updates)
	}
	progress := updates[0]
	if progress.Final {
		t.Error("first update should be progressive")
	}
	r := progress.Result
	if r.Depth != 10 || r.Score != kibitz.Centipawns(20) || r.BestMove != "e2e4" || r.Source != kibitz.SourceLocalEngine {
		t.Errorf("progress = %+v, want depth 10 +0.20 e2e4 from the local engine", r)
	}
	if r.Score.Pawns() != 0.2 {
		t.Errorf("Pawns() = %v, want 0.2", r.Score.Pawns())
	}

	final := finalOf(t, updates)
	if final.Depth != 10 || final.BestMove != "e2e4" || final.Source != kibitz.SourceLocalEngine {
		t.Errorf("final = %+v, want depth 10 e2e4 from the local engine", final)
	}
	for _, u := range updates {
		if u.SessionID != sess.ID() {
			t.Errorf("update for session %d on session %d", u.SessionID, sess.ID())
		}
	}
	if sess.State() != kibitz.StateCompleted {
		t.Errorf("State() = %v, want completed", sess.State())
	}

	got, err := sess.Wait(context.Background())
	if err != nil || got.BestMove != "e2e4" {
		t.Errorf("Wait() = %+v, %v", got, err)
	}
}

func TestAnalyze_ProgressIsMonotonic(t *testing.T) {
	fake := &enginetest.Engine{Search: enginetest.Progressive("d2d4"), LineDelay: time.Millisecond}
	svc := newService(t, kibitz.WithEngine(fake))

	sess, err := svc.Analyze(context.Background(), startFEN, 8, "bob")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	updates := collect(t, sess)
	final := finalOf(t, updates)

	last := 0
	for _, u := range updates {
		if u.Result.Depth < last {
			t.Errorf("depth went from %d to %d", last, u.Result.Depth)
		}
		last = u.Result.Depth
	}
	if final.Depth != 8 || final.Score != kibitz.Centipawns(40) {
		t.Errorf("final = depth %d %v, want depth 8 +0.40", final.Depth, final.Score)
	}
	for _, u := range updates[:len(updates)-1] {
		if u.Final {
			t.Error("only the last update may be final")
		}
		if u.Result.Depth > final.Depth {
			t.Errorf("intermediate depth %d exceeds final %d", u.Result.Depth, final.Depth)
		}
	}
}

func TestAnalyze_SupersedeDropsStaleResults(t *testing.T) {
	fake := &enginetest.Engine{Search: enginetest.Progressive("g1f3"), LineDelay: 20 * time.Millisecond}
	svc := newService(t, kibitz.WithEngine(fake))
	ctx := context.Background()

	first, err := svc.Analyze(ctx, startFEN, 30, "carol")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	// Let the first search report something.
	select {
	case <-first.Updates():
	case <-time.After(2 * time.Second):
		t.Fatal("no progress from first session")
	}

	second, err := svc.Analyze(ctx, offBookFEN, 3, "carol")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	for _, u := range collect(t, first) {
		if u.Final {
			t.Error("superseded session delivered a final result")
		}
		if u.SessionID != first.ID() {
			t.Errorf("first session got update for %d", u.SessionID)
		}
	}
	if first.State() != kibitz.StateCancelled {
		t.Errorf("first State() = %v, want cancelled", first.State())
	}
	if _, err := first.Wait(ctx); !errors.Is(err, kibitz.ErrCancelled) {
		t.Errorf("first Wait() error = %v, want ErrCancelled", err)
	}

	updates := collect(t, second)
	final := finalOf(t, updates)
	for _, u := range updates {
		if u.SessionID != second.ID() {
			t.Errorf("second session got update for %d", u.SessionID)
		}
	}
	if final.Depth != 3 {
		t.Errorf("second final depth = %d, want 3", final.Depth)
	}
	if second.ID() <= first.ID() {
		t.Errorf("session IDs not increasing: %d then %d", first.ID(), second.ID())
	}
}

func TestAnalyze_LocalTimeoutCloudMissFallsToBook(t *testing.T) {
	fake := &enginetest.Engine{
		Search:       func(string, int) []string { return []string{"bestmove e2e4"} },
		HoldBestMove: true,
	}
	svc := newService(t,
		kibitz.WithEngine(fake),
		kibitz.WithLocalTimeout(100*time.Millisecond),
		kibitz.WithCloud(cloudStatus(t, http.StatusNotFound)),
	)

	sess, err := svc.Analyze(context.Background(), startFEN, 20, "dave")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	final := finalOf(t, collect(t, sess))

	if final.Source != kibitz.SourceOpeningBook || final.BestMove != "e2e4" || final.Depth != 15 {
		t.Errorf("final = %+v, want e2e4 at depth 15 from the opening book", final)
	}
	if final.Degraded != kibitz.DegradedNone {
		t.Errorf("Degraded = %v, want none", final.Degraded)
	}
}

func TestAnalyze_EngineAndCloudDown(t *testing.T) {
	tests := []struct {
		name       string
		fen        string
		wantSource kibitz.Source
	}{
		{"in book", startFEN, kibitz.SourceOpeningBook},
		{"off book", offBookFEN, kibitz.SourceHeuristic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &enginetest.Engine{ExitOnGo: true}
			svc := newService(t,
				kibitz.WithEngine(fake),
				kibitz.WithRestart(3, time.Millisecond),
				kibitz.WithCloud(cloudStatus(t, http.StatusServiceUnavailable)),
			)

			sess, err := svc.Analyze(context.Background(), tt.fen, 12, "erin")
			if err != nil {
				t.Fatalf("Analyze() error = %v", err)
			}
			final := finalOf(t, collect(t, sess))
			if final.Source != tt.wantSource {
				t.Errorf("Source = %v, want %v", final.Source, tt.wantSource)
			}
			if final.BestMove == "" {
				t.Error("fallback result has no move")
			}

			// One initial start plus restarts up to the attempt limit.
			if fake.Dials() != 3 {
				t.Errorf("Dials() = %d, want 3", fake.Dials())
			}
			if got := svc.Stats().EngineRestarts; got != 2 {
				t.Errorf("EngineRestarts = %d, want 2", got)
			}
		})
	}
}

func TestAnalyze_QueueFullRoutesToFallback(t *testing.T) {
	fake := &enginetest.Engine{HoldBestMove: true}
	svc := newService(t,
		kibitz.WithEngine(fake),
		kibitz.WithQueueLength(20),
		kibitz.WithLocalTimeout(300*time.Millisecond),
	)

	const callers = 25
	sessions := make([]*kibitz.Session, callers)
	for i := range sessions {
		sess, err := svc.Analyze(context.Background(), startFEN, 20, "caller-"+string(rune('A'+i)))
		if err != nil {
			t.Fatalf("Analyze() error = %v", err)
		}
		sessions[i] = sess
	}

	var queueFull, fallback atomic.Int32
	var wg sync.WaitGroup
	for _, sess := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			r, err := sess.Wait(ctx)
			if err != nil {
				t.Errorf("session %d: Wait() error = %v", sess.ID(), err)
				return
			}
			if r.Degraded == kibitz.DegradedQueueFull {
				queueFull.Add(1)
			}
			if r.Source == kibitz.SourceOpeningBook || r.Source == kibitz.SourceHeuristic {
				fallback.Add(1)
			}
		}()
	}
	wg.Wait()

	if queueFull.Load() < 5 {
		t.Errorf("queue-full results = %d, want at least 5", queueFull.Load())
	}
	if fallback.Load() < 5 {
		t.Errorf("fallback results = %d, want at least 5", fallback.Load())
	}
	if got := svc.Stats().QueueRejected; got < 5 {
		t.Errorf("QueueRejected = %d, want at least 5", got)
	}
}

func TestAnalyze_CacheServesDeeperResults(t *testing.T) {
	fake := &enginetest.Engine{Search: enginetest.Progressive("e2e4")}
	svc := newService(t, kibitz.WithEngine(fake))
	ctx := context.Background()

	analyze := func(fenStr string, depth int) kibitz.Result {
		t.Helper()
		sess, err := svc.Analyze(ctx, fenStr, depth, "frank")
		if err != nil {
			t.Fatalf("Analyze() error = %v", err)
		}
		r, err := sess.Wait(ctx)
		if err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
		return r
	}

	if r := analyze(startFEN, 10); r.Source != kibitz.SourceLocalEngine || r.Depth != 10 {
		t.Fatalf("first = %+v, want depth 10 from the local engine", r)
	}
	// Same position, different move counters, shallower depth.
	if r := analyze("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 4 9", 6); r.Source != kibitz.SourceCache || r.Depth != 10 {
		t.Errorf("second = %+v, want the depth-10 result from cache", r)
	}
	if r := analyze(startFEN, 12); r.Source != kibitz.SourceLocalEngine || r.Depth != 12 {
		t.Errorf("third = %+v, want a fresh depth-12 search", r)
	}
	if got := fake.Count("go depth"); got != 2 {
		t.Errorf("searches = %d, want 2", got)
	}

	st := svc.Stats()
	if st.CacheHits != 1 || st.CacheSize != 2 {
		t.Errorf("Stats() cache = %d hits, size %d; want 1 hit, size 2", st.CacheHits, st.CacheSize)
	}
}

func TestAnalyze_RateLimitedCaller(t *testing.T) {
	fake := &enginetest.Engine{}
	svc := newService(t, kibitz.WithEngine(fake), kibitz.WithRateLimit(1))
	ctx := context.Background()

	sess, _ := svc.Analyze(ctx, startFEN, 10, "gina")
	if r, err := sess.Wait(ctx); err != nil || r.Source != kibitz.SourceLocalEngine {
		t.Fatalf("first = %+v, %v; want the local engine", r, err)
	}

	sess, _ = svc.Analyze(ctx, offBookFEN, 10, "gina")
	r, err := sess.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if r.Degraded != kibitz.DegradedRateLimited || r.Source != kibitz.SourceHeuristic {
		t.Errorf("second = %+v, want a rate-limited heuristic result", r)
	}

	// Other callers keep their own budget.
	sess, _ = svc.Analyze(ctx, offBookFEN, 10, "hank")
	if r, _ := sess.Wait(ctx); r.Source != kibitz.SourceLocalEngine {
		t.Errorf("other caller Source = %v, want local engine", r.Source)
	}
	if got := svc.Stats().RateLimited; got != 1 {
		t.Errorf("RateLimited = %d, want 1", got)
	}
}

func TestAnalyze_WithoutEngine(t *testing.T) {
	svc := newService(t)

	sess, err := svc.Analyze(context.Background(), startFEN, 10, "ivy")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	r, err := sess.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if r.Source != kibitz.SourceOpeningBook {
		t.Errorf("Source = %v, want opening book", r.Source)
	}
	if st := svc.Stats(); st.EngineEnabled || st.EngineState != "disabled" {
		t.Errorf("Stats() engine = %v %q, want disabled", st.EngineEnabled, st.EngineState)
	}
}

func TestAnalyze_InputErrors(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if _, err := svc.Analyze(ctx, "rnbqkbnr/pppppppp w", 10, "x"); !errors.Is(err, kibitz.ErrInvalidFEN) {
		t.Errorf("bad FEN error = %v, want ErrInvalidFEN", err)
	}
	if _, err := svc.Analyze(ctx, startFEN, 0, "x"); !errors.Is(err, kibitz.ErrInvalidDepth) {
		t.Errorf("depth 0 error = %v, want ErrInvalidDepth", err)
	}

	sess, err := svc.Analyze(ctx, startFEN, 500, "x")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if sess.Depth() != kibitz.DefaultMaxDepth {
		t.Errorf("Depth() = %d, want clamped to %d", sess.Depth(), kibitz.DefaultMaxDepth)
	}
}

func TestService_Lifecycle(t *testing.T) {
	svc, err := kibitz.New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := svc.Analyze(context.Background(), startFEN, 5, "x"); !errors.Is(err, kibitz.ErrNotStarted) {
		t.Errorf("Analyze() before Start error = %v, want ErrNotStarted", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := svc.Close(); !errors.Is(err, kibitz.ErrClosed) {
		t.Errorf("second Close() error = %v, want ErrClosed", err)
	}
	if _, err := svc.Analyze(context.Background(), startFEN, 5, "x"); !errors.Is(err, kibitz.ErrClosed) {
		t.Errorf("Analyze() after Close error = %v, want ErrClosed", err)
	}
}

func TestService_Cancel(t *testing.T) {
	fake := &enginetest.Engine{HoldBestMove: true}
	svc := newService(t, kibitz.WithEngine(fake))

	sess, err := svc.Analyze(context.Background(), startFEN, 20, "jo")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	select {
	case <-sess.Updates():
	case <-time.After(2 * time.Second):
		t.Fatal("no progress before cancel")
	}
	if !svc.Cancel("jo") {
		t.Fatal("Cancel() = false, want true")
	}
	collect(t, sess)
	if sess.State() != kibitz.StateCancelled {
		t.Errorf("State() = %v, want cancelled", sess.State())
	}
	if svc.Cancel("jo") {
		t.Error("second Cancel() = true, want false")
	}

	// The engine is stopped and free for the next caller.
	next, _ := svc.Analyze(context.Background(), offBookFEN, 5, "kim")
	ctx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
	defer cancel()
	if _, err := next.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if fake.Count("stop") == 0 {
		t.Error("cancelled search was not stopped")
	}
}

func TestService_CloseStopsEngine(t *testing.T) {
	fake := &enginetest.Engine{}
	svc, err := kibitz.New(kibitz.WithEngine(fake, engine.WithQuitGrace(50*time.Millisecond)))
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := svc.EngineState(); got != engine.StateReady {
		t.Errorf("EngineState() = %v, want ready", got)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if fake.Count("quit") != 1 {
		t.Errorf("quit sent %d times, want 1", fake.Count("quit"))
	}
}

func TestAnalyze_QueueSlotHeldWhileEngineDrains(t *testing.T) {
	fake := &enginetest.Engine{HoldBestMove: true, IgnoreStop: true}
	svc := newService(t,
		kibitz.WithEngine(fake, engine.WithStopTimeout(400*time.Millisecond)),
		kibitz.WithQueueLength(1),
		kibitz.WithLocalTimeout(150*time.Millisecond),
	)
	ctx := context.Background()

	first, err := svc.Analyze(ctx, startFEN, 20, "gina")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if r := finalOf(t, collect(t, first)); r.Source != kibitz.SourceOpeningBook {
		t.Fatalf("first Source = %v, want opening book", r.Source)
	}

	// The engine has not answered stop yet, so its slot is still taken.
	if got := svc.Stats().QueueDepth; got != 1 {
		t.Errorf("QueueDepth while draining = %d, want 1", got)
	}
	second, err := svc.Analyze(ctx, offBookFEN, 20, "hank")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if r := finalOf(t, collect(t, second)); r.Degraded != kibitz.DegradedQueueFull {
		t.Errorf("second Degraded = %v, want queue-full", r.Degraded)
	}

	deadline := time.Now().Add(3 * time.Second)
	for svc.Stats().QueueDepth != 0 {
		if time.Now().After(deadline) {
			t.Fatal("queue slot never freed after the engine was stopped")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAnalyze_RateKeySharesBudget(t *testing.T) {
	svc := newService(t, kibitz.WithEngine(&enginetest.Engine{}), kibitz.WithRateLimit(1))
	ctx := context.Background()

	sess, _ := svc.Analyze(ctx, startFEN, 10, "club#0", kibitz.WithRateKey("club"))
	if r, err := sess.Wait(ctx); err != nil || r.Degraded != kibitz.DegradedNone {
		t.Fatalf("first = %+v, %v; want an undegraded result", r, err)
	}

	sess, _ = svc.Analyze(ctx, offBookFEN, 10, "club#1", kibitz.WithRateKey("club"))
	if r, _ := sess.Wait(ctx); r.Degraded != kibitz.DegradedRateLimited {
		t.Errorf("second session Degraded = %v, want rate limited", r.Degraded)
	}

	// The key, not the session caller, owns the budget.
	sess, _ = svc.Analyze(ctx, offBookFEN, 10, "club")
	if r, _ := sess.Wait(ctx); r.Degraded != kibitz.DegradedRateLimited {
		t.Errorf("caller under its own name Degraded = %v, want rate limited", r.Degraded)
	}
	if got := sess.CallerID(); got != "club" {
		t.Errorf("CallerID() = %q, want club", got)
	}
}

func TestClose_LeavesCallerBookOpen(t *testing.T) {
	b, err := book.New()
	if err != nil {
		t.Fatalf("book.New() error = %v", err)
	}
	svc, err := kibitz.New(kibitz.WithBook(b))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := b.Lookup(context.Background(), startFEN); err != nil {
		t.Errorf("Lookup() after service Close error = %v, want the book still open", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("book Close() error = %v", err)
	}
}
