// Package httpapi serves the analysis service over HTTP.
//
// Endpoints:
//
//	GET    /health             liveness and engine state
//	POST   /analyze            analyze one position; NDJSON updates, or the
//	                           final result only with ?stream=false
//	POST   /analyze-batch      analyze several positions, final results only
//	DELETE /sessions/{caller}  cancel a caller's running analysis
//	GET    /stats              service counters
//	GET    /metrics            Prometheus metrics, when a gatherer is set
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/discochess/kibitz"
)

// CallerIDHeader identifies the caller when the body does not.
const CallerIDHeader = "X-Caller-ID"

// maxBody bounds request bodies.
const maxBody = 1 << 20

// Analyzer is the part of *kibitz.Service the handlers use.
type Analyzer interface {
	Analyze(ctx context.Context, fen string, depth int, callerID string, opts ...kibitz.AnalyzeOption) (*kibitz.Session, error)
	Cancel(callerID string) bool
	Stats() kibitz.Stats
}

var _ Analyzer = (*kibitz.Service)(nil)

type handler struct {
	svc    Analyzer
	opts   options
	logger *zap.Logger
	now    func() time.Time
}

// New returns the API handler, wrapped in request-ID and access-log
// middleware.
func New(svc Analyzer, opts ...Option) http.Handler {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	h := &handler{
		svc:    svc,
		opts:   cfg,
		logger: cfg.logger.Named("http"),
		now:    time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /analyze", h.analyze)
	mux.HandleFunc("POST /analyze-batch", h.analyzeBatch)
	mux.HandleFunc("DELETE /sessions/{caller}", h.cancel)
	mux.HandleFunc("GET /stats", h.stats)
	if cfg.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{}))
	}

	return RequestID(AccessLog(h.logger, mux))
}

type healthResponse struct {
	Status    string    `json:"status"`
	Engine    string    `json:"engine"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Engine:    h.svc.Stats().EngineState,
		Timestamp: h.now().UTC(),
	})
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats())
}

func (h *handler) cancel(w http.ResponseWriter, r *http.Request) {
	if !h.svc.Cancel(r.PathValue("caller")) {
		writeError(w, http.StatusNotFound, "no running analysis for caller")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type analyzeRequest struct {
	FEN      string `json:"fen"`
	Depth    int    `json:"depth"`
	CallerID string `json:"caller_id"`
}

func (h *handler) analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.FEN == "" {
		writeError(w, http.StatusBadRequest, "fen is required")
		return
	}
	if req.Depth == 0 {
		req.Depth = DefaultDepth
	}

	sess, err := h.svc.Analyze(r.Context(), req.FEN, req.Depth, callerID(r, req.CallerID))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	if r.URL.Query().Get("stream") == "false" {
		h.writeFinal(w, r, sess)
		return
	}
	h.stream(w, r, sess)
}

// stream writes each update as one JSON line. A session that ends without
// a final result gets a trailing error line.
func (h *handler) stream(w http.ResponseWriter, r *http.Request, sess *kibitz.Session) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	final := false
	for u := range sess.Updates() {
		if err := enc.Encode(u); err != nil {
			h.logger.Debug("client gone", zap.String("rid", GetRequestID(r.Context())), zap.Error(err))
			return
		}
		_ = rc.Flush()
		final = final || u.Final
	}
	if !final {
		_ = enc.Encode(errorResponse{Error: "analysis " + sess.State().String(), SessionID: sess.ID()})
	}
}

func (h *handler) writeFinal(w http.ResponseWriter, r *http.Request, sess *kibitz.Session) {
	res, err := sess.Wait(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, kibitz.Update{Result: res, SessionID: sess.ID(), Final: true})
	case r.Context().Err() != nil:
		// Client went away.
	case errors.Is(err, kibitz.ErrCancelled):
		writeError(w, http.StatusConflict, "analysis superseded or cancelled")
	default:
		h.logger.Error("analysis failed", zap.String("rid", GetRequestID(r.Context())), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "analysis failed")
	}
}

type batchRequest struct {
	CallerID  string          `json:"caller_id"`
	Positions []batchPosition `json:"positions"`
}

type batchPosition struct {
	FEN   string `json:"fen"`
	Depth int    `json:"depth"`
}

type batchResult struct {
	FEN    string         `json:"fen"`
	Result *kibitz.Result `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

type batchResponse struct {
	Results []batchResult `json:"results"`
}

// analyzeBatch runs each position as its own caller so positions of one
// batch never supersede each other.
func (h *handler) analyzeBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Positions == nil {
		writeError(w, http.StatusBadRequest, "positions array required")
		return
	}
	if len(req.Positions) > h.opts.maxBatch {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("at most %d positions per batch", h.opts.maxBatch))
		return
	}

	caller := callerID(r, req.CallerID)
	results := make([]batchResult, len(req.Positions))

	var g errgroup.Group
	g.SetLimit(h.opts.batchLimit)
	for i, pos := range req.Positions {
		g.Go(func() error {
			results[i] = h.analyzeOne(r.Context(), pos, fmt.Sprintf("%s#%d", caller, i), caller)
			return nil
		})
	}
	_ = g.Wait()

	if r.Context().Err() != nil {
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{Results: results})
}

// analyzeOne runs one batch position under its own session, charged to
// the batch caller's rate budget.
func (h *handler) analyzeOne(ctx context.Context, pos batchPosition, session, caller string) batchResult {
	out := batchResult{FEN: pos.FEN}
	depth := pos.Depth
	if depth == 0 {
		depth = DefaultBatchDepth
	}

	sess, err := h.svc.Analyze(ctx, pos.FEN, depth, session, kibitz.WithRateKey(caller))
	if err != nil {
		out.Error = err.Error()
		return out
	}
	res, err := sess.Wait(ctx)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Result = &res
	return out
}

func callerID(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	if h := r.Header.Get(CallerIDHeader); h != "" {
		return h
	}
	return GetRequestID(r.Context())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, kibitz.ErrInvalidFEN), errors.Is(err, kibitz.ErrInvalidDepth):
		return http.StatusBadRequest
	case errors.Is(err, kibitz.ErrClosed), errors.Is(err, kibitz.ErrNotStarted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
