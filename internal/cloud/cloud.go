// Package cloud queries a Lichess-compatible cloud evaluation API.
package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/discochess/kibitz/internal/eval"
	"github.com/discochess/kibitz/internal/fen"
	"github.com/discochess/kibitz/internal/stats"
)

// DefaultBaseURL is the public Lichess cloud evaluation endpoint.
const DefaultBaseURL = "https://lichess.org/api/cloud-eval"

// maxBody caps how much of a response is read.
const maxBody = 1 << 20

type response struct {
	FEN    string `json:"fen"`
	Depth  int    `json:"depth"`
	Knodes int64  `json:"knodes"`
	PVs    []struct {
		Moves string `json:"moves"`
		CP    *int   `json:"cp"`
		Mate  *int   `json:"mate"`
	} `json:"pvs"`
}

// Client evaluates positions through the cloud API. Concurrent requests
// are bounded, and concurrent requests for the same position share one
// HTTP call. A Client is safe for concurrent use.
type Client struct {
	baseURL        string
	http           *http.Client
	timeout        time.Duration
	acquireTimeout time.Duration
	userAgent      string
	sem            *semaphore.Weighted
	group          singleflight.Group
	collector      stats.Collector
	logger         *zap.Logger
}

// New creates a Client.
func New(opts ...Option) *Client {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	return &Client{
		baseURL:        cfg.baseURL,
		http:           cfg.httpClient,
		timeout:        cfg.timeout,
		acquireTimeout: cfg.acquireTimeout,
		userAgent:      cfg.userAgent,
		sem:            semaphore.NewWeighted(int64(cfg.maxConcurrent)),
		collector:      cfg.stats,
		logger:         cfg.logger.Named("cloud"),
	}
}

// Evaluate returns the cloud evaluation of fenStr. The result's score is
// from White's perspective and its source is eval.SourceCloud.
//
// Errors wrap eval.ErrNotFound, eval.ErrRateLimited, eval.ErrUnavailable
// or eval.ErrTimeout.
func (c *Client) Evaluate(ctx context.Context, fenStr string) (eval.Result, error) {
	key, err := fen.KeyOf(fenStr)
	if err != nil {
		return eval.Result{}, err
	}

	// The shared call must not die with whichever caller started it.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(string(key), func() (any, error) {
		return c.fetch(shared, string(key))
	})

	select {
	case <-ctx.Done():
		return eval.Result{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return eval.Result{}, res.Err
		}
		r := res.Val.(eval.Result)
		return r.Clone(), nil
	}
}

func (c *Client) fetch(ctx context.Context, position string) (eval.Result, error) {
	actx, cancel := context.WithTimeout(ctx, c.acquireTimeout)
	err := c.sem.Acquire(actx, 1)
	cancel()
	if err != nil {
		c.record("acquire_timeout")
		return eval.Result{}, fmt.Errorf("%w: waiting for cloud slot", eval.ErrTimeout)
	}
	defer c.sem.Release(1)

	ctx, cancel = context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("fen", position)
	q.Set("multiPv", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return eval.Result{}, fmt.Errorf("%w: %w", eval.ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.record("timeout")
			return eval.Result{}, fmt.Errorf("%w: cloud request: %w", eval.ErrTimeout, err)
		}
		c.record("error")
		return eval.Result{}, fmt.Errorf("%w: %w", eval.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("cloud response",
		zap.String("fen", position),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.record("not_found")
		return eval.Result{}, fmt.Errorf("cloud: %w", eval.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		c.record("rate_limited")
		return eval.Result{}, fmt.Errorf("cloud: %w", eval.ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.record("unavailable")
		return eval.Result{}, fmt.Errorf("%w: cloud status %d", eval.ErrUnavailable, resp.StatusCode)
	}

	var body response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&body); err != nil {
		c.record("bad_response")
		return eval.Result{}, fmt.Errorf("%w: decoding cloud response: %w", eval.ErrUnavailable, err)
	}

	r, err := toResult(body)
	if err != nil {
		c.record("bad_response")
		return eval.Result{}, err
	}
	c.record("ok")
	return r, nil
}

func toResult(body response) (eval.Result, error) {
	if len(body.PVs) == 0 {
		return eval.Result{}, fmt.Errorf("cloud: empty pvs: %w", eval.ErrNotFound)
	}
	best := body.PVs[0]

	var score eval.Score
	switch {
	case best.Mate != nil:
		score = eval.MateIn(*best.Mate)
	case best.CP != nil:
		score = eval.Centipawns(*best.CP)
	default:
		return eval.Result{}, fmt.Errorf("%w: cloud pv has no score", eval.ErrUnavailable)
	}

	pv := strings.Fields(best.Moves)
	return eval.NewResult(body.Depth, score, "", pv, body.Knodes*1000, eval.SourceCloud), nil
}

func (c *Client) record(outcome string) {
	c.collector.IncCounter(stats.MetricCloudRequests, 1, stats.L("outcome", outcome))
}
