package engine

import (
	"time"

	"go.uber.org/zap"
)

// Option configures a Process.
type Option interface {
	apply(*options)
}

type setting struct {
	name  string
	value any
}

type options struct {
	startTimeout time.Duration
	stopTimeout  time.Duration
	quitGrace    time.Duration
	settings     []setting
	logger       *zap.Logger
}

func defaultOptions() options {
	return options{
		startTimeout: 5 * time.Second,
		stopTimeout:  2 * time.Second,
		quitGrace:    time.Second,
		logger:       zap.NewNop(),
	}
}

type optionFunc func(*options)

var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithStartTimeout bounds the handshake performed by Start.
// Default is 5s.
func WithStartTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.startTimeout = d
	})
}

// WithStopTimeout bounds how long a cancelled search may take to report
// its bestmove before the process is killed. Default is 2s.
func WithStopTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.stopTimeout = d
	})
}

// WithQuitGrace sets how long Close waits for the engine to exit after
// "quit" before killing it. Default is 1s.
func WithQuitGrace(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.quitGrace = d
	})
}

// WithSetting sends "setoption name <name> value <value>" during Start.
// Settings are applied in the order given.
func WithSetting(name string, value any) Option {
	return optionFunc(func(o *options) {
		o.settings = append(o.settings, setting{name: name, value: value})
	})
}

// WithLogger sets the logger.
// If not set, a no-op logger is used.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}
