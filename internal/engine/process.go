// Package engine drives a single UCI engine process.
//
// A Process owns one engine instance. A dedicated reader goroutine turns
// engine output into lines on a channel for the lifetime of the instance;
// searches are serialized, and each search consumes that channel until its
// bestmove.
package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/discochess/kibitz/internal/eval"
	"github.com/discochess/kibitz/internal/fen"
	"github.com/discochess/kibitz/internal/uci"
)

var (
	// ErrExited indicates the engine process exited unexpectedly.
	ErrExited = errors.New("engine: process exited")

	// ErrClosed indicates the process has been closed.
	ErrClosed = errors.New("engine: closed")
)

const lineBuffer = 256

// State is the lifecycle state of a Process.
type State int32

const (
	StateUninitialized State = iota
	StateHandshaking
	StateReady
	StateBusy
	StateCrashed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateCrashed:
		return "crashed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Outcome is the end of one search.
type Outcome struct {
	BestMove string // empty when the engine reported no legal move
	Ponder   string
	// Last is the last exact principal-variation info of the search, or
	// nil if the engine reported none.
	Last *uci.Info
	// Stopped is set when the search ended because its context was done.
	Stopped bool
}

// Process is a handle to one engine instance. It is safe for concurrent
// use; searches run one at a time.
type Process struct {
	transport Transport
	opts      options
	logger    *zap.Logger

	runMu sync.Mutex // serializes Start, Analyze and Close

	mu      sync.Mutex
	state   State
	session uint64
	conn    Conn
	lines   <-chan string
	exited  <-chan struct{}
	exitErr error

	writeMu sync.Mutex
}

// New creates a Process that starts engines through t.
func New(t Transport, opts ...Option) *Process {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	return &Process{
		transport: t,
		opts:      cfg,
		logger:    cfg.logger.Named("engine"),
	}
}

// State returns the current lifecycle state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Session returns the session ID of the running or last search.
func (p *Process) Session() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// Start launches the engine and completes the UCI handshake. A crashed
// process is killed and replaced. Start on a running process is a no-op.
// Failures wrap eval.ErrStartup.
func (p *Process) Start(ctx context.Context) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	p.mu.Lock()
	switch p.state {
	case StateClosed:
		p.mu.Unlock()
		return ErrClosed
	case StateReady, StateBusy:
		p.mu.Unlock()
		return nil
	}
	old := p.conn
	p.conn = nil
	p.state = StateHandshaking
	p.mu.Unlock()

	if old != nil {
		_ = old.Kill()
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.startTimeout)
	defer cancel()

	if err := p.handshake(ctx); err != nil {
		p.crash()
		p.logger.Warn("engine startup failed", zap.Error(err))
		return fmt.Errorf("%w: %w", eval.ErrStartup, err)
	}

	if !p.transition(StateHandshaking, StateReady) {
		return ErrClosed
	}
	p.logger.Info("engine ready")
	return nil
}

func (p *Process) handshake(ctx context.Context) error {
	conn, err := p.transport.Dial(ctx)
	if err != nil {
		return err
	}

	lines := make(chan string, lineBuffer)
	exited := make(chan struct{})

	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		_ = conn.Kill()
		return ErrClosed
	}
	p.conn = conn
	p.lines = lines
	p.exited = exited
	p.exitErr = nil
	p.mu.Unlock()

	go p.readLoop(conn, lines, exited)

	if err := p.send(uci.CmdUCI); err != nil {
		return err
	}
	if err := awaitKind(ctx, lines, uci.HandshakeOK); err != nil {
		return fmt.Errorf("awaiting uciok: %w", err)
	}
	for _, s := range p.opts.settings {
		if err := p.send(uci.SetOption(s.name, s.value)); err != nil {
			return err
		}
	}
	if err := p.send(uci.CmdNewGame); err != nil {
		return err
	}
	if err := p.send(uci.CmdIsReady); err != nil {
		return err
	}
	if err := awaitKind(ctx, lines, uci.ReadyOK); err != nil {
		return fmt.Errorf("awaiting readyok: %w", err)
	}
	return nil
}

// Analyze searches fenStr to depth, calling onInfo for each principal
// info line. A search already in progress is stopped first.
//
// When ctx is done the engine is told to stop and Analyze waits, at most
// the stop timeout, for its bestmove; the partial Outcome is returned
// with ctx.Err(). If the engine does not answer in time it is killed.
func (p *Process) Analyze(ctx context.Context, sessionID uint64, fenStr string, depth int, onInfo func(uci.Info)) (Outcome, error) {
	p.Stop()

	p.runMu.Lock()
	defer p.runMu.Unlock()

	side, err := fen.SideToMove(fenStr)
	if err != nil {
		return Outcome{}, err
	}
	position, err := fen.Complete(fenStr)
	if err != nil {
		return Outcome{}, err
	}

	p.mu.Lock()
	switch p.state {
	case StateClosed:
		p.mu.Unlock()
		return Outcome{}, ErrClosed
	case StateReady:
	default:
		state := p.state
		p.mu.Unlock()
		return Outcome{}, fmt.Errorf("%w: engine is %s", eval.ErrStartup, state)
	}
	lines := p.lines
	p.state = StateBusy
	p.session = sessionID
	p.mu.Unlock()

	drain(lines)

	if err := ctx.Err(); err != nil {
		p.transition(StateBusy, StateReady)
		return Outcome{Stopped: true}, err
	}

	if err := p.send(uci.Position(position)); err != nil {
		p.crash()
		return Outcome{}, fmt.Errorf("%w: %w", eval.ErrProtocol, err)
	}
	if err := p.send(uci.GoDepth(depth)); err != nil {
		p.crash()
		return Outcome{}, fmt.Errorf("%w: %w", eval.ErrProtocol, err)
	}

	var (
		out      Outcome
		done     = ctx.Done()
		stopWait <-chan time.Time
	)
	for {
		select {
		case <-done:
			done = nil
			out.Stopped = true
			p.sendStop()
			timer := time.NewTimer(p.opts.stopTimeout)
			defer timer.Stop()
			stopWait = timer.C

		case <-stopWait:
			p.logger.Warn("engine ignored stop, killing",
				zap.Uint64("session", sessionID),
				zap.Duration("timeout", p.opts.stopTimeout),
			)
			p.crash()
			return out, fmt.Errorf("%w: no bestmove after stop", eval.ErrTimeout)

		case line, ok := <-lines:
			if !ok {
				p.crash()
				return out, fmt.Errorf("%w: %w", eval.ErrProtocol, p.exitError())
			}
			ev := uci.ParseLine(line, side)
			switch ev.Kind {
			case uci.InfoUpdate:
				if ev.Info.MultiPV > 1 {
					continue
				}
				info := ev.Info
				if info.Bound == uci.Exact {
					out.Last = &info
				}
				if !out.Stopped && onInfo != nil {
					onInfo(info)
				}
			case uci.BestMove:
				out.BestMove = ev.Move
				out.Ponder = ev.Ponder
				p.transition(StateBusy, StateReady)
				if out.Stopped {
					return out, ctx.Err()
				}
				return out, nil
			case uci.Violation:
				p.logger.Warn("engine protocol violation", zap.String("line", ev.Raw))
				p.crash()
				return out, fmt.Errorf("%w: %q", eval.ErrProtocol, ev.Raw)
			}
		}
	}
}

// Stop asks a running search to finish. It does not wait.
func (p *Process) Stop() {
	if p.State() == StateBusy {
		p.sendStop()
	}
}

// Close shuts the engine down: "quit", then a kill if it has not exited
// within the grace period. Close is idempotent.
func (p *Process) Close() error {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return nil
	}
	busy := p.state == StateBusy
	p.state = StateClosed
	conn := p.conn
	exited := p.exited
	p.mu.Unlock()

	if conn == nil {
		return nil
	}

	if busy {
		_ = p.writeLine(conn, uci.CmdStop)
	}
	_ = p.writeLine(conn, uci.CmdQuit)
	_ = conn.CloseInput()

	timer := time.NewTimer(p.opts.quitGrace)
	defer timer.Stop()
	select {
	case <-exited:
	case <-timer.C:
		p.logger.Warn("engine did not quit, killing")
		if err := conn.Kill(); err != nil {
			return fmt.Errorf("killing engine: %w", err)
		}
	}
	return nil
}

func (p *Process) readLoop(conn Conn, lines chan<- string, exited chan<- struct{}) {
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines <- sc.Text()
	}
	close(lines)

	err := conn.Wait()
	if err == nil {
		err = sc.Err()
	}

	p.mu.Lock()
	if err == nil {
		err = ErrExited
	} else {
		err = fmt.Errorf("%w: %w", ErrExited, err)
	}
	current := p.conn == conn
	if current {
		p.exitErr = err
	}
	state := p.state
	if current && (state == StateReady || state == StateHandshaking) {
		p.state = StateCrashed
	}
	p.mu.Unlock()
	close(exited)

	if current && state != StateClosed {
		p.logger.Warn("engine exited", zap.Error(err), zap.Stringer("state", state))
	}
}

func (p *Process) send(cmd string) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return ErrExited
	}
	return p.writeLine(conn, cmd)
}

func (p *Process) sendStop() {
	if err := p.send(uci.CmdStop); err != nil {
		p.logger.Debug("sending stop", zap.Error(err))
	}
}

func (p *Process) writeLine(conn Conn, cmd string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.logger.Debug("send", zap.String("cmd", cmd))
	_, err := io.WriteString(conn, cmd+"\n")
	return err
}

// crash kills the instance and marks the process Crashed unless it has
// been closed.
func (p *Process) crash() {
	p.mu.Lock()
	conn := p.conn
	if p.state != StateClosed {
		p.state = StateCrashed
	}
	p.mu.Unlock()
	if conn != nil {
		_ = conn.Kill()
	}
}

// transition moves from one state to another, reporting false if the
// process was not in state from.
func (p *Process) transition(from, to State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != from {
		return false
	}
	p.state = to
	return true
}

func (p *Process) exitError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exitErr != nil {
		return p.exitErr
	}
	return ErrExited
}

// awaitKind consumes lines until one parses as want.
func awaitKind(ctx context.Context, lines <-chan string, want uci.Kind) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", eval.ErrTimeout, ctx.Err())
		case line, ok := <-lines:
			if !ok {
				return ErrExited
			}
			if uci.ParseLine(line, fen.White).Kind == want {
				return nil
			}
		}
	}
}

// drain discards output left over from a previous search.
func drain(lines <-chan string) {
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
