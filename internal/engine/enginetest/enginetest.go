// Package enginetest provides an in-process scripted UCI engine for tests.
package enginetest

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/discochess/kibitz/internal/engine"
)

// Script produces the output of one "go" command. Lines are written in
// order; the "bestmove" line should come last.
type Script func(fen string, depth int) []string

// Engine is a fake engine. Configure its fields before the first Dial.
// Every Dial starts a fresh instance sharing the same configuration.
type Engine struct {
	// Search scripts the response to "go". Defaults to StartPosition.
	Search Script
	// LineDelay is slept before each search output line.
	LineDelay time.Duration
	// HoldBestMove withholds the bestmove line until "stop" arrives.
	HoldBestMove bool
	// IgnoreStop makes the engine never answer "stop".
	IgnoreStop bool
	// SilentHandshake makes the engine never answer "uci".
	SilentHandshake bool
	// ExitOnGo makes the engine exit when a search starts.
	ExitOnGo bool
	// FailDials makes the first FailDials dials fail.
	FailDials int

	dials atomic.Int32
	mu    sync.Mutex
	log   []string
}

// Compile-time check that Engine implements engine.Transport.
var _ engine.Transport = (*Engine)(nil)

// ErrDial is returned by scripted dial failures.
var ErrDial = errors.New("enginetest: dial failed")

// StartPosition answers every search with the reference start position
// analysis: one depth-10 info line and bestmove e2e4.
func StartPosition(string, int) []string {
	return []string{
		"info depth 10 seldepth 14 score cp 20 nodes 1000 nps 100000 pv e2e4 e7e5",
		"bestmove e2e4 ponder e7e5",
	}
}

// Progressive reports one info line per depth up to the requested depth,
// each with a score that grows by 5cp per ply.
func Progressive(move string) Script {
	return func(_ string, depth int) []string {
		out := make([]string, 0, depth+1)
		for d := 1; d <= depth; d++ {
			out = append(out, "info depth "+strconv.Itoa(d)+
				" score cp "+strconv.Itoa(5*d)+
				" nodes "+strconv.Itoa(100*d)+
				" pv "+move)
		}
		return append(out, "bestmove "+move)
	}
}

// Dials returns how many instances have been started.
func (e *Engine) Dials() int {
	return int(e.dials.Load())
}

// Commands returns every command received by any instance, in order.
func (e *Engine) Commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

// Count returns how many received commands start with prefix.
func (e *Engine) Count(prefix string) int {
	n := 0
	for _, c := range e.Commands() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Dial starts a new fake instance.
func (e *Engine) Dial(ctx context.Context) (engine.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n := int(e.dials.Add(1)); n <= e.FailDials {
		return nil, ErrDial
	}

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	c := &conn{
		in:     inW,
		out:    outR,
		outEnd: outW,
		done:   make(chan struct{}),
	}
	inst := &instance{
		engine: e,
		in:     inR,
		out:    outW,
		conn:   c,
	}
	go inst.run()
	return c, nil
}

func (e *Engine) record(cmd string) {
	e.mu.Lock()
	e.log = append(e.log, cmd)
	e.mu.Unlock()
}

type conn struct {
	in     *io.PipeWriter
	out    *io.PipeReader
	outEnd *io.PipeWriter
	once   sync.Once
	done   chan struct{}
	err    error
}

func (c *conn) Read(p []byte) (int, error)  { return c.out.Read(p) }
func (c *conn) Write(p []byte) (int, error) { return c.in.Write(p) }
func (c *conn) CloseInput() error           { return c.in.Close() }

func (c *conn) Wait() error {
	<-c.done
	return c.err
}

func (c *conn) Kill() error {
	c.exit(errors.New("signal: killed"))
	return nil
}

func (c *conn) exit(err error) {
	c.once.Do(func() {
		c.err = err
		_ = c.in.CloseWithError(io.ErrClosedPipe)
		_ = c.outEnd.Close()
		close(c.done)
	})
}

type instance struct {
	engine *Engine
	in     *io.PipeReader
	out    *io.PipeWriter
	conn   *conn

	mu     sync.Mutex
	fen    string
	stopCh chan struct{}
}

func (i *instance) run() {
	defer i.conn.exit(nil)

	sc := bufio.NewScanner(i.in)
	for sc.Scan() {
		cmd := strings.TrimSpace(sc.Text())
		i.engine.record(cmd)

		switch {
		case cmd == "uci":
			if !i.engine.SilentHandshake {
				i.write("id name enginetest")
				i.write("uciok")
			}
		case cmd == "isready":
			i.write("readyok")
		case strings.HasPrefix(cmd, "position fen "):
			i.mu.Lock()
			i.fen = strings.TrimPrefix(cmd, "position fen ")
			i.mu.Unlock()
		case strings.HasPrefix(cmd, "go"):
			if i.engine.ExitOnGo {
				i.conn.exit(errors.New("exit status 139"))
				return
			}
			i.startSearch(cmd)
		case cmd == "stop":
			i.mu.Lock()
			if i.stopCh != nil && !i.engine.IgnoreStop {
				close(i.stopCh)
				i.stopCh = nil
			}
			i.mu.Unlock()
		case cmd == "quit":
			return
		}
	}
}

func (i *instance) startSearch(cmd string) {
	depth := 1
	if f := strings.Fields(cmd); len(f) >= 3 && f[1] == "depth" {
		if d, err := strconv.Atoi(f[2]); err == nil {
			depth = d
		}
	}

	search := i.engine.Search
	if search == nil {
		search = StartPosition
	}

	stop := make(chan struct{})
	i.mu.Lock()
	i.stopCh = stop
	lines := search(i.fen, depth)
	i.mu.Unlock()

	go func() {
		for _, line := range lines {
			isBest := strings.HasPrefix(line, "bestmove")
			if isBest && i.engine.HoldBestMove {
				select {
				case <-stop:
				case <-i.conn.done:
					return
				}
			}
			if !isBest {
				select {
				case <-stop:
					continue // skip remaining info after stop
				case <-i.conn.done:
					return
				case <-time.After(i.engine.LineDelay):
				}
			}
			i.write(line)
		}
	}()
}

func (i *instance) write(line string) {
	_, _ = io.WriteString(i.out, line+"\n")
}
