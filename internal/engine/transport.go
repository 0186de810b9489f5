package engine

import (
	"context"
	"fmt"
	"io"
	"os/exec"
)

// Conn is the stdio of a running engine.
type Conn interface {
	// Read reads engine output.
	io.Reader
	// Write writes engine input.
	io.Writer
	// CloseInput closes the engine's standard input.
	CloseInput() error
	// Wait blocks until the engine exits. It must only be called after
	// Read has returned io.EOF.
	Wait() error
	// Kill terminates the engine immediately.
	Kill() error
}

// Transport starts engine instances.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// ExecTransport runs the engine as a child process.
type ExecTransport struct {
	Path string
	Args []string
	Dir  string
}

// Compile-time check that ExecTransport implements Transport.
var _ Transport = (*ExecTransport)(nil)

// Dial starts the engine binary. ctx only bounds the start itself; the
// process outlives it.
func (t *ExecTransport) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(t.Path, t.Args...)
	cmd.Dir = t.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", t.Path, err)
	}

	return &execConn{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

type execConn struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (c *execConn) Read(p []byte) (int, error)  { return c.stdout.Read(p) }
func (c *execConn) Write(p []byte) (int, error) { return c.stdin.Write(p) }
func (c *execConn) CloseInput() error           { return c.stdin.Close() }
func (c *execConn) Wait() error                 { return c.cmd.Wait() }

func (c *execConn) Kill() error {
	if c.cmd.Process == nil {
		return nil
	}
	return c.cmd.Process.Kill()
}
