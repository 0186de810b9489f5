package eval

import "errors"

// Failure taxonomy shared by all backends. Backends wrap these with
// context using fmt.Errorf("...: %w", ...); callers classify with errors.Is.
var (
	// ErrStartup indicates a backend could not be started or failed its handshake.
	ErrStartup = errors.New("backend startup failed")

	// ErrTimeout indicates a bounded wait was exceeded.
	ErrTimeout = errors.New("timed out")

	// ErrNotFound indicates the backend has no data for the position.
	ErrNotFound = errors.New("position not found")

	// ErrProtocol indicates unparseable or out-of-sequence backend output.
	ErrProtocol = errors.New("protocol violation")

	// ErrRateLimited indicates the caller or the backend exceeded a quota.
	ErrRateLimited = errors.New("rate limited")

	// ErrQueueFull indicates the engine queue could not admit the request.
	ErrQueueFull = errors.New("queue full")

	// ErrUnavailable indicates the backend is disabled or unreachable.
	ErrUnavailable = errors.New("backend unavailable")
)

// Restartable reports whether err should trigger a bounded restart of the
// local engine before the strategy gives up.
func Restartable(err error) bool {
	return errors.Is(err, ErrStartup) || errors.Is(err, ErrProtocol)
}
