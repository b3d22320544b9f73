// Package rcon runs remote console commands against the game server, one
// at a time.
package rcon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorcon/rcon"

	"github.com/ernie/minebridge/internal/domain"
)

// Conn is one open remote console connection
type Conn interface {
	Execute(command string) (string, error)
	Close() error
}

// DialFunc opens a fresh remote console connection
type DialFunc func(ctx context.Context) (Conn, error)

// Dialer returns a DialFunc for a Minecraft RCON endpoint
func Dialer(address, password string, timeout time.Duration) DialFunc {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return func(ctx context.Context) (Conn, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		conn, err := rcon.Dial(address, password,
			rcon.SetDialTimeout(timeout),
			rcon.SetDeadline(timeout),
		)
		if err != nil {
			return nil, fmt.Errorf("connecting to %s: %w", address, err)
		}
		return conn, nil
	}
}

// Executor serializes command execution. Each call dials, sends one
// command, reads the response and disconnects, so no connection has to
// survive server idle timeouts between calls.
type Executor struct {
	dial DialFunc
	log  *slog.Logger
	sem  chan struct{}
}

// NewExecutor creates an executor using dial for every command
func NewExecutor(dial DialFunc, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		dial: dial,
		log:  logger.With("component", "rcon"),
		sem:  make(chan struct{}, 1),
	}
}

// Execute runs command and returns the full response. Callers block until
// any in-flight command finishes. A caller whose ctx ends while still
// waiting gives up its turn; a command already sent is never interrupted.
// Transport failures are returned as *domain.ExecutionError and not retried.
func (e *Executor) Execute(ctx context.Context, command string) (string, error) {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return "", &domain.ExecutionError{Command: command, Err: ctx.Err()}
	}
	defer func() { <-e.sem }()

	start := time.Now()
	conn, err := e.dial(ctx)
	if err != nil {
		return "", &domain.ExecutionError{Command: command, Err: err}
	}
	defer func() {
		if err := conn.Close(); err != nil {
			e.log.Debug("closing connection", "error", err)
		}
	}()

	response, err := conn.Execute(command)
	if err != nil {
		return "", &domain.ExecutionError{Command: command, Err: err}
	}
	e.log.Debug("command executed", "command", command, "elapsed", time.Since(start))
	return response, nil
}
