package collector

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// MaxLineLength bounds a single log line. A sender that exceeds it is
// disconnected.
const MaxLineLength = 64 * 1024

// LineHandler receives each complete log line, in arrival order
type LineHandler func(ctx context.Context, line string)

// LineListener accepts one game-server log connection at a time and hands
// every newline-terminated line to a handler
type LineListener struct {
	addr    string
	handler LineHandler
	log     *slog.Logger

	mu        sync.Mutex
	connected bool
}

// NewLineListener creates a listener for addr (host:port)
func NewLineListener(addr string, handler LineHandler, logger *slog.Logger) *LineListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &LineListener{
		addr:    addr,
		handler: handler,
		log:     logger.With("component", "listener"),
	}
}

// Connected reports whether a log source is currently attached
func (l *LineListener) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// ListenAndServe binds the configured address and serves until ctx is done
func (l *LineListener) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", l.addr, err)
	}
	return l.Serve(ctx, ln)
}

// Serve accepts connections from ln one after another until ctx is done.
// The next connection is not accepted until the current one closes.
func (l *LineListener) Serve(ctx context.Context, ln net.Listener) error {
	l.log.Info("listening for minecraft log data", "addr", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.log.Warn("accept failed", "error", err)
			continue
		}
		l.handleConn(ctx, conn)
	}
}

func (l *LineListener) handleConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	l.log.Info("minecraft server connected", "remote", remote)
	l.setConnected(true)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		conn.Close()
		l.setConnected(false)
		l.log.Info("minecraft server disconnected", "remote", remote)
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), MaxLineLength)
	scanner.Split(scanCompleteLines)
	for scanner.Scan() {
		line := scanner.Text()
		l.log.Debug("received line", "line", line)
		l.handler(ctx, line)
	}
	// Partial trailing data without a delimiter is dropped with the connection
	if err := scanner.Err(); err != nil && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
		if errors.Is(err, bufio.ErrTooLong) {
			l.log.Warn("line exceeds limit, dropping connection", "remote", remote, "limit", MaxLineLength)
			return
		}
		l.log.Warn("connection error", "remote", remote, "error", err)
	}
}

// scanCompleteLines splits on '\n' and drops a trailing '\r'. Unlike
// bufio.ScanLines it never yields an unterminated final line.
func scanCompleteLines(data []byte, _ bool) (int, []byte, error) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[:i], []byte("\r")), nil
	}
	return 0, nil, nil
}

func (l *LineListener) setConnected(v bool) {
	l.mu.Lock()
	l.connected = v
	l.mu.Unlock()
}
