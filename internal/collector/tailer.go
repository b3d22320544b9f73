package collector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// FileTailer follows a server log file on local disk and hands each
// complete line to a handler, as an alternative to the TCP listener
type FileTailer struct {
	path     string
	handler  LineHandler
	log      *slog.Logger
	interval time.Duration

	file     *os.File
	position int64
	rewind   bool // open the next file from the start

	mu        sync.Mutex
	connected bool
}

// NewFileTailer creates a tailer for path
func NewFileTailer(path string, handler LineHandler, logger *slog.Logger) *FileTailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileTailer{
		path:     path,
		handler:  handler,
		log:      logger.With("component", "tailer"),
		interval: 100 * time.Millisecond,
	}
}

// Connected reports whether the log file is open
func (t *FileTailer) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Run tails from the current end of the file until ctx is done. A missing
// file is waited for. A truncated file (copytruncate) is read again from
// the start. When the path is replaced by a new file (the server renames
// latest.log away on startup), the old file is drained and the new one is
// read from the start.
func (t *FileTailer) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	defer t.close()

	for {
		if t.file == nil {
			if err := t.open(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		}
		if t.file != nil {
			if err := t.readNewContent(ctx); err != nil {
				t.log.Warn("reading log file", "path", t.path, "error", err)
				t.close()
			} else if t.replaced() {
				t.log.Info("log file replaced, following new file", "path", t.path)
				if err := t.readNewContent(ctx); err != nil {
					t.log.Warn("draining replaced log file", "path", t.path, "error", err)
				}
				t.close()
				t.rewind = true
				continue
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (t *FileTailer) open() error {
	file, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	// Seek to end to only process new lines, unless this file replaced
	// one that was being followed
	whence := io.SeekEnd
	if t.rewind {
		whence = io.SeekStart
	}
	pos, err := file.Seek(0, whence)
	if err != nil {
		file.Close()
		return fmt.Errorf("seeking: %w", err)
	}
	t.file = file
	t.position = pos
	t.rewind = false
	t.setConnected(true)
	t.log.Info("tailing minecraft log", "path", t.path, "offset", pos)
	return nil
}

func (t *FileTailer) close() {
	if t.file == nil {
		return
	}
	t.file.Close()
	t.file = nil
	t.setConnected(false)
}

// readNewContent hands over every complete line written since the last read
func (t *FileTailer) readNewContent(ctx context.Context) error {
	stat, err := t.file.Stat()
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}

	// Handle copytruncate: file size smaller than position
	if stat.Size() < t.position {
		t.log.Info("log file truncated, rereading from start", "path", t.path)
		t.position = 0
	}

	// No new content
	if stat.Size() == t.position {
		return nil
	}

	if _, err := t.file.Seek(t.position, io.SeekStart); err != nil {
		return fmt.Errorf("seeking to offset: %w", err)
	}
	reader := bufio.NewReader(t.file)
	for ctx.Err() == nil {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			// Partial line - don't advance position past it
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading line: %w", err)
		}

		t.position += int64(len(line))
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			t.handler(ctx, line)
		}
	}
	return nil
}

// replaced reports whether the path now names a different file than the
// open one. A path that is briefly missing mid-rotation is not a change.
func (t *FileTailer) replaced() bool {
	current, err := os.Stat(t.path)
	if err != nil {
		return false
	}
	open, err := t.file.Stat()
	if err != nil {
		return true
	}
	return !os.SameFile(open, current)
}

func (t *FileTailer) setConnected(v bool) {
	t.mu.Lock()
	t.connected = v
	t.mu.Unlock()
}
