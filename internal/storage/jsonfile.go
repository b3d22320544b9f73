package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ernie/minebridge/internal/domain"
)

// JSONFileBackend stores the mapping as one indented JSON object keyed by
// member id
type JSONFileBackend struct {
	path string
	log  *slog.Logger
}

// NewJSONFileBackend creates the parent directory of path if needed
func NewJSONFileBackend(path string, logger *slog.Logger) (*JSONFileBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return &JSONFileBackend{path: path, log: logger.With("component", "mapping-file")}, nil
}

// Path returns the backing file path
func (b *JSONFileBackend) Path() string {
	return b.path
}

// Load reads the file. A missing file is an empty mapping. Entries with
// unexpected field types are logged and kept as they are on disk.
func (b *JSONFileBackend) Load(_ context.Context) (domain.Mappings, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Mappings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", b.path, err)
	}

	m, bad, err := domain.DecodeMappings(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", b.path, err)
	}
	for id, err := range bad {
		b.log.Warn("mapping entry has unexpected fields, keeping it as is", "member", id, "error", err)
	}
	return m, nil
}

// Save replaces the file through a temp file in the same directory
func (b *JSONFileBackend) Save(_ context.Context, m domain.Mappings) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".mappings-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("setting file mode: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("replacing %s: %w", b.path, err)
	}
	return nil
}

// Close is a no-op
func (b *JSONFileBackend) Close() error {
	return nil
}

// Encode renders the mapping exactly as it is persisted
func Encode(m domain.Mappings) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding mappings: %w", err)
	}
	return data, nil
}
