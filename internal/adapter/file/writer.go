package file

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/storm-prob-grid/internal/domain"
	"github.com/klauspost/compress/gzip"
)

// Writer persists documents to a fixed path. The file is replaced atomically:
// readers see the previous document or the new one, never a partial write.
// Paths ending in .gz are gzip-compressed.
// It implements pipeline.Sink and pipeline.BordersSink.
type Writer struct {
	path   string
	logger *slog.Logger
}

// NewWriter creates a Writer for path.
func NewWriter(path string, logger *slog.Logger) *Writer {
	return &Writer{path: path, logger: logger}
}

// WriteForecast writes the forecast document.
func (w *Writer) WriteForecast(ctx context.Context, f *domain.Forecast) error {
	if err := w.write(ctx, f); err != nil {
		return err
	}
	w.logger.Info("forecast written", "path", w.path, "features", len(f.Features))
	return nil
}

// WriteBorders writes the projected borders document.
func (w *Writer) WriteBorders(ctx context.Context, b *domain.Borders) error {
	if err := w.write(ctx, b); err != nil {
		return err
	}
	w.logger.Info("borders written", "path", w.path, "rings", len(b.Features))
	return nil
}

func (w *Writer) write(ctx context.Context, v any) error {
	var buf bytes.Buffer
	if strings.HasSuffix(w.path, ".gz") {
		zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
		if err != nil {
			return fmt.Errorf("gzip writer: %w", err)
		}
		if err := json.NewEncoder(zw).Encode(v); err != nil {
			return fmt.Errorf("encode %s: %w", w.path, err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("gzip %s: %w", w.path, err)
		}
	} else if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", w.path, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return WriteAtomic(w.path, buf.Bytes())
}

// WriteAtomic writes data to a temporary file next to path and renames it
// into place, creating parent directories as needed.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
