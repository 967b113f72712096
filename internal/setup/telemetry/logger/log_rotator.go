package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LogRotator is an io.Writer that caps a log file at roughly maxLines lines.
// Once twice the limit has been written, the file is rewritten with only the
// most recent maxLines lines.
type LogRotator struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	tail     *tailBuffer
	maxLines int
}

// NewLogRotator opens (or creates) path for appending.
func NewLogRotator(path string, maxLines int) (*LogRotator, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file %s: %w", path, err)
	}

	return &LogRotator{
		file:     file,
		path:     path,
		tail:     newTailBuffer(maxLines),
		maxLines: maxLines,
	}, nil
}

// Write implements io.Writer.
func (r *LogRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.file.Write(p)
	if err != nil {
		return n, err
	}

	for line := range strings.SplitSeq(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}

		r.tail.push(line)

		if r.tail.since >= r.maxLines*2 {
			if err := r.compact(); err != nil {
				return n, fmt.Errorf("failed to rotate log file: %w", err)
			}

			r.tail.since = r.tail.len()
		}
	}

	return n, nil
}

// Sync flushes the underlying file.
func (r *LogRotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.file.Sync()
}

// Close closes the underlying file.
func (r *LogRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.file.Close()
}

// compact replaces the file with the buffered tail.
func (r *LogRotator) compact() error {
	lines := r.tail.snapshot()
	if len(lines) == 0 {
		return nil
	}

	temp, err := os.CreateTemp(filepath.Dir(r.path), "temp-log-")
	if err != nil {
		return err
	}

	tempPath := temp.Name()

	if err := writeAndClose(temp, strings.Join(lines, "\n")+"\n"); err != nil {
		os.Remove(tempPath)
		return err
	}

	r.file.Close()
	os.Remove(r.path)

	if err := os.Rename(tempPath, r.path); err != nil {
		return err
	}

	file, err := os.OpenFile(r.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	r.file = file

	return nil
}

func writeAndClose(f *os.File, content string) error {
	if _, err := io.WriteString(f, content); err != nil {
		f.Close()
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
