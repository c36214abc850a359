package logingest

import (
	"os"
	"path/filepath"
	"sync"
)

// fileWriter is an append-only, unbuffered, fsync-per-write handle that
// reopens transparently after Close (P6): the next Write after a Close
// sees closed==true and calls ensureOpen again.
type fileWriter struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	closed bool
}

func newFileWriter(path string) *fileWriter {
	return &fileWriter{path: path, closed: true}
}

func (w *fileWriter) ensureOpen() error {
	if w.file != nil && !w.closed {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.closed = false
	return nil
}

func (w *fileWriter) Write(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureOpen(); err != nil {
		return err
	}
	if _, err := w.file.WriteString(line); err != nil {
		return err
	}
	return w.file.Sync()
}

// Close is idempotent: closing an already-closed writer is a no-op (P6).
func (w *fileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.closed = true
	return err
}

// writerCache holds one fileWriter per key (execution_id or worker name),
// each guarded by its own lock per §5's "file handles keyed by id, each
// write taking the per-id lock only" policy.
type writerCache struct {
	mu      sync.Mutex
	writers map[string]*fileWriter
	pathFor func(key string) string
}

func newWriterCache(pathFor func(key string) string) *writerCache {
	return &writerCache{writers: make(map[string]*fileWriter), pathFor: pathFor}
}

func (c *writerCache) get(key string) *fileWriter {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.writers[key]
	if !ok {
		w = newFileWriter(c.pathFor(key))
		c.writers[key] = w
	}
	return w
}

func (c *writerCache) close(key string) error {
	c.mu.Lock()
	w, ok := c.writers[key]
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return w.Close()
}
