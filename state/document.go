package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// document is one JSON file guarded by its own mutex. Every load-merge-save cycle
// runs under the lock, so concurrent writers touching different keys never lose
// each other's updates.
type document[T any] struct {
	path   string
	mu     sync.Mutex
	empty  func() T
	decode func([]byte) (T, error)
}

func newDocument[T any](path string, empty func() T, decode func([]byte) (T, error)) *document[T] {
	return &document[T]{path: path, empty: empty, decode: decode}
}

// Read loads the current document
func (d *document[T]) Read() T {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.load()
}

// Update applies fn to the freshly loaded document and saves the result
func (d *document[T]) Update(fn func(T) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	doc := d.load()
	if err := fn(doc); err != nil {
		return err
	}
	return writeJSONAtomic(d.path, doc)
}

// load never fails: a missing or corrupt file yields an empty document
func (d *document[T]) load() T {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", d.path).Msg("Failed to read document, starting from empty")
		}
		return d.empty()
	}

	doc, err := d.decode(data)
	if err != nil {
		log.Warn().Err(err).Str("path", d.path).Msg("Document is corrupt, starting from empty")
		return d.empty()
	}
	return doc
}

// writeJSONAtomic replaces path with the JSON encoding of v. The data goes to a
// temp file in the same directory first, then is renamed over the target.
func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ytstats-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	abort := func(err error) error {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	enc := json.NewEncoder(tmp)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return abort(fmt.Errorf("encode %s: %w", filepath.Base(path), err))
	}
	if err := tmp.Sync(); err != nil {
		return abort(fmt.Errorf("sync: %w", err))
	}
	if err := tmp.Chmod(0o644); err != nil {
		return abort(fmt.Errorf("chmod: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
