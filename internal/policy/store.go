// internal/policy/store.go
package policy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNotFound means no record has been saved yet.
	ErrNotFound = errors.New("policy: no stored record")
	// ErrCorrupt means the stored record could not be decoded or is invalid.
	ErrCorrupt = errors.New("policy: stored record is corrupt")
	// ErrVersion means the stored record has another version.
	ErrVersion = errors.New("policy: stored record version mismatch")
)

// Store persists a Policy.
type Store interface {
	Load() (Policy, error)
	Save(Policy) error
}

// FileStore keeps the policy in a YAML file.
type FileStore struct {
	Path string
}

var _ Store = (*FileStore)(nil)

// Load reads and checks the record.
func (s *FileStore) Load() (Policy, error) {
	raw, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Policy{}, ErrNotFound
	}
	if err != nil {
		return Policy{}, fmt.Errorf("policy: read %s: %w", s.Path, err)
	}

	var p Policy
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Policy{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if p.Version != Version {
		return Policy{}, fmt.Errorf("%w: got %d", ErrVersion, p.Version)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return p, nil
}

// Save writes the record atomically: a temp file in the same directory
// renamed over the target.
func (s *FileStore) Save(p Policy) error {
	raw, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("policy: encode: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("policy: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("policy: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("policy: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("policy: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("policy: rename: %w", err)
	}
	return nil
}

// Watch calls onChange whenever the file is written, created or
// replaced. It blocks until ctx is done. The parent directory is
// watched so atomic replacements are seen.
func (s *FileStore) Watch(ctx context.Context, log *slog.Logger, onChange func()) error {
	if log == nil {
		log = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("policy: watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(s.Path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("policy: watch %s: %w", dir, err)
	}
	target := filepath.Clean(s.Path)

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			log.Debug("policy file changed", "path", ev.Name, "op", ev.Op.String())
			onChange()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("policy watcher error", "err", err)

		case <-ctx.Done():
			return nil
		}
	}
}
