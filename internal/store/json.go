package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"livewatch/internal/source"
)

// document is the on-disk layout of the JSON store.
type document struct {
	Sources  []source.Source `json:"channels"`
	Settings source.Settings `json:"global_settings"`
}

// JSONStore keeps everything in one JSON file. Every mutation loads the
// file, applies the change in memory and rewrites the file atomically
// (temp file + rename). A mutex serializes writers within the process.
type JSONStore struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*JSONStore)(nil)

// OpenJSON opens the JSON store at path, creating the directory and a
// default document when the file does not exist.
func OpenJSON(path string) (*JSONStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}

	s := &JSONStore{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.write(&document{Sources: []source.Source{}, Settings: source.DefaultSettings()}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("checking store file: %w", err)
	}

	if _, err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the file backing the store.
func (s *JSONStore) Path() string { return s.path }

func (s *JSONStore) AddSource(_ context.Context, src source.Source) (source.Source, error) {
	src, err := prepareNew(src)
	if err != nil {
		return source.Source{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return source.Source{}, err
	}
	if addressTaken(doc.Sources, src.Address, "") {
		return source.Source{}, fmt.Errorf("%w: %s", ErrDuplicateSource, src.Address)
	}
	doc.Sources = append(doc.Sources, src)
	if err := s.write(doc); err != nil {
		return source.Source{}, err
	}
	return src, nil
}

func (s *JSONStore) GetSource(_ context.Context, id string) (source.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return source.Source{}, err
	}
	for _, src := range doc.Sources {
		if src.ID == id {
			return src, nil
		}
	}
	return source.Source{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *JSONStore) ListSources(_ context.Context, enabledOnly bool) ([]source.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	if enabledOnly {
		return source.Enabled(doc.Sources), nil
	}
	return doc.Sources, nil
}

func (s *JSONStore) UpdateSource(_ context.Context, id string, p source.Patch) (source.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return source.Source{}, err
	}

	for i, src := range doc.Sources {
		if src.ID != id {
			continue
		}
		updated := p.Apply(src)
		if err := updated.Validate(); err != nil {
			return source.Source{}, err
		}
		if addressTaken(doc.Sources, updated.Address, id) {
			return source.Source{}, fmt.Errorf("%w: %s", ErrDuplicateSource, updated.Address)
		}
		doc.Sources[i] = updated
		if err := s.write(doc); err != nil {
			return source.Source{}, err
		}
		return updated, nil
	}
	return source.Source{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *JSONStore) RemoveSource(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}

	kept := doc.Sources[:0]
	found := false
	for _, src := range doc.Sources {
		if src.ID == id {
			found = true
			continue
		}
		kept = append(kept, src)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	doc.Sources = kept
	return s.write(doc)
}

func (s *JSONStore) Settings(_ context.Context) (source.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return source.Settings{}, err
	}
	return doc.Settings, nil
}

func (s *JSONStore) UpdateSettings(_ context.Context, p source.SettingsPatch) (source.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return source.Settings{}, err
	}
	next := p.Apply(doc.Settings)
	if err := next.Validate(); err != nil {
		return source.Settings{}, err
	}
	doc.Settings = next
	if err := s.write(doc); err != nil {
		return source.Settings{}, err
	}
	return next, nil
}

// Close is a no-op; the file is not held open between calls.
func (s *JSONStore) Close() error { return nil }

// read loads the document. Missing settings fields fall back to defaults.
func (s *JSONStore) read() (*document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading store: %w", err)
	}

	doc := &document{Settings: source.DefaultSettings()}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parsing store %s: %w", s.path, err)
	}
	if doc.Sources == nil {
		doc.Sources = []source.Source{}
	}
	return doc, nil
}

// write replaces the store file atomically.
func (s *JSONStore) write(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding store: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(s.path), "sources-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(append(data, '\n')); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing store: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming store file: %w", err)
	}
	return nil
}
