// Package store persists source definitions and global settings.
//
// Two backends implement Store: a JSON document rewritten atomically on
// every change, and a SQLite database. Both enforce the same contract,
// verified by the storetest suite.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"livewatch/internal/source"
)

var (
	// ErrDuplicateSource is returned when a source's normalized address is
	// already stored. The store is left unchanged.
	ErrDuplicateSource = errors.New("source with this url already exists")

	// ErrNotFound is returned for unknown source ids.
	ErrNotFound = errors.New("source not found")
)

// Store is durable CRUD over sources and the global settings.
type Store interface {
	// AddSource validates src, normalizes its address, assigns a new id and
	// stores it.
	AddSource(ctx context.Context, src source.Source) (source.Source, error)
	GetSource(ctx context.Context, id string) (source.Source, error)
	// ListSources returns sources in insertion order.
	ListSources(ctx context.Context, enabledOnly bool) ([]source.Source, error)
	UpdateSource(ctx context.Context, id string, p source.Patch) (source.Source, error)
	RemoveSource(ctx context.Context, id string) error

	Settings(ctx context.Context) (source.Settings, error)
	UpdateSettings(ctx context.Context, p source.SettingsPatch) (source.Settings, error)

	Close() error
}

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Open opens the store at path with the named backend.
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(backend) {
	case "", BackendJSON:
		return OpenJSON(path)
	case BackendSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func newID() string { return uuid.Must(uuid.NewV7()).String() }

// prepareNew normalizes and validates a source about to be added.
func prepareNew(src source.Source) (source.Source, error) {
	src.Name = strings.TrimSpace(src.Name)
	src.Address = source.NormalizeAddress(strings.TrimSpace(src.Address))
	if src.Format == "" {
		src.Format = source.DefaultFormat
	}
	if err := src.Validate(); err != nil {
		return source.Source{}, err
	}
	src.ID = newID()
	return src, nil
}

// addressTaken reports whether any source other than exceptID uses address.
func addressTaken(sources []source.Source, address, exceptID string) bool {
	for _, s := range sources {
		if s.ID != exceptID && s.Address == address {
			return true
		}
	}
	return false
}
