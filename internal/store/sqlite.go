package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"livewatch/internal/source"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore keeps sources in a table and the settings as one JSON row.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens a SQLite database at path and runs migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AddSource(ctx context.Context, src source.Source) (source.Source, error) {
	src, err := prepareNew(src)
	if err != nil {
		return source.Source{}, err
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		taken, err := addressInUse(ctx, tx, src.Address, "")
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: %s", ErrDuplicateSource, src.Address)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sources (id, name, url, enabled, download_format)
			VALUES (?, ?, ?, ?, ?)
		`, src.ID, src.Name, src.Address, src.Enabled, src.Format)
		if err != nil {
			return fmt.Errorf("insert source: %w", err)
		}
		return nil
	})
	if err != nil {
		return source.Source{}, err
	}
	return src, nil
}

func (s *SQLiteStore) GetSource(ctx context.Context, id string) (source.Source, error) {
	return getSource(ctx, s.db, id)
}

func (s *SQLiteStore) ListSources(ctx context.Context, enabledOnly bool) ([]source.Source, error) {
	query := "SELECT id, name, url, enabled, download_format FROM sources"
	if enabledOnly {
		query += " WHERE enabled = 1"
	}
	query += " ORDER BY seq"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	result := []source.Source{}
	for rows.Next() {
		var src source.Source
		if err := rows.Scan(&src.ID, &src.Name, &src.Address, &src.Enabled, &src.Format); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		result = append(result, src)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) UpdateSource(ctx context.Context, id string, p source.Patch) (source.Source, error) {
	var updated source.Source
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := getSource(ctx, tx, id)
		if err != nil {
			return err
		}
		updated = p.Apply(current)
		if err := updated.Validate(); err != nil {
			return err
		}
		taken, err := addressInUse(ctx, tx, updated.Address, id)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: %s", ErrDuplicateSource, updated.Address)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE sources SET name = ?, url = ?, enabled = ?, download_format = ?
			WHERE id = ?
		`, updated.Name, updated.Address, updated.Enabled, updated.Format, id)
		if err != nil {
			return fmt.Errorf("update source %q: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return source.Source{}, err
	}
	return updated, nil
}

func (s *SQLiteStore) RemoveSource(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sources WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete source %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete source %q: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) Settings(ctx context.Context) (source.Settings, error) {
	return loadSettings(ctx, s.db)
}

func (s *SQLiteStore) UpdateSettings(ctx context.Context, p source.SettingsPatch) (source.Settings, error) {
	var next source.Settings
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := loadSettings(ctx, tx)
		if err != nil {
			return err
		}
		next = p.Apply(current)
		if err := next.Validate(); err != nil {
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encoding settings: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO settings (id, data) VALUES (1, ?)
			ON CONFLICT(id) DO UPDATE SET data = excluded.data
		`, string(data))
		if err != nil {
			return fmt.Errorf("put settings: %w", err)
		}
		return nil
	})
	if err != nil {
		return source.Settings{}, err
	}
	return next, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func getSource(ctx context.Context, q querier, id string) (source.Source, error) {
	row := q.QueryRowContext(ctx,
		"SELECT id, name, url, enabled, download_format FROM sources WHERE id = ?", id)

	var src source.Source
	err := row.Scan(&src.ID, &src.Name, &src.Address, &src.Enabled, &src.Format)
	if errors.Is(err, sql.ErrNoRows) {
		return source.Source{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return source.Source{}, fmt.Errorf("get source %q: %w", id, err)
	}
	return src, nil
}

func addressInUse(ctx context.Context, q querier, address, exceptID string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT count(*) FROM sources WHERE url = ? AND id != ?", address, exceptID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check duplicate url: %w", err)
	}
	return n > 0, nil
}

// loadSettings returns the stored settings, or the defaults when none
// have been written yet.
func loadSettings(ctx context.Context, q querier) (source.Settings, error) {
	var data string
	err := q.QueryRowContext(ctx, "SELECT data FROM settings WHERE id = 1").Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return source.DefaultSettings(), nil
	}
	if err != nil {
		return source.Settings{}, fmt.Errorf("get settings: %w", err)
	}

	settings := source.DefaultSettings()
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return source.Settings{}, fmt.Errorf("parsing settings: %w", err)
	}
	return settings, nil
}

type migration struct {
	version int
	sql     string
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var migrations []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		// 001_init.sql -> 1
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			return nil, fmt.Errorf("invalid migration filename: %s", e.Name())
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("invalid migration version in %s: %w", e.Name(), err)
		}
		data, err := migrationsFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		migrations = append(migrations, migration{version: version, sql: string(data)})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	})
	return migrations, nil
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := map[int]bool{}
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("query applied migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	rows.Close()

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}
