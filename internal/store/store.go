package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"cwb/internal/assemble"
	"cwb/internal/errors"
	"cwb/internal/logging"
)

// WarmEntry is one persisted assembly result, used to re-warm the in-memory
// cache after a restart.
type WarmEntry struct {
	Path   string
	Stamp  int64
	Offset int
	Budget int
	Result assemble.Result
}

// Store persists assembled context across restarts in a SQLite database at
// .cwb/warm.db. Values are zstd-compressed JSON.
type Store struct {
	conn    *sql.DB
	logger  *logging.Logger
	path    string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Open opens or creates the warm-state database under the workspace root.
func Open(root string, dbPath string, logger *logging.Logger) (*Store, error) {
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(root, dbPath)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, errors.New(errors.StoreError,
			fmt.Sprintf("failed to create %s", filepath.Dir(dbPath)), err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.New(errors.StoreError, "failed to open warm store", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, errors.New(errors.StoreError, "failed to set pragma", err)
		}
	}

	if _, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS warm_context (
			path       TEXT    NOT NULL,
			stamp      INTEGER NOT NULL,
			bucket     INTEGER NOT NULL,
			budget     INTEGER NOT NULL,
			result     BLOB    NOT NULL,
			created_at TEXT    NOT NULL,
			PRIMARY KEY (path, stamp, bucket, budget)
		)
	`); err != nil {
		conn.Close()
		return nil, errors.New(errors.StoreError, "failed to create schema", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		conn.Close()
		return nil, errors.New(errors.StoreError, "failed to init compressor", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		conn.Close()
		return nil, errors.New(errors.StoreError, "failed to init decompressor", err)
	}

	logger.Debug("opened warm store", map[string]interface{}{"path": dbPath})
	return &Store{
		conn:    conn,
		logger:  logger,
		path:    dbPath,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// Save upserts one assembly result.
func (s *Store) Save(e WarmEntry) error {
	raw, err := json.Marshal(e.Result)
	if err != nil {
		return errors.New(errors.StoreError, "failed to encode result", err)
	}
	blob := s.encoder.EncodeAll(raw, nil)

	_, err = s.conn.Exec(`
		INSERT OR REPLACE INTO warm_context (path, stamp, bucket, budget, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.Path, e.Stamp, e.Offset, e.Budget, blob, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return errors.New(errors.StoreError, "failed to save warm entry", err)
	}
	return nil
}

// Load fetches one result, reporting absence without error.
func (s *Store) Load(path string, stamp int64, offset, budget int) (assemble.Result, bool, error) {
	var blob []byte
	err := s.conn.QueryRow(`
		SELECT result FROM warm_context
		WHERE path = ? AND stamp = ? AND bucket = ? AND budget = ?
	`, path, stamp, offset, budget).Scan(&blob)
	if err == sql.ErrNoRows {
		return assemble.Result{}, false, nil
	}
	if err != nil {
		return assemble.Result{}, false, errors.New(errors.StoreError, "warm lookup failed", err)
	}
	res, err := s.decode(blob)
	if err != nil {
		return assemble.Result{}, false, err
	}
	return res, true, nil
}

// LoadAll streams up to limit recent entries, newest first. Used once at
// startup to refill the in-memory cache.
func (s *Store) LoadAll(limit int) ([]WarmEntry, error) {
	rows, err := s.conn.Query(`
		SELECT path, stamp, bucket, budget, result FROM warm_context
		ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.New(errors.StoreError, "warm scan failed", err)
	}
	defer rows.Close()

	var out []WarmEntry
	for rows.Next() {
		var e WarmEntry
		var blob []byte
		if err := rows.Scan(&e.Path, &e.Stamp, &e.Offset, &e.Budget, &blob); err != nil {
			return nil, errors.New(errors.StoreError, "warm scan failed", err)
		}
		res, err := s.decode(blob)
		if err != nil {
			// A corrupt row is dropped, not fatal.
			s.logger.Warn("skipping corrupt warm entry", map[string]interface{}{
				"path": e.Path, "error": err.Error(),
			})
			continue
		}
		e.Result = res
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteFile removes every entry for a path, alongside cache invalidation.
func (s *Store) DeleteFile(path string) (int64, error) {
	res, err := s.conn.Exec(`DELETE FROM warm_context WHERE path = ?`, path)
	if err != nil {
		return 0, errors.New(errors.StoreError, "warm delete failed", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Prune drops entries older than the given age and returns the count.
func (s *Store) Prune(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339)
	res, err := s.conn.Exec(`DELETE FROM warm_context WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, errors.New(errors.StoreError, "warm prune failed", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close releases the database and compressor resources.
func (s *Store) Close() error {
	s.encoder.Close()
	s.decoder.Close()
	return s.conn.Close()
}

func (s *Store) decode(blob []byte) (assemble.Result, error) {
	raw, err := s.decoder.DecodeAll(blob, nil)
	if err != nil {
		return assemble.Result{}, errors.New(errors.StoreError, "failed to decompress warm entry", err)
	}
	var res assemble.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return assemble.Result{}, errors.New(errors.StoreError, "failed to decode warm entry", err)
	}
	return res, nil
}
