package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"voxelhud.ai/internal/sim/host"
)

// SQLite keeps every actor's properties in one table. Writes are synchronous so a Set that
// returned nil is durable before the caller moves on.
type SQLite struct {
	db     *sql.DB
	limit  int
	log    *zap.Logger
	closed atomic.Bool
}

func OpenSQLite(path string, limit int, logger *zap.Logger) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultEntryLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db, limit: limit, log: logger.Named("kvstore")}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS props (
			actor TEXT NOT NULL,
			key TEXT NOT NULL,
			kind INTEGER NOT NULL,
			str TEXT NOT NULL DEFAULT '',
			num REAL NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (actor, key)
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	_, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`)
	return err
}

func (s *SQLite) Close() error {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// Scope returns the store for one actor.
func (s *SQLite) Scope(actor string) host.Store {
	return &scoped{db: s, actor: actor}
}

// Actors lists every actor with at least one property.
func (s *SQLite) Actors(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT actor FROM props ORDER BY actor`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Dump returns all properties of one actor.
func (s *SQLite) Dump(ctx context.Context, actor string) (map[string]host.Value, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, kind, str, num FROM props WHERE actor = ?`, actor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]host.Value{}
	for rows.Next() {
		var (
			key  string
			kind int
			str  string
			num  float64
		)
		if err := rows.Scan(&key, &kind, &str, &num); err != nil {
			return nil, err
		}
		out[key] = decodeValue(kind, str, num)
	}
	return out, rows.Err()
}

// RecordCatalogs stores the digests of the catalogs the server is running with.
func (s *SQLite) RecordCatalogs(ctx context.Context, digests map[string]string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO catalogs(name,digest,updated_at) VALUES(?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	names := make([]string, 0, len(digests))
	for n := range digests {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if _, err := stmt.ExecContext(ctx, n, digests[n], now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CatalogDigests returns what RecordCatalogs last stored.
func (s *SQLite) CatalogDigests(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, digest FROM catalogs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var n, d string
		if err := rows.Scan(&n, &d); err != nil {
			return nil, err
		}
		out[n] = d
	}
	return out, rows.Err()
}

func (s *SQLite) get(actor, key string) (host.Value, bool) {
	if s.closed.Load() {
		return host.Value{}, false
	}
	var (
		kind int
		str  string
		num  float64
	)
	err := s.db.QueryRow(`SELECT kind, str, num FROM props WHERE actor = ? AND key = ?`, actor, key).Scan(&kind, &str, &num)
	if errors.Is(err, sql.ErrNoRows) {
		return host.Value{}, false
	}
	if err != nil {
		s.log.Warn("property read failed", zap.String("actor", actor), zap.String("key", key), zap.Error(err))
		return host.Value{}, false
	}
	return decodeValue(kind, str, num), true
}

func (s *SQLite) set(actor, key string, v host.Value) error {
	if s.closed.Load() {
		return errors.New("kvstore: closed")
	}
	if v.Size() > s.limit {
		return fmt.Errorf("%w: %s is %d bytes", host.ErrValueTooLarge, key, v.Size())
	}
	var num float64
	switch v.Kind {
	case host.ValueNumber:
		num = v.Num
	case host.ValueBool:
		if v.Bool {
			num = 1
		}
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO props(actor,key,kind,str,num,updated_at) VALUES(?,?,?,?,?,?)`,
		actor, key, int(v.Kind), v.Str, num, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLite) delete(actor, key string) error {
	if s.closed.Load() {
		return errors.New("kvstore: closed")
	}
	_, err := s.db.Exec(`DELETE FROM props WHERE actor = ? AND key = ?`, actor, key)
	return err
}

func decodeValue(kind int, str string, num float64) host.Value {
	switch host.ValueKind(kind) {
	case host.ValueString:
		return host.String(str)
	case host.ValueNumber:
		return host.Number(num)
	case host.ValueBool:
		return host.Bool(num != 0)
	default:
		return host.Value{}
	}
}

type scoped struct {
	db    *SQLite
	actor string
}

func (s *scoped) Get(key string) (host.Value, bool)  { return s.db.get(s.actor, key) }
func (s *scoped) Set(key string, v host.Value) error { return s.db.set(s.actor, key, v) }
func (s *scoped) Delete(key string) error            { return s.db.delete(s.actor, key) }
