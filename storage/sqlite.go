package storage

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLite stores msgpack-encoded entries in a single table. File-backed
// databases survive restarts; ":memory:" is useful for tests. Expired rows are
// swept by a background goroutine every expiryCheck.
type SQLite struct {
	db          *sql.DB
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	once        sync.Once
	expiryCheck time.Duration
	now         func() time.Time
	log         *zap.Logger
}

var _ Store = (*SQLite)(nil)

// SQLiteOption configures a [SQLite] store.
type SQLiteOption func(*SQLite)

// WithSQLiteClock sets the clock that reads and the sweeper compare
// expirations against.
func WithSQLiteClock(now func() time.Time) SQLiteOption {
	return func(s *SQLite) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSQLiteLogger logs sweeper failures at debug level.
func WithSQLiteLogger(l *zap.Logger) SQLiteOption {
	return func(s *SQLite) {
		if l != nil {
			s.log = l
		}
	}
}

const sqliteSchema = `CREATE TABLE IF NOT EXISTS fusioncache (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fusioncache_expires_at ON fusioncache(expires_at);`

// NewSQLite opens (or creates) the database at path. An empty path means
// ":memory:". expiryCheck <= 0 defaults to one minute.
func NewSQLite(ctx context.Context, path string, expiryCheck time.Duration, opts ...SQLiteOption) (*SQLite, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite: open")
	}
	// A single connection keeps ":memory:" databases coherent and serializes
	// writers, which SQLite does anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "sqlite: enable WAL")
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "sqlite: create schema")
	}

	if expiryCheck <= 0 {
		expiryCheck = time.Minute
	}
	cctx, cancel := context.WithCancel(ctx)
	s := &SQLite{
		db:          db,
		ctx:         cctx,
		cancel:      cancel,
		expiryCheck: expiryCheck,
		now:         time.Now,
		log:         zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

// Get reads the entry stored under key. Rows past their expiration are
// reported as a miss even before the sweeper removes them.
func (s *SQLite) Get(ctx context.Context, key string) (Entry, bool, error) {
	var (
		data      []byte
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM fusioncache WHERE key = ?`, key,
	).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, errors.Wrapf(err, "sqlite: get %q", key)
	}

	e := Entry{Value: Raw(data)}
	if expiresAt > 0 {
		e.ExpiresAt = time.Unix(0, expiresAt)
		if e.Expired(s.now()) {
			return Entry{}, false, nil
		}
	}
	return e, true, nil
}

// Set upserts e under key.
func (s *SQLite) Set(ctx context.Context, key string, e Entry) error {
	data, err := Encode(e.Value)
	if err != nil {
		return err
	}
	var expiresAt int64
	if !e.ExpiresAt.IsZero() {
		expiresAt = e.ExpiresAt.UnixNano()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO fusioncache (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, data, expiresAt,
	)
	if err != nil {
		return errors.Wrapf(err, "sqlite: set %q", key)
	}
	return nil
}

// Delete removes key.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM fusioncache WHERE key = ?`, key); err != nil {
		return errors.Wrapf(err, "sqlite: delete %q", key)
	}
	return nil
}

// Close stops the sweeper and closes the database.
func (s *SQLite) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLite) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.expiryCheck)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *SQLite) sweep() {
	res, err := s.db.ExecContext(s.ctx,
		`DELETE FROM fusioncache WHERE expires_at > 0 AND expires_at <= ?`,
		s.now().UnixNano(),
	)
	if err != nil {
		if s.ctx.Err() == nil {
			s.log.Debug("sqlite expiry sweep failed", zap.Error(err))
		}
		return
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.log.Debug("sqlite expiry sweep", zap.Int64("removed", n))
	}
}
