package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentsh/saferm/pkg/types"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store mirrors audit records into a queryable database.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=2000;`,
		`CREATE TABLE IF NOT EXISTS records (
			record_id TEXT PRIMARY KEY,
			ts_unix_ns INTEGER NOT NULL,
			level TEXT NOT NULL,
			user TEXT NOT NULL,
			login_user TEXT,
			host TEXT,
			cwd TEXT,
			message TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_records_ts ON records(ts_unix_ns);`,
		`CREATE INDEX IF NOT EXISTS idx_records_user_ts ON records(user, ts_unix_ns);`,
		`CREATE INDEX IF NOT EXISTS idx_records_level ON records(level);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) AppendRecord(ctx context.Context, rec types.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records(record_id, ts_unix_ns, level, user, login_user, host, cwd, message)
		VALUES(?,?,?,?,?,?,?,?);`,
		rec.ID,
		rec.Time.UTC().UnixNano(),
		string(rec.Level),
		rec.User,
		nullable(rec.LoginUser),
		nullable(rec.Host),
		nullable(rec.Cwd),
		rec.Message,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *Store) QueryRecords(ctx context.Context, q types.RecordQuery) ([]types.Record, error) {
	where := []string{"1=1"}
	var args []any

	if q.User != "" {
		where = append(where, "(user = ? OR login_user = ?)")
		args = append(args, q.User, q.User)
	}
	if q.Level != "" {
		where = append(where, "level = ?")
		args = append(args, string(q.Level))
	}
	if q.Since != nil {
		where = append(where, "ts_unix_ns >= ?")
		args = append(args, q.Since.UTC().UnixNano())
	}
	if q.Until != nil {
		where = append(where, "ts_unix_ns <= ?")
		args = append(args, q.Until.UTC().UnixNano())
	}
	if q.TextLike != "" {
		where = append(where, "message LIKE ?")
		args = append(args, "%"+q.TextLike+"%")
	}

	order := "DESC"
	if q.Asc {
		order = "ASC"
	}
	limit := q.Limit
	if limit <= 0 || limit > 5000 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT record_id, ts_unix_ns, level, user, login_user, host, cwd, message FROM records WHERE `+
			strings.Join(where, " AND ")+` ORDER BY ts_unix_ns `+order+` LIMIT ?`,
		append(args, limit)...,
	)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []types.Record
	for rows.Next() {
		var (
			r                types.Record
			ts               int64
			level            string
			login, host, cwd sql.NullString
		)
		if err := rows.Scan(&r.ID, &ts, &level, &r.User, &login, &host, &cwd, &r.Message); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Time = time.Unix(0, ts).UTC()
		r.Level = types.Level(level)
		r.LoginUser, r.Host, r.Cwd = login.String, host.String, cwd.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query records rows: %w", err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
