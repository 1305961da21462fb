// Package sqlstore implements storage.Store on database/sql. The postgres and sqlite
// packages supply the driver and a Dialect; the queries are shared.
package sqlstore

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/radieske/friendsbet/internal/wagering/domain"
	"github.com/radieske/friendsbet/internal/wagering/storage"
)

// Dialect captures what differs between the supported SQL engines.
type Dialect struct {
	Name string
	// Numbered rewrites ? placeholders to $1..$n.
	Numbered bool
	// ShareLock and UpdateLock are appended to event reads. SQLite leaves them empty
	// and relies on its database-wide write lock.
	ShareLock  string
	UpdateLock string
	// IsUniqueViolation reports primary key or unique constraint failures.
	IsUniqueViolation func(error) bool
}

func (d Dialect) rebind(q string) string {
	if !d.Numbered {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// Store is a storage.Store over a *sql.DB.
type Store struct {
	db *sql.DB
	d  Dialect
}

// New wraps a migrated handle. The caller owns pool settings.
func New(db *sql.DB, d Dialect) *Store { return &Store{db: db, d: d} }

// DB exposes the handle for health checks and migrations.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Fault("begin", err)
	}
	defer tx.Rollback()

	if err := fn(&txn{tx: tx, d: s.d}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.Fault("commit", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return domain.Fault("ping", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type txn struct {
	tx *sql.Tx
	d  Dialect
}

func (t *txn) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.d.rebind(q), args...)
}

func (t *txn) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.d.rebind(q), args...)
}

func (t *txn) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.d.rebind(q), args...)
}

func (t *txn) insertErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if t.d.IsUniqueViolation != nil && t.d.IsUniqueViolation(err) {
		return storage.ErrAlreadyExists
	}
	return domain.Fault(op, err)
}

func toMillis(v time.Time) int64 { return v.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

func nullMillis(v *time.Time) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*v), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
