// Package postgres provides the Postgres wagering store. Event and user rows are
// locked with SELECT ... FOR SHARE / FOR UPDATE inside each transaction.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/radieske/friendsbet/internal/shared/migrate"
	"github.com/radieske/friendsbet/internal/wagering/storage/postgres/migrations"
	"github.com/radieske/friendsbet/internal/wagering/storage/sqlstore"
)

var Dialect = sqlstore.Dialect{
	Name:              "postgres",
	Numbered:          true,
	ShareLock:         " FOR SHARE",
	UpdateLock:        " FOR UPDATE",
	IsUniqueViolation: isUniqueViolation,
}

// New wraps an open Postgres handle and applies pending migrations.
func New(ctx context.Context, db *sql.DB) (*sqlstore.Store, error) {
	if err := Migrate(ctx, db); err != nil {
		return nil, err
	}
	return sqlstore.New(db, Dialect), nil
}

// Migrate applies the embedded schema, including the activity_log table.
func Migrate(ctx context.Context, db *sql.DB) error {
	if err := migrate.Apply(ctx, db, migrations.FS, ".", migrate.Dollar); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
