package migrations

import "embed"

// FS holds the Postgres schema.
//
//go:embed *.sql
var FS embed.FS
