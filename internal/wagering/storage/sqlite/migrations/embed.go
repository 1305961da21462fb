package migrations

import "embed"

// FS holds the SQLite schema.
//
//go:embed *.sql
var FS embed.FS
