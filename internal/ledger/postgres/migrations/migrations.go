// Package migrations embeds the schema migration files for the ledger.
package migrations

import "embed"

// FS holds the embedded .up.sql migration files, applied in sorted order at
// startup.
//
//go:embed *.sql
var FS embed.FS
