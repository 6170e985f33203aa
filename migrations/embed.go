// Package migrations embeds the versioned SQL schema applied by cmd/migrate.
package migrations

import "embed"

// FS holds the NNNNNN_name.up.sql / .down.sql pairs
//
//go:embed *.sql
var FS embed.FS
