// Package migrations embeds the SQL schema applied to the on-device database.
package migrations

import "embed"

// FS holds the goose migration files.
//
//go:embed *.sql
var FS embed.FS
