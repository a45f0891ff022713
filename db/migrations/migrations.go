// Package migrations embeds the SQL schema migrations for each supported
// dialect so the binary carries its own schema.
package migrations

import "embed"

// FS holds mysql/*.sql and sqlite/*.sql in golang-migrate naming
// (NNNNNN_name.up.sql / NNNNNN_name.down.sql).
//
//go:embed mysql/*.sql sqlite/*.sql
var FS embed.FS
