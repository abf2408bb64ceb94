// Package migrations embeds the SQL migrations for the events schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
