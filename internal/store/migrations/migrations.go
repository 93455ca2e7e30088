// Package migrations embeds the FileRecord store schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
