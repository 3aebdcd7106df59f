// Package migrations embeds the registry tracker's on-disk schema so
// golang-migrate can apply it from a single binary, the same iofs pattern
// the teacher uses for its Postgres metadata store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
