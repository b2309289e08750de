package migrations

import "embed"

// FS contains the SQLite schema migrations, applied in lexical order.
//
//go:embed *.sql
var FS embed.FS
