package store

import "embed"

// MigrationFiles embeds the schema migrations so cmd/migrate can apply them
// without needing a separate copy on disk at deploy time.
//
//go:embed migrations/*.sql
var MigrationFiles embed.FS
