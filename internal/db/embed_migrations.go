package db

import "embed"

// MigrationFS embeds the workflow audit schema. Applied by cmd/migrate and the audit integration tests.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
