package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds the schema for the question bank and accounts.
var Migrations = migrate.NewMigrations()
