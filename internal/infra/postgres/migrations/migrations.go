// Package migrations holds the Postgres schema for the ledger, profiles and aggregates.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
