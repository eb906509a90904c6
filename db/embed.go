// Package db ships the Postgres schema as goose migrations.
package db

import "embed"

// Migrations holds the goose SQL migrations, rooted at "migrations".
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations that goose reads.
const MigrationsDir = "migrations"
