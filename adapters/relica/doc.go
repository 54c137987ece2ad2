// Package relica provides the relational storage driver, built on the Relica
// query builder.
//
// Relica (github.com/coregx/relica) is a lightweight, type-safe database query
// builder for Go with zero production dependencies.
//
// Each bucket lives in its own database, chosen by expanding a DSN template.
// The "emails" table and its indexes are created on first use from the DDL
// embedded in mailbus.SchemaFiles.
//
// Supported database/sql drivers, all registered by importing this package:
//   - "postgres" (github.com/lib/pq)
//   - "pgx" (github.com/jackc/pgx/v5/stdlib)
//   - "mysql" (github.com/go-sql-driver/mysql, add parseTime=true to the DSN)
//   - "sqlite3" (github.com/mattn/go-sqlite3)
//
// Example usage:
//
//	import (
//	    "github.com/coregx/mailbus"
//	    "github.com/coregx/mailbus/adapters/relica"
//	)
//
//	driver, err := relica.NewDriver("postgres",
//	    "postgres://app:secret@{service}-db:5432/emails?sslmode=disable")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store, err := mailbus.NewStore(mailbus.WithDriver(driver))
package relica
