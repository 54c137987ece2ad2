package mailbus

import (
	"embed"
	"fmt"
	"strings"
)

// SchemaFiles holds the DDL for the "emails" table, one file per SQL dialect.
// Every statement uses IF NOT EXISTS so running a file twice is harmless;
// adapters/relica executes it on first use of each bucket.
//
// The files are plain SQL and can also be applied by hand or with any
// migration tool that reads an fs.FS:
//
//	ddl, _ := fs.ReadFile(mailbus.SchemaFiles, "schema/postgres.sql")
//
//go:embed schema/*.sql
var SchemaFiles embed.FS

// SchemaDialect maps a database/sql driver name to its schema file stem.
func SchemaDialect(driverName string) (string, error) {
	switch driverName {
	case "postgres", "pgx":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	case "sqlite3", "sqlite":
		return "sqlite3", nil
	default:
		return "", NewError(ErrCodeConfiguration, fmt.Sprintf("unsupported SQL driver %q", driverName))
	}
}

// SchemaStatements returns the DDL statements for driverName in execution order.
func SchemaStatements(driverName string) ([]string, error) {
	dialect, err := SchemaDialect(driverName)
	if err != nil {
		return nil, err
	}

	raw, err := SchemaFiles.ReadFile("schema/" + dialect + ".sql")
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeConfiguration, "schema file missing for "+dialect, err)
	}

	var stmts []string
	for _, part := range strings.Split(string(raw), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}
