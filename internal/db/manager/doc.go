// Package manager provides database lifecycle operations for MySQL and PostgreSQL.
//
// The manager package offers:
//   - Checking database existence
//   - Creating new databases
//   - Dropping existing databases, after terminating other sessions
//   - Re-creating a database from scratch
//
// Identifiers are quoted per driver (backticks for MySQL,
// pgx.Identifier.Sanitize for PostgreSQL), so database names with spaces,
// quotes, or special characters are handled safely.
//
// Dropping a database makes every pooled connection to it stale. Drop and
// Recreate therefore close the pool's connections for the affected
// parameters; connections checked out at that moment are closed when they
// are released.
//
// # Example Usage
//
//	mgr, err := manager.New(svc, "mysql", logger)
//
//	// Check if database exists
//	exists, err := mgr.Exists(ctx, adminParams, "mydb")
//
//	// Start over with an empty database
//	err = mgr.Recreate(ctx, adminParams, "mydb")
package manager
