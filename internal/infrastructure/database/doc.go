// Package database provides the SQLite connection used for autopair's
// persisted device state.
//
// It manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Embedded, versioned schema migrations (schema_migrations table)
//   - A transaction helper used to write related keys atomically
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive. Each file pair is
// YYYYMMDD_HHMMSS_description.up.sql / .down.sql in the top-level
// migrations directory, which registers itself via MigrationsFS.
package database
