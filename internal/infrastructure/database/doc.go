// Package database provides SQLite connectivity for the tour engine.
//
// It opens the catalogue database (tours, staging request history and
// measurement export archive) with WAL mode and a busy timeout, and applies
// the versioned migrations registered in MigrationsFS.
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
// Migrations are additive-only: new columns must be nullable or carry a
// default, and each .up.sql ships with a matching .down.sql.
package database
