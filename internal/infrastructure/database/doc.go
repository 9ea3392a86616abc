// Package database provides the SQLite store used for fireplace state
// history.
//
// It handles connection setup (WAL mode, busy timeout, single writer),
// health checks and versioned schema migrations read from an fs.FS:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Use database.MemoryPath for a throwaway in-memory database.
package database
