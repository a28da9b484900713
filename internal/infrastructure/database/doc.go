// Package database provides SQLite storage for the LiteTouch bridge.
//
// The bridge keeps a local command history (the audit_logs table) so that
// operators can see which loads and keypad buttons were driven, by whom,
// and whether the panel accepted the frame. Storage is optional and
// enabled by database.enabled in config.yaml.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Embedded schema migrations with up/down files
//   - Connection lifecycle and health checks
//
// Usage:
//
//	db, err := database.Open(database.FromConfig(cfg.Database))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files live in the top-level migrations package and are named
// YYYYMMDD_HHMMSS_description.up.sql / .down.sql.
package database
