// Package upgrade gates startup on the buffer schema version recorded by
// golang-migrate.
package upgrade

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RequiredSchemaVersion is the migration version this binary reads and writes.
const RequiredSchemaVersion uint = 1

// SchemaStatus represents the result of a schema compatibility check.
type SchemaStatus struct {
	CurrentVersion  uint
	RequiredVersion uint
	Dirty           bool
	Compatible      bool
	NeedsMigration  bool
}

var (
	ErrSchemaOutdated = errors.New("database schema is outdated")
	ErrSchemaDirty    = errors.New("database schema is dirty (failed migration)")
	ErrSchemaAhead    = errors.New("database schema is newer than this binary")
)

// CheckSchema reads schema_migrations and compares it against
// RequiredSchemaVersion. A missing table reads as version 0.
func CheckSchema(ctx context.Context, db *sql.DB) (*SchemaStatus, error) {
	s := &SchemaStatus{RequiredVersion: RequiredSchemaVersion}

	var version int64
	var dirty bool
	err := db.QueryRowContext(ctx, "SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&version, &dirty)
	if err != nil {
		// Fresh database: either no rows or no table yet.
		s.NeedsMigration = true
		return s, nil
	}
	if version < 0 {
		// golang-migrate writes -1 while the first migration is in flight.
		s.Dirty = dirty
		s.NeedsMigration = !dirty
		return s, nil
	}

	s.CurrentVersion = uint(version)
	s.Dirty = dirty
	if dirty {
		return s, nil
	}

	switch {
	case s.CurrentVersion == RequiredSchemaVersion:
		s.Compatible = true
	case s.CurrentVersion < RequiredSchemaVersion:
		s.NeedsMigration = true
	}
	return s, nil
}

// Err maps the status onto one of the ErrSchema* sentinels, or nil when the
// schema is compatible.
func (s *SchemaStatus) Err() error {
	switch {
	case s.Compatible:
		return nil
	case s.Dirty:
		return ErrSchemaDirty
	case s.CurrentVersion > s.RequiredVersion:
		return ErrSchemaAhead
	default:
		return ErrSchemaOutdated
	}
}

// FormatError returns an operator-facing message for the given status.
func FormatError(s *SchemaStatus) string {
	if s.Dirty {
		prev := uint(0)
		if s.CurrentVersion > 0 {
			prev = s.CurrentVersion - 1
		}
		return fmt.Sprintf(
			"Buffer schema is in a dirty state (version %d).\n"+
				"A migration failed partway.\n\n"+
				"  Fix:  ./watibot migrate force %d\n"+
				"  Then: ./watibot migrate up\n",
			s.CurrentVersion, prev,
		)
	}
	if s.CurrentVersion > s.RequiredVersion {
		return fmt.Sprintf(
			"Buffer schema (v%d) is newer than this binary (requires v%d).\n\n"+
				"  Fix: deploy the matching watibot release.\n",
			s.CurrentVersion, s.RequiredVersion,
		)
	}
	return fmt.Sprintf(
		"Buffer schema is outdated: current v%d, required v%d.\n\n"+
			"  Run:  ./watibot migrate up\n\n"+
			"  Docker/CI: set WATIBOT_AUTO_UPGRADE=true to migrate on startup.\n",
		s.CurrentVersion, s.RequiredVersion,
	)
}
