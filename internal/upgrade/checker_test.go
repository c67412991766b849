package upgrade

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "schema.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func setVersion(t *testing.T, db *sql.DB, version int64, dirty bool) {
	t.Helper()
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version BIGINT NOT NULL PRIMARY KEY, dirty BOOLEAN NOT NULL)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := db.Exec(`DELETE FROM schema_migrations`); err != nil {
		t.Fatalf("delete: %v", err)
	}
	d := 0
	if dirty {
		d = 1
	}
	if _, err := db.Exec(`INSERT INTO schema_migrations (version, dirty) VALUES (?, ?)`, version, d); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestCheckSchema(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(t *testing.T, db *sql.DB)
		compatible bool
		needs      bool
		dirty      bool
		wantErr    error
	}{
		{
			name:    "fresh database",
			setup:   func(*testing.T, *sql.DB) {},
			needs:   true,
			wantErr: ErrSchemaOutdated,
		},
		{
			name:       "current",
			setup:      func(t *testing.T, db *sql.DB) { setVersion(t, db, int64(RequiredSchemaVersion), false) },
			compatible: true,
		},
		{
			name:    "dirty",
			setup:   func(t *testing.T, db *sql.DB) { setVersion(t, db, int64(RequiredSchemaVersion), true) },
			dirty:   true,
			wantErr: ErrSchemaDirty,
		},
		{
			name:    "ahead",
			setup:   func(t *testing.T, db *sql.DB) { setVersion(t, db, int64(RequiredSchemaVersion)+1, false) },
			wantErr: ErrSchemaAhead,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openDB(t)
			tt.setup(t, db)

			s, err := CheckSchema(context.Background(), db)
			if err != nil {
				t.Fatalf("CheckSchema: %v", err)
			}
			if s.Compatible != tt.compatible || s.NeedsMigration != tt.needs || s.Dirty != tt.dirty {
				t.Fatalf("status = %+v", s)
			}
			if got := s.Err(); !errors.Is(got, tt.wantErr) {
				t.Fatalf("Err() = %v, want %v", got, tt.wantErr)
			}
		})
	}
}

func TestFormatError(t *testing.T) {
	tests := []struct {
		name string
		s    SchemaStatus
		want string
	}{
		{"dirty", SchemaStatus{CurrentVersion: 1, RequiredVersion: 1, Dirty: true}, "migrate force 0"},
		{"ahead", SchemaStatus{CurrentVersion: 3, RequiredVersion: 1}, "newer than this binary"},
		{"outdated", SchemaStatus{CurrentVersion: 0, RequiredVersion: 1}, "WATIBOT_AUTO_UPGRADE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatError(&tt.s); !strings.Contains(got, tt.want) {
				t.Fatalf("FormatError = %q, want substring %q", got, tt.want)
			}
		})
	}
}
