package cmd

import (
	"errors"
	"fmt"
	"testing"

	"github.com/golang-migrate/migrate/v4"
)

func TestIgnoreNoChange(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"no change", migrate.ErrNoChange, nil},
		{"wrapped no change", fmt.Errorf("up: %w", migrate.ErrNoChange), nil},
		{"other", boom, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ignoreNoChange(tt.in); !errors.Is(got, tt.want) || (tt.want == nil && got != nil) {
				t.Fatalf("ignoreNoChange(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolveMigrationsDir(t *testing.T) {
	t.Cleanup(func() { migrationsDir = "" })

	t.Setenv("WATIBOT_MIGRATIONS_DIR", "/srv/watibot/migrations")
	if got := resolveMigrationsDir(); got != "/srv/watibot/migrations" {
		t.Fatalf("env: got %q", got)
	}

	migrationsDir = "/opt/migrations"
	if got := resolveMigrationsDir(); got != "/opt/migrations" {
		t.Fatalf("flag: got %q", got)
	}
}
