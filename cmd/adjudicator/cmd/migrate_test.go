package cmd

import (
	"strings"
	"testing"
)

func TestMigrateDatabaseURL(t *testing.T) {
	t.Run("FromEnvironment", func(t *testing.T) {
		t.Setenv("ADJ_DATABASE_URL", "sqlite:///tmp/adjudicator.db")
		dbURL = ""
		configFile = ""

		url, err := migrateDatabaseURL()
		if err != nil {
			t.Fatalf("migrateDatabaseURL() error = %v", err)
		}
		if url != "sqlite:///tmp/adjudicator.db" {
			t.Fatalf("migrateDatabaseURL() = %q, want %q", url, "sqlite:///tmp/adjudicator.db")
		}
	})

	t.Run("FlagOverridesEnvironment", func(t *testing.T) {
		t.Setenv("ADJ_DATABASE_URL", "sqlite:///tmp/env.db")
		dbURL = "postgres://localhost/adjudicator"
		configFile = ""
		defer func() { dbURL = "" }()

		url, err := migrateDatabaseURL()
		if err != nil {
			t.Fatalf("migrateDatabaseURL() error = %v", err)
		}
		if url != "postgres://localhost/adjudicator" {
			t.Fatalf("migrateDatabaseURL() = %q, want flag value", url)
		}
	})

	t.Run("Missing", func(t *testing.T) {
		t.Setenv("ADJ_DATABASE_URL", "")
		dbURL = ""
		configFile = ""

		_, err := migrateDatabaseURL()
		if err == nil {
			t.Fatal("migrateDatabaseURL() expected error, got nil")
		}
		if !strings.Contains(err.Error(), "database URL required") {
			t.Fatalf("migrateDatabaseURL() error = %v, want database URL required", err)
		}
	})
}
