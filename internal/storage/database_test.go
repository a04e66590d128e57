package storage

import (
	"testing"

	"mamachat/internal/config"
)

func TestRebind(t *testing.T) {
	q := `SELECT * FROM chat_messages WHERE user_id = ? AND session_id = ? LIMIT ?`
	if got := Rebind("sqlite3", q); got != q {
		t.Fatalf("sqlite query rewritten: %q", got)
	}
	want := `SELECT * FROM chat_messages WHERE user_id = $1 AND session_id = $2 LIMIT $3`
	if got := Rebind("postgres", q); got != want {
		t.Fatalf("postgres query = %q", got)
	}
}

func TestOpenAndMigrateSQLite(t *testing.T) {
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := Migrate(db, "sqlite"); err != nil {
		t.Fatalf("migrate twice: %v", err)
	}
	for _, table := range []string{"users", "user_tokens", "profiles", "health_readings", "appointments", "chat_sessions", "chat_messages"} {
		var name string
		if err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name); err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
	if _, err := Open("oracle", cfg); err == nil {
		t.Fatalf("expected error for unknown database")
	}
}
