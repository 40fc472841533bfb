package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"strife/server/internal/store"
)

// cliDB creates a temp database, runs seed against it, and returns its path.
func cliDB(t *testing.T, seed func(*store.Store)) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "strife.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	if seed != nil {
		seed(st)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}
	return dbPath
}

func seedUsers(t *testing.T, usernames ...string) func(*store.Store) {
	return func(st *store.Store) {
		for _, u := range usernames {
			if err := st.AddUser(context.Background(), u, "hash"); err != nil {
				t.Fatalf("AddUser(%q): %v", u, err)
			}
		}
	}
}

func TestRunCLIVersionReturnsTrue(t *testing.T) {
	if !RunCLI([]string{"version"}, "not-used.db") {
		t.Error("RunCLI(version) should return true")
	}
}

func TestRunCLIUnknownSubcommandReturnsFalse(t *testing.T) {
	if RunCLI([]string{"nonexistent-cmd"}, "not-used.db") {
		t.Error("RunCLI(unknown) should return false")
	}
}

func TestRunCLIEmptyArgsReturnsFalse(t *testing.T) {
	if RunCLI(nil, "not-used.db") {
		t.Error("RunCLI(nil) should return false")
	}
}

func TestCLIStatusReturnsTrue(t *testing.T) {
	dbPath := cliDB(t, nil)
	if !RunCLI([]string{"status"}, dbPath) {
		t.Error("RunCLI(status) should return true")
	}
}

func TestCLIUsersList(t *testing.T) {
	dbPath := cliDB(t, seedUsers(t, "alice", "bob"))
	if !RunCLI([]string{"users"}, dbPath) {
		t.Error("RunCLI(users) should return true")
	}
	if !RunCLI([]string{"users", "list"}, dbPath) {
		t.Error("RunCLI(users list) should return true")
	}
}

func TestCLIUsersEmptyDB(t *testing.T) {
	dbPath := cliDB(t, nil)
	if !RunCLI([]string{"users"}, dbPath) {
		t.Error("RunCLI(users) with empty db should return true")
	}
}

func TestCLIGroupsList(t *testing.T) {
	dbPath := cliDB(t, func(st *store.Store) {
		ctx := context.Background()
		if err := st.AddUser(ctx, "alice", "hash"); err != nil {
			t.Fatalf("AddUser: %v", err)
		}
		if _, err := st.CreateGroup(ctx, "party", "alice"); err != nil {
			t.Fatalf("CreateGroup: %v", err)
		}
	})
	if !RunCLI([]string{"groups"}, dbPath) {
		t.Error("RunCLI(groups) should return true")
	}
}

func TestCLIBackupCustomPath(t *testing.T) {
	dbPath := cliDB(t, seedUsers(t, "alice"))
	outPath := filepath.Join(t.TempDir(), "custom-backup.db")

	if !RunCLI([]string{"backup", outPath}, dbPath) {
		t.Error("RunCLI(backup <path>) should return true")
	}
	if _, err := os.Stat(outPath); os.IsNotExist(err) {
		t.Error("backup file should exist at custom path")
	}

	// Verify data was preserved.
	restored, err := store.Open(outPath)
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer restored.Close()
	n, err := restored.UserCount(context.Background())
	if err != nil || n != 1 {
		t.Errorf("backup should contain 1 user, got %d err=%v", n, err)
	}
}
