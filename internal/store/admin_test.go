package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestCountsAndListings(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for _, u := range []string{"carol", "alice", "bob"} {
		if err := s.AddUser(ctx, u, "hash"); err != nil {
			t.Fatalf("AddUser(%s): %v", u, err)
		}
	}
	if _, err := s.CreateGroup(ctx, "party", "alice"); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if _, err := s.AddFriend(ctx, "alice", "bob"); err != nil {
		t.Fatalf("AddFriend: %v", err)
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	want := []string{"alice", "bob", "carol"}
	if len(users) != len(want) {
		t.Fatalf("ListUsers = %v, want %v", users, want)
	}
	for i := range want {
		if users[i] != want[i] {
			t.Fatalf("ListUsers = %v, want %v", users, want)
		}
	}

	n, err := s.UserCount(ctx)
	if err != nil || n != 3 {
		t.Fatalf("UserCount = %d, %v; want 3", n, err)
	}

	// The private chat created by AddFriend counts as a group.
	g, err := s.GroupCount(ctx)
	if err != nil || g != 2 {
		t.Fatalf("GroupCount = %d, %v; want 2", g, err)
	}
	groups, err := s.ListGroups(ctx)
	if err != nil || len(groups) != 2 {
		t.Fatalf("ListGroups = %v, %v; want 2 entries", groups, err)
	}
	if groups[0].Name != "party" || groups[1].Name != "PRIVATE%%alice%%bob" {
		t.Fatalf("ListGroups = %v, want party then the private chat", groups)
	}
}

func TestBackupPreservesData(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AddUser(ctx, "alice", "hash"); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "snapshot.db")
	if err := s.Backup(ctx, dest); err != nil {
		t.Fatalf("Backup: %v", err)
	}

	restored, err := Open(dest)
	if err != nil {
		t.Fatalf("open backup: %v", err)
	}
	defer restored.Close()

	n, err := restored.UserCount(ctx)
	if err != nil || n != 1 {
		t.Fatalf("restored UserCount = %d, %v; want 1", n, err)
	}
}
