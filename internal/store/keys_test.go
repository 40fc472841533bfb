package store

import (
	"context"
	"errors"
	"testing"

	"strife/server/internal/crypto"
)

func TestKeysRoundTrip(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()

	if err := st.AddUser(ctx, "alice", "hash-a"); err != nil {
		t.Fatalf("add user: %v", err)
	}

	k1, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	k2, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	if err := st.AddKey(ctx, "alice", 7, k1, "hunter2"); err != nil {
		t.Fatalf("add key: %v", err)
	}
	if err := st.AddKey(ctx, "alice", 9, k2, "hunter2"); err != nil {
		t.Fatalf("add key: %v", err)
	}

	keys, chatIDs, err := st.GetUserKeys(ctx, "alice", "hunter2")
	if err != nil {
		t.Fatalf("get keys: %v", err)
	}
	if len(keys) != 2 || len(chatIDs) != 2 {
		t.Fatalf("got %d keys and %d chat ids, want 2 and 2", len(keys), len(chatIDs))
	}
	if keys[0] != k1 || chatIDs[0] != 7 {
		t.Fatalf("got first key %q for chat %d, want %q for 7", keys[0], chatIDs[0], k1)
	}
	if keys[1] != k2 || chatIDs[1] != 9 {
		t.Fatalf("got second key %q for chat %d, want %q for 9", keys[1], chatIDs[1], k2)
	}
}

func TestKeysWrongPasswordSkipped(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()

	if err := st.AddUser(ctx, "alice", "hash-a"); err != nil {
		t.Fatalf("add user: %v", err)
	}
	k, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if err := st.AddKey(ctx, "alice", 7, k, "hunter2"); err != nil {
		t.Fatalf("add key: %v", err)
	}

	// A different password either fails to unwrap (key skipped) or, with
	// vanishing probability, unwraps to garbage that is not the stored key.
	keys, _, err := st.GetUserKeys(ctx, "alice", "wrong")
	if err != nil {
		t.Fatalf("get keys: %v", err)
	}
	for _, got := range keys {
		if got == k {
			t.Fatal("wrong password recovered the chat key")
		}
	}
}

func TestKeysUnknownUser(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()

	if err := st.AddKey(ctx, "ghost", 1, "k", "p"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("add key for ghost: got %v, want ErrUnknownUser", err)
	}
	if _, _, err := st.GetUserKeys(ctx, "ghost", "p"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("get keys for ghost: got %v, want ErrUnknownUser", err)
	}
}
