package session

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
)

func TestSignInAndLookup(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.SignIn("10.0.0.1", "alice", "hunter22"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	if u, ok := r.Username("10.0.0.1"); !ok || u != "alice" {
		t.Fatalf("Username = %q, %v; want alice, true", u, ok)
	}
	if p, ok := r.Password("10.0.0.1"); !ok || p != "hunter22" {
		t.Fatalf("Password = %q, %v; want hunter22, true", p, ok)
	}
	if peer, ok := r.PeerOf("alice"); !ok || peer != "10.0.0.1" {
		t.Fatalf("PeerOf = %q, %v; want 10.0.0.1, true", peer, ok)
	}
	if !r.Online("alice") {
		t.Fatal("alice should be online")
	}
	if r.Online("bob") {
		t.Fatal("bob should not be online")
	}
}

func TestSignInRejectsDuplicatePeer(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.SignIn("10.0.0.1", "alice", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if err := r.SignIn("10.0.0.1", "bob", "pw"); !errors.Is(err, ErrPeerActive) {
		t.Fatalf("err = %v, want ErrPeerActive", err)
	}
}

func TestSignInRejectsDuplicateUsername(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.SignIn("10.0.0.1", "alice", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if err := r.SignIn("10.0.0.2", "alice", "pw"); !errors.Is(err, ErrUserActive) {
		t.Fatalf("err = %v, want ErrUserActive", err)
	}
	// The original session is untouched.
	if peer, _ := r.PeerOf("alice"); peer != "10.0.0.1" {
		t.Fatalf("PeerOf(alice) = %q, want 10.0.0.1", peer)
	}
}

func TestSignOut(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_ = r.SignIn("10.0.0.1", "alice", "pw")
	if !r.SignOut("10.0.0.1") {
		t.Fatal("SignOut should report an existing session")
	}
	if r.SignOut("10.0.0.1") {
		t.Fatal("second SignOut should report no session")
	}
	if _, ok := r.Password("10.0.0.1"); ok {
		t.Fatal("password should be cleared with the session")
	}
	// Username is free again.
	if err := r.SignIn("10.0.0.2", "alice", "pw"); err != nil {
		t.Fatalf("re-sign-in after sign-out: %v", err)
	}
}

func TestConcurrentSignInSingleWinner(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	const attempts = 32
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.SignIn(fmt.Sprintf("10.0.0.%d", i), "alice", "pw")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("%d sign-ins succeeded for one username, want exactly 1", wins)
	}
	if got := r.SessionCount(); got != 1 {
		t.Fatalf("SessionCount = %d, want 1", got)
	}
}

func TestSetUsernameAndPassword(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_ = r.SignIn("10.0.0.1", "alice", "pw")
	r.SetUsername("10.0.0.1", "alicia")
	if u, _ := r.Username("10.0.0.1"); u != "alicia" {
		t.Fatalf("Username = %q, want alicia", u)
	}
	r.SetPassword("10.0.0.1", "newpw")
	if p, _ := r.Password("10.0.0.1"); p != "newpw" {
		t.Fatalf("Password = %q, want newpw", p)
	}

	// No-ops for peers without sessions.
	r.SetUsername("10.0.0.9", "ghost")
	if _, ok := r.Username("10.0.0.9"); ok {
		t.Fatal("SetUsername must not create sessions")
	}
}

func TestPendingRequests(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.AddPendingRequest("alice", "bob")

	if rec, ok := r.PendingRequestFrom("alice"); !ok || rec != "bob" {
		t.Fatalf("PendingRequestFrom = %q, %v", rec, ok)
	}
	if !r.HasPendingBetween("alice", "bob") || !r.HasPendingBetween("bob", "alice") {
		t.Fatal("HasPendingBetween should hold in both orders")
	}
	if r.HasPendingBetween("alice", "carol") {
		t.Fatal("no request exists between alice and carol")
	}

	if got := r.PendingSendersFor("bob"); !reflect.DeepEqual(got, []string{"alice"}) {
		t.Fatalf("PendingSendersFor = %v, want [alice]", got)
	}
	// Listing does not consume.
	if got := r.PendingSendersFor("bob"); len(got) != 1 {
		t.Fatalf("PendingSendersFor after relist = %v", got)
	}

	r.RemovePendingRequest("alice")
	if _, ok := r.PendingRequestFrom("alice"); ok {
		t.Fatal("request should be removed")
	}
}

func TestClearPendingBetween(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.AddPendingRequest("alice", "bob")
	r.AddPendingRequest("bob", "alice")
	r.AddPendingRequest("carol", "bob")

	r.ClearPendingBetween("alice", "bob")
	if r.HasPendingBetween("alice", "bob") {
		t.Fatal("requests between alice and bob should be gone")
	}
	if _, ok := r.PendingRequestFrom("carol"); !ok {
		t.Fatal("carol's unrelated request must survive")
	}
}

func TestPendingMessagesFIFO(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.AddPendingMessage("13@alice@k@7", "bob")
	r.AddPendingMessage("03@grp@9@k2", "bob")

	got := r.TakePendingMessages("bob")
	want := []string{"13@alice@k@7", "03@grp@9@k2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("TakePendingMessages = %v, want %v", got, want)
	}
	// Flushing clears the queue.
	if again := r.TakePendingMessages("bob"); len(again) != 0 {
		t.Fatalf("second take = %v, want empty", again)
	}
}

func TestPendingKeys(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.AddPendingKey("k1", 7, "bob")
	r.AddPendingKey("k2", 7, "bob")
	r.AddPendingKey("k3", 9, "bob")

	got := r.TakePendingKeys("bob")
	if !reflect.DeepEqual(got[7], []string{"k1", "k2"}) {
		t.Fatalf("keys for chat 7 = %v, want [k1 k2]", got[7])
	}
	if !reflect.DeepEqual(got[9], []string{"k3"}) {
		t.Fatalf("keys for chat 9 = %v, want [k3]", got[9])
	}
	if again := r.TakePendingKeys("bob"); again != nil {
		t.Fatalf("second take = %v, want nil", again)
	}
}

func TestOnlineUsersSnapshot(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_ = r.SignIn("10.0.0.2", "carol", "pw")
	_ = r.SignIn("10.0.0.1", "alice", "pw")
	if got := r.OnlineUsers(); !reflect.DeepEqual(got, []string{"alice", "carol"}) {
		t.Fatalf("OnlineUsers = %v, want [alice carol]", got)
	}
}
