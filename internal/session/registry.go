// Package session tracks who is signed in and what is owed to users who are
// not: pending friend-request notifications, pending frames, and pending chat
// keys awaiting persistence. One Registry value is created at startup and
// shared by every dispatcher; all state lives behind a single lock and no
// I/O ever happens under it.
package session

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrPeerActive means the connecting peer already has a session.
	ErrPeerActive = errors.New("peer already has a session")
	// ErrUserActive means the username is signed in from another peer.
	ErrUserActive = errors.New("username is already signed in")
)

// Registry is the process-wide session and pending-state table. Peers are
// general-channel addresses; usernames bridge to the chats and files
// channels.
type Registry struct {
	mu sync.RWMutex

	sessions  map[string]string // peer → username
	passwords map[string]string // peer → plaintext password, memory only

	pendingRequests map[string]string           // sender → recipient, one per sender
	pendingMessages map[string][]string         // username → FIFO encoded frames
	pendingKeys     map[string]map[int][]string // username → chat id → keys
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions:        make(map[string]string),
		passwords:       make(map[string]string),
		pendingRequests: make(map[string]string),
		pendingMessages: make(map[string][]string),
		pendingKeys:     make(map[string]map[int][]string),
	}
}

// ---- sessions ----

// SignIn installs a session for peer. It fails if the peer already has one
// or the username is signed in elsewhere; both checks and the install are
// one atomic step.
func (r *Registry) SignIn(peer, username, password string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[peer]; ok {
		return ErrPeerActive
	}
	for _, u := range r.sessions {
		if u == username {
			return ErrUserActive
		}
	}
	r.sessions[peer] = username
	r.passwords[peer] = password
	return nil
}

// SignOut removes peer's session and cached password. It reports whether a
// session existed. Transport loss and explicit logout share this path.
func (r *Registry) SignOut(peer string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[peer]
	delete(r.sessions, peer)
	delete(r.passwords, peer)
	return ok
}

// Username returns the username signed in at peer.
func (r *Registry) Username(peer string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.sessions[peer]
	return u, ok
}

// Password returns the session password cached for peer.
func (r *Registry) Password(peer string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.passwords[peer]
	return p, ok
}

// PeerOf reverse-looks-up the peer a username is signed in from.
func (r *Registry) PeerOf(username string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for peer, u := range r.sessions {
		if u == username {
			return peer, true
		}
	}
	return "", false
}

// Online reports whether the username has a session.
func (r *Registry) Online(username string) bool {
	_, ok := r.PeerOf(username)
	return ok
}

// SetUsername rewrites the username bound to peer after a rename.
func (r *Registry) SetUsername(peer, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[peer]; ok {
		r.sessions[peer] = username
	}
}

// SetPassword rewrites the cached password after a password change.
func (r *Registry) SetPassword(peer, password string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[peer]; ok {
		r.passwords[peer] = password
	}
}

// OnlineUsers returns a sorted snapshot of signed-in usernames.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]string, 0, len(r.sessions))
	for _, u := range r.sessions {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// SessionCount returns the number of live sessions.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ---- pending friend requests ----

// AddPendingRequest records that sender asked to befriend recipient. A
// sender has at most one outstanding request; a newer one replaces it.
func (r *Registry) AddPendingRequest(sender, recipient string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingRequests[sender] = recipient
}

// PendingRequestFrom returns the recipient of sender's outstanding request.
func (r *Registry) PendingRequestFrom(sender string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.pendingRequests[sender]
	return rec, ok
}

// HasPendingBetween reports whether a request is outstanding in either
// direction between a and b.
func (r *Registry) HasPendingBetween(a, b string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pendingRequests[a] == b || r.pendingRequests[b] == a
}

// RemovePendingRequest drops sender's outstanding request.
func (r *Registry) RemovePendingRequest(sender string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pendingRequests, sender)
}

// ClearPendingBetween drops any outstanding request between a and b in
// either direction. Friend removal calls this so stale requests cannot
// resurface after an unfriend.
func (r *Registry) ClearPendingBetween(a, b string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pendingRequests[a] == b {
		delete(r.pendingRequests, a)
	}
	if r.pendingRequests[b] == a {
		delete(r.pendingRequests, b)
	}
}

// PendingSendersFor returns, sorted, every sender with an outstanding
// request addressed to username. The requests stay recorded until accepted.
func (r *Registry) PendingSendersFor(username string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var senders []string
	for sender, recipient := range r.pendingRequests {
		if recipient == username {
			senders = append(senders, sender)
		}
	}
	sort.Strings(senders)
	return senders
}

// ---- pending offline messages ----

// AddPendingMessage queues an encoded frame for delivery on username's next
// sign-in.
func (r *Registry) AddPendingMessage(frame, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingMessages[username] = append(r.pendingMessages[username], frame)
}

// TakePendingMessages removes and returns username's queued frames in FIFO
// order.
func (r *Registry) TakePendingMessages(username string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	frames := r.pendingMessages[username]
	delete(r.pendingMessages, username)
	return frames
}

// ---- pending chat keys ----

// AddPendingKey queues a chat key to be persisted when username next signs
// in (persisting needs their password to wrap the key).
func (r *Registry) AddPendingKey(key string, chatID int, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chats := r.pendingKeys[username]
	if chats == nil {
		chats = make(map[int][]string)
		r.pendingKeys[username] = chats
	}
	chats[chatID] = append(chats[chatID], key)
}

// TakePendingKeys removes and returns username's queued keys by chat id.
func (r *Registry) TakePendingKeys(username string) map[int][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := r.pendingKeys[username]
	delete(r.pendingKeys, username)
	return keys
}
