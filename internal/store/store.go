// Package store persists server state — accounts, groups, participants,
// friendships, message history, shared files, and wrapped chat keys — in an
// embedded SQLite database.
//
// Migration design: DDL statements live in the migrations slice as ordered
// strings. Each is applied exactly once; the applied version is tracked in
// the schema_migrations table. To change the schema, append a new statement —
// never edit or reorder existing entries.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	// maxMessagesPerChat caps stored history per chat; older rows are
	// pruned as new ones arrive.
	maxMessagesPerChat = 50

	// historyLimit is how many messages a history request returns,
	// newest first.
	historyLimit = 30
)

// defaultStatus is assigned to every new account.
const defaultStatus = "I love strife!"

// defaultPictures are the stock profile pictures new accounts draw from.
var defaultPictures = []string{
	"placeholder1.png", "placeholder2.png", "placeholder3.png",
	"placeholder4.png", "placeholder5.png",
}

var (
	// ErrUserExists is returned when the username is already registered.
	ErrUserExists = errors.New("username already registered")
	// ErrUnknownUser is returned when no account exists for the username.
	ErrUnknownUser = errors.New("unknown user")
	// ErrUnknownGroup is returned when no chat exists for the chat id.
	ErrUnknownGroup = errors.New("unknown group")
	// ErrReservedName is returned when a group name matches the
	// private-chat pattern.
	ErrReservedName = errors.New("group name is reserved")
	// ErrAlreadyFriends is returned when the two users are already friends.
	ErrAlreadyFriends = errors.New("already friends")
	// ErrNotMember is returned when the acting user is not in the group.
	ErrNotMember = errors.New("not a group member")
	// ErrAlreadyMember is returned when the target is already in the group.
	ErrAlreadyMember = errors.New("already a group member")
	// ErrPrivateChat is returned for membership changes on private chats.
	ErrPrivateChat = errors.New("chat is a private chat")
	// ErrFileNotFound is returned when no file row matches the hash.
	ErrFileNotFound = errors.New("file not found")
)

// migrations holds the ordered DDL that brings the schema up to date.
// Index i corresponds to version i+1.
var migrations = []string{
	// v1 — accounts
	`CREATE TABLE IF NOT EXISTS users (
		unique_id INTEGER PRIMARY KEY AUTOINCREMENT,
		username  TEXT NOT NULL UNIQUE,
		password  CHAR(64) NOT NULL,
		picture   TEXT NOT NULL DEFAULT '',
		status    TEXT NOT NULL DEFAULT ''
	)`,
	// v2 — chats, private ones included (the reserved name pattern marks them)
	`CREATE TABLE IF NOT EXISTS groups (
		chat_id    INTEGER PRIMARY KEY AUTOINCREMENT,
		group_name TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	// v3 — chat membership
	`CREATE TABLE IF NOT EXISTS participants (
		chat_id        INTEGER NOT NULL,
		participant_id INTEGER NOT NULL,
		PRIMARY KEY (chat_id, participant_id)
	)`,
	// v4 — friendships, one row per pair
	`CREATE TABLE IF NOT EXISTS friends (
		user_id   INTEGER NOT NULL,
		friend_id INTEGER NOT NULL,
		PRIMARY KEY (user_id, friend_id)
	)`,
	// v5 — message history
	`CREATE TABLE IF NOT EXISTS messages (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id   INTEGER NOT NULL,
		ts        INTEGER NOT NULL,
		sender_id INTEGER NOT NULL,
		message   TEXT NOT NULL
	)`,
	// v6 — files shared in chats
	`CREATE TABLE IF NOT EXISTS files (
		chat_id   INTEGER NOT NULL,
		file_name TEXT NOT NULL,
		file_hash TEXT NOT NULL
	)`,
	// v7 — chat keys wrapped under the owner's password
	`CREATE TABLE IF NOT EXISTS keys (
		user_id INTEGER NOT NULL,
		chat_id INTEGER NOT NULL,
		enc_key TEXT NOT NULL
	)`,
	// v8, v9 — indexes for the hot paths
	`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, id)`,
	`CREATE INDEX IF NOT EXISTS idx_files_hash ON files(file_hash)`,
}

// Chat is one entry of a user's chat list.
type Chat struct {
	ID   int
	Name string
}

// FileRecord locates a stored file by the chat it was shared in.
type FileRecord struct {
	Name   string
	ChatID int
}

// Store persists server state in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database and runs migrations.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	st := &Store{db: db}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("sqlite store opened", "path", path)
	return st, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		slog.Warn("enable WAL mode", "err", err)
	}
	if _, err := s.db.ExecContext(ctx, `PRAGMA busy_timeout=5000`); err != nil {
		slog.Warn("set busy timeout", "err", err)
	}

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		version := i + 1
		if version <= current {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("run migration %d: %w", version, err)
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO schema_migrations(version) VALUES(?)`, version,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", version, err)
		}
	}
	slog.Debug("sqlite migrations applied", "version", len(migrations))
	return nil
}

// userID resolves a username to its row id.
func (s *Store) userID(ctx context.Context, username string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT unique_id FROM users WHERE username = ?`, username,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownUser, username)
	}
	if err != nil {
		return 0, fmt.Errorf("look up user %s: %w", username, err)
	}
	return id, nil
}

// AddUser registers a new account. The password arrives already hashed.
// New accounts get the stock status line and a random placeholder picture.
func (s *Store) AddUser(ctx context.Context, username, hashedPassword string) error {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = ?`, username,
	).Scan(&n); err != nil {
		return fmt.Errorf("check username: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %s", ErrUserExists, username)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(username, password, picture, status) VALUES(?, ?, ?, ?)`,
		username, hashedPassword, defaultPictures[rand.Intn(len(defaultPictures))], defaultStatus,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	slog.Debug("user registered", "username", username)
	return nil
}

// CheckCredentials reports whether username and hashed password match a row.
func (s *Store) CheckCredentials(ctx context.Context, username, hashedPassword string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = ? AND password = ?`,
		username, hashedPassword,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check credentials: %w", err)
	}
	return n == 1, nil
}

// ChangePassword replaces the stored password hash. Chat keys wrapped under
// the old password are left as they are.
func (s *Store) ChangePassword(ctx context.Context, username, newHashedPassword string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password = ? WHERE username = ?`, newHashedPassword, username,
	)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	return requireRow(res, username)
}

// ChangeUsername renames an account. Fails when the new name is taken.
func (s *Store) ChangeUsername(ctx context.Context, oldUsername, newUsername string) error {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = ?`, newUsername,
	).Scan(&n); err != nil {
		return fmt.Errorf("check username: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %s", ErrUserExists, newUsername)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = ? WHERE username = ?`, newUsername, oldUsername,
	)
	if err != nil {
		return fmt.Errorf("change username: %w", err)
	}
	return requireRow(res, oldUsername)
}

// UpdateUserStatus replaces the user's status line.
func (s *Store) UpdateUserStatus(ctx context.Context, username, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET status = ? WHERE username = ?`, status, username,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return requireRow(res, username)
}

// GetUserStatus returns the user's status line.
func (s *Store) GetUserStatus(ctx context.Context, username string) (string, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM users WHERE username = ?`, username,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrUnknownUser, username)
	}
	if err != nil {
		return "", fmt.Errorf("get status: %w", err)
	}
	return status, nil
}

// GetUserPicturePath returns the stored profile picture path.
func (s *Store) GetUserPicturePath(ctx context.Context, username string) (string, error) {
	var path string
	err := s.db.QueryRowContext(ctx,
		`SELECT picture FROM users WHERE username = ?`, username,
	).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrUnknownUser, username)
	}
	if err != nil {
		return "", fmt.Errorf("get picture path: %w", err)
	}
	return path, nil
}

// UpdateUserPicture points the user's profile picture at a new blob path.
func (s *Store) UpdateUserPicture(ctx context.Context, username, path string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET picture = ? WHERE username = ?`, path, username,
	)
	if err != nil {
		return fmt.Errorf("update picture: %w", err)
	}
	return requireRow(res, username)
}

// requireRow converts a zero-row UPDATE into ErrUnknownUser.
func requireRow(res sql.Result, username string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownUser, username)
	}
	return nil
}

// CanAddFriend reports whether both users exist and are not yet friends.
func (s *Store) CanAddFriend(ctx context.Context, username, friend string) (bool, error) {
	uid, err := s.userID(ctx, username)
	if errors.Is(err, ErrUnknownUser) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	fid, err := s.userID(ctx, friend)
	if errors.Is(err, ErrUnknownUser) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	friends, err := s.areFriends(ctx, uid, fid)
	if err != nil {
		return false, err
	}
	return !friends, nil
}

func (s *Store) areFriends(ctx context.Context, a, b int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM friends
		  WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)`,
		a, b, b, a,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check friendship: %w", err)
	}
	return n > 0, nil
}

// AddFriend records the friendship and creates the pair's private chat
// (named PRIVATE%%<u1>%%<u2>) with both users as members. Returns the
// private chat's id.
func (s *Store) AddFriend(ctx context.Context, username, friend string) (int, error) {
	uid, err := s.userID(ctx, username)
	if err != nil {
		return -1, err
	}
	fid, err := s.userID(ctx, friend)
	if err != nil {
		return -1, err
	}
	friends, err := s.areFriends(ctx, uid, fid)
	if err != nil {
		return -1, err
	}
	if friends {
		return -1, fmt.Errorf("%w: %s and %s", ErrAlreadyFriends, username, friend)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return -1, fmt.Errorf("begin add friend: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO friends(user_id, friend_id) VALUES(?, ?)`, uid, fid,
	); err != nil {
		return -1, fmt.Errorf("insert friendship: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO groups(group_name, created_at) VALUES(?, ?)`,
		fmt.Sprintf("PRIVATE%%%%%s%%%%%s", username, friend), time.Now().Unix(),
	)
	if err != nil {
		return -1, fmt.Errorf("insert private chat: %w", err)
	}
	chatID, err := res.LastInsertId()
	if err != nil {
		return -1, fmt.Errorf("private chat id: %w", err)
	}
	for _, id := range []int64{uid, fid} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO participants(chat_id, participant_id) VALUES(?, ?)`, chatID, id,
		); err != nil {
			return -1, fmt.Errorf("insert participant: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return -1, fmt.Errorf("commit add friend: %w", err)
	}
	slog.Debug("friendship created", "username", username, "friend", friend, "chat_id", chatID)
	return int(chatID), nil
}

// RemoveFriend deletes the friendship in whichever orientation it was
// stored. The pair's private chat stays behind with its history.
func (s *Store) RemoveFriend(ctx context.Context, username, friend string) error {
	uid, err := s.userID(ctx, username)
	if err != nil {
		return err
	}
	fid, err := s.userID(ctx, friend)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM friends
		  WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)`,
		uid, fid, fid, uid,
	)
	if err != nil {
		return fmt.Errorf("remove friendship: %w", err)
	}
	return nil
}

// GetFriendsOf returns the user's friends, sorted by name.
func (s *Store) GetFriendsOf(ctx context.Context, username string) ([]string, error) {
	uid, err := s.userID(ctx, username)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.username FROM friends f JOIN users u ON u.unique_id = f.friend_id
		  WHERE f.user_id = ?
		 UNION
		 SELECT u.username FROM friends f JOIN users u ON u.unique_id = f.user_id
		  WHERE f.friend_id = ?
		 ORDER BY 1`,
		uid, uid,
	)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// reservedName reports whether a group name matches the private-chat
// pattern PRIVATE%%<u1>%%<u2>.
func reservedName(name string) bool {
	return strings.HasPrefix(name, "PRIVATE") && len(strings.Split(name, "%%")) == 3
}

// CreateGroup creates a group with creator as its first member and returns
// the chat id. Names matching the private-chat pattern yield -1.
func (s *Store) CreateGroup(ctx context.Context, name, creator string) (int, error) {
	if reservedName(name) {
		return -1, fmt.Errorf("%w: %s", ErrReservedName, name)
	}
	uid, err := s.userID(ctx, creator)
	if err != nil {
		return -1, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return -1, fmt.Errorf("begin create group: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO groups(group_name, created_at) VALUES(?, ?)`, name, time.Now().Unix(),
	)
	if err != nil {
		return -1, fmt.Errorf("insert group: %w", err)
	}
	chatID, err := res.LastInsertId()
	if err != nil {
		return -1, fmt.Errorf("group id: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO participants(chat_id, participant_id) VALUES(?, ?)`, chatID, uid,
	); err != nil {
		return -1, fmt.Errorf("insert creator: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return -1, fmt.Errorf("commit create group: %w", err)
	}
	slog.Debug("group created", "name", name, "chat_id", chatID, "creator", creator)
	return int(chatID), nil
}

// GetGroupName returns a chat's name, private chats included.
func (s *Store) GetGroupName(ctx context.Context, chatID int) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT group_name FROM groups WHERE chat_id = ?`, chatID,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %d", ErrUnknownGroup, chatID)
	}
	if err != nil {
		return "", fmt.Errorf("get group name: %w", err)
	}
	return name, nil
}

// AddToGroup adds username to a group on adder's behalf. The adder must be
// a member, the target must exist and not already belong, and private
// chats never grow.
func (s *Store) AddToGroup(ctx context.Context, chatID int, adder, username string) error {
	uid, err := s.userID(ctx, username)
	if err != nil {
		return err
	}
	name, err := s.GetGroupName(ctx, chatID)
	if err != nil {
		return err
	}
	if reservedName(name) {
		return fmt.Errorf("%w: %d", ErrPrivateChat, chatID)
	}
	adderIn, err := s.IsInGroup(ctx, chatID, adder)
	if err != nil {
		return err
	}
	if !adderIn {
		return fmt.Errorf("%w: %s in chat %d", ErrNotMember, adder, chatID)
	}
	targetIn, err := s.IsInGroup(ctx, chatID, username)
	if err != nil {
		return err
	}
	if targetIn {
		return fmt.Errorf("%w: %s in chat %d", ErrAlreadyMember, username, chatID)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO participants(chat_id, participant_id) VALUES(?, ?)`, chatID, uid,
	); err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	slog.Debug("group member added", "chat_id", chatID, "username", username, "added_by", adder)
	return nil
}

// IsInGroup reports whether username belongs to the chat. Unknown users
// are simply not members.
func (s *Store) IsInGroup(ctx context.Context, chatID int, username string) (bool, error) {
	uid, err := s.userID(ctx, username)
	if errors.Is(err, ErrUnknownUser) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var n int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM participants WHERE chat_id = ? AND participant_id = ?`,
		chatID, uid,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return n > 0, nil
}

// GetGroupMembers returns the chat's member usernames in join order.
func (s *Store) GetGroupMembers(ctx context.Context, chatID int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.username FROM participants p
		   JOIN users u ON u.unique_id = p.participant_id
		  WHERE p.chat_id = ?
		  ORDER BY p.rowid`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// GetChatsOf returns every chat the user belongs to, private chats
// included, ordered by chat id.
func (s *Store) GetChatsOf(ctx context.Context, username string) ([]Chat, error) {
	uid, err := s.userID(ctx, username)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.chat_id, g.group_name FROM participants p
		   JOIN groups g ON g.chat_id = p.chat_id
		  WHERE p.participant_id = ?
		  ORDER BY g.chat_id`,
		uid,
	)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// AddMessage appends a message to a chat's history and prunes rows beyond
// the per-chat cap, oldest first.
func (s *Store) AddMessage(ctx context.Context, chatID int, senderUsername, message string) error {
	if _, err := s.GetGroupName(ctx, chatID); err != nil {
		return err
	}
	uid, err := s.userID(ctx, senderUsername)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(chat_id, ts, sender_id, message) VALUES(?, ?, ?, ?)`,
		chatID, time.Now().Unix(), uid, message,
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE chat_id = ? AND id NOT IN (
			SELECT id FROM messages WHERE chat_id = ? ORDER BY id DESC LIMIT ?
		)`,
		chatID, chatID, maxMessagesPerChat,
	); err != nil {
		return fmt.Errorf("prune messages: %w", err)
	}
	return nil
}

// GetChatHistory returns the newest stored messages of a chat, newest
// first.
func (s *Store) GetChatHistory(ctx context.Context, chatID int) ([]string, error) {
	if _, err := s.GetGroupName(ctx, chatID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT message FROM messages WHERE chat_id = ?
		  ORDER BY ts DESC, id DESC LIMIT ?`,
		chatID, historyLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// AddFile records a file shared in a chat.
func (s *Store) AddFile(ctx context.Context, chatID int, fileName, fileHash string) error {
	if _, err := s.GetGroupName(ctx, chatID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO files(chat_id, file_name, file_hash) VALUES(?, ?, ?)`,
		chatID, fileName, fileHash,
	); err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// GetFile locates a shared file by its content hash.
func (s *Store) GetFile(ctx context.Context, fileHash string) (FileRecord, error) {
	var rec FileRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT file_name, chat_id FROM files WHERE file_hash = ?`, fileHash,
	).Scan(&rec.Name, &rec.ChatID)
	if errors.Is(err, sql.ErrNoRows) {
		return FileRecord{}, fmt.Errorf("%w: %s", ErrFileNotFound, fileHash)
	}
	if err != nil {
		return FileRecord{}, fmt.Errorf("get file: %w", err)
	}
	return rec, nil
}

// RemoveFile drops the file rows for a hash; used when the blob has gone
// missing on disk.
func (s *Store) RemoveFile(ctx context.Context, fileHash string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM files WHERE file_hash = ?`, fileHash,
	); err != nil {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
