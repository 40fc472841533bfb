// Package blob stores the server's binary payloads — profile pictures and
// files shared in chats — as plain files under a single data directory.
//
// Layout:
//
//	<root>/pfps/<name>.png        profile pictures, always 300x300 PNG
//	<root>/chats/<chat_id>/<name> files shared in a chat
//
// The relational side (which picture belongs to whom, which files live in
// which chat) is tracked by the sqlite store; this package only moves bytes.
package blob

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNotFound is returned when no blob exists under the requested name.
var ErrNotFound = errors.New("blob not found")

// Store reads and writes blobs under a root directory.
type Store struct {
	rootDir string
}

// NewStore creates a blob store rooted at rootDir, creating the directory
// tree and seeding the stock placeholder pictures new accounts point at.
func NewStore(rootDir string) (*Store, error) {
	rootDir = strings.TrimSpace(rootDir)
	if rootDir == "" {
		return nil, fmt.Errorf("blob root directory is required")
	}
	s := &Store{rootDir: rootDir}
	for _, dir := range []string{s.pfpDir(), s.chatsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create blob directory: %w", err)
		}
	}
	if err := s.seedPlaceholders(); err != nil {
		return nil, fmt.Errorf("seed placeholder pictures: %w", err)
	}
	slog.Debug("blob store initialized", "dir", rootDir)
	return s, nil
}

func (s *Store) pfpDir() string   { return filepath.Join(s.rootDir, "pfps") }
func (s *Store) chatsDir() string { return filepath.Join(s.rootDir, "chats") }

// SavePfp normalizes an uploaded image to the canonical profile picture
// form and stores it as the user's picture. It returns the stored file
// name, which is what the sqlite store keeps in the user row.
func (s *Store) SavePfp(username string, data []byte) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", fmt.Errorf("username is required")
	}
	normalized, err := normalizePicture(data)
	if err != nil {
		return "", fmt.Errorf("normalize profile picture: %w", err)
	}

	name := "user-" + username + ".png"
	if err := s.writeAtomic(s.pfpDir(), filepath.Join(s.pfpDir(), name), normalized); err != nil {
		return "", fmt.Errorf("store profile picture: %w", err)
	}
	slog.Info("profile picture stored", "username", username, "size", len(normalized))
	return name, nil
}

// LoadPfp reads a stored profile picture by the file name recorded in the
// user row (placeholders included).
func (s *Store) LoadPfp(name string) ([]byte, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." {
		return nil, fmt.Errorf("picture name is required")
	}
	data, err := os.ReadFile(filepath.Join(s.pfpDir(), name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read profile picture: %w", err)
	}
	return data, nil
}

// CreateChat makes the chat's file directory ahead of the first upload.
func (s *Store) CreateChat(chatID int) error {
	dir := filepath.Join(s.chatsDir(), strconv.Itoa(chatID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create chat directory: %w", err)
	}
	return nil
}

// SaveChatFile stores a file shared in a chat. The name is reduced to its
// base so uploads cannot escape the chat's directory.
func (s *Store) SaveChatFile(chatID int, name string, data []byte) error {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." {
		return fmt.Errorf("file name is required")
	}
	dir := filepath.Join(s.chatsDir(), strconv.Itoa(chatID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create chat directory: %w", err)
	}
	if err := s.writeAtomic(dir, filepath.Join(dir, name), data); err != nil {
		return fmt.Errorf("store chat file: %w", err)
	}
	slog.Info("chat file stored", "chat_id", chatID, "name", name, "size", len(data))
	return nil
}

// LoadChatFile reads a file previously shared in a chat.
func (s *Store) LoadChatFile(chatID int, name string) ([]byte, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." {
		return nil, fmt.Errorf("file name is required")
	}
	data, err := os.ReadFile(filepath.Join(s.chatsDir(), strconv.Itoa(chatID), name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s in chat %d", ErrNotFound, name, chatID)
	}
	if err != nil {
		return nil, fmt.Errorf("read chat file: %w", err)
	}
	return data, nil
}

// writeAtomic writes data to path via a temp file in dir plus a rename, so
// readers never observe a half-written blob.
func (s *Store) writeAtomic(dir, path string, data []byte) error {
	tempFile, err := os.CreateTemp(dir, ".blob-write-*")
	if err != nil {
		return fmt.Errorf("create temp blob file: %w", err)
	}
	tempPath := tempFile.Name()

	_, writeErr := tempFile.Write(data)
	closeErr := tempFile.Close()
	if writeErr != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("write blob bytes: %w", writeErr)
	}
	if closeErr != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("close blob file: %w", closeErr)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("move blob into place: %w", err)
	}
	return nil
}
