package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"strife/server/internal/crypto"
)

// AddKey stores a chat key for a user, wrapped under a key derived from the
// user's plaintext password. Only the owner, presenting that password, can
// read it back.
func (s *Store) AddKey(ctx context.Context, username string, chatID int, key, password string) error {
	uid, err := s.userID(ctx, username)
	if err != nil {
		return err
	}
	wrapped, err := crypto.Encrypt(key, crypto.DeriveKey(password, username))
	if err != nil {
		return fmt.Errorf("wrap chat key: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO keys(user_id, chat_id, enc_key) VALUES(?, ?, ?)`,
		uid, chatID, wrapped,
	); err != nil {
		return fmt.Errorf("insert chat key: %w", err)
	}
	slog.Debug("chat key stored", "username", username, "chat_id", chatID)
	return nil
}

// GetUserKeys unwraps every stored chat key for the user with the given
// plaintext password and returns the keys alongside their chat ids. Keys
// that no longer unwrap (wrapped under an old password) are skipped.
func (s *Store) GetUserKeys(ctx context.Context, username, password string) ([]string, []int, error) {
	uid, err := s.userID(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, enc_key FROM keys WHERE user_id = ? ORDER BY rowid`, uid,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("query chat keys: %w", err)
	}
	defer rows.Close()

	derived := crypto.DeriveKey(password, username)
	var (
		keys    []string
		chatIDs []int
	)
	for rows.Next() {
		var (
			chatID  int
			wrapped string
		)
		if err := rows.Scan(&chatID, &wrapped); err != nil {
			return nil, nil, fmt.Errorf("scan chat key: %w", err)
		}
		key, err := crypto.Decrypt(wrapped, derived)
		if err != nil {
			if errors.Is(err, crypto.ErrDecrypt) {
				slog.Warn("chat key does not unwrap, skipping", "username", username, "chat_id", chatID)
				continue
			}
			return nil, nil, fmt.Errorf("unwrap chat key: %w", err)
		}
		keys = append(keys, key)
		chatIDs = append(chatIDs, chatID)
	}
	return keys, chatIDs, rows.Err()
}
