package dispatch

import (
	"context"

	"strife/server/internal/store"
)

// Store is the relational backend the handlers drive. *store.Store
// satisfies it.
type Store interface {
	AddUser(ctx context.Context, username, hashedPassword string) error
	CheckCredentials(ctx context.Context, username, hashedPassword string) (bool, error)
	ChangePassword(ctx context.Context, username, newHashedPassword string) error
	ChangeUsername(ctx context.Context, oldUsername, newUsername string) error
	UpdateUserStatus(ctx context.Context, username, status string) error
	GetUserStatus(ctx context.Context, username string) (string, error)
	GetUserPicturePath(ctx context.Context, username string) (string, error)
	UpdateUserPicture(ctx context.Context, username, path string) error

	CanAddFriend(ctx context.Context, username, friend string) (bool, error)
	AddFriend(ctx context.Context, username, friend string) (int, error)
	RemoveFriend(ctx context.Context, username, friend string) error
	GetFriendsOf(ctx context.Context, username string) ([]string, error)

	CreateGroup(ctx context.Context, name, creator string) (int, error)
	GetGroupName(ctx context.Context, chatID int) (string, error)
	AddToGroup(ctx context.Context, chatID int, adder, username string) error
	IsInGroup(ctx context.Context, chatID int, username string) (bool, error)
	GetGroupMembers(ctx context.Context, chatID int) ([]string, error)
	GetChatsOf(ctx context.Context, username string) ([]store.Chat, error)

	AddMessage(ctx context.Context, chatID int, senderUsername, message string) error
	GetChatHistory(ctx context.Context, chatID int) ([]string, error)

	AddFile(ctx context.Context, chatID int, fileName, fileHash string) error
	GetFile(ctx context.Context, fileHash string) (store.FileRecord, error)
	RemoveFile(ctx context.Context, fileHash string) error

	AddKey(ctx context.Context, username string, chatID int, key, password string) error
	GetUserKeys(ctx context.Context, username, password string) ([]string, []int, error)
}

// Blob stores binary payloads: profile pictures and files shared in chats.
// *blob.Store satisfies it.
type Blob interface {
	CreateChat(chatID int) error
	SavePfp(username string, data []byte) (string, error)
	LoadPfp(name string) ([]byte, error)
	SaveChatFile(chatID int, name string, data []byte) error
	LoadChatFile(chatID int, name string) ([]byte, error)
}

// Sender writes a frame to one or more peers on a single channel.
// *transport.Listener satisfies it; tests substitute a recorder.
type Sender interface {
	Send(payload string, peers ...string)
}
