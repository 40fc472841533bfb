package dispatch

import (
	"context"
	"encoding/base64"
	"log/slog"

	"strife/server/internal/protocol"
)

// handleChats relays chat traffic. Message bodies are encrypted with the
// chat key before they reach us, so the server persists and fans out the
// frame verbatim; it never inspects the plaintext.
func (d *Dispatcher) handleChats(ctx context.Context, peer string, msg *protocol.Message) error {
	switch msg.Opname {
	case "text_message", "file_description":
		return d.relayChatMessage(ctx, peer, msg)
	}
	return nil
}

func (d *Dispatcher) relayChatMessage(ctx context.Context, peer string, msg *protocol.Message) error {
	self, ok := d.authedUser(d.chats, peer, msg.Opcode)
	if !ok {
		return nil
	}
	chatID := msg.Int("chat_id")

	stored := base64.StdEncoding.EncodeToString([]byte(msg.Raw))
	if err := d.store.AddMessage(ctx, chatID, self, stored); err != nil {
		// Not persisted means not delivered; senders notice via history.
		slog.Warn("persist chat message", "chat_id", chatID, "sender", self, "err", err)
		return err
	}

	members, err := d.store.GetGroupMembers(ctx, chatID)
	if err != nil {
		return err
	}
	// The sender gets its own copy back as the delivery acknowledgement.
	d.chats.Send(msg.Raw, d.onlinePeers(members)...)
	return nil
}
