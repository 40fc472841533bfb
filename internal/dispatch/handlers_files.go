package dispatch

import (
	"context"
	"encoding/base64"
	"log/slog"

	"strife/server/internal/crypto"
	"strife/server/internal/protocol"
)

func (d *Dispatcher) handleFiles(ctx context.Context, peer string, msg *protocol.Message) error {
	switch msg.Opname {
	case "file_in_chat":
		return d.storeChatFile(ctx, peer, msg)
	case "profile_pic_change":
		return d.changeProfilePicture(ctx, peer, msg)
	}
	return nil
}

func (d *Dispatcher) storeChatFile(ctx context.Context, peer string, msg *protocol.Message) error {
	self, ok := d.authedUser(d.files, peer, msg.Opcode)
	if !ok {
		return nil
	}
	chatID := msg.Int("chat_id")
	name := msg.String("file_name")
	payload := msg.String("file")

	// The payload is ciphertext from the client; its digest is the handle
	// peers later request the file by.
	hash := crypto.SHA256Hex([]byte(payload))
	if err := d.blob.SaveChatFile(chatID, name, []byte(payload)); err != nil {
		d.reject(d.files, peer, msg.Opcode)
		return err
	}
	if err := d.store.AddFile(ctx, chatID, name, hash); err != nil {
		d.reject(d.files, peer, msg.Opcode)
		return err
	}
	slog.Debug("chat file stored", "chat_id", chatID, "name", name, "sender", self, "bytes", len(payload))
	return nil
}

func (d *Dispatcher) changeProfilePicture(ctx context.Context, peer string, msg *protocol.Message) error {
	self, ok := d.authedUser(d.files, peer, msg.Opcode)
	if !ok {
		return nil
	}
	encoded := msg.String("picture")
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		d.reject(d.files, peer, msg.Opcode)
		return nil
	}
	name, err := d.blob.SavePfp(self, data)
	if err != nil {
		d.reject(d.files, peer, msg.Opcode)
		return nil
	}
	if err := d.store.UpdateUserPicture(ctx, self, name); err != nil {
		d.reject(d.files, peer, msg.Opcode)
		if isStoreReject(err) {
			return nil
		}
		return err
	}
	// Echo the picture as stored, not as uploaded: saving rescales it, and
	// the client's cached hash must match the stored bytes for later
	// picture checks to hold.
	saved, err := d.blob.LoadPfp(name)
	if err != nil {
		return err
	}
	d.files.Send(protocol.ProfilePicture(self, base64.StdEncoding.EncodeToString(saved)), peer)
	return nil
}
