package dispatch

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"

	"strife/server/internal/blob"
	"strife/server/internal/crypto"
	"strife/server/internal/metrics"
	"strife/server/internal/protocol"
	"strife/server/internal/store"
)

func (d *Dispatcher) handleGeneral(ctx context.Context, peer string, msg *protocol.Message) error {
	switch msg.Opname {
	case "register":
		return d.register(ctx, peer, msg)
	case "sign_in":
		return d.signIn(ctx, peer, msg)
	case "logout":
		return d.logout(peer, msg)
	case "add_friend":
		return d.addFriend(ctx, peer, msg)
	case "accept_friend":
		return d.acceptFriend(ctx, peer, msg)
	case "remove_friend":
		return d.removeFriend(ctx, peer, msg)
	case "request_friend_list":
		return d.requestFriendList(ctx, peer, msg)
	case "create_group":
		return d.createGroup(ctx, peer, msg)
	case "add_group_member":
		return d.addGroupMember(ctx, peer, msg)
	case "request_group_members":
		return d.requestGroupMembers(ctx, peer, msg)
	case "request_chats":
		return d.requestChats(ctx, peer, msg)
	case "get_chat_history":
		return d.getChatHistory(ctx, peer, msg)
	case "change_username":
		return d.changeUsername(ctx, peer, msg)
	case "change_status":
		return d.changeStatus(ctx, peer, msg)
	case "change_password":
		return d.changePassword(ctx, peer, msg)
	case "request_user_status":
		return d.requestUserStatus(ctx, peer, msg)
	case "request_user_picture":
		return d.requestUserPicture(ctx, peer, msg)
	case "request_user_picture_check":
		return d.requestUserPictureCheck(ctx, peer, msg)
	case "request_file":
		return d.requestFile(ctx, peer, msg)
	case "request_keys":
		return d.requestKeys(ctx, peer, msg)
	case "start_voice":
		return d.startCall(ctx, peer, msg, false)
	case "start_video":
		return d.startCall(ctx, peer, msg, true)
	case "join_voice":
		return d.joinCall(ctx, peer, msg, false)
	case "join_video":
		return d.joinCall(ctx, peer, msg, true)
	}
	return nil
}

// authedUser returns the peer's session username; without one the request
// is rejected on the sender the frame arrived on.
func (d *Dispatcher) authedUser(s Sender, peer string, clientOpcode int) (string, bool) {
	username, ok := d.sessions.Username(peer)
	if !ok {
		d.reject(s, peer, clientOpcode)
	}
	return username, ok
}

// validCredential reports whether a username or password is 3 to 20
// alphanumeric characters.
func validCredential(s string) bool {
	if len(s) < 3 || len(s) > 20 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// isStoreReject reports whether err is an expected store-level rejection
// rather than a backend fault.
func isStoreReject(err error) bool {
	return errors.Is(err, store.ErrUserExists) ||
		errors.Is(err, store.ErrUnknownUser) ||
		errors.Is(err, store.ErrUnknownGroup) ||
		errors.Is(err, store.ErrReservedName) ||
		errors.Is(err, store.ErrAlreadyFriends) ||
		errors.Is(err, store.ErrNotMember) ||
		errors.Is(err, store.ErrAlreadyMember) ||
		errors.Is(err, store.ErrPrivateChat) ||
		errors.Is(err, store.ErrFileNotFound)
}

func (d *Dispatcher) register(ctx context.Context, peer string, msg *protocol.Message) error {
	if _, ok := d.sessions.Username(peer); ok {
		d.reject(d.general, peer, msg.Opcode)
		return nil
	}
	username := msg.String("username")
	password := msg.String("password")
	if !validCredential(username) || !validCredential(password) {
		d.reject(d.general, peer, msg.Opcode)
		return nil
	}
	if err := d.store.AddUser(ctx, username, crypto.SHA256Hex([]byte(password))); err != nil {
		d.reject(d.general, peer, msg.Opcode)
		if isStoreReject(err) {
			return nil
		}
		return err
	}
	d.approve(d.general, peer, msg.Opcode)
	slog.Info("user registered", "username", username, "peer", peer)
	return nil
}

func (d *Dispatcher) signIn(ctx context.Context, peer string, msg *protocol.Message) error {
	if _, ok := d.sessions.Username(peer); ok {
		d.reject(d.general, peer, msg.Opcode)
		return nil
	}
	username := msg.String("username")
	password := msg.String("password")
	if d.sessions.Online(username) {
		d.reject(d.general, peer, msg.Opcode)
		return nil
	}
	ok, err := d.store.CheckCredentials(ctx, username, crypto.SHA256Hex([]byte(password)))
	if err != nil {
		d.reject(d.general, peer, msg.Opcode)
		return err
	}
	if !ok {
		d.reject(d.general, peer, msg.Opcode)
		return nil
	}
	if err := d.sessions.SignIn(peer, username, password); err != nil {
		d.reject(d.general, peer, msg.Opcode)
		return nil
	}
	metrics.SessionsOpen.Inc()
	d.approve(d.general, peer, msg.Opcode)
	slog.Info("user signed in", "username", username, "peer", peer)

	// Traffic that queued up while the user was offline, oldest first.
	for _, sender := range d.sessions.PendingSendersFor(username) {
		d.general.Send(protocol.FriendRequestNotify(sender, true), peer)
	}
	for _, frame := range d.sessions.TakePendingMessages(username) {
		d.general.Send(frame, peer)
	}
	for chatID, keys := range d.sessions.TakePendingKeys(username) {
		for _, key := range keys {
			if err := d.store.AddKey(ctx, username, chatID, key, password); err != nil {
				slog.Error("persist pending chat key", "username", username, "chat_id", chatID, "err", err)
			}
		}
	}

	status, err := d.store.GetUserStatus(ctx, username)
	if err != nil {
		return err
	}
	d.general.Send(protocol.UserStatus(username, status), peer)
	return nil
}

func (d *Dispatcher) logout(peer string, msg *protocol.Message) error {
	username, ok := d.sessions.Username(peer)
	if !ok {
		d.reject(d.general, peer, msg.Opcode)
		return nil
	}
	d.sessions.SignOut(peer)
	metrics.SessionsOpen.Dec()
	slog.Info("user signed out", "username", username, "peer", peer)
	return nil
}

func (d *Dispatcher) addFriend(ctx context.Context, peer string, msg *protocol.Message) error {
	self, ok := d.authedUser(d.general, peer, msg.Opcode)
	if !ok {
		return nil
	}
	friend := msg.String("friend_username")
	if friend == self {
		d.reject(d.general, peer, msg.Opcode)
		return nil
	}
	if d.sessions.HasPendingBetween(self, friend) {
		d.reject(d.general, peer, msg.Opcode)
		return nil
	}
	can, err := d.store.CanAddFriend(ctx, self, friend)
	if err != nil {
		d.reject(d.general, peer, msg.Opcode)
		return err
	}
	if !can {
		d.reject(d.general, peer, msg.Opcode)
		return nil
	}

	d.sessions.AddPendingRequest(self, friend)
	if friendPeer, online := d.sessions.PeerOf(friend); online {
		d.general.Send(protocol.FriendRequestNotify(self, false), friendPeer)
	}
	return nil
}

func (d *Dispatcher) acceptFriend(ctx context.Context, peer string, msg *protocol.Message) error {
	self, ok := d.authedUser(d.general, peer, msg.Opcode)
	if !ok {
		return nil
	}
	friend := msg.String("friend_username")
	recipient, pending := d.sessions.PendingRequestFrom(friend)
	if !pending || recipient != self {
		d.reject(d.general, peer, msg.Opcode)
		return nil
	}
	if !msg.Bool("is_accepted") {
		// Declining leaves the request in place.
		return nil
	}

	chatID, err := d.store.AddFriend(ctx, self, friend)
	if err != nil {
		d.reject(d.general, peer, msg.Opcode)
		if isStoreReject(err) {
			return nil
		}
		return err
	}
	if err := d.blob.CreateChat(chatID); err != nil {
		slog.Warn("create chat directory", "chat_id", chatID, "err", err)
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return err
	}

	d.general.Send(protocol.FriendAdded(friend, key, chatID), peer)
	if password, ok := d.sessions.Password(peer); ok {
		if err := d.store.AddKey(ctx, self, chatID, key, password); err != nil {
			slog.Error("store chat key", "username", self, "chat_id", chatID, "err", err)
		}
	}

	frame := protocol.FriendAdded(self, key, chatID)
	if friendPeer, online := d.sessions.PeerOf(friend); online {
		d.general.Send(frame, friendPeer)
		if fpassword, ok := d.sessions.Password(friendPeer); ok {
			if err := d.store.AddKey(ctx, friend, chatID, key, fpassword); err != nil {
				slog.Error("store chat key", "username", friend, "chat_id", chatID, "err", err)
			}
		}
	} else {
		d.sessions.AddPendingMessage(frame, friend)
		d.sessions.AddPendingKey(key, chatID, friend)
	}

	d.sessions.RemovePendingRequest(friend)
	slog.Info("friendship created", "acceptor", self, "originator", friend, "chat_id", chatID)
	return nil
}

func (d *Dispatcher) removeFriend(ctx context.Context, peer string, msg *protocol.Message) error {
	self, ok := d.authedUser(d.general, peer, msg.Opcode)
	if !ok {
		return nil
	}
	friend := msg.String("friend_username")
	if err := d.store.RemoveFriend(ctx, self, friend); err != nil {
		d.reject(d.general, peer, msg.Opcode)
		if isStoreReject(err) {
			return nil
		}
		return err
	}
	d.sessions.ClearPendingBetween(self, friend)
	return nil
}

func (d *Dispatcher) requestFriendList(ctx context.Context, peer string, msg *protocol.Message) error {
	self, ok := d.authedUser(d.general, peer, msg.Opcode)
	if !ok {
		return nil
	}
	friends, err := d.store.GetFriendsOf(ctx, self)
	if err != nil {
		if isStoreReject(err) {
			return nil
		}
		return err
	}
	d.general.Send(protocol.FriendList(friends), peer)
	return nil
}

func (d *Dispatcher) createGroup(ctx context.Context, peer string, msg *protocol.Message) error {
	self, ok := d.authedUser(d.general, peer, msg.Opcode)
	if !ok {
		return nil
	}
	name := msg.String("group_name")
	chatID, err := d.store.CreateGroup(ctx, name, self)
	if err != nil || chatID < 0 {
		d.reject(d.general, peer, msg.Opcode)
		if err != nil && !isStoreReject(err) {
			return err
		}
		return nil
	}
	if err := d.blob.CreateChat(chatID); err != nil {
		slog.Warn("create chat directory", "chat_id", chatID, "err", err)
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	if password, ok := d.sessions.Password(peer); ok {
		if err := d.store.AddKey(ctx, self, chatID, key, password); err != nil {
			slog.Error("store chat key", "username", self, "chat_id", chatID, "err", err)
		}
	}
	d.general.Send(protocol.AddedToGroup(name, chatID, key), peer)
	slog.Info("group created", "name", name, "chat_id", chatID, "creator", self)
	return nil
}

func (d *Dispatcher) addGroupMember(ctx context.Context, peer string, msg *protocol.Message) error {
	self, ok := d.authedUser(d.general, peer, msg.Opcode)
	if !ok {
		return nil
	}
	chatID := msg.Int("chat_id")
	member := msg.String("new_member_username")
	key := msg.String("group_key")

	if err := d.store.AddToGroup(ctx, chatID, self, member); err != nil {
		d.reject(d.general, peer, msg.Opcode)
		if isStoreReject(err) {
			return nil
		}
		return err
	}
	name, err := d.store.GetGroupName(ctx, chatID)
	if err != nil {
		return err
	}

	frame := protocol.AddedToGroup(name, chatID, key)
	if memberPeer, online := d.sessions.PeerOf(member); online {
		d.general.Send(frame, memberPeer)
		if mpassword, ok := d.sessions.Password(memberPeer); ok {
			if err := d.store.AddKey(ctx, member, chatID, key, mpassword); err != nil {
				slog.Error("store chat key", "username", member, "chat_id", chatID, "err", err)
			}
		}
	} else {
		d.sessions.AddPendingMessage(frame, member)
		d.sessions.AddPendingKey(key, chatID, member)
	}
	if password, ok := d.sessions.Password(peer); ok {
		if err := d.store.AddKey(ctx, self, chatID, key, password); err != nil {
			slog.Error("store chat key", "username", self, "chat_id", chatID, "err", err)
		}
	}

	members, err := d.store.GetGroupMembers(ctx, chatID)
	if err == nil {
		d.general.Send(protocol.GroupNames(chatID, members), d.onlinePeers(members)...)
	}
	d.approve(d.general, peer, msg.Opcode)
	return err
}

// onlinePeers maps usernames to the peers of those currently signed in.
func (d *Dispatcher) onlinePeers(usernames []string) []string {
	var peers []string
	for _, u := range usernames {
		if p, ok := d.sessions.PeerOf(u); ok {
			peers = append(peers, p)
		}
	}
	return peers
}

func (d *Dispatcher) requestGroupMembers(ctx context.Context, peer string, msg *protocol.Message) error {
	if _, ok := d.authedUser(d.general, peer, msg.Opcode); !ok {
		return nil
	}
	chatID := msg.Int("chat_id")
	members, err := d.store.GetGroupMembers(ctx, chatID)
	if err != nil {
		return err
	}
	d.general.Send(protocol.GroupNames(chatID, members), peer)
	return nil
}

func (d *Dispatcher) requestChats(ctx context.Context, peer string, msg *protocol.Message) error {
	self, ok := d.authedUser(d.general, peer, msg.Opcode)
	if !ok {
		return nil
	}
	chats, err := d.store.GetChatsOf(ctx, self)
	if err != nil {
		if isStoreReject(err) {
			return nil
		}
		return err
	}
	if len(chats) == 0 {
		return nil
	}
	names := make([]string, len(chats))
	ids := make([]int, len(chats))
	for i, c := range chats {
		names[i] = c.Name
		ids[i] = c.ID
	}
	d.general.Send(protocol.ChatsList(names, ids), peer)
	return nil
}

func (d *Dispatcher) getChatHistory(ctx context.Context, peer string, msg *protocol.Message) error {
	if _, ok := d.authedUser(d.general, peer, msg.Opcode); !ok {
		return nil
	}
	chatID := msg.Int("chat_id")
	history, err := d.store.GetChatHistory(ctx, chatID)
	if err != nil {
		if isStoreReject(err) {
			return nil
		}
		return err
	}
	if len(history) == 0 {
		return nil
	}
	// History rides the chats channel, where the client reads messages.
	d.chats.Send(protocol.ChatHistory(history, chatID), peer)
	return nil
}

func (d *Dispatcher) changeUsername(ctx context.Context, peer string, msg *protocol.Message) error {
	self, ok := d.authedUser(d.general, peer, msg.Opcode)
	if !ok {
		return nil
	}
	newName := msg.String("new_username")
	if !validCredential(newName) {
		d.reject(d.general, peer, msg.Opcode)
		return nil
	}
	if err := d.store.ChangeUsername(ctx, self, newName); err != nil {
		d.reject(d.general, peer, msg.Opcode)
		if isStoreReject(err) {
			return nil
		}
		return err
	}
	d.sessions.SetUsername(peer, newName)
	d.approve(d.general, peer, msg.Opcode)
	slog.Info("username changed", "old", self, "new", newName)
	return nil
}

func (d *Dispatcher) changeStatus(ctx context.Context, peer string, msg *protocol.Message) error {
	self, ok := d.authedUser(d.general, peer, msg.Opcode)
	if !ok {
		return nil
	}
	status := msg.String("new_status")
	if len(status) < 1 || len(status) > 19 {
		d.reject(d.general, peer, msg.Opcode)
		return nil
	}
	if err := d.store.UpdateUserStatus(ctx, self, status); err != nil {
		d.reject(d.general, peer, msg.Opcode)
		if isStoreReject(err) {
			return nil
		}
		return err
	}
	d.general.Send(protocol.UserStatus(self, status), peer)
	return nil
}

func (d *Dispatcher) changePassword(ctx context.Context, peer string, msg *protocol.Message) error {
	self, ok := d.authedUser(d.general, peer, msg.Opcode)
	if !ok {
		return nil
	}
	oldPassword := msg.String("old_password")
	newPassword := msg.String("new_password")

	match, err := d.store.CheckCredentials(ctx, self, crypto.SHA256Hex([]byte(oldPassword)))
	if err != nil {
		d.reject(d.general, peer, msg.Opcode)
		return err
	}
	if !match || !validCredential(newPassword) {
		d.reject(d.general, peer, msg.Opcode)
		return nil
	}
	// Chat keys wrapped under the old password are not rewrapped; the
	// client is expected to have fetched them before changing.
	if err := d.store.ChangePassword(ctx, self, crypto.SHA256Hex([]byte(newPassword))); err != nil {
		d.reject(d.general, peer, msg.Opcode)
		if isStoreReject(err) {
			return nil
		}
		return err
	}
	d.sessions.SetPassword(peer, newPassword)
	d.approve(d.general, peer, msg.Opcode)
	return nil
}

func (d *Dispatcher) requestUserStatus(ctx context.Context, peer string, msg *protocol.Message) error {
	if _, ok := d.authedUser(d.general, peer, msg.Opcode); !ok {
		return nil
	}
	username := msg.String("username")
	status, err := d.store.GetUserStatus(ctx, username)
	if err != nil {
		d.reject(d.general, peer, msg.Opcode)
		if isStoreReject(err) {
			return nil
		}
		return err
	}
	d.general.Send(protocol.UserStatus(username, status), peer)
	return nil
}

func (d *Dispatcher) requestUserPicture(ctx context.Context, peer string, msg *protocol.Message) error {
	if _, ok := d.authedUser(d.general, peer, msg.Opcode); !ok {
		return nil
	}
	return d.sendUserPicture(ctx, peer, msg.String("pfp_username"), "")
}

func (d *Dispatcher) requestUserPictureCheck(ctx context.Context, peer string, msg *protocol.Message) error {
	if _, ok := d.authedUser(d.general, peer, msg.Opcode); !ok {
		return nil
	}
	return d.sendUserPicture(ctx, peer, msg.String("username"), msg.String("pfp_hash"))
}

// sendUserPicture ships username's stored picture to peer over the files
// channel. With a non-empty skipHash, a picture whose digest already
// matches is not resent. A missing picture sends nothing.
func (d *Dispatcher) sendUserPicture(ctx context.Context, peer, username, skipHash string) error {
	path, err := d.store.GetUserPicturePath(ctx, username)
	if err != nil {
		if isStoreReject(err) {
			return nil
		}
		return err
	}
	if path == "" {
		return nil
	}
	data, err := d.blob.LoadPfp(path)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil
		}
		return err
	}
	if skipHash != "" && crypto.SHA256Hex(data) == skipHash {
		return nil
	}
	payload := base64.StdEncoding.EncodeToString(data)
	d.files.Send(protocol.ProfilePicture(username, payload), peer)
	return nil
}

func (d *Dispatcher) requestFile(ctx context.Context, peer string, msg *protocol.Message) error {
	self, ok := d.authedUser(d.general, peer, msg.Opcode)
	if !ok {
		return nil
	}
	fileHash := msg.String("file_hash")
	rec, err := d.store.GetFile(ctx, fileHash)
	if err != nil {
		d.reject(d.general, peer, msg.Opcode)
		if isStoreReject(err) {
			return nil
		}
		return err
	}
	member, err := d.store.IsInGroup(ctx, rec.ChatID, self)
	if err != nil {
		d.reject(d.general, peer, msg.Opcode)
		return err
	}
	if !member {
		d.reject(d.general, peer, msg.Opcode)
		return nil
	}

	data, err := d.blob.LoadChatFile(rec.ChatID, rec.Name)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			// The row outlived the blob; drop it so clients stop asking.
			if rmErr := d.store.RemoveFile(ctx, fileHash); rmErr != nil {
				slog.Error("remove orphaned file row", "file_hash", fileHash, "err", rmErr)
			}
			d.reject(d.general, peer, msg.Opcode)
			return nil
		}
		d.reject(d.general, peer, msg.Opcode)
		return err
	}
	d.files.Send(protocol.SendFile(rec.ChatID, rec.Name, string(data)), peer)
	return nil
}

func (d *Dispatcher) requestKeys(ctx context.Context, peer string, msg *protocol.Message) error {
	self, ok := d.authedUser(d.general, peer, msg.Opcode)
	if !ok {
		return nil
	}
	password, _ := d.sessions.Password(peer)
	keys, chatIDs, err := d.store.GetUserKeys(ctx, self, password)
	if err != nil {
		if isStoreReject(err) {
			return nil
		}
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	d.general.Send(protocol.Keys(keys, chatIDs), peer)
	return nil
}

func (d *Dispatcher) startCall(ctx context.Context, peer string, msg *protocol.Message, video bool) error {
	self, ok := d.authedUser(d.general, peer, msg.Opcode)
	if !ok {
		return nil
	}
	chatID := msg.Int("chat_id")
	members, err := d.store.GetGroupMembers(ctx, chatID)
	if err != nil {
		return err
	}
	frame := protocol.VoiceStarted(chatID)
	if video {
		frame = protocol.VideoStarted(chatID)
	}
	var peers []string
	for _, m := range members {
		if m == self {
			continue
		}
		if p, online := d.sessions.PeerOf(m); online {
			peers = append(peers, p)
		}
	}
	d.general.Send(frame, peers...)
	return nil
}

func (d *Dispatcher) joinCall(ctx context.Context, peer string, msg *protocol.Message, video bool) error {
	self, ok := d.authedUser(d.general, peer, msg.Opcode)
	if !ok {
		return nil
	}
	chatID := msg.Int("chat_id")
	members, err := d.store.GetGroupMembers(ctx, chatID)
	if err != nil {
		return err
	}

	var ips, names []string
	for _, m := range members {
		if m == self {
			continue
		}
		memberPeer, online := d.sessions.PeerOf(m)
		if !online {
			continue
		}
		joined := protocol.VoiceUserJoined(chatID, peer, self)
		if video {
			joined = protocol.VideoUserJoined(chatID, peer, self)
		}
		d.general.Send(joined, memberPeer)
		ips = append(ips, memberPeer)
		names = append(names, m)
	}
	if len(ips) == 0 {
		return nil
	}
	info := protocol.VoiceCallInfo(chatID, ips, names)
	if video {
		info = protocol.VideoCallInfo(chatID, ips, names)
	}
	d.general.Send(info, peer)
	return nil
}
