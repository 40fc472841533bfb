// Package protocol implements the textual Strife wire protocol: a two-digit
// zero-padded opcode followed by '@'-separated fields, where a field may
// itself be a '#'-separated list. Opcode tables and per-opcode parameter
// schemas are fixed at compile time; Decode never consults anything but the
// channel the frame arrived on.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Channel identifies one of the three framed TCP streams a client keeps open.
type Channel int

const (
	General Channel = iota
	Chats
	Files
)

func (c Channel) String() string {
	switch c {
	case General:
		return "general"
	case Chats:
		return "chats"
	case Files:
		return "files"
	}
	return fmt.Sprintf("channel(%d)", int(c))
}

const (
	fieldSep = "@"
	listSep  = "#"
)

// Server→client opcodes, per channel.
const (
	opApproveReject    = 1
	opFriendRequest    = 2
	opAddedToGroup     = 3
	opVoiceCallStarted = 4
	opVideoCallStarted = 5
	opVoiceCallInfo    = 6
	opVideoCallInfo    = 7
	opVoiceUserJoined  = 8
	opVideoUserJoined  = 9
	opChatsList        = 10
	opGroupMembers     = 11
	opUserStatus       = 12
	opFriendAdded      = 13
	opKeys             = 14
	opFriendList       = 15

	opChatTextMessage     = 1
	opChatFileDescription = 2
	opChatHistory         = 3

	opFileInChat         = 1
	opUserProfilePicture = 2
)

// clientOpcodes maps a channel's inbound opcode to its opname.
var clientOpcodes = map[Channel]map[int]string{
	General: {
		1:  "register",
		2:  "sign_in",
		3:  "add_friend",
		4:  "create_group",
		5:  "start_voice",
		6:  "start_video",
		7:  "change_username",
		8:  "change_status",
		9:  "change_password",
		10: "get_chat_history",
		11: "request_file",
		12: "remove_friend",
		13: "join_voice",
		14: "join_video",
		15: "add_group_member",
		16: "request_group_members",
		17: "request_user_picture",
		18: "request_user_status",
		19: "request_chats",
		20: "accept_friend",
		21: "request_friend_list",
		22: "logout",
		23: "request_keys",
		24: "request_user_picture_check",
	},
	Chats: {
		1: "text_message",
		2: "file_description",
	},
	Files: {
		1: "file_in_chat",
		2: "profile_pic_change",
	},
}

// paramNames lists each opname's fields in wire order. A frame carrying fewer
// fields than its schema is malformed; extra trailing fields are ignored.
var paramNames = map[string][]string{
	"register":                   {"username", "password"},
	"sign_in":                    {"username", "password"},
	"add_friend":                 {"friend_username"},
	"create_group":               {"group_name"},
	"start_voice":                {"chat_id"},
	"start_video":                {"chat_id"},
	"change_username":            {"new_username"},
	"change_status":              {"new_status"},
	"change_password":            {"old_password", "new_password"},
	"get_chat_history":           {"chat_id"},
	"request_file":               {"file_hash"},
	"remove_friend":              {"friend_username"},
	"join_voice":                 {"chat_id"},
	"join_video":                 {"chat_id"},
	"add_group_member":           {"chat_id", "new_member_username", "group_key"},
	"request_group_members":      {"chat_id"},
	"request_user_picture":       {"pfp_username"},
	"request_user_status":        {"username"},
	"request_chats":              {},
	"accept_friend":              {"friend_username", "is_accepted"},
	"request_friend_list":        {},
	"logout":                     {},
	"request_keys":               {},
	"request_user_picture_check": {"username", "pfp_hash"},
	"text_message":               {"chat_id", "sender_username", "message"},
	"file_description":           {"chat_id", "sender", "file_name", "file_size", "file_hash"},
	"file_in_chat":               {"chat_id", "file_name", "file"},
	"profile_pic_change":         {"picture"},
}

// Message is one decoded client frame. Raw preserves the exact frame text so
// handlers that re-broadcast (text messages) can forward the original bytes.
type Message struct {
	Opname string
	Opcode int
	Raw    string

	params map[string]any
}

// Decode parses a raw frame received on ch. It returns an error for an
// unparsable or unknown opcode and for a frame shorter than its schema; the
// dispatcher drops such frames.
func Decode(ch Channel, raw string) (*Message, error) {
	fields := strings.Split(raw, fieldSep)
	opcode, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("parse opcode %q: %w", fields[0], err)
	}
	opname, ok := clientOpcodes[ch][opcode]
	if !ok {
		return nil, fmt.Errorf("unknown opcode %d on %s channel", opcode, ch)
	}
	names := paramNames[opname]
	if len(fields)-1 < len(names) {
		return nil, fmt.Errorf("%s: got %d fields, want %d", opname, len(fields)-1, len(names))
	}

	m := &Message{
		Opname: opname,
		Opcode: opcode,
		Raw:    raw,
		params: make(map[string]any, len(names)),
	}
	for i, name := range names {
		m.params[name] = parseToken(fields[i+1])
	}
	return m, nil
}

// parseToken promotes digit-only tokens to int, and '#'-joined tokens to
// []int or []string depending on the first element. Tokens whose digits
// overflow int stay strings; handlers coerce as needed.
func parseToken(tok string) any {
	if parts := strings.Split(tok, listSep); len(parts) > 1 {
		if !isDigits(parts[0]) {
			return parts
		}
		ints := make([]int, len(parts))
		for i, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil {
				return parts
			}
			ints[i] = n
		}
		return ints
	}
	if isDigits(tok) {
		if n, err := strconv.Atoi(tok); err == nil {
			return n
		}
	}
	return tok
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// String returns the named parameter coerced to its string form. All-digit
// usernames and keys decode as ints; this restores the text the client sent.
func (m *Message) String(name string) string {
	switch v := m.params[name].(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

// Int returns the named parameter as an int, or 0 when it is absent or not
// numeric.
func (m *Message) Int(name string) int {
	switch v := m.params[name].(type) {
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

// Bool reports whether the named parameter is a non-zero numeric token.
func (m *Message) Bool(name string) bool {
	return m.Int(name) != 0
}

// Strings returns the named parameter as a string list. Single values become
// one-element lists; int lists are coerced element-wise.
func (m *Message) Strings(name string) []string {
	switch v := m.params[name].(type) {
	case []string:
		return v
	case []int:
		out := make([]string, len(v))
		for i, n := range v {
			out[i] = strconv.Itoa(n)
		}
		return out
	case string:
		return []string{v}
	case int:
		return []string{strconv.Itoa(v)}
	}
	return nil
}

// Ints returns the named parameter as an int list, dropping non-numeric
// elements.
func (m *Message) Ints(name string) []int {
	switch v := m.params[name].(type) {
	case []int:
		return v
	case []string:
		out := make([]int, 0, len(v))
		for _, s := range v {
			if n, err := strconv.Atoi(s); err == nil {
				out = append(out, n)
			}
		}
		return out
	case int:
		return []int{v}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return []int{n}
		}
	}
	return nil
}

// ---- server→client encoders ----

// enc assembles an opcode and its fields into frame text. Every channel uses
// the two-digit zero-padded opcode form.
func enc(opcode int, fields ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%02d", opcode)
	for _, f := range fields {
		b.WriteString(fieldSep)
		b.WriteString(f)
	}
	return b.String()
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, listSep)
}

// Approve acknowledges the client operation identified by target.
func Approve(target int) string {
	return enc(opApproveReject, "1", strconv.Itoa(target))
}

// Reject refuses the client operation identified by target.
func Reject(target int) string {
	return enc(opApproveReject, "0", strconv.Itoa(target))
}

// FriendRequestNotify tells a client that sender wants to befriend them.
// Silent requests are delivered on sign-in without a client-side alert.
func FriendRequestNotify(sender string, silent bool) string {
	s := "0"
	if silent {
		s = "1"
	}
	return enc(opFriendRequest, sender, s)
}

// AddedToGroup tells a client it now belongs to the named group, carrying the
// group's symmetric key.
func AddedToGroup(groupName string, chatID int, key string) string {
	return enc(opAddedToGroup, groupName, strconv.Itoa(chatID), key)
}

// VoiceStarted announces a voice call in a chat.
func VoiceStarted(chatID int) string {
	return enc(opVoiceCallStarted, strconv.Itoa(chatID))
}

// VideoStarted announces a video call in a chat.
func VideoStarted(chatID int) string {
	return enc(opVideoCallStarted, strconv.Itoa(chatID))
}

// VoiceCallInfo carries the addresses and names of the members already in a
// voice call, in matching order.
func VoiceCallInfo(chatID int, ips, usernames []string) string {
	return enc(opVoiceCallInfo, strconv.Itoa(chatID),
		strings.Join(ips, listSep), strings.Join(usernames, listSep))
}

// VideoCallInfo is VoiceCallInfo for video calls.
func VideoCallInfo(chatID int, ips, usernames []string) string {
	return enc(opVideoCallInfo, strconv.Itoa(chatID),
		strings.Join(ips, listSep), strings.Join(usernames, listSep))
}

// VoiceUserJoined tells call members that username (at ip) joined the call.
func VoiceUserJoined(chatID int, ip, username string) string {
	return enc(opVoiceUserJoined, strconv.Itoa(chatID), ip, username)
}

// VideoUserJoined is VoiceUserJoined for video calls.
func VideoUserJoined(chatID int, ip, username string) string {
	return enc(opVideoUserJoined, strconv.Itoa(chatID), ip, username)
}

// ChatsList carries the caller's chats as parallel name and id lists.
func ChatsList(names []string, ids []int) string {
	return enc(opChatsList, strings.Join(names, listSep), joinInts(ids))
}

// GroupNames carries a group's current member usernames.
func GroupNames(chatID int, usernames []string) string {
	return enc(opGroupMembers, strconv.Itoa(chatID), strings.Join(usernames, listSep))
}

// UserStatus carries a user's current status line.
func UserStatus(username, status string) string {
	return enc(opUserStatus, username, status)
}

// FriendAdded tells a client that a friendship now exists, carrying the
// private chat's key and id.
func FriendAdded(friendUsername, key string, chatID int) string {
	return enc(opFriendAdded, friendUsername, key, strconv.Itoa(chatID))
}

// Keys carries a user's wrapped chat keys and the matching chat ids.
func Keys(keys []string, chatIDs []int) string {
	return enc(opKeys, strings.Join(keys, listSep), joinInts(chatIDs))
}

// FriendList carries the caller's friends.
func FriendList(usernames []string) string {
	return enc(opFriendList, strings.Join(usernames, listSep))
}

// ChatHistory carries up to the newest stored messages of one chat, newest
// first, on the chats channel.
func ChatHistory(messages []string, chatID int) string {
	return enc(opChatHistory, strings.Join(messages, listSep), strconv.Itoa(chatID))
}

// SendFile carries a requested file's payload on the files channel.
func SendFile(chatID int, fileName, payload string) string {
	return enc(opFileInChat, strconv.Itoa(chatID), fileName, payload)
}

// ProfilePicture carries a user's profile picture, base64-encoded, on the
// files channel.
func ProfilePicture(username, payload string) string {
	return enc(opUserProfilePicture, username, payload)
}
