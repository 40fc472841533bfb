package protocol

import (
	"reflect"
	"testing"
)

func TestDecodeRegister(t *testing.T) {
	t.Parallel()

	m, err := Decode(General, "01@alice@hunter22")
	if err != nil {
		t.Fatalf("decode register frame: %v", err)
	}
	if m.Opname != "register" {
		t.Fatalf("opname = %q, want %q", m.Opname, "register")
	}
	if m.Opcode != 1 {
		t.Fatalf("opcode = %d, want 1", m.Opcode)
	}
	if got := m.String("username"); got != "alice" {
		t.Fatalf("username = %q, want %q", got, "alice")
	}
	if got := m.String("password"); got != "hunter22" {
		t.Fatalf("password = %q, want %q", got, "hunter22")
	}
	if m.Raw != "01@alice@hunter22" {
		t.Fatalf("raw = %q, want original frame", m.Raw)
	}
}

func TestDecodeUnpaddedOpcode(t *testing.T) {
	t.Parallel()

	m, err := Decode(General, "2@alice@hunter22")
	if err != nil {
		t.Fatalf("decode unpadded opcode: %v", err)
	}
	if m.Opname != "sign_in" {
		t.Fatalf("opname = %q, want %q", m.Opname, "sign_in")
	}
}

func TestDecodePerChannelTables(t *testing.T) {
	t.Parallel()

	// Opcode 1 means something different on every channel.
	tests := []struct {
		ch   Channel
		raw  string
		want string
	}{
		{General, "01@bob@pw123", "register"},
		{Chats, "01@7@bob@hello", "text_message"},
		{Files, "01@7@notes.txt@payload", "file_in_chat"},
	}
	for _, tt := range tests {
		m, err := Decode(tt.ch, tt.raw)
		if err != nil {
			t.Fatalf("decode on %s: %v", tt.ch, err)
		}
		if m.Opname != tt.want {
			t.Fatalf("on %s opname = %q, want %q", tt.ch, m.Opname, tt.want)
		}
	}
}

func TestDecodeUnknownOpcode(t *testing.T) {
	t.Parallel()

	if _, err := Decode(Chats, "09@x"); err == nil {
		t.Fatal("expected error for opcode 9 on chats channel")
	}
	if _, err := Decode(General, "99@x"); err == nil {
		t.Fatal("expected error for opcode 99 on general channel")
	}
}

func TestDecodeBadOpcodeText(t *testing.T) {
	t.Parallel()

	if _, err := Decode(General, "ab@x"); err == nil {
		t.Fatal("expected error for non-numeric opcode")
	}
	if _, err := Decode(General, ""); err == nil {
		t.Fatal("expected error for empty frame")
	}
}

func TestDecodeShortFrame(t *testing.T) {
	t.Parallel()

	// register wants two fields.
	if _, err := Decode(General, "01@alice"); err == nil {
		t.Fatal("expected error for frame shorter than schema")
	}
	// add_group_member wants three.
	if _, err := Decode(General, "15@4@bob"); err == nil {
		t.Fatal("expected error for frame shorter than schema")
	}
}

func TestDecodeExtraFieldsIgnored(t *testing.T) {
	t.Parallel()

	m, err := Decode(General, "03@bob@surplus@more")
	if err != nil {
		t.Fatalf("decode with extra fields: %v", err)
	}
	if got := m.String("friend_username"); got != "bob" {
		t.Fatalf("friend_username = %q, want %q", got, "bob")
	}
}

func TestNumericPromotion(t *testing.T) {
	t.Parallel()

	m, err := Decode(General, "02@12345@67890")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	// All-digit tokens decode as ints; String restores the text form.
	if got := m.Int("username"); got != 12345 {
		t.Fatalf("Int(username) = %d, want 12345", got)
	}
	if got := m.String("username"); got != "12345" {
		t.Fatalf("String(username) = %q, want %q", got, "12345")
	}
}

func TestNumericOverflowStaysString(t *testing.T) {
	t.Parallel()

	big := "99999999999999999999999999999999" // exceeds int64
	m, err := Decode(General, "01@"+big+"@pw123")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := m.String("username"); got != big {
		t.Fatalf("String(username) = %q, want the original digits", got)
	}
}

func TestListPromotion(t *testing.T) {
	t.Parallel()

	m, err := Decode(General, "05@1#2#3")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := m.Ints("chat_id"); !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Fatalf("Ints(chat_id) = %v, want [1 2 3]", got)
	}

	m, err = Decode(General, "03@bob#carol")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := m.Strings("friend_username"); !reflect.DeepEqual(got, []string{"bob", "carol"}) {
		t.Fatalf("Strings = %v, want [bob carol]", got)
	}
}

func TestMixedListStaysStrings(t *testing.T) {
	t.Parallel()

	// First element numeric but a later one is not: the list stays textual.
	m, err := Decode(General, "03@1#bob")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := m.Strings("friend_username"); !reflect.DeepEqual(got, []string{"1", "bob"}) {
		t.Fatalf("Strings = %v, want [1 bob]", got)
	}
}

func TestBoolParam(t *testing.T) {
	t.Parallel()

	m, err := Decode(General, "20@alice@1")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !m.Bool("is_accepted") {
		t.Fatal("is_accepted = false, want true")
	}

	m, err = Decode(General, "20@alice@0")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Bool("is_accepted") {
		t.Fatal("is_accepted = true, want false")
	}
}

// ---- encoders ----

func TestEncodersExactFrames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"approve", Approve(2), "01@1@2"},
		{"reject", Reject(15), "01@0@15"},
		{"friend_request", FriendRequestNotify("alice", false), "02@alice@0"},
		{"friend_request_silent", FriendRequestNotify("alice", true), "02@alice@1"},
		{"added_to_group", AddedToGroup("gophers", 7, "k3y"), "03@gophers@7@k3y"},
		{"voice_started", VoiceStarted(4), "04@4"},
		{"video_started", VideoStarted(4), "05@4"},
		{"voice_call_info", VoiceCallInfo(4, []string{"10.0.0.1", "10.0.0.2"}, []string{"bob", "carol"}), "06@4@10.0.0.1#10.0.0.2@bob#carol"},
		{"video_call_info", VideoCallInfo(4, []string{"10.0.0.1"}, []string{"bob"}), "07@4@10.0.0.1@bob"},
		{"voice_user_joined", VoiceUserJoined(4, "10.0.0.9", "alice"), "08@4@10.0.0.9@alice"},
		{"video_user_joined", VideoUserJoined(4, "10.0.0.9", "alice"), "09@4@10.0.0.9@alice"},
		{"chats_list", ChatsList([]string{"one", "two"}, []int{1, 2}), "10@one#two@1#2"},
		{"group_members", GroupNames(7, []string{"alice", "bob"}), "11@7@alice#bob"},
		{"user_status", UserStatus("alice", "I love strife!"), "12@alice@I love strife!"},
		{"friend_added", FriendAdded("bob", "k3y", 9), "13@bob@k3y@9"},
		{"keys", Keys([]string{"k1", "k2"}, []int{3, 4}), "14@k1#k2@3#4"},
		{"friend_list", FriendList([]string{"bob", "carol"}), "15@bob#carol"},
		{"friend_list_empty", FriendList(nil), "15@"},
		{"chat_history", ChatHistory([]string{"m2", "m1"}, 7), "03@m2#m1@7"},
		{"send_file", SendFile(7, "notes.txt", "cGF5bG9hZA=="), "01@7@notes.txt@cGF5bG9hZA=="},
		{"profile_picture", ProfilePicture("alice", "aW1n"), "02@alice@aW1n"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestEncodedOpcodesArePadded(t *testing.T) {
	t.Parallel()

	frames := []string{
		Approve(1), VoiceStarted(1), ChatHistory([]string{"m"}, 1), SendFile(1, "f", "p"),
	}
	for _, f := range frames {
		if len(f) < 2 || f[0] < '0' || f[0] > '9' || f[1] < '0' || f[1] > '9' {
			t.Errorf("frame %q does not start with a two-digit opcode", f)
		}
	}
}
