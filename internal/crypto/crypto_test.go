package crypto

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateKeyForm(t *testing.T) {
	t.Parallel()

	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if len(key) != 64 {
		t.Fatalf("key length = %d, want 64 hex chars", len(key))
	}
	if strings.ToLower(key) != key {
		t.Fatalf("key %q is not lowercase hex", key)
	}

	other, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if key == other {
		t.Fatal("two generated keys are identical")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	cases := []string{
		"",
		"01@alice@hunter22",
		"exactly sixteen!",                   // one block before padding
		strings.Repeat("payload@#", 500),     // multi-block
		"\x00\x01\x02 binary-ish \xff bytes", // arbitrary bytes survive
	}
	for _, plaintext := range cases {
		enc, err := Encrypt(plaintext, key)
		if err != nil {
			t.Fatalf("encrypt %q: %v", plaintext, err)
		}
		dec, err := Decrypt(enc, key)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if dec != plaintext {
			t.Fatalf("round trip = %q, want %q", dec, plaintext)
		}
	}
}

func TestEncryptRandomisesIV(t *testing.T) {
	t.Parallel()

	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	a, err := Encrypt("same plaintext", key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, err := Encrypt("same plaintext", key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if a == b {
		t.Fatal("two encryptions of the same plaintext are identical; IV is not random")
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	t.Parallel()

	key1, _ := GenerateKey()
	key2, _ := GenerateKey()
	enc, err := Encrypt("01@alice@hunter22", key1)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	dec, err := Decrypt(enc, key2)
	if err == nil && dec == "01@alice@hunter22" {
		t.Fatal("decrypt with the wrong key recovered the plaintext")
	}
}

func TestDecryptGarbageFails(t *testing.T) {
	t.Parallel()

	key, _ := GenerateKey()
	for _, bad := range []string{"not base64 !!", "QUJD", ""} {
		if _, err := Decrypt(bad, key); !errors.Is(err, ErrDecrypt) {
			t.Fatalf("Decrypt(%q) err = %v, want ErrDecrypt", bad, err)
		}
	}
}

func TestBadKeyRejected(t *testing.T) {
	t.Parallel()

	if _, err := Encrypt("x", "zz"); err == nil {
		t.Fatal("expected error for non-hex key")
	}
	if _, err := Encrypt("x", "abcd"); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	t.Parallel()

	a := DeriveKey("hunter22", "alice")
	b := DeriveKey("hunter22", "alice")
	if a != b {
		t.Fatal("derivation is not deterministic")
	}
	if len(a) != 64 {
		t.Fatalf("derived key length = %d, want 64", len(a))
	}
	if DeriveKey("hunter22", "bob") == a {
		t.Fatal("different salts produced the same key")
	}
	if DeriveKey("hunter23", "alice") == a {
		t.Fatal("different passwords produced the same key")
	}

	// The derived key is a working cipher key.
	enc, err := Encrypt("chat key material", a)
	if err != nil {
		t.Fatalf("encrypt under derived key: %v", err)
	}
	dec, err := Decrypt(enc, a)
	if err != nil || dec != "chat key material" {
		t.Fatalf("round trip under derived key: %q, %v", dec, err)
	}
}

func TestWrapUnwrapSessionKey(t *testing.T) {
	t.Parallel()

	server, err := NewKeyPair()
	if err != nil {
		t.Fatalf("server key pair: %v", err)
	}
	client, err := NewKeyPair()
	if err != nil {
		t.Fatalf("client key pair: %v", err)
	}

	clientPEM, err := client.PublicKeyPEM()
	if err != nil {
		t.Fatalf("export client key: %v", err)
	}
	if !strings.HasPrefix(string(clientPEM), "-----BEGIN PUBLIC KEY-----") {
		t.Fatalf("unexpected PEM header: %q", clientPEM[:30])
	}

	key, _ := GenerateKey()
	wrapped, err := WrapKey(key, clientPEM)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if len(wrapped) != 256 {
		t.Fatalf("wrapped key = %d bytes, want 256 for RSA-2048", len(wrapped))
	}

	got, err := client.Unwrap(wrapped)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if got != key {
		t.Fatalf("unwrapped key = %q, want %q", got, key)
	}

	// The server's own key cannot unwrap it.
	if _, err := server.Unwrap(wrapped); err == nil {
		t.Fatal("foreign key pair unwrapped the session key")
	}
}

func TestParsePublicKeyErrors(t *testing.T) {
	t.Parallel()

	if _, err := ParsePublicKey([]byte("junk")); err == nil {
		t.Fatal("expected error for non-PEM input")
	}
	if _, err := ParsePublicKey([]byte("-----BEGIN PUBLIC KEY-----\nQUJD\n-----END PUBLIC KEY-----\n")); err == nil {
		t.Fatal("expected error for malformed DER")
	}
}
