// Package crypto supplies the primitives behind Strife's transport security:
// a per-listener RSA identity for handshakes, hex-encoded AES-256 session
// keys, and the CBC frame cipher whose output travels as base64 text inside
// length-prefixed frames.
//
// A symmetric key's canonical form is its 64-character hex string — that is
// what crosses the wire inside protocol fields and what the store wraps at
// rest. Ciphers hex-decode it to the raw 32-byte AES key.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	rsaBits = 2048
	keyLen  = 32 // raw symmetric key bytes; hex form is twice that

	kdfIterations = 4096
)

// ErrDecrypt is returned when a frame cannot be decrypted: bad base64, a
// truncated ciphertext, or padding that does not verify.
var ErrDecrypt = errors.New("cannot decrypt frame")

// ---- asymmetric handshake identity ----

// KeyPair is a listener's RSA identity, generated once per listener and used
// only to bootstrap per-connection session keys.
type KeyPair struct {
	priv *rsa.PrivateKey
}

// NewKeyPair generates a fresh RSA-2048 key pair.
func NewKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return &KeyPair{priv: priv}, nil
}

// PublicKeyPEM returns the public half in PEM form, the textual shape both
// sides exchange during the handshake.
func (kp *KeyPair) PublicKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(&kp.priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// Unwrap recovers a symmetric key that was wrapped under our public key.
func (kp *KeyPair) Unwrap(wrapped []byte) (string, error) {
	key, err := rsa.DecryptPKCS1v15(nil, kp.priv, wrapped)
	if err != nil {
		return "", fmt.Errorf("unwrap session key: %w", err)
	}
	return string(key), nil
}

// WrapKey encrypts a symmetric key string under a peer's PEM public key. The
// result is raw RSA ciphertext (256 bytes for RSA-2048), sent as-is on the
// wire.
func WrapKey(key string, peerPEM []byte) ([]byte, error) {
	pub, err := ParsePublicKey(peerPEM)
	if err != nil {
		return nil, err
	}
	wrapped, err := rsa.EncryptPKCS1v15(rand.Reader, pub, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("wrap session key: %w", err)
	}
	return wrapped, nil
}

// ParsePublicKey decodes a PEM-encoded RSA public key.
func ParsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block in peer key")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse peer key: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("peer key is %T, want RSA", parsed)
	}
	return pub, nil
}

// ---- symmetric frame cipher ----

// GenerateKey returns a fresh symmetric key: 32 random bytes in hex form.
func GenerateKey() (string, error) {
	raw := make([]byte, keyLen)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate symmetric key: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// DeriveKey stretches a user's password into a symmetric key for wrapping
// chat keys at rest. The username salts the derivation so equal passwords
// yield distinct wrapping keys.
func DeriveKey(password, username string) string {
	raw := pbkdf2.Key([]byte(password), []byte(username), kdfIterations, keyLen, sha256.New)
	return hex.EncodeToString(raw)
}

// SHA256Hex returns the lowercase hex digest of data. Credentials are stored
// and compared in this form, and file payloads are identified by it.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Encrypt encrypts plaintext under a hex key: AES-256-CBC with a random IV,
// PKCS#7 padding, and the IV prepended. The result is base64 text, safe to
// place behind a decimal length prefix or inside a protocol field.
func Encrypt(plaintext, key string) (string, error) {
	block, err := newBlock(key)
	if err != nil {
		return "", err
	}
	padded := pad([]byte(plaintext))
	buf := make([]byte, aes.BlockSize+len(padded))
	iv := buf[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(buf[aes.BlockSize:], padded)
	return base64.StdEncoding.EncodeToString(buf), nil
}

// Decrypt reverses Encrypt. Structural failures all surface as ErrDecrypt so
// the transport can treat any of them as a poisoned connection.
func Decrypt(encoded, key string) (string, error) {
	block, err := newBlock(key)
	if err != nil {
		return "", err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(data) < 2*aes.BlockSize || len(data)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext length %d", ErrDecrypt, len(data))
	}
	iv, ct := data[:aes.BlockSize], data[aes.BlockSize:]
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)
	plain, err := unpad(out)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func newBlock(key string) (cipher.Block, error) {
	raw, err := hex.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("symmetric key is not hex: %w", err)
	}
	if len(raw) != keyLen {
		return nil, fmt.Errorf("symmetric key is %d bytes, want %d", len(raw), keyLen)
	}
	return aes.NewCipher(raw)
}

// pad applies PKCS#7 padding to a whole number of AES blocks.
func pad(data []byte) []byte {
	n := aes.BlockSize - len(data)%aes.BlockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad strips and verifies PKCS#7 padding.
func unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrDecrypt)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
		}
	}
	return data[:len(data)-n], nil
}
