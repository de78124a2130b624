// Package auth implements the API server's password scheme: PBKDF2 key
// stretching, a nonce-exchange handshake proving key possession on both
// sides, and an encrypted session transport derived from the exchange.
package auth

import (
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"errors"
)

// AutoGenKeyLength is the length of server-generated passwords.
const AutoGenKeyLength = 16

const (
	base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	pbkdf2Iterations = 100000
	pbkdf2Salt       = "PrinterBridge-Key-v1"

	sessionContext = "PrinterBridge-Session-v1"
)

// GenerateKey produces a random base62 password of AutoGenKeyLength
// characters, suitable for the auto-provisioned key file.
func GenerateKey() (string, error) {
	raw := make([]byte, AutoGenKeyLength)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	key := make([]byte, len(raw))
	for i, b := range raw {
		key[i] = base62Alphabet[int(b)%len(base62Alphabet)]
	}
	return string(key), nil
}

// DeriveKey stretches a password to the 32-byte shared key both handshake
// sides authenticate with. The salt is fixed so client and server derive
// the same key from the same password.
func DeriveKey(password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("password cannot be empty")
	}
	return pbkdf2.Key(sha256.New, password, []byte(pbkdf2Salt), pbkdf2Iterations, 32)
}

// DeriveSessionKey mixes the shared key with both handshake nonces into a
// per-connection session key. Plain SHA-256 concatenation keeps foreign
// client implementations trivial.
func DeriveSessionKey(key, serverNonce, clientNonce []byte) []byte {
	h := sha256.New()
	h.Write(key)
	h.Write(serverNonce)
	h.Write(clientNonce)
	h.Write([]byte(sessionContext))
	return h.Sum(nil)
}
