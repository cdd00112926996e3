// Package crypto implements server-side password hashing and verification.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (tuned for server-side hashing).
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
	saltLen             = 16

	scheme = "argon2id"
)

// Verifier turns plaintext passwords into opaque stored strings and checks them.
type Verifier interface {
	// Hash returns an opaque encoding of plaintext with a fresh salt.
	Hash(plaintext string) (string, error)
	// Matches reports whether plaintext produces the encoded value.
	Matches(plaintext, encoded string) bool
}

// Argon2 is the production Verifier. Encoded form: "argon2id$<salt>$<key>" (raw base64).
type Argon2 struct {
	time    uint32
	memory  uint32
	threads uint8
	pepper  []byte
}

var _ Verifier = (*Argon2)(nil)

// NewArgon2 returns a verifier with the server parameters and an optional pepper.
func NewArgon2(pepper string) *Argon2 {
	return &Argon2{time: argonTime, memory: argonMemory, threads: argonThreads, pepper: []byte(pepper)}
}

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// Hash implements Verifier.
func (a *Argon2) Hash(plaintext string) (string, error) {
	salt, err := RandBytes(saltLen)
	if err != nil {
		return "", err
	}
	key := a.key(plaintext, salt)
	enc := base64.RawStdEncoding
	return scheme + "$" + enc.EncodeToString(salt) + "$" + enc.EncodeToString(key), nil
}

// Matches implements Verifier. Malformed encodings never match.
func (a *Argon2) Matches(plaintext, encoded string) bool {
	salt, expected, err := decode(encoded)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(a.key(plaintext, salt), expected) == 1
}

func (a *Argon2) key(plaintext string, salt []byte) []byte {
	input := append([]byte(plaintext), a.pepper...)
	return argon2.IDKey(input, salt, a.time, a.memory, a.threads, argonKeyLen)
}

func decode(encoded string) (salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != scheme {
		return nil, nil, errors.New("malformed password hash")
	}
	enc := base64.RawStdEncoding
	if salt, err = enc.DecodeString(parts[1]); err != nil {
		return nil, nil, err
	}
	if key, err = enc.DecodeString(parts[2]); err != nil {
		return nil, nil, err
	}
	return salt, key, nil
}
