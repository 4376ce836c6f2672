// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmberMUD Contributors

// Package auth provides credential hashing and authentication for EmberMUD.
package auth

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"

	"github.com/samber/oops"
	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters. The iteration count is fixed: changing it invalidates
// every stored credential, since the count is not encoded alongside the hash.
const (
	pbkdf2Iterations = 100000
	pbkdf2SaltLen    = 16 // bytes
	pbkdf2KeyLen     = 64 // bytes
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// Hasher derives hash+salt credential pairs with PBKDF2-SHA512.
type Hasher struct{}

// NewHasher creates a new Hasher.
func NewHasher() *Hasher {
	return &Hasher{}
}

// Hash derives a credential pair from the password. Both the hash and the
// freshly generated salt are returned hex-encoded.
func (h *Hasher) Hash(password string) (hash, salt string, err error) {
	if password == "" {
		return "", "", ErrEmptyPassword
	}

	saltBytes := make([]byte, pbkdf2SaltLen)
	if _, err := rand.Read(saltBytes); err != nil {
		return "", "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := pbkdf2.Key([]byte(password), saltBytes, pbkdf2Iterations, pbkdf2KeyLen, sha512.New)
	return hex.EncodeToString(key), hex.EncodeToString(saltBytes), nil
}

// Verify checks the password against a stored hash+salt pair.
// Returns (true, nil) on match, (false, nil) on mismatch, or an error when
// the stored credential is malformed.
func (h *Hasher) Verify(password, hash, salt string) (bool, error) {
	saltBytes, err := hex.DecodeString(salt)
	if err != nil {
		return false, oops.Code("AUTH_INVALID_CREDENTIAL").
			With("operation", "decode salt").
			Wrap(err)
	}
	expected, err := hex.DecodeString(hash)
	if err != nil {
		return false, oops.Code("AUTH_INVALID_CREDENTIAL").
			With("operation", "decode hash").
			Wrap(err)
	}
	if len(expected) == 0 {
		return false, oops.Code("AUTH_INVALID_CREDENTIAL").Errorf("empty credential hash")
	}

	computed := pbkdf2.Key([]byte(password), saltBytes, pbkdf2Iterations, len(expected), sha512.New)
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}
