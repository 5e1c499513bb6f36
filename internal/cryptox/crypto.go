// Package cryptox implements the password and symmetric-encryption primitives
// that protect CRM data at rest.
//
// Blob format: base64(std) of IV(12 bytes) || AES-256-GCM ciphertext || tag.
// The AES key is SHA-256 over the UTF-8 bytes of the encryption password, so
// the same password always yields the same key.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/dmitrijs2005/crmkeeper/internal/common"
)

// IVSize is the AES-GCM nonce length prepended to every blob.
const IVSize = 12

// TokenSize is the default number of random bytes in a session token.
const TokenSize = 32

// DeriveKey returns the 32-byte AES key for password.
func DeriveKey(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return sum[:]
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext under the key derived from password with a fresh
// random IV and returns the base64 blob.
func Encrypt(plaintext, password string) (string, error) {
	key := DeriveKey(password)
	defer common.WipeByteArray(key)

	aesgcm, err := newGCM(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrEncryption, err)
	}

	iv := make([]byte, IVSize, IVSize+len(plaintext)+aesgcm.Overhead())
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrEncryption, err)
	}

	// IV || ciphertext || tag in one buffer
	combined := aesgcm.Seal(iv, iv, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(combined), nil
}

// Decrypt opens a blob produced by Encrypt. A wrong password, a corrupted
// blob and a tag mismatch all return common.ErrDecryption.
func Decrypt(blob, password string) (string, error) {
	combined, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", common.ErrDecryption
	}
	if len(combined) < IVSize {
		return "", common.ErrDecryption
	}

	key := DeriveKey(password)
	defer common.WipeByteArray(key)

	aesgcm, err := newGCM(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrDecryption, err)
	}

	plaintext, err := aesgcm.Open(nil, combined[:IVSize], combined[IVSize:], nil)
	if err != nil {
		return "", common.ErrDecryption
	}
	return string(plaintext), nil
}

// HashPassword returns the hex SHA-256 digest of password. No salt, one round.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// VerifyPassword reports whether password hashes to hash.
func VerifyPassword(password, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashPassword(password)), []byte(hash)) == 1
}

// GenerateToken returns length random bytes, hex encoded. A non-positive
// length means TokenSize.
func GenerateToken(length int) (string, error) {
	if length <= 0 {
		length = TokenSize
	}
	return common.MakeRandHexString(length)
}
