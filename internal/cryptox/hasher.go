package cryptox

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/crmkeeper/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Hasher names accepted by HasherFor.
const (
	HasherSHA256   = "sha256"
	HasherArgon2ID = "argon2id"
	HasherBcrypt   = "bcrypt"
)

const argon2Prefix = "argon2id$"

// PasswordHasher produces and checks the durable password record.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, stored string) bool
}

// SHA256Hasher stores the unsalted hex digest.
type SHA256Hasher struct{}

func (SHA256Hasher) Hash(password string) (string, error) {
	return HashPassword(password), nil
}

func (SHA256Hasher) Verify(password, stored string) bool {
	return VerifyPassword(password, stored)
}

// Argon2Hasher stores "argon2id$<salt hex>$<key hex>" with a random
// per-install salt.
type Argon2Hasher struct {
	SaltSize int
}

// DeriveMasterKey stretches password with Argon2id (t=1, m=64MiB, p=4).
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

func (h Argon2Hasher) Hash(password string) (string, error) {
	size := h.SaltSize
	if size <= 0 {
		size = 16
	}
	salt := common.GenerateRandByteArray(size)

	pw := []byte(password)
	defer common.WipeByteArray(pw)

	key := DeriveMasterKey(pw, salt)
	return argon2Prefix + hex.EncodeToString(salt) + "$" + hex.EncodeToString(key), nil
}

func (Argon2Hasher) Verify(password, stored string) bool {
	rest, ok := strings.CutPrefix(stored, argon2Prefix)
	if !ok {
		return false
	}
	saltHex, keyHex, ok := strings.Cut(rest, "$")
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(keyHex)
	if err != nil {
		return false
	}

	pw := []byte(password)
	defer common.WipeByteArray(pw)

	return subtle.ConstantTimeCompare(DeriveMasterKey(pw, salt), want) == 1
}

// BcryptHasher stores the standard "$2a$..." encoding.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}
	return string(hash), nil
}

func (BcryptHasher) Verify(password, stored string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}

// HasherFor returns the hasher registered under name.
func HasherFor(name string) (PasswordHasher, error) {
	switch strings.ToLower(name) {
	case "", HasherSHA256:
		return SHA256Hasher{}, nil
	case HasherArgon2ID:
		return Argon2Hasher{}, nil
	case HasherBcrypt:
		return BcryptHasher{}, nil
	default:
		return nil, fmt.Errorf("unknown password hasher %q", name)
	}
}
