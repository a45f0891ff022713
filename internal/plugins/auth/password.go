package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Supported password hashing algorithms.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// argon2id parameters follow the OWASP recommendation:
// memory=64MB, iterations=3, parallelism=4.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // 64 MB in KiB
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// bcrypt rejects passwords longer than 72 bytes.
const bcryptMaxPasswordBytes = 72

// PasswordHasher hashes new passwords with one algorithm and verifies
// stored hashes of any supported algorithm, so the configured algorithm
// can change without invalidating existing accounts.
type PasswordHasher struct {
	algorithm  string
	bcryptCost int

	dummyOnce sync.Once
	dummy     string
}

// NewPasswordHasher returns a hasher for the given algorithm. An unknown
// algorithm falls back to bcrypt; config.Load rejects those earlier.
func NewPasswordHasher(algorithm string, bcryptCost int) *PasswordHasher {
	if algorithm != AlgorithmArgon2id {
		algorithm = AlgorithmBcrypt
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &PasswordHasher{algorithm: algorithm, bcryptCost: bcryptCost}
}

// Hash returns a salted hash of password. Every call draws a fresh salt,
// so hashing the same password twice yields different strings.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if h.algorithm == AlgorithmArgon2id {
		return hashArgon2id(password)
	}
	if len(password) > bcryptMaxPasswordBytes {
		return "", fmt.Errorf("password exceeds %d bytes", bcryptMaxPasswordBytes)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether password matches the stored hash. The scheme is
// detected from the hash prefix. Malformed hashes never match.
func (h *PasswordHasher) Verify(password, stored string) bool {
	switch {
	case strings.HasPrefix(stored, "$argon2id$"):
		return verifyArgon2id(password, stored)
	case strings.HasPrefix(stored, "$2a$"), strings.HasPrefix(stored, "$2b$"), strings.HasPrefix(stored, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	default:
		return false
	}
}

// fallbackDummyHash is a valid bcrypt hash used when a random dummy hash
// cannot be produced, so unknown usernames still pay for a comparison.
const fallbackDummyHash = "$2a$10$XajjQvNhvvRt5GSeFk1xFeyqRrsxkhBkUiQeg0dt.wU1qD4aFDcga"

// DummyHash returns a hash of a random password, computed once. Verifying
// against it for unknown usernames keeps the failure path as slow as the
// wrong-password path.
func (h *PasswordHasher) DummyHash() string {
	h.dummyOnce.Do(func() {
		h.dummy = h.newDummyHash(rand.Read)
	})
	return h.dummy
}

func (h *PasswordHasher) newDummyHash(read func([]byte) (int, error)) string {
	b := make([]byte, 16)
	if _, err := read(b); err != nil {
		return fallbackDummyHash
	}
	hash, err := h.Hash(base64.RawStdEncoding.EncodeToString(b))
	if err != nil {
		return fallbackDummyHash
	}
	return hash
}

// hashArgon2id produces the PHC string
// $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>.
func hashArgon2id(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// verifyArgon2id re-derives the key with the parameters embedded in the
// PHC string and compares in constant time.
func verifyArgon2id(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}
	if memory == 0 || iterations == 0 || parallelism == 0 {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(expected, computed) == 1
}
