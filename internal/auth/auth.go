package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// keyPrefixLen is how much of a plaintext key is safe to keep around for
// identification in logs and rate-limit bucketing.
const keyPrefixLen = 12

// ServiceKey holds the hashed key and a short identifying prefix.
type ServiceKey struct {
	Hash   string
	Prefix string
}

// GenerateServiceKey creates a new service key with the "gabelle_" prefix
// followed by 32 URL-safe random characters. It returns the ServiceKey
// (containing the hash and prefix) and the full plaintext key, which is shown
// once and never stored.
func GenerateServiceKey() (ServiceKey, string, error) {
	b := make([]byte, 24) // 24 bytes -> 32 base64url chars
	if _, err := rand.Read(b); err != nil {
		return ServiceKey{}, "", fmt.Errorf("generating random bytes: %w", err)
	}

	plaintext := "gabelle_" + base64.RawURLEncoding.EncodeToString(b)
	key := ServiceKey{
		Hash:   HashKey(plaintext),
		Prefix: plaintext[:keyPrefixLen],
	}
	return key, plaintext, nil
}

// HashKey returns the hex-encoded SHA-256 hash of the given plaintext key.
func HashKey(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}

// HashAdminKey produces a bcrypt hash of the admin key for storage in config.
func HashAdminKey(plaintext string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing admin key: %w", err)
	}
	return string(h), nil
}

// VerifyAdminKey reports whether plaintext matches the stored bcrypt hash.
func VerifyAdminKey(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
