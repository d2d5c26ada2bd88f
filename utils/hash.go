package utils

import (
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/blake2b"
)

// HashPassword bcrypt-hashes the admin password.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %v", err)
	}

	return string(hashedPassword), nil
}

// CheckPassword verifies a password against its bcrypt hash.
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// SessionHash derives the anonymous session identifier from request-level
// fingerprint bytes. The hash is stable for identical fingerprints and is
// never reversible to them; no IP address may be part of the input.
func SessionHash(salt string, fingerprint ...string) string {
	key := []byte(salt)
	if len(key) > 64 {
		key = key[:64] // blake2b key size limit
	}
	h, _ := blake2b.New256(key)
	for _, part := range fingerprint {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// TimeBucket returns the index of the window that now falls into. The upload
// and download limiters key on this value alone, deliberately ignoring who
// the caller is.
func TimeBucket(now time.Time, windowSecs int) int64 {
	if windowSecs <= 0 {
		windowSecs = 1
	}
	return now.Unix() / int64(windowSecs)
}

// SecondsUntilNextBucket reports the wait until the current window rolls over.
func SecondsUntilNextBucket(now time.Time, windowSecs int) int {
	if windowSecs <= 0 {
		return 0
	}
	elapsed := now.Unix() % int64(windowSecs)
	return int(int64(windowSecs) - elapsed)
}
