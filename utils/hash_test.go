package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestTimeBucket(t *testing.T) {
	base := time.Unix(1000, 0)

	assert.Equal(t, int64(16), TimeBucket(base, 60))
	// Same window up to the rollover.
	assert.Equal(t, int64(16), TimeBucket(time.Unix(1019, 0), 60))
	assert.Equal(t, int64(17), TimeBucket(time.Unix(1020, 0), 60))

	// A broken window size degrades to one-second buckets.
	assert.Equal(t, int64(1000), TimeBucket(base, 0))
	assert.Equal(t, int64(1000), TimeBucket(base, -5))
}

func TestSecondsUntilNextBucket(t *testing.T) {
	assert.Equal(t, 20, SecondsUntilNextBucket(time.Unix(1000, 0), 60))
	// A fresh window has the full wait ahead.
	assert.Equal(t, 60, SecondsUntilNextBucket(time.Unix(1020, 0), 60))
	assert.Equal(t, 0, SecondsUntilNextBucket(time.Unix(1000, 0), 0))
}

func TestSessionHashStableAndAnonymous(t *testing.T) {
	h1 := SessionHash("salt", "Mozilla/5.0", "en-US", "token-a")
	h2 := SessionHash("salt", "Mozilla/5.0", "en-US", "token-a")
	require.Equal(t, h1, h2, "identical fingerprints must share a session")
	assert.Len(t, h1, 32)

	// Any fingerprint component changes the session.
	assert.NotEqual(t, h1, SessionHash("salt", "Mozilla/5.0", "en-US", "token-b"))
	assert.NotEqual(t, h1, SessionHash("salt", "Mozilla/5.0", "de-DE", "token-a"))

	// The salt separates deployments even for identical fingerprints.
	assert.NotEqual(t, h1, SessionHash("other-salt", "Mozilla/5.0", "en-US", "token-a"))

	// Field boundaries matter: shifting bytes between parts is a
	// different fingerprint.
	assert.NotEqual(t,
		SessionHash("salt", "ab", "c"),
		SessionHash("salt", "a", "bc"))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple", bcrypt.MinCost)
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	assert.True(t, CheckPassword("correct horse battery staple", hash))
	assert.False(t, CheckPassword("wrong password", hash))
	assert.False(t, CheckPassword("correct horse battery staple", "not-a-hash"))
}
