package tokens

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssueVerifyRoundTrip(t *testing.T) {
	m := NewManager(testSecret, time.Minute)

	token, expiresAt, err := m.Issue("full/1700000000000-pic.webp")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 5*time.Second)

	key, err := m.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "full/1700000000000-pic.webp", key)
}

func TestVerifyExpiredToken(t *testing.T) {
	m := NewManager(testSecret, -time.Minute)

	token, _, err := m.Issue("thumbnails/1700000000000-pic.webp")
	require.NoError(t, err)

	_, err = m.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTamperedToken(t *testing.T) {
	m := NewManager(testSecret, time.Minute)

	token, _, err := m.Issue("full/1700000000000-pic.webp")
	require.NoError(t, err)

	// Flip a character in the signature segment.
	tampered := token[:len(token)-2] + "xx"
	_, err = m.Verify(tampered)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyWrongSecret(t *testing.T) {
	issuer := NewManager(testSecret, time.Minute)
	verifier := NewManager(strings.Repeat("z", 32), time.Minute)

	token, _, err := issuer.Issue("full/1700000000000-pic.webp")
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssueRefusesDisallowedKeys(t *testing.T) {
	m := NewManager(testSecret, time.Minute)

	for _, key := range []string{
		"",
		"full/",
		"avatars/pic.webp",
		"../etc/passwd",
		"full/../secrets.txt",
		"users/alice/../../dump.webp",
	} {
		_, _, err := m.Issue(key)
		require.ErrorIs(t, err, ErrKeyNotAllowed, "key %q", key)
	}
}

func TestAllowedKey(t *testing.T) {
	allowed := []string{
		"full/1700000000000-pic.webp",
		"thumbnails/1700000000000-pic.webp",
		"users/alice/1700000000000-avatar-deadbeef.full.webp",
	}
	for _, key := range allowed {
		require.True(t, AllowedKey(key), "key %q", key)
	}

	denied := []string{
		"",
		"full",
		"thumbnails/",
		"originals/pic.webp",
		"full/has/../traversal.webp",
	}
	for _, key := range denied {
		require.False(t, AllowedKey(key), "key %q", key)
	}
}
