package objstore

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseSigned(t *testing.T, signed string) (key, exp, sig string) {
	t.Helper()
	u, err := url.Parse(signed)
	require.NoError(t, err)
	return strings.TrimPrefix(u.Path, "/files/"), u.Query().Get("exp"), u.Query().Get("sig")
}

func TestSignedURLVerifies(t *testing.T) {
	signer := NewSigner("secret", "/files")
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	signed := signer.SignedURL("alice/1700000000000_pic.png", time.Hour, now)
	key, exp, sig := parseSigned(t, signed)

	assert.Equal(t, "alice/1700000000000_pic.png", key)
	require.NoError(t, signer.Verify(key, exp, sig, now))
	require.NoError(t, signer.Verify(key, exp, sig, now.Add(59*time.Minute)))
}

func TestVerifyExpired(t *testing.T) {
	signer := NewSigner("secret", "/files")
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	signed := signer.SignedURL("alice/pic.png", time.Hour, now)
	key, exp, sig := parseSigned(t, signed)

	err := signer.Verify(key, exp, sig, now.Add(61*time.Minute))
	assert.ErrorIs(t, err, ErrURLExpired)
}

func TestVerifyRejectsTamperedKey(t *testing.T) {
	signer := NewSigner("secret", "/files")
	now := time.Now()

	signed := signer.SignedURL("alice/pic.png", time.Hour, now)
	_, exp, sig := parseSigned(t, signed)

	err := signer.Verify("bob/other.png", exp, sig, now)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyRejectsWrongKeySigner(t *testing.T) {
	now := time.Now()
	signed := NewSigner("secret", "/files").SignedURL("alice/pic.png", time.Hour, now)
	key, exp, sig := parseSigned(t, signed)

	err := NewSigner("other", "/files").Verify(key, exp, sig, now)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyMalformedExpiry(t *testing.T) {
	signer := NewSigner("secret", "/files")
	err := signer.Verify("alice/pic.png", "not-a-number", "sig", time.Now())
	assert.ErrorIs(t, err, ErrMalformedSig)
}
