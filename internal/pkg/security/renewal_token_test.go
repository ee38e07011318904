package security

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-signing-secret"

func TestRenewalLinkTokenRoundTrip(t *testing.T) {
	token, err := GenerateRenewalLinkToken(42, 7, "abc123", time.Hour, testSecret)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ParseAndVerifyRenewalLinkToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.SubscriptionID)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "abc123", claims.Token)
	assert.Greater(t, claims.ExpiresAt, time.Now().Unix())
}

func TestRenewalLinkTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateRenewalLinkToken(42, 7, "abc123", time.Hour, testSecret)
	require.NoError(t, err)

	_, err = ParseAndVerifyRenewalLinkToken(token, "other-secret")
	assert.Error(t, err)
}

func TestRenewalLinkTokenRejectsTampering(t *testing.T) {
	token, err := GenerateRenewalLinkToken(42, 7, "abc123", time.Hour, testSecret)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 2)

	// Swap the payload for a different one, keep the original signature.
	forged, err := GenerateRenewalLinkToken(99, 7, "abc123", time.Hour, testSecret)
	require.NoError(t, err)
	forgedParts := strings.Split(forged, ".")

	_, err = ParseAndVerifyRenewalLinkToken(forgedParts[0]+"."+parts[1], testSecret)
	assert.Error(t, err)
}

func TestRenewalLinkTokenRejectsExpired(t *testing.T) {
	token, err := GenerateRenewalLinkToken(42, 7, "abc123", -time.Minute, testSecret)
	require.NoError(t, err)

	_, err = ParseAndVerifyRenewalLinkToken(token, testSecret)
	assert.EqualError(t, err, "token expired")
}

func TestRenewalLinkTokenRejectsGarbage(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"Empty", ""},
		{"No separator", "justonepart"},
		{"Bad payload encoding", "!!!.c2ln"},
		{"Bad signature encoding", "cGF5bG9hZA.!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAndVerifyRenewalLinkToken(tt.token, testSecret)
			assert.Error(t, err)
		})
	}
}

func TestRenewalLinkTokenRequiresSecret(t *testing.T) {
	_, err := GenerateRenewalLinkToken(42, 7, "abc123", time.Hour, "")
	assert.Error(t, err)

	_, err = ParseAndVerifyRenewalLinkToken("a.b", "")
	assert.Error(t, err)
}
