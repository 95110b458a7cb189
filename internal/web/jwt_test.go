package web

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============== JWT Tests ==============

func TestJWT_RoundTrip(t *testing.T) {
	token, expiresAt, err := GenerateJWT(7, "alice", "analyst", "sess_abc", "secret-1", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := ValidateJWT(token, "secret-1")
	require.NoError(t, err)
	assert.EqualValues(t, 7, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "analyst", claims.Role)
	assert.Equal(t, "sess_abc", claims.SessionID)
	assert.Equal(t, "shadowhawk", claims.Issuer)
}

func TestJWT_WrongSecretRejected(t *testing.T) {
	token, _, err := GenerateJWT(7, "alice", "viewer", "sess_abc", "secret-1", time.Hour)
	require.NoError(t, err)

	_, err = ValidateJWT(token, "secret-2")
	assert.Error(t, err)
}

func TestJWT_ExpiredRejected(t *testing.T) {
	token, _, err := GenerateJWT(7, "alice", "viewer", "sess_abc", "secret-1", -time.Minute)
	require.NoError(t, err)

	_, err = ValidateJWT(token, "secret-1")
	assert.Error(t, err)
}

func TestJWT_GarbageRejected(t *testing.T) {
	_, err := ValidateJWT("not.a.token", "secret-1")
	assert.Error(t, err)
}
