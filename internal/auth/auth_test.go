package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("secret")

	token, err := v.Sign(Identity{UserID: 42, Username: "alice"}, time.Hour)
	require.NoError(t, err)

	identity, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, 42, identity.UserID)
	require.Equal(t, "alice", identity.Username)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewVerifier("secret-a").Sign(Identity{UserID: 1, Username: "x"}, time.Hour)
	require.NoError(t, err)

	_, err = NewVerifier("secret-b").Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := NewVerifier("secret")
	token, err := v.Sign(Identity{UserID: 1, Username: "x"}, -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, err := NewVerifier("secret").Verify("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}
