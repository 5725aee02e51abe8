package jwtx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	signer, err := GenerateEdDSASigner("session-1")
	require.NoError(t, err)

	claims := NewSessionClaims(
		"user-123", "taskdeck",
		"alex@example.com", "Alex", "Acme",
		time.Hour, time.Now().UTC(),
	)

	token, err := signer.Sign(claims)
	require.NoError(t, err)

	got, err := signer.Verifier("taskdeck").Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-123", got.Subject)
	require.Equal(t, "alex@example.com", got.Email)
	require.Equal(t, "Alex", got.Name)
	require.Equal(t, "Acme", got.AccountName)
	require.NoError(t, got.ValidateExpiry())
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	t.Parallel()

	a, err := GenerateEdDSASigner("kid-a")
	require.NoError(t, err)
	b, err := GenerateEdDSASigner("kid-a") // same kid, different key
	require.NoError(t, err)

	token, err := a.Sign(NewSessionClaims("u", "taskdeck", "", "", "", time.Hour, time.Now().UTC()))
	require.NoError(t, err)

	_, err = b.Verifier("taskdeck").Verify(token)
	require.ErrorIs(t, err, ErrInvalidSig)
}

func TestVerifyRejectsExpired(t *testing.T) {
	t.Parallel()

	s, err := GenerateEdDSASigner("kid")
	require.NoError(t, err)

	stale := NewSessionClaims("u", "taskdeck", "", "", "", time.Minute, time.Now().UTC().Add(-time.Hour))
	token, err := s.Sign(stale)
	require.NoError(t, err)

	_, err = s.Verifier("taskdeck").Verify(token)
	require.ErrorIs(t, err, ErrExpired)
}

func TestVerifyRejectsIssuerMismatch(t *testing.T) {
	t.Parallel()

	s, err := GenerateEdDSASigner("kid")
	require.NoError(t, err)

	token, err := s.Sign(NewSessionClaims("u", "someone-else", "", "", "", time.Hour, time.Now().UTC()))
	require.NoError(t, err)

	_, err = s.Verifier("taskdeck").Verify(token)
	require.ErrorIs(t, err, ErrIssuer)
}

func TestVerifyRejectsMalformed(t *testing.T) {
	t.Parallel()

	s, err := GenerateEdDSASigner("kid")
	require.NoError(t, err)

	_, err = s.Verifier("taskdeck").Verify("not.a.jwt")
	require.Error(t, err)
}
