package jwtauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	dErrors "beantrace/pkg/domain-errors"
)

const testDID = "did:key:z6MkhaXgBZDvotDkL5257faiztiGiC2QtKLGpbnnEGta2doK"

func TestGenerateAndValidate(t *testing.T) {
	svc, err := NewService("test-signing-key", time.Hour)
	require.NoError(t, err)

	token, err := svc.Generate(testDID, "webform")
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	require.Equal(t, testDID, claims.ActorDID)
	require.Equal(t, "webform", claims.Channel)
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	svc, err := NewService("test-signing-key", time.Hour)
	require.NoError(t, err)
	other, err := NewService("other-signing-key", time.Hour)
	require.NoError(t, err)

	token, err := other.Generate(testDID, "")
	require.NoError(t, err)

	_, err = svc.Validate(token)
	require.Error(t, err)
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	current := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	svc, err := NewService("test-signing-key", time.Minute,
		WithClock(func() time.Time { return current }),
	)
	require.NoError(t, err)

	token, err := svc.Generate(testDID, "")
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, err = svc.Validate(token)
	require.Error(t, err)
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestGenerateRequiresActorDID(t *testing.T) {
	svc, err := NewService("test-signing-key", time.Hour)
	require.NoError(t, err)
	_, err = svc.Generate("", "")
	require.Error(t, err)
}

func TestNewServiceRequiresKey(t *testing.T) {
	_, err := NewService("", time.Hour)
	require.Error(t, err)
}
