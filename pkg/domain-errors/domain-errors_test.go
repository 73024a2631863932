package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasCodeMatchesThroughWrapping(t *testing.T) {
	base := New(CodeTokenExpired, "token expired")
	wrapped := fmt.Errorf("redeem: %w", base)

	require.True(t, HasCode(wrapped, CodeTokenExpired))
	require.False(t, HasCode(wrapped, CodeTokenNotFound))
}

func TestWrapPreservesInnerDomainCode(t *testing.T) {
	inner := New(CodeInsufficientRole, "role check failed")
	outer := Wrap(inner, CodeInternal, "begin attestation")

	require.True(t, HasCode(outer, CodeInsufficientRole), "wrapping must not mask the original code")
	require.Equal(t, CodeInsufficientRole, CodeOf(outer))
}

func TestWrapAssignsCodeToPlainErrors(t *testing.T) {
	err := Wrap(errors.New("disk full"), CodeInternal, "persist credential")
	require.Equal(t, CodeInternal, CodeOf(err))
	require.Equal(t, "persist credential", err.Error())
}

func TestCodeOfPlainError(t *testing.T) {
	require.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	a := New(CodeTokenAlreadyUsed, "first")
	b := New(CodeTokenAlreadyUsed, "second")
	require.ErrorIs(t, a, b)
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("row not found")
	err := Wrap(cause, CodeNotFound, "load session")
	require.ErrorIs(t, err, cause)
}
