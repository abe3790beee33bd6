package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewIsMatchedByKind(t *testing.T) {
	err := New("Subscribe", CryptoFailure)
	require.True(t, errors.Is(err, CryptoFailure))
	require.False(t, errors.Is(err, RelayFailure))
}

func TestWrapPreservesKindAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap("ResolveKeys", DidDocUnavailable, cause)
	require.True(t, errors.Is(err, DidDocUnavailable))
	require.True(t, errors.Is(err, cause))
}

func TestWrapNilCauseReturnsNil(t *testing.T) {
	err := Wrap("Op", CryptoFailure, nil)
	require.Nil(t, err, "Wrap with a nil cause must return nil so callers can use it directly as a return value")
}

func TestOfReportsKind(t *testing.T) {
	err := New("Decode", JwtExpired)
	require.Equal(t, JwtExpired, Of(err))
}

func TestOfReturnsEmptyForPlainError(t *testing.T) {
	require.Equal(t, Kind(""), Of(errors.New("plain")))
}
