package identity

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testAccount = "eip155:1:0x3333333333333333333333333333333333333333"

func TestRegisterIdentityIsIdempotent(t *testing.T) {
	ctx := context.Background()
	d := NewDefault()

	first, err := d.RegisterIdentity(ctx, RegisterParams{Account: testAccount, Statement: UnlimitedIdentityStatement})
	require.NoError(t, err)

	second, err := d.RegisterIdentity(ctx, RegisterParams{Account: testAccount, Statement: UnlimitedIdentityStatement})
	require.NoError(t, err)
	require.Equal(t, first, second, "registering the same account twice must reuse the existing key")
}

func TestRegisterIdentityInvokesOnSign(t *testing.T) {
	ctx := context.Background()
	d := NewDefault()
	called := false

	_, err := d.RegisterIdentity(ctx, RegisterParams{
		Account:   testAccount,
		Statement: LimitedIdentityStatement,
		OnSign: func(ctx context.Context, message string) (string, error) {
			called = true
			require.Equal(t, LimitedIdentityStatement, message)
			return "sig", nil
		},
	})
	require.NoError(t, err)
	require.True(t, called)
}

func TestGetIdentityFailsForUnknownAccount(t *testing.T) {
	ctx := context.Background()
	d := NewDefault()

	_, err := d.GetIdentity(ctx, testAccount)
	require.Error(t, err)
}

func TestGenerateIdAuthSignsWithRegisteredKey(t *testing.T) {
	ctx := context.Background()
	d := NewDefault()

	pubHex, err := d.RegisterIdentity(ctx, RegisterParams{Account: testAccount, Statement: UnlimitedIdentityStatement})
	require.NoError(t, err)

	claims := jwt.MapClaims{"act": "notify_delete", "iss": "did:key:" + pubHex}
	jws, err := d.GenerateIdAuth(ctx, testAccount, claims)
	require.NoError(t, err)
	require.NotEmpty(t, jws)

	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(jws, jwt.MapClaims{})
	require.NoError(t, err)
	require.Equal(t, "EdDSA", token.Method.Alg())
}

func TestGenerateIdAuthFailsForUnregisteredAccount(t *testing.T) {
	ctx := context.Background()
	d := NewDefault()

	_, err := d.GenerateIdAuth(ctx, testAccount, jwt.MapClaims{})
	require.Error(t, err)
}
