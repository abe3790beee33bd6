package crypto

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultEnvelopeRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := NewDefault()

	selfPub, err := d.GenerateKeyPair(ctx)
	require.NoError(t, err)
	peerPub, err := d.GenerateKeyPair(ctx)
	require.NoError(t, err)

	topic, err := d.GenerateSharedKey(ctx, selfPub, peerPub)
	require.NoError(t, err)
	require.Len(t, topic, 64)

	peerTopic, err := d.GenerateSharedKey(ctx, peerPub, selfPub)
	require.NoError(t, err)
	require.Equal(t, topic, peerTopic, "both sides must derive the same topic independently")

	plain := []byte(`{"hello":"world"}`)
	sealed, err := d.Encode(ctx, topic, plain, &EncodeOptions{
		Type:              Type1,
		SenderPublicKey:   selfPub,
		ReceiverPublicKey: peerPub,
	})
	require.NoError(t, err)
	require.Equal(t, byte(Type1), sealed[0])

	opened, err := d.Decode(ctx, topic, sealed)
	require.NoError(t, err)
	require.Equal(t, plain, opened)
}

func TestDefaultDecodeFailsAfterSymKeyDeleted(t *testing.T) {
	ctx := context.Background()
	d := NewDefault()

	pub, err := d.GenerateKeyPair(ctx)
	require.NoError(t, err)
	topic, err := d.GenerateSharedKey(ctx, pub, pub)
	require.NoError(t, err)

	sealed, err := d.Encode(ctx, topic, []byte("x"), nil)
	require.NoError(t, err)

	require.NoError(t, d.DeleteSymKey(ctx, topic))
	_, err = d.Decode(ctx, topic, sealed)
	require.Error(t, err)
}

func TestGenerateEd25519(t *testing.T) {
	pub, priv, err := GenerateEd25519()
	require.NoError(t, err)
	require.Len(t, pub, 64)
	require.Len(t, priv, 128)
}
