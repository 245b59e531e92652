// Copyright (c) 2025 Shell Reserve developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	require.Len(t, kp.PublicKey, DilithiumPublicKeySize)
	require.Len(t, kp.PrivateKey, DilithiumPrivateKeySize)

	msg := []byte("bind this message to the identity")
	sig, err := Sign(kp.PrivateKey, msg)
	require.NoError(t, err)
	require.Len(t, sig, DilithiumSignatureSize)

	require.True(t, Verify(kp.PublicKey, msg, sig))
	require.False(t, Verify(kp.PublicKey, []byte("tampered"), sig))

	other, err := GenerateKeyPair()
	require.NoError(t, err)
	require.False(t, Verify(other.PublicKey, msg, sig))
}

func TestKyberEncapsulateDecapsulateRoundTrip(t *testing.T) {
	kp, err := GenerateKyberKeyPair()
	require.NoError(t, err)
	require.Len(t, kp.PublicKey, KyberPublicKeySize)
	require.Len(t, kp.PrivateKey, KyberPrivateKeySize)

	ciphertext, sharedA, err := Encapsulate(kp.PublicKey)
	require.NoError(t, err)
	require.Len(t, ciphertext, KyberCiphertextSize)
	require.Len(t, sharedA, KyberSharedKeySize)

	sharedB, err := Decapsulate(kp.PrivateKey, ciphertext)
	require.NoError(t, err)
	require.Equal(t, sharedA, sharedB)
}

func TestSignRejectsWrongSizedKey(t *testing.T) {
	_, err := Sign([]byte("too short"), []byte("msg"))
	require.Error(t, err)
}
