// Copyright (c) 2025 Shell Reserve developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keyserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/toole-brendan/qio/codec"
	"github.com/toole-brendan/qio/crypto"
	"github.com/toole-brendan/qio/dht"
)

func newTestKeyserver(t *testing.T) *Keyserver {
	t.Helper()
	return New(dht.New(dht.RandomNodeID(), dht.LocalNetwork{}))
}

// TestPublishLookupReverseLookup exercises S1: a fresh identity publishes
// its bundle, is found both by fingerprint and (once aliased) by name, and
// reverse-resolves to its display name.
func TestPublishLookupReverseLookup(t *testing.T) {
	ks := newTestKeyserver(t)
	ctx := context.Background()

	dil, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	kyb, err := crypto.GenerateKyberKeyPair()
	require.NoError(t, err)

	fp := dilithiumFingerprint(t, dil.PublicKey)
	bundle, err := ks.Publish(ctx, fp, "alice", dil.PublicKey, kyb.PublicKey, dil.PrivateKey)
	require.NoError(t, err)
	require.Equal(t, fp, bundle.Fingerprint)
	require.Equal(t, uint32(1), bundle.Version)

	got, err := ks.Lookup(fp)
	require.NoError(t, err)
	require.Equal(t, bundle.Signature, got.Signature)

	name, err := ks.ReverseLookup(fp)
	require.NoError(t, err)
	require.Equal(t, "alice", name)

	require.NoError(t, ks.PublishAlias(ctx, "alice", fp))
	byName, err := ks.Lookup("alice")
	require.NoError(t, err)
	require.Equal(t, fp, byName.Fingerprint)
}

func TestLookupUnknownFingerprintNotFound(t *testing.T) {
	ks := newTestKeyserver(t)
	_, err := ks.FetchBundle("00" + "0000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000")
	require.Error(t, err)
}

func TestPublishRejectsMismatchedFingerprint(t *testing.T) {
	ks := newTestKeyserver(t)
	ctx := context.Background()

	dil, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	kyb, err := crypto.GenerateKyberKeyPair()
	require.NoError(t, err)

	wrongFP := dilithiumFingerprint(t, kyb.PublicKey) // not derived from dil.PublicKey
	_, err = ks.Publish(ctx, wrongFP, "bob", dil.PublicKey, kyb.PublicKey, dil.PrivateKey)
	require.Error(t, err)
}

// TestUpdateRotatesFingerprintAndRepublishesAlias covers Update's key
// rotation path, including republishing an owned alias at the new
// fingerprint.
func TestUpdateRotatesFingerprintAndRepublishesAlias(t *testing.T) {
	ks := newTestKeyserver(t)
	ctx := context.Background()

	oldDil, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	oldKyb, err := crypto.GenerateKyberKeyPair()
	require.NoError(t, err)
	oldFP := dilithiumFingerprint(t, oldDil.PublicKey)

	_, err = ks.Publish(ctx, oldFP, "carol", oldDil.PublicKey, oldKyb.PublicKey, oldDil.PrivateKey)
	require.NoError(t, err)
	require.NoError(t, ks.PublishAlias(ctx, "carol", oldFP))

	newDil, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	newKyb, err := crypto.GenerateKyberKeyPair()
	require.NoError(t, err)

	updated, err := ks.Update(ctx, oldFP, newDil.PublicKey, newKyb.PublicKey, newDil.PrivateKey, []string{"carol"})
	require.NoError(t, err)
	require.Equal(t, uint32(2), updated.Version)
	require.NotEqual(t, oldFP, updated.Fingerprint)

	resolved, err := ks.ResolveAlias("carol")
	require.NoError(t, err)
	require.Equal(t, updated.Fingerprint, resolved)
}

func dilithiumFingerprint(t *testing.T, pub []byte) string {
	t.Helper()
	return codec.Fingerprint(pub)
}
