// Copyright (c) 2025 Shell Reserve developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keyserver

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/toole-brendan/qio/codec"
	"github.com/toole-brendan/qio/crypto"
	"github.com/toole-brendan/qio/dht"
	"github.com/toole-brendan/qio/qerr"
)

var log btclog.Logger

func init() { UseLogger(btclog.Disabled) }

// UseLogger sets the package-wide logger used by Keyserver.
func UseLogger(logger btclog.Logger) { log = logger }

// canonicalValueID is the value-id convention used for the one canonical
// record at any key this package manages.
const canonicalValueID = 1

// Keyserver publishes, looks up, updates, and reverse-resolves
// fingerprint-indexed key bundles, and manages the bare name-alias layer
// name registration builds on.
type Keyserver struct {
	sub *dht.Substrate
}

// New returns a Keyserver backed by sub.
func New(sub *dht.Substrate) *Keyserver { return &Keyserver{sub: sub} }

func pubkeyKey(fingerprint string) [64]byte  { return codec.DHTKey(fingerprint, ":pubkey") }
func reverseKey(fingerprint string) [64]byte { return codec.DHTKey(fingerprint, ":reverse") }
func lookupKey(name string) [64]byte         { return codec.DHTKey(NormalizeName(name), ":lookup") }

// Publish builds, signs, and stores a version-1 key bundle for fingerprint,
// plus its signed reverse (fingerprint -> display name) mapping.
//
// Precondition: SHA3-512(dilithiumPub) must equal fingerprint. Per §4.4
// this is formally the caller's responsibility (downstream readers
// enforce it independently), but Publish checks it anyway so a
// programming mistake fails loudly at the point of misuse rather than
// silently producing a record every reader will reject.
func (k *Keyserver) Publish(ctx context.Context, fingerprint, displayName string, dilithiumPub, kyberPub, dilithiumPriv []byte) (*Bundle, error) {
	if !codec.IsValidFingerprint(fingerprint) {
		return nil, fmt.Errorf("keyserver: publish: %w", qerr.ErrInvalidArgument)
	}
	if codec.Fingerprint(dilithiumPub) != fingerprint {
		return nil, fmt.Errorf("keyserver: publish: fingerprint does not match public key: %w", qerr.ErrInvalidArgument)
	}
	if len(displayName) > 128 {
		return nil, fmt.Errorf("keyserver: publish: display name too long: %w", qerr.ErrInvalidArgument)
	}

	now := uint64(time.Now().Unix())
	signingInput, err := forwardSigningInput(fingerprint, dilithiumPub, kyberPub, now, 1)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(dilithiumPriv, signingInput)
	if err != nil {
		return nil, fmt.Errorf("keyserver: publish: sign bundle: %w", err)
	}

	bundle := &Bundle{
		DilithiumPubKey: codec.HexEncode(dilithiumPub),
		KyberPubKey:     codec.HexEncode(kyberPub),
		Fingerprint:     fingerprint,
		DisplayName:     displayName,
		Timestamp:       now,
		Version:         1,
		Signature:       codec.HexEncode(sig),
	}
	data, err := marshalBundle(bundle)
	if err != nil {
		return nil, err
	}
	if err := k.sub.PutSignedPermanent(ctx, pubkeyKey(fingerprint), data, canonicalValueID); err != nil {
		return nil, fmt.Errorf("keyserver: publish bundle: %w", err)
	}

	if displayName != "" {
		if err := k.publishReverse(ctx, fingerprint, displayName, dilithiumPub, dilithiumPriv, now); err != nil {
			return nil, err
		}
	}
	return bundle, nil
}

func (k *Keyserver) publishReverse(ctx context.Context, fingerprint, displayName string, dilithiumPub, dilithiumPriv []byte, now uint64) error {
	sig, err := crypto.Sign(dilithiumPriv, reverseSigningInput(dilithiumPub, displayName, now))
	if err != nil {
		return fmt.Errorf("keyserver: sign reverse mapping: %w", err)
	}
	rev := &ReverseMapping{
		DilithiumPubKey: codec.HexEncode(dilithiumPub),
		Identity:        displayName,
		Timestamp:       now,
		Fingerprint:     fingerprint,
		Signature:       codec.HexEncode(sig),
	}
	data, err := marshalReverse(rev)
	if err != nil {
		return err
	}
	if err := k.sub.PutSigned(ctx, reverseKey(fingerprint), data, canonicalValueID, dht.ThreeSixtyFiveDayTTL); err != nil {
		return fmt.Errorf("keyserver: publish reverse mapping: %w", err)
	}
	return nil
}

// PublishAlias binds name to fingerprint. Replacement semantics of
// put_signed ensure a name resolves deterministically to the last write;
// callers that must enforce single ownership (the name registry) check
// existing ownership themselves before calling this.
func (k *Keyserver) PublishAlias(ctx context.Context, name, fingerprint string) error {
	if !ValidateName(name) {
		return fmt.Errorf("keyserver: publish alias: invalid name %q: %w", name, qerr.ErrInvalidArgument)
	}
	if !codec.IsValidFingerprint(fingerprint) {
		return fmt.Errorf("keyserver: publish alias: invalid fingerprint: %w", qerr.ErrInvalidArgument)
	}
	payload := []byte(fingerprint)
	if err := k.sub.PutSigned(ctx, lookupKey(name), payload, canonicalValueID, dht.ThreeSixtyFiveDayTTL); err != nil {
		return fmt.Errorf("keyserver: publish alias: %w", err)
	}
	return nil
}

// ResolveAlias returns the fingerprint currently bound to name, or
// qerr.ErrNotFound.
func (k *Keyserver) ResolveAlias(name string) (string, error) {
	v, ok := k.sub.Get(lookupKey(name))
	if !ok {
		return "", fmt.Errorf("keyserver: resolve alias %q: %w", name, qerr.ErrNotFound)
	}
	if len(v.Payload) != codec.FingerprintHexSize {
		return "", fmt.Errorf("keyserver: resolve alias %q: malformed payload: %w", name, qerr.ErrInvalidArgument)
	}
	fp := string(v.Payload)
	if !codec.IsValidFingerprint(fp) {
		return "", fmt.Errorf("keyserver: resolve alias %q: malformed fingerprint: %w", name, qerr.ErrInvalidArgument)
	}
	return fp, nil
}

// Lookup resolves name-or-fingerprint to a verified key bundle.
func (k *Keyserver) Lookup(nameOrFingerprint string) (*Bundle, error) {
	fp := nameOrFingerprint
	if !codec.IsValidFingerprint(fp) {
		resolved, err := k.ResolveAlias(nameOrFingerprint)
		if err != nil {
			return nil, err
		}
		fp = resolved
	}
	return k.FetchBundle(fp)
}

// FetchBundle fetches and verifies the bundle at fingerprint's canonical
// key, enforcing the self-signed and fingerprint-derivation invariants of
// §3.
func (k *Keyserver) FetchBundle(fingerprint string) (*Bundle, error) {
	v, ok := k.sub.Get(pubkeyKey(fingerprint))
	if !ok {
		return nil, fmt.Errorf("keyserver: fetch bundle %s: %w", fingerprint, qerr.ErrNotFound)
	}
	bundle, err := unmarshalBundle(v.Payload)
	if err != nil {
		return nil, err
	}
	if err := verifyBundle(bundle); err != nil {
		log.Warnf("keyserver: rejecting bundle for %s: %v", fingerprint, err)
		return nil, err
	}
	return bundle, nil
}

func verifyBundle(bundle *Bundle) error {
	dilPub, err := codec.HexDecode(bundle.DilithiumPubKey)
	if err != nil {
		return fmt.Errorf("keyserver: decode dilithium pubkey: %w", qerr.ErrInvalidArgument)
	}
	if codec.Fingerprint(dilPub) != bundle.Fingerprint {
		return fmt.Errorf("keyserver: bundle fingerprint mismatch: %w", qerr.ErrSignatureInvalid)
	}
	kybPub, err := codec.HexDecode(bundle.KyberPubKey)
	if err != nil {
		return fmt.Errorf("keyserver: decode kyber pubkey: %w", qerr.ErrInvalidArgument)
	}
	sig, err := codec.HexDecode(bundle.Signature)
	if err != nil {
		return fmt.Errorf("keyserver: decode signature: %w", qerr.ErrInvalidArgument)
	}
	signingInput, err := forwardSigningInput(bundle.Fingerprint, dilPub, kybPub, bundle.Timestamp, bundle.Version)
	if err != nil {
		return err
	}
	if !crypto.Verify(dilPub, signingInput, sig) {
		return fmt.Errorf("keyserver: bundle signature invalid: %w", qerr.ErrSignatureInvalid)
	}
	return nil
}

// ReverseLookup returns the display name asserted by the holder of
// fingerprint's signing key, verifying both the embedded fingerprint and
// the Dilithium5 signature (§4.4, P8).
func (k *Keyserver) ReverseLookup(fingerprint string) (string, error) {
	v, ok := k.sub.Get(reverseKey(fingerprint))
	if !ok {
		return "", fmt.Errorf("keyserver: reverse lookup %s: %w", fingerprint, qerr.ErrNotFound)
	}
	rev, err := unmarshalReverse(v.Payload)
	if err != nil {
		return "", err
	}
	if err := verifyReverse(rev); err != nil {
		log.Warnf("keyserver: rejecting reverse mapping for %s: %v", fingerprint, err)
		return "", err
	}
	return rev.Identity, nil
}

// ReverseLookupAsync resolves a display name without blocking the caller;
// cb receives the name, or nil if no valid mapping was found.
func (k *Keyserver) ReverseLookupAsync(fingerprint string, cb func(name *string)) {
	found := false
	k.sub.GetAsync(reverseKey(fingerprint), func(v *dht.Value, ok bool) {
		if !ok {
			if !found {
				cb(nil)
			}
			return
		}
		rev, err := unmarshalReverse(v.Payload)
		if err != nil {
			return
		}
		if err := verifyReverse(rev); err != nil {
			log.Warnf("keyserver: rejecting reverse mapping for %s: %v", fingerprint, err)
			return
		}
		name := rev.Identity
		found = true
		cb(&name)
	})
}

func verifyReverse(rev *ReverseMapping) error {
	dilPub, err := codec.HexDecode(rev.DilithiumPubKey)
	if err != nil {
		return fmt.Errorf("keyserver: decode reverse pubkey: %w", qerr.ErrInvalidArgument)
	}
	if codec.Fingerprint(dilPub) != rev.Fingerprint {
		return fmt.Errorf("keyserver: reverse fingerprint mismatch: %w", qerr.ErrSignatureInvalid)
	}
	sig, err := codec.HexDecode(rev.Signature)
	if err != nil {
		return fmt.Errorf("keyserver: decode reverse signature: %w", qerr.ErrInvalidArgument)
	}
	signingInput := reverseSigningInput(dilPub, rev.Identity, rev.Timestamp)
	if !crypto.Verify(dilPub, signingInput, sig) {
		return fmt.Errorf("keyserver: reverse signature invalid: %w", qerr.ErrSignatureInvalid)
	}
	return nil
}

// Update rotates an identity's keys: it fetches the current bundle at
// oldFingerprint, increments its version, recomputes the fingerprint from
// the new Dilithium5 public key, re-signs, and publishes at the NEW
// fingerprint-derived key (§4.4's resolution of Open Question 1:
// fingerprint is pubkey-derived, so key rotation moves the record's
// address; the old address is left to expire naturally). ownedAliases, if
// given, are republished to point at the new fingerprint.
func (k *Keyserver) Update(ctx context.Context, oldFingerprint string, newDilithiumPub, newKyberPub, newDilithiumPriv []byte, ownedAliases []string) (*Bundle, error) {
	current, err := k.FetchBundle(oldFingerprint)
	if err != nil {
		return nil, err
	}

	newFingerprint := codec.Fingerprint(newDilithiumPub)
	now := uint64(time.Now().Unix())
	newVersion := current.Version + 1

	signingInput, err := forwardSigningInput(newFingerprint, newDilithiumPub, newKyberPub, now, newVersion)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(newDilithiumPriv, signingInput)
	if err != nil {
		return nil, fmt.Errorf("keyserver: update: sign bundle: %w", err)
	}

	updated := &Bundle{
		DilithiumPubKey: codec.HexEncode(newDilithiumPub),
		KyberPubKey:     codec.HexEncode(newKyberPub),
		Fingerprint:     newFingerprint,
		DisplayName:     current.DisplayName,
		Timestamp:       now,
		Version:         newVersion,
		Signature:       codec.HexEncode(sig),
	}
	data, err := marshalBundle(updated)
	if err != nil {
		return nil, err
	}
	if err := k.sub.PutSignedPermanent(ctx, pubkeyKey(newFingerprint), data, canonicalValueID); err != nil {
		return nil, fmt.Errorf("keyserver: update: publish bundle: %w", err)
	}

	if updated.DisplayName != "" {
		if err := k.publishReverse(ctx, newFingerprint, updated.DisplayName, newDilithiumPub, newDilithiumPriv, now); err != nil {
			return nil, err
		}
	}

	for _, alias := range ownedAliases {
		if err := k.PublishAlias(ctx, alias, newFingerprint); err != nil {
			log.Warnf("keyserver: update: failed to republish alias %q to new fingerprint: %v", alias, err)
		}
	}
	return updated, nil
}
