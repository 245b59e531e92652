// Copyright (c) 2025 Shell Reserve developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package identity implements the unified identity/profile record of §4.5:
// a superset of a keyserver.Bundle that additionally carries a registered
// name, wallet addresses, social handles, a bio, and an avatar hash, all
// under one self-signed, permanently-stored, newest-timestamp-wins record.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/toole-brendan/qio/chainverify"
	"github.com/toole-brendan/qio/codec"
	"github.com/toole-brendan/qio/crypto"
	"github.com/toole-brendan/qio/dht"
	"github.com/toole-brendan/qio/keyserver"
	"github.com/toole-brendan/qio/qerr"
)

var log btclog.Logger

func init() { UseLogger(btclog.Disabled) }

// UseLogger sets the package-wide logger used by Registry.
func UseLogger(logger btclog.Logger) { log = logger }

// nameRegistrationPeriod is the renewal window a successful
// register_name/renew_name extends name_expires_at by.
const nameRegistrationPeriod = 365 * 24 * time.Hour

// Record is the unified identity/profile record of §4.5.
type Record struct {
	DilithiumPubKey string `json:"dilithium_pubkey"`
	KyberPubKey     string `json:"kyber_pubkey"`
	Fingerprint     string `json:"fingerprint"`

	HasRegisteredName   bool   `json:"has_registered_name"`
	RegisteredName      string `json:"registered_name,omitempty"`
	NameRegisteredAt    uint64 `json:"name_registered_at,omitempty"`
	NameExpiresAt       uint64 `json:"name_expires_at,omitempty"`
	RegistrationTxHash  string `json:"registration_tx_hash,omitempty"`
	RegistrationNetwork string `json:"registration_network,omitempty"`
	NameVersion         uint32 `json:"name_version"`

	Wallets             map[string]string `json:"wallets,omitempty"`
	Socials             map[string]string `json:"socials,omitempty"`
	Bio                 string            `json:"bio,omitempty"`
	ProfilePictureHash  string            `json:"profile_picture_hash,omitempty"`

	Timestamp uint64 `json:"timestamp"`
	Version   uint32 `json:"version"`
	Signature string `json:"signature"`
}

// ProfilePatch carries the fields update_profile may overwrite; a nil map
// leaves that field untouched, an empty non-nil map clears it.
type ProfilePatch struct {
	Wallets            map[string]string
	Socials            map[string]string
	Bio                *string
	ProfilePictureHash *string
}

func profileKey(fingerprint string) [64]byte { return codec.DHTKey(fingerprint, ":profile") }

// Registry loads, publishes, and resolves unified identity records, and
// registers/renews names against an external payment-verification
// collaborator.
type Registry struct {
	sub      *dht.Substrate
	keys     *keyserver.Keyserver
	verifier chainverify.Verifier
}

// New returns a Registry backed by sub, using verifier to check
// registration-payment transactions.
func New(sub *dht.Substrate, verifier chainverify.Verifier) *Registry {
	return &Registry{sub: sub, keys: keyserver.New(sub), verifier: verifier}
}

// signingInput builds the byte-exact canonical signing buffer of §4.5:
// fingerprint | dilithium_pub | kyber_pub | has_registered_name(1B) |
// registered_name | be(name_registered_at) | be(name_expires_at) |
// registration_tx_hash | registration_network | be(name_version) |
// wallets | socials | bio | profile_picture_hash | be(timestamp) |
// be(version). Field order is fixed; map fields are serialized via their
// canonical (sorted-key) JSON encoding so the buffer is deterministic.
func signingInput(r *Record, dilithiumPub, kyberPub []byte) ([]byte, error) {
	fpRaw, err := codec.HexDecode(r.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("identity: decode fingerprint: %w", err)
	}

	walletsJSON, err := canonicalMap(r.Wallets)
	if err != nil {
		return nil, fmt.Errorf("identity: encode wallets: %w", err)
	}
	socialsJSON, err := canonicalMap(r.Socials)
	if err != nil {
		return nil, fmt.Errorf("identity: encode socials: %w", err)
	}

	buf := make([]byte, 0, 256+len(dilithiumPub)+len(kyberPub))
	buf = append(buf, fpRaw...)
	buf = append(buf, dilithiumPub...)
	buf = append(buf, kyberPub...)
	if r.HasRegisteredName {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, []byte(r.RegisteredName)...)
	buf = codec.PutUint64(buf, r.NameRegisteredAt)
	buf = codec.PutUint64(buf, r.NameExpiresAt)
	buf = append(buf, []byte(r.RegistrationTxHash)...)
	buf = append(buf, []byte(r.RegistrationNetwork)...)
	buf = codec.PutUint32(buf, r.NameVersion)
	buf = append(buf, walletsJSON...)
	buf = append(buf, socialsJSON...)
	buf = append(buf, []byte(r.Bio)...)
	buf = append(buf, []byte(r.ProfilePictureHash)...)
	buf = codec.PutUint64(buf, r.Timestamp)
	buf = codec.PutUint32(buf, r.Version)
	return buf, nil
}

// canonicalMap renders m as JSON with sorted keys; encoding/json already
// sorts map[string]string keys, so a plain Marshal is canonical.
func canonicalMap(m map[string]string) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func marshalRecord(r *Record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal record: %w", err)
	}
	return data, nil
}

func unmarshalRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("identity: unmarshal record: %w", err)
	}
	return &r, nil
}

func verifyRecord(r *Record) error {
	dilPub, err := codec.HexDecode(r.DilithiumPubKey)
	if err != nil {
		return fmt.Errorf("identity: decode dilithium pubkey: %w", qerr.ErrInvalidArgument)
	}
	if codec.Fingerprint(dilPub) != r.Fingerprint {
		return fmt.Errorf("identity: record fingerprint mismatch: %w", qerr.ErrSignatureInvalid)
	}
	kybPub, err := codec.HexDecode(r.KyberPubKey)
	if err != nil {
		return fmt.Errorf("identity: decode kyber pubkey: %w", qerr.ErrInvalidArgument)
	}
	sig, err := codec.HexDecode(r.Signature)
	if err != nil {
		return fmt.Errorf("identity: decode signature: %w", qerr.ErrInvalidArgument)
	}
	input, err := signingInput(r, dilPub, kybPub)
	if err != nil {
		return err
	}
	if !crypto.Verify(dilPub, input, sig) {
		return fmt.Errorf("identity: record signature invalid: %w", qerr.ErrSignatureInvalid)
	}
	return nil
}

// LoadIdentity implements load_identity(fp): it fetches every version
// accumulated at the profile key, discards any that fail to parse, whose
// fingerprint doesn't match its own embedded public key, or whose
// signature doesn't verify, and returns the surviving version with the
// greatest timestamp (P3, S6). A signature failure on one version never
// hides an older, still-valid version. publish keys each version's
// put_signed write by rec.Version, so successive versions occupy distinct,
// coexisting value-ids instead of one collapsing the other — this is what
// gives the loop below more than a single version to pick from when a
// node's local store genuinely holds more than one.
func (r *Registry) LoadIdentity(fingerprint string) (*Record, error) {
	values := r.sub.GetAll(profileKey(fingerprint))
	var best *Record
	for _, v := range values {
		rec, err := unmarshalRecord(v.Payload)
		if err != nil {
			continue
		}
		if err := verifyRecord(rec); err != nil {
			log.Warnf("identity: discarding unverifiable profile version for %s: %v", fingerprint, err)
			continue
		}
		// Timestamp is the §4.5 tiebreak; Version (strictly monotonic per
		// publish call, unlike a seconds-resolution clock) only breaks an
		// exact timestamp tie between two genuinely sequential writes.
		if best == nil || rec.Timestamp > best.Timestamp ||
			(rec.Timestamp == best.Timestamp && rec.Version > best.Version) {
			best = rec
		}
	}
	if best == nil {
		return nil, fmt.Errorf("identity: load identity %s: %w", fingerprint, qerr.ErrNotFound)
	}
	return best, nil
}

// skeleton returns the identity's current record, or a fresh zero-value
// skeleton (version 0, no name, no profile fields) if none exists yet.
func (r *Registry) skeleton(fingerprint, dilithiumHex, kyberHex string) *Record {
	if rec, err := r.LoadIdentity(fingerprint); err == nil {
		return rec
	}
	return &Record{
		DilithiumPubKey: dilithiumHex,
		KyberPubKey:     kyberHex,
		Fingerprint:     fingerprint,
	}
}

// publish signs rec and writes it to the profile key at a value-id derived
// from rec.Version: the first published version naturally lands at
// value-id 1 (the literal §4.5 convention for a key's canonical record),
// and every later version gets its own non-colliding slot rather than
// replacing an earlier one outright. The underlying write is also
// timestamp-versioned (PutSignedPermanentVersioned), so even a write that
// collides on value-id (e.g. a caller re-publishing the same Version) can
// never downgrade a record already carrying a greater timestamp.
func (r *Registry) publish(ctx context.Context, rec *Record, dilithiumPriv []byte) error {
	dilPub, err := codec.HexDecode(rec.DilithiumPubKey)
	if err != nil {
		return fmt.Errorf("identity: decode dilithium pubkey: %w", err)
	}
	kybPub, err := codec.HexDecode(rec.KyberPubKey)
	if err != nil {
		return fmt.Errorf("identity: decode kyber pubkey: %w", err)
	}
	input, err := signingInput(rec, dilPub, kybPub)
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(dilithiumPriv, input)
	if err != nil {
		return fmt.Errorf("identity: sign record: %w", err)
	}
	rec.Signature = codec.HexEncode(sig)

	data, err := marshalRecord(rec)
	if err != nil {
		return err
	}
	if err := r.sub.PutSignedPermanentVersioned(ctx, profileKey(rec.Fingerprint), data, uint64(rec.Version), rec.Timestamp); err != nil {
		return fmt.Errorf("identity: publish record: %w", err)
	}
	return nil
}

// RegisterName implements register_name(fp, name, tx_hash, network, priv):
// verifies the on-chain payment, rejects squatting on a name already
// bound to a different fingerprint (treating same-fingerprint as
// renewal), and publishes the updated record plus the alias mapping.
func (r *Registry) RegisterName(ctx context.Context, fingerprint, name, txHash, network string, dilithiumPub, kyberPub, dilithiumPriv []byte) (*Record, error) {
	if !keyserver.ValidateName(name) {
		return nil, fmt.Errorf("identity: register name: invalid name %q: %w", name, qerr.ErrInvalidArgument)
	}

	result, err := r.verifier.VerifyRegistrationTx(txHash, network, name)
	if err != nil {
		return nil, fmt.Errorf("identity: register name: rpc verification failed: %w", qerr.ErrRPCError)
	}
	switch result {
	case chainverify.ResultInvalid:
		return nil, fmt.Errorf("identity: register name: %w", qerr.ErrUnauthorized)
	case chainverify.ResultRPCError:
		return nil, fmt.Errorf("identity: register name: %w", qerr.ErrRPCError)
	}

	if existing, err := r.keys.ResolveAlias(name); err == nil && existing != fingerprint {
		return nil, fmt.Errorf("identity: register name: %q already bound to another identity: %w", name, qerr.ErrConflict)
	}

	dilHex := codec.HexEncode(dilithiumPub)
	kybHex := codec.HexEncode(kyberPub)
	rec := r.skeleton(fingerprint, dilHex, kybHex)
	rec.DilithiumPubKey = dilHex
	rec.KyberPubKey = kybHex

	now := uint64(time.Now().Unix())
	rec.HasRegisteredName = true
	rec.RegisteredName = keyserver.NormalizeName(name)
	rec.NameRegisteredAt = now
	rec.NameExpiresAt = now + uint64(nameRegistrationPeriod.Seconds())
	rec.RegistrationTxHash = txHash
	rec.RegistrationNetwork = network
	rec.NameVersion++
	rec.Timestamp = now
	rec.Version++

	if err := r.publish(ctx, rec, dilithiumPriv); err != nil {
		return nil, err
	}
	if err := r.keys.PublishAlias(ctx, name, fingerprint); err != nil {
		return nil, fmt.Errorf("identity: register name: publish alias: %w", err)
	}
	return rec, nil
}

// RenewName implements renew_name(fp, renewal_tx_hash, priv): requires an
// existing registered name, verifies the renewal transaction against the
// stored network/name, and extends name_expires_at by 365 days.
func (r *Registry) RenewName(ctx context.Context, fingerprint, renewalTxHash string, dilithiumPriv []byte) (*Record, error) {
	rec, err := r.LoadIdentity(fingerprint)
	if err != nil {
		return nil, err
	}
	if !rec.HasRegisteredName {
		return nil, fmt.Errorf("identity: renew name: no registered name for %s: %w", fingerprint, qerr.ErrInvalidArgument)
	}

	result, err := r.verifier.VerifyRegistrationTx(renewalTxHash, rec.RegistrationNetwork, rec.RegisteredName)
	if err != nil {
		return nil, fmt.Errorf("identity: renew name: rpc verification failed: %w", qerr.ErrRPCError)
	}
	switch result {
	case chainverify.ResultInvalid:
		return nil, fmt.Errorf("identity: renew name: %w", qerr.ErrUnauthorized)
	case chainverify.ResultRPCError:
		return nil, fmt.Errorf("identity: renew name: %w", qerr.ErrRPCError)
	}

	now := uint64(time.Now().Unix())
	rec.NameExpiresAt += uint64(nameRegistrationPeriod.Seconds())
	rec.RegistrationTxHash = renewalTxHash
	rec.NameVersion++
	rec.Timestamp = now
	rec.Version++

	if err := r.publish(ctx, rec, dilithiumPriv); err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateProfile implements update_profile(fp, profile_patch, priv): loads
// (or creates a skeleton for) the identity, applies patch, bumps version,
// and republishes.
func (r *Registry) UpdateProfile(ctx context.Context, fingerprint string, dilithiumPub, kyberPub, dilithiumPriv []byte, patch ProfilePatch) (*Record, error) {
	dilHex := codec.HexEncode(dilithiumPub)
	kybHex := codec.HexEncode(kyberPub)
	rec := r.skeleton(fingerprint, dilHex, kybHex)
	rec.DilithiumPubKey = dilHex
	rec.KyberPubKey = kybHex

	if patch.Wallets != nil {
		rec.Wallets = patch.Wallets
	}
	if patch.Socials != nil {
		rec.Socials = patch.Socials
	}
	if patch.Bio != nil {
		rec.Bio = *patch.Bio
	}
	if patch.ProfilePictureHash != nil {
		rec.ProfilePictureHash = *patch.ProfilePictureHash
	}

	rec.Timestamp = uint64(time.Now().Unix())
	rec.Version++

	if err := r.publish(ctx, rec, dilithiumPriv); err != nil {
		return nil, err
	}
	return rec, nil
}

// ResolveAddress implements resolve_address(name_or_fp, network): resolves
// a name to a fingerprint via alias if needed, loads the identity, and
// returns its wallet address for network.
func (r *Registry) ResolveAddress(nameOrFingerprint, network string) (string, error) {
	fp := nameOrFingerprint
	if !codec.IsValidFingerprint(fp) {
		resolved, err := r.keys.ResolveAlias(nameOrFingerprint)
		if err != nil {
			return "", err
		}
		fp = resolved
	}
	rec, err := r.LoadIdentity(fp)
	if err != nil {
		return "", err
	}
	addr, ok := rec.Wallets[network]
	if !ok {
		return "", fmt.Errorf("identity: resolve address: no address for network %q: %w", network, qerr.ErrNotFound)
	}
	return addr, nil
}

// DisplayName implements display_name(fp): returns the registered name if
// one is active, otherwise a truncated fingerprint ("first 16 hex chars
// followed by an ellipsis").
func (r *Registry) DisplayName(fingerprint string) string {
	rec, err := r.LoadIdentity(fingerprint)
	now := uint64(time.Now().Unix())
	if err == nil && rec.HasRegisteredName && now < rec.NameExpiresAt {
		return rec.RegisteredName
	}
	if len(fingerprint) < 16 {
		return fingerprint
	}
	return fingerprint[:16] + "…"
}
