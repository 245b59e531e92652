// Copyright (c) 2025 Shell Reserve developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package keyserver publishes, looks up, updates, and reverse-resolves
// fingerprint-indexed key bundles (§4.4), and owns the bare name-alias
// operations PublishAlias/Lookup that live alongside the bundle itself.
package keyserver

import (
	"encoding/json"
	"fmt"

	"github.com/toole-brendan/qio/codec"
)

// Bundle is the forward key record: a signed binding of a fingerprint to
// its Dilithium5/Kyber1024 public keys and an optional display name.
// On the wire it is UTF-8 JSON with hex-encoded byte fields (§6).
type Bundle struct {
	DilithiumPubKey string `json:"dilithium_pubkey"`
	KyberPubKey     string `json:"kyber_pubkey"`
	Fingerprint     string `json:"fingerprint"`
	DisplayName     string `json:"display_name,omitempty"`
	Timestamp       uint64 `json:"timestamp"`
	Version         uint32 `json:"version"`
	Signature       string `json:"signature"`
}

// ReverseMapping is the signed reverse (fingerprint -> display name)
// record. §6 names its display-name field "identity" on the wire.
type ReverseMapping struct {
	DilithiumPubKey string `json:"dilithium_pubkey"`
	Identity        string `json:"identity"`
	Timestamp       uint64 `json:"timestamp"`
	Fingerprint     string `json:"fingerprint"`
	Signature       string `json:"signature"`
}

// forwardSigningInput builds the byte-exact signing buffer of §4.4:
// identity_bytes || dilithium_pub || kyber_pub || be(timestamp) ||
// be(version) || fingerprint_hex_bytes. identity_bytes is the raw
// fingerprint digest; fingerprint_hex_bytes is its lowercase-hex ASCII
// rendering — both are bound so a reader can check the digest and the
// printable identifier consistently.
func forwardSigningInput(fingerprint string, dilithiumPub, kyberPub []byte, timestamp uint64, version uint32) ([]byte, error) {
	fpRaw, err := codec.HexDecode(fingerprint)
	if err != nil {
		return nil, fmt.Errorf("keyserver: decode fingerprint: %w", err)
	}
	buf := make([]byte, 0, len(fpRaw)+len(dilithiumPub)+len(kyberPub)+8+4+len(fingerprint))
	buf = append(buf, fpRaw...)
	buf = append(buf, dilithiumPub...)
	buf = append(buf, kyberPub...)
	buf = codec.PutUint64(buf, timestamp)
	buf = codec.PutUint32(buf, version)
	buf = append(buf, []byte(fingerprint)...)
	return buf, nil
}

// reverseSigningInput builds the §4.4 reverse-mapping signing buffer:
// dilithium_pub || display_name_bytes || be(timestamp).
func reverseSigningInput(dilithiumPub []byte, displayName string, timestamp uint64) []byte {
	buf := make([]byte, 0, len(dilithiumPub)+len(displayName)+8)
	buf = append(buf, dilithiumPub...)
	buf = append(buf, []byte(displayName)...)
	buf = codec.PutUint64(buf, timestamp)
	return buf
}

func marshalBundle(b *Bundle) ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("keyserver: marshal bundle: %w", err)
	}
	return data, nil
}

func unmarshalBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("keyserver: unmarshal bundle: %w", err)
	}
	return &b, nil
}

func marshalReverse(r *ReverseMapping) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("keyserver: marshal reverse mapping: %w", err)
	}
	return data, nil
}

func unmarshalReverse(data []byte) (*ReverseMapping, error) {
	var r ReverseMapping
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("keyserver: unmarshal reverse mapping: %w", err)
	}
	return &r, nil
}
