// Copyright (c) 2025 Shell Reserve developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package codec provides the deterministic, endianness-stable encodings
// used as signing inputs and wire payloads throughout the overlay. All
// multi-byte integers are big-endian, hex is lowercase, base58 uses the
// Bitcoin alphabet, and base64 is RFC-4648.
package codec

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"golang.org/x/crypto/sha3"
)

// FingerprintSize is the byte length of a SHA3-512 fingerprint digest.
const FingerprintSize = 64

// FingerprintHexSize is the length of a fingerprint rendered as lowercase
// hex (2 hex chars per byte).
const FingerprintHexSize = FingerprintSize * 2

// SHA3_512 returns the 64-byte SHA3-512 digest of data.
func SHA3_512(data ...[]byte) [64]byte {
	h := sha3.New512()
	for _, d := range data {
		h.Write(d)
	}
	var out [64]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Fingerprint computes the canonical fingerprint of a Dilithium5 public
// key: the lowercase-hex SHA3-512 digest of the key bytes.
func Fingerprint(dilithiumPub []byte) string {
	sum := SHA3_512(dilithiumPub)
	return hex.EncodeToString(sum[:])
}

// IsValidFingerprint reports whether s is 128 lowercase hex characters.
func IsValidFingerprint(s string) bool {
	if len(s) != FingerprintHexSize {
		return false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9') && !(r >= 'a' && r <= 'f') {
			return false
		}
	}
	return true
}

// DHTKey derives a 64-byte DHT key by hashing parts joined with no
// separator beyond what the caller supplies (callers pass literal
// separators such as ":pubkey" as a part).
func DHTKey(parts ...string) [64]byte {
	bs := make([][]byte, len(parts))
	for i, p := range parts {
		bs[i] = []byte(p)
	}
	return SHA3_512(bs...)
}

// HexEncode renders data as lowercase hex.
func HexEncode(data []byte) string { return hex.EncodeToString(data) }

// HexDecode parses lowercase (or mixed-case) hex into bytes.
func HexDecode(s string) ([]byte, error) { return hex.DecodeString(s) }

// Base58Encode renders data using the Bitcoin base58 alphabet.
func Base58Encode(data []byte) string { return base58.Encode(data) }

// Base58Decode parses Bitcoin-alphabet base58 text into bytes.
func Base58Decode(s string) ([]byte, error) {
	decoded := base58.Decode(s)
	if len(decoded) == 0 && s != "" {
		return nil, fmt.Errorf("codec: invalid base58 string")
	}
	return decoded, nil
}

// Base64Encode renders data as RFC-4648 standard base64.
func Base64Encode(data []byte) string { return base64.StdEncoding.EncodeToString(data) }

// Base64Decode parses RFC-4648 standard base64 text into bytes.
func Base64Decode(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }

// PutUint16 appends the big-endian encoding of v to buf.
func PutUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

// PutUint32 appends the big-endian encoding of v to buf.
func PutUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

// PutUint64 appends the big-endian encoding of v to buf.
func PutUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

// BE16 returns the 2-byte big-endian encoding of v.
func BE16(v uint16) []byte { var b [2]byte; binary.BigEndian.PutUint16(b[:], v); return b[:] }

// BE32 returns the 4-byte big-endian encoding of v.
func BE32(v uint32) []byte { var b [4]byte; binary.BigEndian.PutUint32(b[:], v); return b[:] }

// BE64 returns the 8-byte big-endian encoding of v.
func BE64(v uint64) []byte { var b [8]byte; binary.BigEndian.PutUint64(b[:], v); return b[:] }

// Reader wraps a byte slice with a cursor for sequential big-endian
// decoding, returning an error instead of panicking on a truncated frame.
type Reader struct {
	buf []byte
	pos int
}

// NewReader returns a Reader over buf.
func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return fmt.Errorf("codec: truncated frame: need %d bytes, have %d", n, r.Remaining())
	}
	return nil
}

// Uint16 reads a big-endian uint16.
func (r *Reader) Uint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

// Uint32 reads a big-endian uint32.
func (r *Reader) Uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// Uint64 reads a big-endian uint64.
func (r *Reader) Uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

// Bytes reads exactly n raw bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

// LenPrefixedU16 reads a u16 length prefix followed by that many bytes.
func (r *Reader) LenPrefixedU16() ([]byte, error) {
	n, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	return r.Bytes(int(n))
}

// LenPrefixedU32 reads a u32 length prefix followed by that many bytes.
func (r *Reader) LenPrefixedU32() ([]byte, error) {
	n, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	return r.Bytes(int(n))
}

// TypedFrame encodes the `[len:8][payload][len:8][signature]` framing used
// for signed records: an 8-byte big-endian payload length, the payload
// itself, an 8-byte big-endian signature length, and the signature.
func TypedFrame(payload, signature []byte) []byte {
	out := make([]byte, 0, 16+len(payload)+len(signature))
	out = PutUint64(out, uint64(len(payload)))
	out = append(out, payload...)
	out = PutUint64(out, uint64(len(signature)))
	out = append(out, signature...)
	return out
}

// ParseTypedFrame decodes the framing produced by TypedFrame.
func ParseTypedFrame(buf []byte) (payload, signature []byte, err error) {
	r := NewReader(buf)
	plen, err := r.Uint64()
	if err != nil {
		return nil, nil, err
	}
	payload, err = r.Bytes(int(plen))
	if err != nil {
		return nil, nil, err
	}
	slen, err := r.Uint64()
	if err != nil {
		return nil, nil, err
	}
	signature, err = r.Bytes(int(slen))
	if err != nil {
		return nil, nil, err
	}
	return payload, signature, nil
}
