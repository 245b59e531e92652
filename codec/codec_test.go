// Copyright (c) 2025 Shell Reserve developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestFingerprintIsHexSHA3_512(t *testing.T) {
	pub := []byte("a fake dilithium5 public key for testing")
	fp := Fingerprint(pub)
	require.Len(t, fp, FingerprintHexSize)
	require.True(t, IsValidFingerprint(fp))

	sum := SHA3_512(pub)
	require.Equal(t, HexEncode(sum[:]), fp)
}

func TestIsValidFingerprintRejectsGarbage(t *testing.T) {
	require.False(t, IsValidFingerprint(""))
	require.False(t, IsValidFingerprint("not-hex-at-all"))
	require.False(t, IsValidFingerprint("ABCDEF")) // too short (and uppercase)
	require.False(t, IsValidFingerprint("00"))      // too short
}

func TestTypedFrameRoundTrip(t *testing.T) {
	payload := []byte("hello world")
	sig := []byte("a-signature-blob")

	frame := TypedFrame(payload, sig)
	gotPayload, gotSig, err := ParseTypedFrame(frame)
	require.NoError(t, err)
	require.Equal(t, payload, gotPayload)
	require.Equal(t, sig, gotSig)
}

func TestParseTypedFrameTruncated(t *testing.T) {
	_, _, err := ParseTypedFrame([]byte{0, 0, 0, 0, 0, 0, 0, 5, 'h', 'i'})
	require.Error(t, err)
}

func TestBase58RoundTrip(t *testing.T) {
	data := []byte{0x00, 0x01, 0xff, 0x7f, 0x80}
	encoded := Base58Encode(data)
	decoded, err := Base58Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, data, decoded)
}

// TestTypedFrameRoundTripProperty exercises the byte-exactness contract of
// §4.1: for any payload/signature pair, parsing a frame always recovers
// the exact bytes that were encoded.
func TestTypedFrameRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 0, 256).Draw(rt, "payload")
		sig := rapid.SliceOfN(rapid.Byte(), 0, 128).Draw(rt, "sig")

		frame := TypedFrame(payload, sig)
		gotPayload, gotSig, err := ParseTypedFrame(frame)
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		if string(gotPayload) != string(payload) {
			rt.Fatalf("payload mismatch")
		}
		if string(gotSig) != string(sig) {
			rt.Fatalf("signature mismatch")
		}
	})
}

func TestBigEndianHelpersAgreeWithReader(t *testing.T) {
	buf := append([]byte{}, BE16(0x0102)...)
	buf = append(buf, BE32(0x01020304)...)
	buf = append(buf, BE64(0x0102030405060708)...)

	r := NewReader(buf)
	u16, err := r.Uint16()
	require.NoError(t, err)
	require.Equal(t, uint16(0x0102), u16)

	u32, err := r.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0x01020304), u32)

	u64, err := r.Uint64()
	require.NoError(t, err)
	require.Equal(t, uint64(0x0102030405060708), u64)
}
