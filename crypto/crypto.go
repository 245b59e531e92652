// Copyright (c) 2025 Shell Reserve developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package crypto wraps the post-quantum primitives the overlay depends on:
// Dilithium5 signing and Kyber1024 key encapsulation, both via CIRCL. The
// overlay itself never reasons about lattice math; it only signs,
// verifies, and carries opaque key bytes of the fixed sizes below.
package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/kem/kyber/kyber1024"
	"github.com/cloudflare/circl/sign/dilithium/mode5"
)

const (
	// DilithiumPublicKeySize is the byte length of a Dilithium5 public key.
	DilithiumPublicKeySize = mode5.PublicKeySize

	// DilithiumPrivateKeySize is the byte length of a Dilithium5 private key.
	DilithiumPrivateKeySize = mode5.PrivateKeySize

	// DilithiumSignatureSize is the byte length of a Dilithium5 signature.
	DilithiumSignatureSize = mode5.SignatureSize

	// KyberPublicKeySize is the byte length of a Kyber1024 public key.
	KyberPublicKeySize = kyber1024.PublicKeySize

	// KyberPrivateKeySize is the byte length of a Kyber1024 private key.
	KyberPrivateKeySize = kyber1024.PrivateKeySize

	// KyberCiphertextSize is the byte length of a Kyber1024 ciphertext.
	KyberCiphertextSize = kyber1024.CiphertextSize

	// KyberSharedKeySize is the byte length of a Kyber1024 shared secret.
	KyberSharedKeySize = kyber1024.SharedKeySize
)

// KeyPair is a generated Dilithium5 signing key pair.
type KeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// GenerateKeyPair creates a fresh Dilithium5 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := mode5.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate dilithium5 key pair: %w", err)
	}
	return &KeyPair{PublicKey: pub.Bytes(), PrivateKey: priv.Bytes()}, nil
}

// Sign produces a Dilithium5 signature of message under privateKey.
func Sign(privateKey, message []byte) ([]byte, error) {
	if len(privateKey) != DilithiumPrivateKeySize {
		return nil, fmt.Errorf("crypto: invalid private key size: want %d, got %d", DilithiumPrivateKeySize, len(privateKey))
	}
	var sk mode5.PrivateKey
	var skArray [mode5.PrivateKeySize]byte
	copy(skArray[:], privateKey)
	sk.Unpack(&skArray)

	sig := make([]byte, DilithiumSignatureSize)
	mode5.SignTo(&sk, message, sig)
	return sig, nil
}

// Verify reports whether signature is a valid Dilithium5 signature of
// message under publicKey.
func Verify(publicKey, message, signature []byte) bool {
	if len(publicKey) != DilithiumPublicKeySize || len(signature) != DilithiumSignatureSize {
		return false
	}
	var pk mode5.PublicKey
	var pkArray [mode5.PublicKeySize]byte
	copy(pkArray[:], publicKey)
	pk.Unpack(&pkArray)
	return mode5.Verify(&pk, message, signature)
}

// KyberKeyPair is a generated Kyber1024 encapsulation key pair.
type KyberKeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// GenerateKyberKeyPair creates a fresh Kyber1024 key pair.
func GenerateKyberKeyPair() (*KyberKeyPair, error) {
	pub, priv, err := kyber1024.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate kyber1024 key pair: %w", err)
	}
	pubBytes := make([]byte, KyberPublicKeySize)
	privBytes := make([]byte, KyberPrivateKeySize)
	pub.Pack(pubBytes)
	priv.Pack(privBytes)
	return &KyberKeyPair{PublicKey: pubBytes, PrivateKey: privBytes}, nil
}

// Encapsulate performs Kyber1024 encapsulation against a public key,
// returning the ciphertext to send and the shared secret to keep.
func Encapsulate(publicKey []byte) (ciphertext, sharedKey []byte, err error) {
	if len(publicKey) != KyberPublicKeySize {
		return nil, nil, fmt.Errorf("crypto: invalid kyber public key size: want %d, got %d", KyberPublicKeySize, len(publicKey))
	}
	var pk kyber1024.PublicKey
	pk.Unpack(publicKey)

	ciphertext = make([]byte, KyberCiphertextSize)
	sharedKey = make([]byte, KyberSharedKeySize)
	pk.EncapsulateTo(ciphertext, sharedKey, nil)
	return ciphertext, sharedKey, nil
}

// Decapsulate recovers the shared secret from a ciphertext using a
// Kyber1024 private key.
func Decapsulate(privateKey, ciphertext []byte) ([]byte, error) {
	if len(privateKey) != KyberPrivateKeySize {
		return nil, fmt.Errorf("crypto: invalid kyber private key size: want %d, got %d", KyberPrivateKeySize, len(privateKey))
	}
	if len(ciphertext) != KyberCiphertextSize {
		return nil, fmt.Errorf("crypto: invalid kyber ciphertext size: want %d, got %d", KyberCiphertextSize, len(ciphertext))
	}
	var sk kyber1024.PrivateKey
	sk.Unpack(privateKey)

	sharedKey := make([]byte, KyberSharedKeySize)
	sk.DecapsulateTo(sharedKey, ciphertext)
	return sharedKey, nil
}
