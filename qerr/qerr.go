// Copyright (c) 2025 Shell Reserve developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package qerr defines the sentinel error kinds shared by every overlay
// service. Callers should compare with errors.Is against these sentinels
// rather than matching error strings.
package qerr

import "errors"

var (
	// ErrInvalidArgument indicates malformed or missing caller input:
	// wrong-length keys, non-hex strings, an empty name, etc.
	ErrInvalidArgument = errors.New("qio: invalid argument")

	// ErrNotFound indicates a DHT key held no value, a name is
	// unregistered, or no profile exists for a fingerprint.
	ErrNotFound = errors.New("qio: not found")

	// ErrSignatureInvalid indicates a signed record failed verification
	// or its embedded fingerprint disagreed with its public key.
	ErrSignatureInvalid = errors.New("qio: signature invalid")

	// ErrTransportFailure indicates a network error or a timeout on a
	// non-permanent DHT operation.
	ErrTransportFailure = errors.New("qio: transport failure")

	// ErrRPCError indicates the DHT or blockchain RPC layer returned an
	// application-level error. Callers MUST NOT retry this against an
	// alternate endpoint.
	ErrRPCError = errors.New("qio: rpc error")

	// ErrTimeout indicates the permanent-put confirmation handshake
	// exceeded its deadline.
	ErrTimeout = errors.New("qio: timeout")

	// ErrConflict indicates a name is already owned by a different
	// fingerprint, or an equivalent ownership collision.
	ErrConflict = errors.New("qio: conflict")

	// ErrUnauthorized indicates an external-ecosystem rejection, such as
	// on-chain transaction verification failing validation.
	ErrUnauthorized = errors.New("qio: unauthorized")
)
