// Copyright (c) 2025 Shell Reserve developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package keyserver

import "strings"

// MinNameLength and MaxNameLength bound a registrable name, per §6.
const (
	MinNameLength = 3
	MaxNameLength = 20
)

// ValidateName reports whether name is 3-20 ASCII alphanumeric characters.
func ValidateName(name string) bool {
	if len(name) < MinNameLength || len(name) > MaxNameLength {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// NormalizeName lowercases a name for keying, per §6 "case-insensitively
// compared (lowercase for keying)".
func NormalizeName(name string) string { return strings.ToLower(name) }
