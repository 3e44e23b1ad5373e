package ident

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultPrefix is the prefix used when no prefix is configured.
const DefaultPrefix Prefix = "symslash"

// Identity is the store-internal sequential number of a symbol name.
type Identity uint64

// String returns the canonical decimal form of the identity.
func (id Identity) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Prefix is the fixed textual part of every opaque identifier.
//
// A Prefix is a configuration value of a store, not a package constant, so
// stores with different prefixes can coexist in one process.
type Prefix string

// ErrInvalidPrefix is returned by ParsePrefix for unusable prefixes.
var ErrInvalidPrefix = errors.New("invalid prefix")

// ParsePrefix validates s as an opaque-identifier prefix.
//
// A prefix must be non-empty and must not contain NUL, whitespace or control
// bytes, since it becomes part of a symbol name in a string table.
func ParsePrefix(s string) (Prefix, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPrefix)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= ' ' || c == 0x7f {
			return "", fmt.Errorf("%w: %q contains byte 0x%02x at offset %d", ErrInvalidPrefix, s, c, i)
		}
	}
	return Prefix(s), nil
}

// Format returns the opaque identifier for id.
//
// Distinct identities always produce distinct identifiers for a fixed prefix.
func (p Prefix) Format(id Identity) string {
	return string(p) + id.String()
}

// Parse reports whether s has the shape of an opaque identifier for p and
// returns the embedded identity.
//
// The shape is the prefix followed by a canonical decimal number: at least
// one digit, no sign and no leading zeros except for "0" itself. Parse only
// checks the shape; whether the identity is known is up to the caller.
func (p Prefix) Parse(s string) (Identity, bool) {
	if p == "" || !strings.HasPrefix(s, string(p)) {
		return 0, false
	}
	digits := s[len(p):]
	if digits == "" || (len(digits) > 1 && digits[0] == '0') {
		return 0, false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return Identity(n), true
}
