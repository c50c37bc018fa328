// Package principal models the opaque caller identity every call is
// authenticated as.
//
// A principal is a short binary blob with one canonical textual encoding;
// comparison is exact byte equality and nothing else.
package principal

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

const (
	textPrefix = "lp1"

	minRawLen = 1
	maxRawLen = 33

	tagSelfAuthenticating = 0x01
	derivedDigestLen      = 28
)

var (
	ErrInvalidPrincipal = errors.New("principal: invalid principal")
	ErrInvalidKey       = errors.New("principal: invalid public key")
)

// Principal is an opaque authenticated caller reference.
// The zero value is invalid and reports IsZero.
type Principal struct {
	raw []byte
}

// FromBytes wraps raw principal bytes after length validation.
func FromBytes(raw []byte) (Principal, error) {
	if len(raw) < minRawLen || len(raw) > maxRawLen {
		return Principal{}, fmt.Errorf("%w: %d bytes", ErrInvalidPrincipal, len(raw))
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return Principal{raw: out}, nil
}

// FromPublicKey derives a self-authenticating principal from an ed25519
// public key: a tag byte followed by a truncated SHA-256 of the key.
func FromPublicKey(pub ed25519.PublicKey) (Principal, error) {
	if len(pub) != ed25519.PublicKeySize {
		return Principal{}, fmt.Errorf("%w: %d bytes", ErrInvalidKey, len(pub))
	}
	digest := sha256.Sum256(pub)
	raw := make([]byte, 0, 1+derivedDigestLen)
	raw = append(raw, tagSelfAuthenticating)
	raw = append(raw, digest[:derivedDigestLen]...)
	return Principal{raw: raw}, nil
}

// Parse decodes the canonical textual encoding produced by Text.
func Parse(text string) (Principal, error) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, textPrefix) {
		return Principal{}, fmt.Errorf("%w: %q", ErrInvalidPrincipal, text)
	}
	raw, err := base58.Decode(trimmed[len(textPrefix):])
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %q", ErrInvalidPrincipal, text)
	}
	return FromBytes(raw)
}

// Text returns the canonical textual encoding.
func (p Principal) Text() string {
	if p.IsZero() {
		return ""
	}
	return textPrefix + base58.Encode(p.raw)
}

func (p Principal) String() string {
	return p.Text()
}

// Bytes returns a copy of the raw principal bytes.
func (p Principal) Bytes() []byte {
	out := make([]byte, len(p.raw))
	copy(out, p.raw)
	return out
}

// Equal reports exact binary equality.
func (p Principal) Equal(other Principal) bool {
	return bytes.Equal(p.raw, other.raw)
}

// IsZero reports whether the principal carries no identity.
func (p Principal) IsZero() bool {
	return len(p.raw) == 0
}

// MarshalText encodes the principal as its canonical text form.
func (p Principal) MarshalText() ([]byte, error) {
	if p.IsZero() {
		return nil, ErrInvalidPrincipal
	}
	return []byte(p.Text()), nil
}

// UnmarshalText decodes the canonical text form.
func (p *Principal) UnmarshalText(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
