// Package auth resolves bearer tokens to caller principals.
//
// It intentionally avoids policy decisions and storage concerns; every
// authorization rule lives with the operation it guards.
package auth

import (
	"crypto/subtle"
	"errors"

	"github.com/lastping/lastpingd/internal/principal"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Identifier resolves an authentication token to the caller's principal.
type Identifier interface {
	Identify(token string) (principal.Principal, error)
}

// StaticTokens resolves callers from a fixed token table. It is intended
// for single-node deployments and development; tokens are compared in
// constant time.
type StaticTokens struct {
	entries []staticEntry
}

type staticEntry struct {
	token string
	id    principal.Principal
}

// NewStaticTokens builds a resolver from token -> principal pairs.
func NewStaticTokens(tokens map[string]principal.Principal) *StaticTokens {
	s := &StaticTokens{}
	for token, id := range tokens {
		if token == "" || id.IsZero() {
			continue
		}
		s.entries = append(s.entries, staticEntry{token: token, id: id})
	}
	return s
}

// Len reports the number of usable token entries.
func (s *StaticTokens) Len() int {
	return len(s.entries)
}

func (s *StaticTokens) Identify(token string) (principal.Principal, error) {
	if token == "" {
		return principal.Principal{}, ErrUnauthorized
	}
	for _, entry := range s.entries {
		if subtle.ConstantTimeCompare([]byte(entry.token), []byte(token)) == 1 {
			return entry.id, nil
		}
	}
	return principal.Principal{}, ErrUnauthorized
}

// FuncIdentifier adapts a function into an Identifier.
type FuncIdentifier func(token string) (principal.Principal, error)

func (f FuncIdentifier) Identify(token string) (principal.Principal, error) {
	return f(token)
}
