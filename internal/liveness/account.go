package liveness

import (
	"time"

	"github.com/lastping/lastpingd/internal/principal"
)

// DefaultTimeout is the expiry window assigned at initialization.
const DefaultTimeout = 30 * 24 * time.Hour

// Account is one registered dead man's switch record. The registry key is
// the owner-at-creation principal and stays stable across claims.
type Account struct {
	Owner     principal.Principal
	Backup    *principal.Principal
	LastPing  time.Time
	Timeout   time.Duration
	CreatedAt time.Time
}

// ExpiredAt reports whether the account is expired at the given instant.
// Expiry is derived, never stored: now > lastPing + timeout.
func (a *Account) ExpiredAt(now time.Time) bool {
	return now.After(a.LastPing.Add(a.Timeout))
}

// View is the read-only projection returned by status queries. Time values
// are nanosecond integers at the boundary; expired and expires_at are
// derived from (last_ping, timeout, now) at call time.
type View struct {
	Owner       principal.Principal  `json:"owner"`
	Backup      *principal.Principal `json:"backup,omitempty"`
	LastPingNS  int64                `json:"last_ping_ns"`
	TimeoutNS   int64                `json:"timeout_ns"`
	CreatedAtNS int64                `json:"created_at_ns"`
	ExpiresAtNS int64                `json:"expires_at_ns"`
	Expired     bool                 `json:"expired"`
}

func (a *Account) viewAt(now time.Time) View {
	v := View{
		Owner:       a.Owner,
		LastPingNS:  a.LastPing.UnixNano(),
		TimeoutNS:   int64(a.Timeout),
		CreatedAtNS: a.CreatedAt.UnixNano(),
		ExpiresAtNS: a.LastPing.Add(a.Timeout).UnixNano(),
		Expired:     a.ExpiredAt(now),
	}
	if a.Backup != nil {
		backup := *a.Backup
		v.Backup = &backup
	}
	return v
}
