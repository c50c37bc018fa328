package liveness

import (
	"fmt"
	"sort"
	"time"

	"github.com/lastping/lastpingd/internal/principal"
)

// Record is the persisted form of one account. Principals are stored in
// their canonical text encoding; times as nanosecond integers.
type Record struct {
	Key         string `json:"key"`
	Owner       string `json:"owner"`
	Backup      string `json:"backup,omitempty"`
	LastPingNS  int64  `json:"last_ping_ns"`
	TimeoutNS   int64  `json:"timeout_ns"`
	CreatedAtNS int64  `json:"created_at_ns"`
}

// Snapshot returns a stable-ordered copy of every account plus the
// revision it captures.
func (r *Registry) Snapshot() ([]Record, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([]Record, 0, len(r.accounts))
	for key, account := range r.accounts {
		rec := Record{
			Key:         key,
			Owner:       account.Owner.Text(),
			LastPingNS:  account.LastPing.UnixNano(),
			TimeoutNS:   int64(account.Timeout),
			CreatedAtNS: account.CreatedAt.UnixNano(),
		}
		if account.Backup != nil {
			rec.Backup = account.Backup.Text()
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, r.rev
}

// Restore replaces registry contents from persisted records and resumes
// the mutation counter at the persisted revision, keeping it monotonic
// across restarts. Used once at boot, before the registry is serving calls.
func (r *Registry) Restore(records []Record, revision uint64) error {
	accounts := make(map[string]*Account, len(records))
	for i, rec := range records {
		owner, err := principal.Parse(rec.Owner)
		if err != nil {
			return fmt.Errorf("restore record %d: %w", i, err)
		}
		if rec.TimeoutNS <= 0 {
			return fmt.Errorf("restore record %d: %w", i, ErrInvalidTimeout)
		}
		account := &Account{
			Owner:     owner,
			LastPing:  time.Unix(0, rec.LastPingNS),
			Timeout:   time.Duration(rec.TimeoutNS),
			CreatedAt: time.Unix(0, rec.CreatedAtNS),
		}
		if rec.Backup != "" {
			backup, err := principal.Parse(rec.Backup)
			if err != nil {
				return fmt.Errorf("restore record %d backup: %w", i, err)
			}
			if backup.Equal(owner) {
				return fmt.Errorf("restore record %d: %w", i, ErrInvalidBackup)
			}
			account.Backup = &backup
		}
		key := rec.Key
		if key == "" {
			key = owner.Text()
		}
		if _, dup := accounts[key]; dup {
			return fmt.Errorf("restore record %d: duplicate key %q", i, key)
		}
		accounts[key] = account
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts = accounts
	r.rev = revision
	return nil
}
