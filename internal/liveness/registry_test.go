package liveness

import (
	"errors"
	"testing"
	"time"

	"github.com/lastping/lastpingd/internal/principal"
	"github.com/lastping/lastpingd/internal/testutil/testlog"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func mustPrincipal(t *testing.T, raw ...byte) principal.Principal {
	t.Helper()
	p, err := principal.FromBytes(raw)
	if err != nil {
		t.Fatalf("build principal: %v", err)
	}
	return p
}

func TestExistsFalseUntilInitialize(t *testing.T) {
	testlog.Start(t)

	clock := newFakeClock()
	reg := NewRegistry(WithClock(clock.Now))
	owner := mustPrincipal(t, 0x01, 0x0a)

	if reg.Exists(owner) {
		t.Fatalf("exists before initialize")
	}
	if _, err := reg.Initialize(owner); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !reg.Exists(owner) {
		t.Fatalf("exists false after initialize")
	}
	clock.Advance(1000 * time.Hour)
	if !reg.Exists(owner) {
		t.Fatalf("exists flipped false over time")
	}
}

func TestInitializeExactlyOnce(t *testing.T) {
	testlog.Start(t)

	clock := newFakeClock()
	reg := NewRegistry(WithClock(clock.Now))
	owner := mustPrincipal(t, 0x01, 0x0a)

	first, err := reg.Initialize(owner)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	clock.Advance(time.Hour)
	if _, err := reg.Initialize(owner); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	status, err := reg.Status(owner)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.LastPingNS != first.LastPingNS || status.TimeoutNS != first.TimeoutNS {
		t.Fatalf("second initialize altered the account: %+v vs %+v", status, first)
	}
}

// Scenario A: fresh account is unexpired with default timeout and no backup.
func TestInitializeStartsActive(t *testing.T) {
	testlog.Start(t)

	clock := newFakeClock()
	reg := NewRegistry(WithClock(clock.Now))
	owner := mustPrincipal(t, 0x01, 0x0a)

	view, err := reg.Initialize(owner)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if view.Expired {
		t.Fatalf("account expired immediately after initialize")
	}
	if view.Backup != nil {
		t.Fatalf("fresh account has backup %q", view.Backup.Text())
	}
	if view.TimeoutNS != int64(DefaultTimeout) {
		t.Fatalf("unexpected default timeout: %d", view.TimeoutNS)
	}
	if view.LastPingNS != clock.Now().UnixNano() {
		t.Fatalf("last_ping not set to call time")
	}
}

func TestPingAuthorizationAndEffect(t *testing.T) {
	testlog.Start(t)

	clock := newFakeClock()
	reg := NewRegistry(WithClock(clock.Now))
	owner := mustPrincipal(t, 0x01, 0x0a)
	stranger := mustPrincipal(t, 0x01, 0x0b)

	if _, err := reg.Ping(owner); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before initialize, got %v", err)
	}
	before, _ := reg.Initialize(owner)

	clock.Advance(3 * time.Hour)
	if _, err := reg.Ping(stranger); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stranger ping should miss their own record, got %v", err)
	}
	view, err := reg.Ping(owner)
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if view.LastPingNS != clock.Now().UnixNano() {
		t.Fatalf("ping did not reset last_ping")
	}
	if view.LastPingNS == before.LastPingNS {
		t.Fatalf("last_ping unchanged by ping")
	}
	if view.TimeoutNS != before.TimeoutNS {
		t.Fatalf("ping changed timeout")
	}
	if view.Backup != nil {
		t.Fatalf("ping changed backup")
	}
}

// Scenario E: backup must differ from owner; failures leave state untouched.
func TestSetBackupValidation(t *testing.T) {
	testlog.Start(t)

	clock := newFakeClock()
	reg := NewRegistry(WithClock(clock.Now))
	owner := mustPrincipal(t, 0x01, 0x0a)
	backup := mustPrincipal(t, 0x01, 0x0b)

	reg.Initialize(owner)
	if _, err := reg.SetBackup(owner, owner); !errors.Is(err, ErrInvalidBackup) {
		t.Fatalf("expected ErrInvalidBackup for self-backup, got %v", err)
	}
	status, _ := reg.Status(owner)
	if status.Backup != nil {
		t.Fatalf("failed setBackup mutated state")
	}

	if _, err := reg.SetBackup(backup, owner); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for non-account caller, got %v", err)
	}

	view, err := reg.SetBackup(owner, backup)
	if err != nil {
		t.Fatalf("set backup: %v", err)
	}
	if view.Backup == nil || !view.Backup.Equal(backup) {
		t.Fatalf("backup not recorded")
	}
	if view.LastPingNS != status.LastPingNS {
		t.Fatalf("setBackup reset last_ping")
	}
}

func TestSetTimeoutValidationAndIdempotence(t *testing.T) {
	testlog.Start(t)

	clock := newFakeClock()
	reg := NewRegistry(WithClock(clock.Now))
	owner := mustPrincipal(t, 0x01, 0x0a)
	reg.Initialize(owner)

	for _, bad := range []time.Duration{0, -time.Hour} {
		if _, err := reg.SetTimeout(owner, bad); !errors.Is(err, ErrInvalidTimeout) {
			t.Fatalf("expected ErrInvalidTimeout for %v, got %v", bad, err)
		}
	}

	once, err := reg.SetTimeout(owner, 48*time.Hour)
	if err != nil {
		t.Fatalf("set timeout: %v", err)
	}
	twice, err := reg.SetTimeout(owner, 48*time.Hour)
	if err != nil {
		t.Fatalf("set timeout repeat: %v", err)
	}
	if once.TimeoutNS != twice.TimeoutNS || once.LastPingNS != twice.LastPingNS {
		t.Fatalf("repeated setTimeout changed state: %+v vs %+v", once, twice)
	}
}

// Shortening the window below the elapsed idle time flips expiry at once.
func TestSetTimeoutCanExpireImmediately(t *testing.T) {
	testlog.Start(t)

	clock := newFakeClock()
	reg := NewRegistry(WithClock(clock.Now))
	owner := mustPrincipal(t, 0x01, 0x0a)
	reg.Initialize(owner)

	clock.Advance(48 * time.Hour)
	status, _ := reg.Status(owner)
	if status.Expired {
		t.Fatalf("expired under default window")
	}
	if _, err := reg.SetTimeout(owner, 24*time.Hour); err != nil {
		t.Fatalf("set timeout: %v", err)
	}
	status, _ = reg.Status(owner)
	if !status.Expired {
		t.Fatalf("shortened timeout did not flip expiry")
	}
}

// Scenario B + C: claim succeeds after expiry, then a repeat claim fails
// NotBackup because the backup slot was cleared.
func TestClaimTransfersOwnership(t *testing.T) {
	testlog.Start(t)

	clock := newFakeClock()
	reg := NewRegistry(WithClock(clock.Now))
	owner := mustPrincipal(t, 0x01, 0x0a)
	backup := mustPrincipal(t, 0x01, 0x0b)

	reg.Initialize(owner)
	reg.SetBackup(owner, backup)
	reg.SetTimeout(owner, 24*time.Hour)

	clock.Advance(48 * time.Hour)
	view, err := reg.Claim(backup, owner)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !view.Owner.Equal(backup) {
		t.Fatalf("claim did not transfer ownership")
	}
	if view.Backup != nil {
		t.Fatalf("claim left backup set")
	}
	if view.LastPingNS != clock.Now().UnixNano() {
		t.Fatalf("claim did not restart the clock")
	}
	if view.TimeoutNS != int64(24*time.Hour) {
		t.Fatalf("claim changed timeout: %d", view.TimeoutNS)
	}
	if view.Expired {
		t.Fatalf("account still expired after claim")
	}

	if _, err := reg.Claim(backup, owner); !errors.Is(err, ErrNotBackup) {
		t.Fatalf("expected ErrNotBackup on repeat claim, got %v", err)
	}

	// The record stays under the original owner's key; the new owner pings it.
	if _, err := reg.Ping(owner); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("former owner ping should fail NotOwner, got %v", err)
	}
}

// Scenario D: daily pings keep the window open for ten days.
func TestDailyPingsHoldOffClaim(t *testing.T) {
	testlog.Start(t)

	clock := newFakeClock()
	reg := NewRegistry(WithClock(clock.Now))
	owner := mustPrincipal(t, 0x01, 0x0a)
	backup := mustPrincipal(t, 0x01, 0x0b)

	reg.Initialize(owner)
	reg.SetTimeout(owner, 5*24*time.Hour)
	reg.SetBackup(owner, backup)

	for day := 0; day < 10; day++ {
		clock.Advance(24 * time.Hour)
		status, err := reg.Status(owner)
		if err != nil {
			t.Fatalf("status day %d: %v", day, err)
		}
		if status.Expired {
			t.Fatalf("expired on day %d despite daily pings", day)
		}
		if _, err := reg.Claim(backup, owner); !errors.Is(err, ErrNotExpired) {
			t.Fatalf("claim on day %d: expected ErrNotExpired, got %v", day, err)
		}
		if _, err := reg.Ping(owner); err != nil {
			t.Fatalf("ping day %d: %v", day, err)
		}
	}
}

func TestClaimRejections(t *testing.T) {
	testlog.Start(t)

	clock := newFakeClock()
	reg := NewRegistry(WithClock(clock.Now))
	owner := mustPrincipal(t, 0x01, 0x0a)
	backup := mustPrincipal(t, 0x01, 0x0b)
	stranger := mustPrincipal(t, 0x01, 0x0c)

	if _, err := reg.Claim(backup, owner); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	reg.Initialize(owner)
	if _, err := reg.Claim(backup, owner); !errors.Is(err, ErrNotBackup) {
		t.Fatalf("expected ErrNotBackup with no backup set, got %v", err)
	}

	reg.SetBackup(owner, backup)
	reg.SetTimeout(owner, 24*time.Hour)
	clock.Advance(48 * time.Hour)
	if _, err := reg.Claim(stranger, owner); !errors.Is(err, ErrNotBackup) {
		t.Fatalf("expected ErrNotBackup for stranger, got %v", err)
	}
	status, _ := reg.Status(owner)
	if !status.Owner.Equal(owner) {
		t.Fatalf("failed claims mutated ownership")
	}
}

// Expiry boundary is strict: now must exceed last_ping + timeout.
func TestExpiryBoundaryIsStrict(t *testing.T) {
	testlog.Start(t)

	clock := newFakeClock()
	reg := NewRegistry(WithClock(clock.Now))
	owner := mustPrincipal(t, 0x01, 0x0a)
	backup := mustPrincipal(t, 0x01, 0x0b)

	reg.Initialize(owner)
	reg.SetBackup(owner, backup)
	reg.SetTimeout(owner, 24*time.Hour)

	clock.Advance(24 * time.Hour)
	status, _ := reg.Status(owner)
	if status.Expired {
		t.Fatalf("expired exactly at the deadline")
	}
	if _, err := reg.Claim(backup, owner); !errors.Is(err, ErrNotExpired) {
		t.Fatalf("expected ErrNotExpired at the deadline, got %v", err)
	}

	clock.Advance(time.Nanosecond)
	status, _ = reg.Status(owner)
	if !status.Expired {
		t.Fatalf("not expired one tick past the deadline")
	}
	if _, err := reg.Claim(backup, owner); err != nil {
		t.Fatalf("claim one tick past deadline: %v", err)
	}
}

func TestOwnerPingRecoversExpiredAccount(t *testing.T) {
	testlog.Start(t)

	clock := newFakeClock()
	reg := NewRegistry(WithClock(clock.Now))
	owner := mustPrincipal(t, 0x01, 0x0a)

	reg.Initialize(owner)
	reg.SetTimeout(owner, time.Hour)
	clock.Advance(2 * time.Hour)

	status, _ := reg.Status(owner)
	if !status.Expired {
		t.Fatalf("expected expired account")
	}
	if _, err := reg.Ping(owner); err != nil {
		t.Fatalf("owner ping on expired account: %v", err)
	}
	status, _ = reg.Status(owner)
	if status.Expired {
		t.Fatalf("ping did not reactivate account")
	}
}

func TestObserverSeesOutcomes(t *testing.T) {
	testlog.Start(t)

	type outcome struct {
		op  string
		err error
	}
	var seen []outcome
	clock := newFakeClock()
	reg := NewRegistry(WithClock(clock.Now), WithObserver(func(op string, err error) {
		seen = append(seen, outcome{op: op, err: err})
	}))
	owner := mustPrincipal(t, 0x01, 0x0a)

	reg.Initialize(owner)
	reg.Initialize(owner)
	if len(seen) != 2 {
		t.Fatalf("expected 2 observed outcomes, got %d", len(seen))
	}
	if seen[0].op != "initialize" || seen[0].err != nil {
		t.Fatalf("unexpected first outcome: %+v", seen[0])
	}
	if !errors.Is(seen[1].err, ErrAlreadyExists) {
		t.Fatalf("unexpected second outcome: %+v", seen[1])
	}
}

func TestStatsCountsExpired(t *testing.T) {
	testlog.Start(t)

	clock := newFakeClock()
	reg := NewRegistry(WithClock(clock.Now))
	a := mustPrincipal(t, 0x01, 0x0a)
	b := mustPrincipal(t, 0x01, 0x0b)

	reg.Initialize(a)
	reg.Initialize(b)
	reg.SetTimeout(a, time.Hour)
	clock.Advance(2 * time.Hour)

	stats := reg.Stats()
	if stats.Accounts != 2 {
		t.Fatalf("unexpected account count: %d", stats.Accounts)
	}
	if stats.Expired != 1 {
		t.Fatalf("unexpected expired count: %d", stats.Expired)
	}
	if stats.Revision == 0 {
		t.Fatalf("revision not advanced by mutations")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	testlog.Start(t)

	clock := newFakeClock()
	reg := NewRegistry(WithClock(clock.Now))
	owner := mustPrincipal(t, 0x01, 0x0a)
	backup := mustPrincipal(t, 0x01, 0x0b)

	reg.Initialize(owner)
	reg.SetBackup(owner, backup)
	reg.SetTimeout(owner, 24*time.Hour)
	clock.Advance(48 * time.Hour)
	if _, err := reg.Claim(backup, owner); err != nil {
		t.Fatalf("claim: %v", err)
	}

	records, rev := reg.Snapshot()
	if len(records) != 1 {
		t.Fatalf("unexpected record count: %d", len(records))
	}
	if rev == 0 {
		t.Fatalf("snapshot revision is zero after mutations")
	}
	if records[0].Key != owner.Text() {
		t.Fatalf("registry key changed after claim: %q", records[0].Key)
	}
	if records[0].Owner != backup.Text() {
		t.Fatalf("persisted owner not the claimant: %q", records[0].Owner)
	}

	restored := NewRegistry(WithClock(clock.Now))
	if err := restored.Restore(records, rev); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Revision() != rev {
		t.Fatalf("revision not resumed: got %d, want %d", restored.Revision(), rev)
	}
	view, err := restored.Status(owner)
	if err != nil {
		t.Fatalf("status after restore: %v", err)
	}
	if !view.Owner.Equal(backup) {
		t.Fatalf("restored owner mismatch")
	}
	if view.TimeoutNS != int64(24*time.Hour) {
		t.Fatalf("restored timeout mismatch: %d", view.TimeoutNS)
	}

	// Mutations after a restore keep the counter monotonic.
	if _, err := restored.Ping(backup); err != nil {
		t.Fatalf("ping after restore: %v", err)
	}
	if restored.Revision() != rev+1 {
		t.Fatalf("revision not monotonic after restore: got %d, want %d", restored.Revision(), rev+1)
	}
}

func TestRestoreRejectsCorruptRecords(t *testing.T) {
	testlog.Start(t)

	reg := NewRegistry()
	cases := []struct {
		name string
		rec  Record
	}{
		{name: "bad_owner", rec: Record{Owner: "nonsense", TimeoutNS: 1}},
		{name: "zero_timeout", rec: Record{Owner: "lp15d", TimeoutNS: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := reg.Restore([]Record{tc.rec}, 1); err == nil {
				t.Fatalf("expected restore rejection")
			}
		})
	}
}
