package attendance

import (
	"testing"
	"time"
)

type fakeRoster []string

func (f fakeRoster) IDs() []string { return f }

type fakeClock struct {
	sec int64
}

func (c *fakeClock) now() time.Time { return time.Unix(c.sec, 0) }

func newTestSession(t *testing.T, dir string, window time.Duration, startSec int64) (*Session, *fakeClock) {
	t.Helper()
	store, err := NewDayStore(dir)
	if err != nil {
		t.Fatalf("NewDayStore: %v", err)
	}
	clock := &fakeClock{sec: startSec}
	session := NewSession(store, fakeRoster{"student_378", "student_002"}, window)
	session.now = clock.now
	return session, clock
}

func TestSession_DedupScenario(t *testing.T) {
	session, clock := newTestSession(t, t.TempDir(), 5*time.Minute, 1000)

	if got := session.IdentifyAndRecord("student_378", true); got != Accepted {
		t.Fatalf("first check-in = %v, want Accepted", got)
	}
	checkedIn, _ := session.Snapshot()
	if checkedIn["student_378"] != 1000 {
		t.Fatalf("stored timestamp = %d, want 1000", checkedIn["student_378"])
	}

	// 200s later, inside the 5 minute window.
	clock.sec = 1200
	if got := session.IdentifyAndRecord("student_378", true); got != Duplicate {
		t.Errorf("repeat inside window = %v, want Duplicate", got)
	}
	checkedIn, _ = session.Snapshot()
	if checkedIn["student_378"] != 1000 {
		t.Errorf("duplicate must not update the stored timestamp, got %d", checkedIn["student_378"])
	}

	// Exactly 300s after the accepted check-in: inclusive boundary.
	clock.sec = 1300
	if got := session.IdentifyAndRecord("student_378", true); got != Accepted {
		t.Errorf("repeat at exact window boundary = %v, want Accepted", got)
	}
	checkedIn, _ = session.Snapshot()
	if checkedIn["student_378"] != 1300 {
		t.Errorf("stored timestamp = %d, want 1300", checkedIn["student_378"])
	}
}

func TestSession_BoundaryOneSecondShort(t *testing.T) {
	session, clock := newTestSession(t, t.TempDir(), 5*time.Minute, 1000)
	session.IdentifyAndRecord("student_378", true)

	clock.sec = 1000 + 299
	if got := session.IdentifyAndRecord("student_378", true); got != Duplicate {
		t.Errorf("one second before boundary = %v, want Duplicate", got)
	}
}

func TestSession_NoMatchNeverMutates(t *testing.T) {
	session, _ := newTestSession(t, t.TempDir(), 5*time.Minute, 1000)

	for i := 0; i < 10; i++ {
		if got := session.IdentifyAndRecord("student_378", false); got != NotMatched {
			t.Fatalf("no-match call = %v, want NotMatched", got)
		}
	}
	checkedIn, knownCount := session.Snapshot()
	if len(checkedIn) != 0 {
		t.Errorf("no-match calls mutated state: %v", checkedIn)
	}
	if knownCount != 2 {
		t.Errorf("knownCount = %d, want 2", knownCount)
	}
}

func TestSession_DayRolloverIsolation(t *testing.T) {
	dir := t.TempDir()
	session, clock := newTestSession(t, dir, 5*time.Minute, 1000)

	session.IdentifyAndRecord("student_378", true)
	firstDay := session.Day()

	// Two days later the same student checks in again.
	clock.sec = 1000 + 2*86400
	if got := session.IdentifyAndRecord("student_378", true); got != Accepted {
		t.Fatalf("check-in on new day = %v, want Accepted", got)
	}
	if session.Day() == firstDay {
		t.Fatal("session did not roll over to the new day")
	}

	checkedIn, _ := session.Snapshot()
	if len(checkedIn) != 1 {
		t.Errorf("new day snapshot has %d entries, want 1", len(checkedIn))
	}
	if checkedIn["student_378"] != clock.sec {
		t.Errorf("new day timestamp = %d, want %d", checkedIn["student_378"], clock.sec)
	}

	// The old day file is untouched.
	store, err := NewDayStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	old, err := store.Load(firstDay)
	if err != nil {
		t.Fatalf("load old day: %v", err)
	}
	if old["student_378"] != 1000 {
		t.Errorf("old day record = %d, want 1000", old["student_378"])
	}
}

func TestSession_ResetIdempotence(t *testing.T) {
	session, _ := newTestSession(t, t.TempDir(), 5*time.Minute, 1000)

	session.IdentifyAndRecord("student_378", true)
	session.ResetDay()
	session.ResetDay()

	checkedIn, _ := session.Snapshot()
	if len(checkedIn) != 0 {
		t.Errorf("after reset snapshot = %v, want empty", checkedIn)
	}

	// A reset student behaves as first-seen again, with no window applied.
	if got := session.IdentifyAndRecord("student_378", true); got != Accepted {
		t.Errorf("post-reset check-in = %v, want Accepted", got)
	}
}

func TestSession_WriteThroughSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	session, _ := newTestSession(t, dir, 5*time.Minute, 1000)
	session.IdentifyAndRecord("student_378", true)

	restarted, _ := newTestSession(t, dir, 5*time.Minute, 1100)
	checkedIn, _ := restarted.Snapshot()
	if checkedIn["student_378"] != 1000 {
		t.Errorf("restart lost the persisted check-in: %v", checkedIn)
	}
	if got := restarted.IdentifyAndRecord("student_378", true); got != Duplicate {
		t.Errorf("restart forgot the dedup window: got %v, want Duplicate", got)
	}
}

func TestSession_OnAcceptHook(t *testing.T) {
	session, clock := newTestSession(t, t.TempDir(), 5*time.Minute, 1000)

	var gotID string
	var gotTS int64
	calls := 0
	session.OnAccept = func(id string, ts int64) {
		gotID, gotTS = id, ts
		calls++
	}

	session.IdentifyAndRecord("student_378", false)
	clock.sec = 1001
	session.IdentifyAndRecord("student_378", true)
	clock.sec = 1002
	session.IdentifyAndRecord("student_378", true) // duplicate

	if calls != 1 {
		t.Fatalf("OnAccept fired %d times, want 1", calls)
	}
	if gotID != "student_378" || gotTS != 1001 {
		t.Errorf("OnAccept got (%s, %d), want (student_378, 1001)", gotID, gotTS)
	}
}
