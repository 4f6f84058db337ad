package attendance

import (
	"log"
	"sync"
	"time"
)

// Outcome is the per-call result of an identification attempt. It is
// transient: a Duplicate is not a stored state, only the accepted timestamp
// persists.
type Outcome int

const (
	NotMatched Outcome = iota
	Duplicate
	Accepted
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Duplicate:
		return "duplicate"
	default:
		return "not_matched"
	}
}

// KnownIDs supplies the current set of student identifiers eligible for
// matching.
type KnownIDs interface {
	IDs() []string
}

// Session owns the working copy of today's check-in map and coordinates the
// identify-then-record step for the capture loop. The in-memory map is the
// authority consulted for deduplication; every accepted check-in is written
// through to the day file before the call returns. All entry points detect
// day rollover and switch to a fresh day file without merging the old one.
type Session struct {
	store  *DayStore
	roster KnownIDs
	window time.Duration
	now    func() time.Time

	// OnAccept, when set, is invoked after an accepted check-in has been
	// recorded. Used to feed the mirror queue and the operator notifier;
	// it must not block.
	OnAccept func(studentID string, ts int64)

	mu        sync.Mutex
	day       string
	checkedIn map[string]int64
}

// NewSession creates a session bound to the current calendar date, loading
// any check-ins already persisted for today.
func NewSession(store *DayStore, roster KnownIDs, window time.Duration) *Session {
	if window <= 0 {
		window = 5 * time.Minute
	}
	s := &Session{
		store:  store,
		roster: roster,
		window: window,
		now:    time.Now,
	}
	s.mu.Lock()
	s.reloadLocked(DayKey(s.now()))
	s.mu.Unlock()
	return s
}

// IdentifyAndRecord turns one matcher decision for one student into an
// outcome. A false match never mutates state; a repeat within the dedup
// window is suppressed; otherwise the check-in is recorded in memory and
// persisted synchronously. A failed persist keeps the in-memory record:
// the next successful save re-persists the full map.
func (s *Session) IdentifyAndRecord(studentID string, isMatch bool) Outcome {
	s.mu.Lock()
	s.rolloverLocked()

	if !isMatch {
		s.mu.Unlock()
		checkinsTotal.WithLabelValues(NotMatched.String()).Inc()
		return NotMatched
	}

	nowSec := s.now().Unix()
	lastSeen, hasPrior := s.checkedIn[studentID]
	if !Accept(nowSec, lastSeen, hasPrior, s.window) {
		s.mu.Unlock()
		log.Printf("attendance: %s already checked in %.1f minutes ago", studentID, float64(nowSec-lastSeen)/60)
		checkinsTotal.WithLabelValues(Duplicate.String()).Inc()
		return Duplicate
	}

	s.checkedIn[studentID] = nowSec
	if err := s.store.Save(s.day, s.checkedIn); err != nil {
		log.Printf("attendance: save failed, keeping in-memory state: %v", err)
		saveFailures.Inc()
	}
	hook := s.OnAccept
	s.mu.Unlock()

	checkinsTotal.WithLabelValues(Accepted.String()).Inc()
	log.Printf("attendance: %s checked in", studentID)
	if hook != nil {
		hook(studentID, nowSec)
	}
	return Accepted
}

// Snapshot returns a copy of today's check-in map and the current roster
// size for read-only reporting.
func (s *Session) Snapshot() (map[string]int64, int) {
	s.mu.Lock()
	s.rolloverLocked()
	out := make(map[string]int64, len(s.checkedIn))
	for id, ts := range s.checkedIn {
		out[id] = ts
	}
	s.mu.Unlock()
	return out, len(s.roster.IDs())
}

// ResetDay clears today's check-ins in memory and on disk. Manual operator
// action; irreversible.
func (s *Session) ResetDay() {
	s.mu.Lock()
	s.rolloverLocked()
	s.checkedIn = map[string]int64{}
	if err := s.store.Save(s.day, s.checkedIn); err != nil {
		log.Printf("attendance: reset persist failed: %v", err)
		saveFailures.Inc()
	}
	s.mu.Unlock()
	log.Printf("attendance: day %s reset", s.day)
}

// Day returns the calendar date key the session is currently recording to.
func (s *Session) Day() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolloverLocked()
	return s.day
}

func (s *Session) rolloverLocked() {
	key := DayKey(s.now())
	if key == s.day {
		return
	}
	if s.day != "" {
		log.Printf("attendance: day rolled over %s -> %s", s.day, key)
		rollovers.Inc()
	}
	s.reloadLocked(key)
}

func (s *Session) reloadLocked(key string) {
	records, err := s.store.Load(key)
	if err != nil {
		log.Printf("attendance: load day %s: %v", key, err)
	}
	s.day = key
	s.checkedIn = records
}
