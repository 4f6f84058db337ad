package scanner

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"classattend/internal/attendance"
)

// ErrNoFrame is returned by a FrameSource when nothing is waiting.
var ErrNoFrame = errors.New("no frame available")

// FrameSource supplies camera frames. Capture itself is external; the
// station only consumes encoded frames.
type FrameSource interface {
	Next(ctx context.Context) ([]byte, error)
}

// Detector finds face regions in a frame.
type Detector interface {
	Detect(ctx context.Context, frame []byte) ([][]byte, error)
}

// Matcher decides whether a face crop belongs to a student. It fails
// closed: errors surface as a non-match.
type Matcher interface {
	Match(ctx context.Context, crop []byte, studentID string) bool
}

// Roster supplies the IDs eligible for matching on each tick.
type Roster interface {
	IDs() []string
}

var (
	scanTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classattend_scan_ticks_total",
		Help: "Scan ticks that dispatched identification work.",
	})
	droppedTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classattend_scan_ticks_dropped_total",
		Help: "Scan ticks skipped because a worker was still in flight.",
	})
)

// Scanner drives the identification pipeline at a fixed cadence. At most
// one worker runs at a time: a tick that fires while a frame is still
// being processed is dropped, which is the depth-1 dispatch bound the
// session relies on.
type Scanner struct {
	src      FrameSource
	detector Detector
	matcher  Matcher
	roster   Roster
	session  *attendance.Session
	interval time.Duration

	busy atomic.Bool
	wg   sync.WaitGroup
}

// New creates a scanner.
func New(src FrameSource, detector Detector, matcher Matcher, roster Roster, session *attendance.Session, interval time.Duration) *Scanner {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scanner{
		src:      src,
		detector: detector,
		matcher:  matcher,
		roster:   roster,
		session:  session,
		interval: interval,
	}
}

// Run ticks until the context is canceled, then waits for any in-flight
// worker to finish. Results that complete after cancellation are discarded.
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	log.Printf("scanner: started, interval %s", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			log.Println("scanner: stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick dispatches one identification pass if no worker is in flight.
// It reports whether work was dispatched.
func (s *Scanner) Tick(ctx context.Context) bool {
	if !s.busy.CompareAndSwap(false, true) {
		droppedTicks.Inc()
		return false
	}

	frame, err := s.src.Next(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoFrame) {
			log.Printf("scanner: frame source: %v", err)
		}
		s.busy.Store(false)
		return false
	}

	scanTicks.Inc()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)
		s.process(ctx, frame)
	}()
	return true
}

// process runs detect -> compare -> record for one frame. Each detected
// region is tested against every roster ID; matcher failures become
// non-matches for that pairing only.
func (s *Scanner) process(ctx context.Context, frame []byte) {
	faces, err := s.detector.Detect(ctx, frame)
	if err != nil {
		log.Printf("scanner: detect failed: %v", err)
		return
	}
	if len(faces) == 0 {
		return
	}

	ids := s.roster.IDs()
	for _, crop := range faces {
		for _, id := range ids {
			if ctx.Err() != nil {
				return
			}
			isMatch := s.matcher.Match(ctx, crop, id)
			s.session.IdentifyAndRecord(id, isMatch)
		}
	}
}
