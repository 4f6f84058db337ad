package attendance

import "time"

// Accept decides whether a repeat detection of a student becomes a new
// check-in. lastSeen is the stored epoch-second timestamp of the previous
// accepted check-in; hasPrior is false for a student never recorded today,
// which is always accepted. The boundary is inclusive: a detection exactly
// one window after the last check-in is accepted.
func Accept(now int64, lastSeen int64, hasPrior bool, window time.Duration) bool {
	if !hasPrior {
		return true
	}
	return now-lastSeen >= int64(window/time.Second)
}
