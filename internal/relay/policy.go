package relay

import "time"

// ShouldRemind reports whether an item last notified at last is due for
// a reminder at now. Reaching the threshold exactly counts as due.
//
// There is no jitter and no escalating cadence: an overdue item reminds
// at most once per poll tick, so the effective reminder period sits
// between threshold and threshold+poll interval.
func ShouldRemind(last, now time.Time, threshold time.Duration) bool {
	return now.Sub(last) >= threshold
}
