package engine

import "time"

// Summary reports what one run did.
type Summary struct {
	Queries    int64         `json:"queries"`
	Accepted   int64         `json:"accepted"`   // regions retired without splitting (includes Empty and Forced)
	Empty      int64         `json:"empty"`      // accepted regions with no records
	Subdivided int64         `json:"subdivided"` // overflowing regions replaced by their children
	Forced     int64         `json:"forced"`     // terminal regions accepted despite overflowing
	Failed     int64         `json:"failed"`     // region queries that returned an error
	Malformed  int64         `json:"malformed"`  // pages without station summaries
	Discarded  int64         `json:"discarded"`  // regions dropped by cancellation
	MaxDepth   int           `json:"max_depth"`
	Points     int           `json:"points"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Warnings counts regions whose data may be incomplete.
func (s *Summary) Warnings() int64 {
	return s.Failed + s.Malformed + s.Forced
}

// Complete reports whether every region was covered without a warning.
func (s *Summary) Complete() bool {
	return s.Warnings() == 0 && s.Discarded == 0
}
