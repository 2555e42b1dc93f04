package book

import (
	"math"
	"time"
)

// CompletionRate returns the percentage of the book read when positioned
// at word index idx, rounded to the nearest integer.
func CompletionRate(idx, total int) int {
	if total <= 0 || idx <= 0 {
		return 0
	}
	if idx >= total {
		return 100
	}
	return int(math.Round(float64(idx) / float64(total) * 100))
}

// TimeToRead returns the time needed to read the rest of the book at wpm.
func TimeToRead(idx, total, wpm int) time.Duration {
	remaining := total - max(idx, 0)
	if remaining <= 0 || wpm <= 0 {
		return 0
	}
	return time.Duration(remaining) * time.Minute / time.Duration(wpm)
}
