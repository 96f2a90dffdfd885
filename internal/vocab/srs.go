package vocab

import (
	"math"
	"time"

	"github.com/TheMichaelB/vocabsync/internal/models"
)

// Scheduler constants.
const (
	MinEase        = 1.3
	MaxEase        = 2.5
	MaxMemoryLevel = 5
	RelearnDelay   = 10 * time.Minute
)

// Schedule returns mem after a review graded with rating at now.
func Schedule(mem models.MemoryState, rating models.Rating, now time.Time) models.MemoryState {
	now = now.UTC()
	due := now

	switch rating {
	case models.RatingAgain:
		mem.MemoryLevel = max(0, mem.MemoryLevel-1)
		mem.Ease = math.Max(MinEase, mem.Ease-0.2)
		mem.IntervalDays = 0
		mem.LapseCount++
		due = now.Add(RelearnDelay)

	case models.RatingHard:
		mem.Ease = math.Max(MinEase, mem.Ease-0.05)
		if mem.IntervalDays > 0 {
			mem.IntervalDays = max(1, roundHalfEven(float64(mem.IntervalDays)*0.8))
		} else {
			mem.IntervalDays = 1
		}
		due = now.AddDate(0, 0, mem.IntervalDays)

	case models.RatingGood:
		mem.MemoryLevel = min(MaxMemoryLevel, mem.MemoryLevel+1)
		mem.IntervalDays = nextInterval(mem.IntervalDays, mem.Ease, mem.ReviewCount)
		due = now.AddDate(0, 0, mem.IntervalDays)

	default: // easy
		mem.MemoryLevel = min(MaxMemoryLevel, mem.MemoryLevel+1)
		mem.Ease = math.Min(MaxEase, mem.Ease+0.1)
		base := nextInterval(mem.IntervalDays, mem.Ease, mem.ReviewCount)
		mem.IntervalDays = max(1, roundHalfEven(float64(base)*1.3))
		due = now.AddDate(0, 0, mem.IntervalDays)
	}

	mem.ReviewCount++
	mem.LastRating = rating
	reviewed := now
	mem.LastReviewedAt = &reviewed
	mem.DueAt = due

	return mem
}

// nextInterval walks the 1, 3, 7 day ladder and then grows by ease.
func nextInterval(prev int, ease float64, reviewCount int) int {
	switch {
	case reviewCount <= 0:
		return 1
	case reviewCount == 1:
		return 3
	case reviewCount == 2:
		return 7
	}
	return max(1, roundHalfEven(float64(prev)*ease))
}

func roundHalfEven(f float64) int {
	return int(math.RoundToEven(f))
}
