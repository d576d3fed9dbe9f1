package statusclock

import (
	"time"

	"guest-ordering/internal/domain"
)

// Durations is the fixed time budget of each status.
type Durations map[domain.OrderStatus]time.Duration

func DefaultDurations() Durations {
	return Durations{
		domain.StatusConfirmed:      2 * time.Minute,
		domain.StatusPreparing:      8 * time.Minute,
		domain.StatusOutForDelivery: 5 * time.Minute,
		domain.StatusDelivered:      0,
	}
}

func (d Durations) Of(s domain.OrderStatus) time.Duration {
	if s.Terminal() {
		return 0
	}
	return d[s]
}

// Advance moves at most one step. A start time in the future is clock skew
// and counts as an elapsed deadline.
func Advance(status domain.OrderStatus, start, now time.Time, d Durations) (domain.OrderStatus, time.Time) {
	next, ok := status.Next()
	if !ok {
		return status, start
	}
	if start.After(now) || !now.Before(start.Add(d.Of(status))) {
		return next, now
	}
	return status, start
}

func EstimatedEnd(rec domain.StatusRecord, d Durations) time.Time {
	return rec.StartTime.Add(d.Of(rec.Status))
}

// Remaining is never negative.
func Remaining(rec domain.StatusRecord, now time.Time, d Durations) time.Duration {
	if rec.Status.Terminal() {
		return 0
	}
	left := EstimatedEnd(rec, d).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Progress is the completion percentage across the whole sequence, weighted
// by step index plus the fraction of the current step, clamped to [0,100].
func Progress(rec domain.StatusRecord, now time.Time, d Durations) float64 {
	if rec.Status.Terminal() {
		return 100
	}
	idx := rec.Status.Index()
	if idx < 0 {
		return 0
	}
	frac := 1.0
	if dur := d.Of(rec.Status); dur > 0 {
		frac = float64(now.Sub(rec.StartTime)) / float64(dur)
	}
	frac = clamp(frac, 0, 1)
	steps := float64(len(domain.StatusSequence) - 1)
	return clamp((float64(idx)+frac)/steps*100, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
