// Package progress tracks per-identifier timing and derives progress and ETA.
package progress

import (
	"fmt"
	"time"
)

// DefaultWindow bounds how many recent samples feed the ETA.
const DefaultWindow = 500

// Tracker keeps the most recent per-identifier durations in a ring.
type Tracker struct {
	total   int
	samples []time.Duration
	next    int
	full    bool
	sum     time.Duration
}

func NewTracker(total, window int) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{total: total, samples: make([]time.Duration, window)}
}

// Add records the duration of one processed identifier.
func (t *Tracker) Add(d time.Duration) {
	if t.full {
		t.sum -= t.samples[t.next]
	}
	t.samples[t.next] = d
	t.sum += d
	t.next++
	if t.next == len(t.samples) {
		t.next = 0
		t.full = true
	}
}

// Len is the number of samples currently held.
func (t *Tracker) Len() int {
	if t.full {
		return len(t.samples)
	}
	return t.next
}

// Mean is the average held sample; ok is false with no samples.
func (t *Tracker) Mean() (time.Duration, bool) {
	n := t.Len()
	if n == 0 {
		return 0, false
	}
	return t.sum / time.Duration(n), true
}

// Snapshot describes the run just before identifier index (0-based) starts.
type Snapshot struct {
	Position  int
	Total     int
	Percent   float64
	Remaining int
	ETA       time.Duration
	HasETA    bool
}

func (t *Tracker) At(index int) Snapshot {
	s := Snapshot{Position: index + 1, Total: t.total}
	if t.total > 0 {
		s.Percent = float64(index+1) / float64(t.total) * 100
	}
	s.Remaining = t.total - index - 1
	if s.Remaining < 0 {
		s.Remaining = 0
	}
	if mean, ok := t.Mean(); ok {
		s.ETA = mean * time.Duration(s.Remaining)
		s.HasETA = true
	}
	return s
}

func (s Snapshot) String() string {
	out := fmt.Sprintf("%d/%d (%.1f%%) remaining=%d", s.Position, s.Total, s.Percent, s.Remaining)
	if s.HasETA {
		out += " eta=" + FormatDuration(s.ETA)
	}
	return out
}

// FormatDuration renders d as "HHh MMm SSs", truncated to whole seconds.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02dh %02dm %02ds", secs/3600, (secs%3600)/60, secs%60)
}
