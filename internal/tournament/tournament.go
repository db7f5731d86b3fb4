// Package tournament computes the weekly tournament window.
//
// Tournaments run in back-to-back one-week windows anchored at a configured
// start time. Every window has a deterministic seed so that all servers hand
// out the same level layout for the same week.
package tournament

import (
	"errors"
	"math/rand/v2"
	"time"

	"github.com/BioHazard786/bola/internal/clock"
)

// WeekLength is the duration of one tournament.
const WeekLength = 7 * 24 * time.Hour

// ErrNotStarted is returned before the first tournament begins.
var ErrNotStarted = errors.New("tournament has not started")

// Week describes one tournament window. Times are unix seconds.
type Week struct {
	Week      uint64 `json:"week"`
	Seed      uint32 `json:"seed"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
}

// Tournament reports the current window relative to a fixed start.
type Tournament struct {
	start time.Time
	clock clock.Clock
}

// New creates a Tournament whose week zero begins at start.
func New(start time.Time, c clock.Clock) *Tournament {
	return &Tournament{start: start, clock: c}
}

// Current returns the window containing the clock's current time.
func (t *Tournament) Current() (Week, error) {
	elapsed := t.clock.Now().Sub(t.start)
	if elapsed < 0 {
		return Week{}, ErrNotStarted
	}

	week := uint64(elapsed / WeekLength)
	begin := t.start.Add(time.Duration(week) * WeekLength)
	return Week{
		Week:      week,
		Seed:      Seed(week),
		StartTime: begin.Unix(),
		EndTime:   begin.Add(WeekLength).Unix(),
	}, nil
}

// Seed derives the deterministic level seed of a week.
func Seed(week uint64) uint32 {
	return rand.New(rand.NewPCG(week, week)).Uint32()
}
