// Package leaderboard keeps the live top-N highscore lists.
//
// There is one board per difficulty. Each board holds at most one entry per
// player, sorted by score descending. Every change is broadcast to the
// board's subscribers and persisted through a Store that keeps each
// player's best score.
package leaderboard

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// UpdateBufferSize is how many updates a subscriber may fall behind before
// it starts missing them.
const UpdateBufferSize = 8

// ErrUnknownDifficulty is returned for a difficulty outside Difficulties.
var ErrUnknownDifficulty = errors.New("not a valid difficulty")

// Difficulty names one leaderboard.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Normal Difficulty = "normal"
	Expert Difficulty = "expert"
)

// Difficulties lists every board in display order.
var Difficulties = []Difficulty{Easy, Normal, Expert}

// ParseDifficulty validates a difficulty name.
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(s)
	if !slices.Contains(Difficulties, d) {
		return "", fmt.Errorf("%w: %q", ErrUnknownDifficulty, s)
	}
	return d, nil
}

// Entry is one player's score.
type Entry struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// Update is a full snapshot of a board after a change.
type Update struct {
	Difficulty Difficulty `json:"difficulty"`
	Entries    []Entry    `json:"entries"`
}

// Store persists each player's best score per difficulty.
type Store interface {
	SetHighscore(ctx context.Context, username string, difficulty Difficulty, score int) error
	TopScores(ctx context.Context, difficulty Difficulty, limit int) ([]Entry, error)
}

type board struct {
	mu          sync.Mutex
	entries     []Entry
	subscribers map[int]chan Update
	nextID      int
}

// Leaderboard holds every board.
type Leaderboard struct {
	span   int
	store  Store
	logger *slog.Logger
	boards map[Difficulty]*board
}

// New creates empty boards that each keep the best span entries.
func New(store Store, span int, logger *slog.Logger) *Leaderboard {
	if logger == nil {
		logger = slog.Default()
	}
	boards := make(map[Difficulty]*board, len(Difficulties))
	for _, d := range Difficulties {
		boards[d] = &board{subscribers: make(map[int]chan Update)}
	}
	return &Leaderboard{
		span:   span,
		store:  store,
		logger: logger,
		boards: boards,
	}
}

// Span returns the board length.
func (l *Leaderboard) Span() int { return l.span }

// Load fills every board from the store.
func (l *Leaderboard) Load(ctx context.Context) error {
	for _, d := range Difficulties {
		entries, err := l.store.TopScores(ctx, d, l.span)
		if err != nil {
			return fmt.Errorf("loading %s leaderboard: %w", d, err)
		}
		sortEntries(entries)
		if len(entries) > l.span {
			entries = entries[:l.span]
		}

		b := l.boards[d]
		b.mu.Lock()
		b.entries = entries
		b.mu.Unlock()
	}
	return nil
}

// Add records a score. The board changes only if the score beats the
// player's current entry and ranks within the span; the store is updated
// whenever the player improves.
func (l *Leaderboard) Add(ctx context.Context, difficulty Difficulty, entry Entry) error {
	b, ok := l.boards[difficulty]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDifficulty, difficulty)
	}

	b.mu.Lock()
	idx := slices.IndexFunc(b.entries, func(e Entry) bool { return e.Username == entry.Username })
	if idx >= 0 && b.entries[idx].Score >= entry.Score {
		b.mu.Unlock()
		return nil
	}

	before := slices.Clone(b.entries)
	if idx >= 0 {
		b.entries = slices.Delete(b.entries, idx, idx+1)
	}
	pos, _ := slices.BinarySearchFunc(b.entries, entry, compareEntries)
	b.entries = slices.Insert(b.entries, pos, entry)
	if len(b.entries) > l.span {
		b.entries = b.entries[:l.span]
	}
	if !slices.Equal(before, b.entries) {
		b.broadcast(Update{Difficulty: difficulty, Entries: slices.Clone(b.entries)})
	}
	b.mu.Unlock()

	if err := l.store.SetHighscore(ctx, entry.Username, difficulty, entry.Score); err != nil {
		l.logger.Error("persisting highscore failed", "username", entry.Username, "difficulty", difficulty, "error", err)
		return fmt.Errorf("persisting highscore: %w", err)
	}
	return nil
}

// Snapshot returns a copy of a board.
func (l *Leaderboard) Snapshot(difficulty Difficulty) ([]Entry, error) {
	b, ok := l.boards[difficulty]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDifficulty, difficulty)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.entries), nil
}

// Subscribe streams every future change of a board. The returned function
// unsubscribes and closes the channel.
func (l *Leaderboard) Subscribe(difficulty Difficulty) (<-chan Update, func(), error) {
	b, ok := l.boards[difficulty]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownDifficulty, difficulty)
	}

	updates := make(chan Update, UpdateBufferSize)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = updates
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
			close(updates)
		})
	}
	return updates, cancel, nil
}

// Subscribers reports how many listeners a board has.
func (l *Leaderboard) Subscribers(difficulty Difficulty) int {
	b, ok := l.boards[difficulty]
	if !ok {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// broadcast must be called with b.mu held. Subscribers that are
// UpdateBufferSize updates behind miss this one.
func (b *board) broadcast(update Update) {
	for _, ch := range b.subscribers {
		select {
		case ch <- update:
		default:
		}
	}
}

func compareEntries(a, b Entry) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	return cmp.Compare(a.Username, b.Username)
}

func sortEntries(entries []Entry) {
	slices.SortFunc(entries, compareEntries)
}
