package leaderboard

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

type memoryStore struct {
	mu     sync.Mutex
	scores map[Difficulty]map[string]int
	err    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{scores: make(map[Difficulty]map[string]int)}
}

func (s *memoryStore) SetHighscore(_ context.Context, username string, d Difficulty, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.scores[d] == nil {
		s.scores[d] = make(map[string]int)
	}
	if current, ok := s.scores[d][username]; !ok || score > current {
		s.scores[d][username] = score
	}
	return nil
}

func (s *memoryStore) TopScores(_ context.Context, d Difficulty, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []Entry
	for username, score := range s.scores[d] {
		entries = append(entries, Entry{Username: username, Score: score})
	}
	sortEntries(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func mustSnapshot(t *testing.T, l *Leaderboard, d Difficulty) []Entry {
	t.Helper()
	entries, err := l.Snapshot(d)
	if err != nil {
		t.Fatalf("Snapshot(%s): %v", d, err)
	}
	return entries
}

func TestAddKeepsSortedTopSpan(t *testing.T) {
	ctx := context.Background()
	l := New(newMemoryStore(), 3, nil)

	for _, e := range []Entry{
		{"ann", 10}, {"bob", 30}, {"cat", 20}, {"dan", 5}, {"eve", 25},
	} {
		if err := l.Add(ctx, Easy, e); err != nil {
			t.Fatalf("Add(%v): %v", e, err)
		}
	}

	want := []Entry{{"bob", 30}, {"eve", 25}, {"cat", 20}}
	if got := mustSnapshot(t, l, Easy); !slices.Equal(got, want) {
		t.Fatalf("board = %v, want %v", got, want)
	}
	if got := mustSnapshot(t, l, Normal); len(got) != 0 {
		t.Fatalf("normal board = %v, want empty", got)
	}
}

func TestAddKeepsOneEntryPerPlayer(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	l := New(store, 5, nil)

	l.Add(ctx, Expert, Entry{"ann", 10})
	l.Add(ctx, Expert, Entry{"ann", 7})
	l.Add(ctx, Expert, Entry{"ann", 12})

	want := []Entry{{"ann", 12}}
	if got := mustSnapshot(t, l, Expert); !slices.Equal(got, want) {
		t.Fatalf("board = %v, want %v", got, want)
	}
	if got := store.scores[Expert]["ann"]; got != 12 {
		t.Fatalf("stored score = %d, want 12", got)
	}
}

func TestTiesOrderByUsername(t *testing.T) {
	ctx := context.Background()
	l := New(newMemoryStore(), 3, nil)
	l.Add(ctx, Normal, Entry{"zed", 10})
	l.Add(ctx, Normal, Entry{"amy", 10})

	want := []Entry{{"amy", 10}, {"zed", 10}}
	if got := mustSnapshot(t, l, Normal); !slices.Equal(got, want) {
		t.Fatalf("board = %v, want %v", got, want)
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	ctx := context.Background()
	l := New(newMemoryStore(), 2, nil)

	updates, cancel, err := l.Subscribe(Easy)
	if err != nil {
		t.Fatal(err)
	}
	if l.Subscribers(Easy) != 1 {
		t.Fatalf("Subscribers = %d, want 1", l.Subscribers(Easy))
	}

	l.Add(ctx, Easy, Entry{"ann", 10})
	select {
	case u := <-updates:
		if u.Difficulty != Easy || !slices.Equal(u.Entries, []Entry{{"ann", 10}}) {
			t.Fatalf("update = %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}

	// A score that does not reach the board does not broadcast.
	l.Add(ctx, Easy, Entry{"bob", 20})
	<-updates
	l.Add(ctx, Easy, Entry{"cat", 1})
	select {
	case u := <-updates:
		t.Fatalf("unexpected update %+v", u)
	default:
	}

	cancel()
	cancel()
	if _, ok := <-updates; ok {
		t.Fatal("channel open after cancel")
	}
	if l.Subscribers(Easy) != 0 {
		t.Fatalf("Subscribers = %d after cancel", l.Subscribers(Easy))
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	l := New(newMemoryStore(), 100, nil)
	updates, cancel, _ := l.Subscribe(Easy)
	defer cancel()

	for i := range UpdateBufferSize * 2 {
		if err := l.Add(ctx, Easy, Entry{Username: string(rune('a' + i)), Score: i + 1}); err != nil {
			t.Fatal(err)
		}
	}
	if len(updates) != UpdateBufferSize {
		t.Fatalf("buffered updates = %d, want %d", len(updates), UpdateBufferSize)
	}
}

func TestUnknownDifficulty(t *testing.T) {
	l := New(newMemoryStore(), 3, nil)

	if err := l.Add(context.Background(), "insane", Entry{"ann", 1}); !errors.Is(err, ErrUnknownDifficulty) {
		t.Fatalf("Add = %v, want ErrUnknownDifficulty", err)
	}
	if _, err := l.Snapshot("insane"); !errors.Is(err, ErrUnknownDifficulty) {
		t.Fatalf("Snapshot = %v", err)
	}
	if _, _, err := l.Subscribe("insane"); !errors.Is(err, ErrUnknownDifficulty) {
		t.Fatalf("Subscribe = %v", err)
	}
	if _, err := ParseDifficulty("insane"); !errors.Is(err, ErrUnknownDifficulty) {
		t.Fatalf("ParseDifficulty = %v", err)
	}
	if d, err := ParseDifficulty("expert"); err != nil || d != Expert {
		t.Fatalf("ParseDifficulty(expert) = %q, %v", d, err)
	}
}

func TestStoreFailureIsReported(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("disk full")
	l := New(store, 3, nil)

	err := l.Add(context.Background(), Easy, Entry{"ann", 5})
	if err == nil || !errors.Is(err, store.err) {
		t.Fatalf("Add = %v, want wrapped store error", err)
	}
}

func TestLoadFromStore(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	for i, name := range []string{"ann", "bob", "cat", "dan"} {
		store.SetHighscore(ctx, name, Normal, (i+1)*10)
	}

	l := New(store, 2, nil)
	if err := l.Load(ctx); err != nil {
		t.Fatal(err)
	}
	want := []Entry{{"dan", 40}, {"cat", 30}}
	if got := mustSnapshot(t, l, Normal); !slices.Equal(got, want) {
		t.Fatalf("loaded board = %v, want %v", got, want)
	}
	if l.Span() != 2 {
		t.Fatalf("Span = %d", l.Span())
	}
}
