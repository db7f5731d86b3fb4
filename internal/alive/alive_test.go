package alive

import (
	"sync"
	"testing"
	"time"
)

func TestDropSignalsDeath(t *testing.T) {
	flag, tracker := Pair()
	if tracker.Dead() {
		t.Fatal("tracker reports death before drop")
	}

	done := make(chan struct{})
	go func() {
		tracker.WaitForDeath()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("WaitForDeath returned while flag is held")
	case <-time.After(20 * time.Millisecond):
	}

	flag.Drop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForDeath did not return after drop")
	}
	if !tracker.Dead() {
		t.Fatal("Dead() = false after drop")
	}
}

func TestWaitForDeathIsIdempotent(t *testing.T) {
	flag, tracker := Pair()
	flag.Drop()
	flag.Drop()

	for range 3 {
		tracker.WaitForDeath()
	}
	select {
	case <-tracker.Done():
	default:
		t.Fatal("Done channel not closed after drop")
	}
}

func TestManyWaiters(t *testing.T) {
	flag, tracker := Pair()

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.WaitForDeath()
		}()
	}

	flag.Drop()

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("not every waiter observed death")
	}
}

func TestCloneKeepsFlagAlive(t *testing.T) {
	flag, tracker := Pair()
	clone := flag.Clone()

	flag.Drop()
	if tracker.Dead() {
		t.Fatal("tracker reports death while a clone is held")
	}

	// Dropping the original again must not count as the clone's drop.
	flag.Drop()
	if tracker.Dead() {
		t.Fatal("double drop of one holder released the clone")
	}

	clone.Drop()
	if !tracker.Dead() {
		t.Fatal("tracker alive after every holder dropped")
	}
}
