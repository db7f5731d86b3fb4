package signaling

import (
	"context"
	"sync"

	"github.com/BioHazard786/bola/internal/alive"
	"github.com/BioHazard786/bola/internal/mailbox"
)

// session is the state of one hosted room. The registry owns it from
// Manager.Host until Host.Close.
type session struct {
	code    RoomCode
	maxSize int

	// closed dies when the host handle is closed.
	closed *alive.Tracker

	// joined wakes the host when a guest commits. Capacity 1; a pending
	// wakeup is enough because the host rereads the peer list.
	joined chan struct{}

	mu sync.Mutex
	// peers holds one offer mailbox per guest in join order. The index is
	// the guest's slot and is never reused.
	peers []*mailbox.Sender[*Offer]
	// offered counts the leading slots that already received an offer.
	offered int
}

func newSession(code RoomCode, maxSize int, closed *alive.Tracker) *session {
	return &session{
		code:    code,
		maxSize: maxSize,
		closed:  closed,
		joined:  make(chan struct{}, 1),
	}
}

// join reserves the next slot. The capacity check and the append happen
// under one lock so concurrent joins cannot overfill the room.
func (s *session) join() (*Guest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Dead() {
		return nil, ErrNotFound
	}
	if len(s.peers) >= s.maxSize {
		return nil, ErrFull
	}

	sender, receiver := mailbox.New[*Offer](1)
	guest := &Guest{
		session:     s,
		slot:        len(s.peers),
		memberCount: len(s.peers),
		offers:      receiver,
	}
	s.peers = append(s.peers, sender)

	select {
	case s.joined <- struct{}{}:
	default:
	}
	return guest, nil
}

// pending snapshots the slots that joined since the last offer batch.
func (s *session) pending() *OfferRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &OfferRequest{
		session: s,
		first:   s.offered,
		count:   len(s.peers) - s.offered,
	}
}

// shutdown wakes every guest still waiting for an offer.
func (s *session) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, peer := range s.peers {
		peer.Close()
	}
}

func (s *session) size() (peers, capacity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers), s.maxSize
}

// bind returns a context that is also cancelled when the session closes.
func (s *session) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-s.closed.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Host is the host-side handle of a session. It must be closed; closing is
// the only way a session ends.
type Host struct {
	manager   *Manager
	session   *session
	flag      *alive.Flag
	closeOnce sync.Once
}

// Code returns the room code guests join with.
func (h *Host) Code() RoomCode { return h.session.code }

// MaxSize returns the number of guests the room accepts.
func (h *Host) MaxSize() int { return h.session.maxSize }

// WaitForConnection suspends until at least one guest has joined and not yet
// been sent an offer. It reports false when the session is closed or ctx is
// done.
func (h *Host) WaitForConnection(ctx context.Context) (*OfferRequest, bool) {
	s := h.session
	for {
		if s.closed.Dead() {
			return nil, false
		}
		if req := s.pending(); req.count > 0 {
			return req, true
		}

		select {
		case <-s.joined:
		case <-s.closed.Done():
			return nil, false
		case <-ctx.Done():
			return nil, false
		}
	}
}

// Close tears the session down: every waiter in the room observes the close,
// then the code is released for reuse. Safe to call more than once.
func (h *Host) Close() {
	h.closeOnce.Do(func() {
		h.flag.Drop()
		h.session.shutdown()
		h.manager.remove(h.session)
	})
}

// Guest is a joiner's handle on its slot.
type Guest struct {
	session     *session
	slot        int
	memberCount int
	offers      *mailbox.Receiver[*Offer]
}

// Code returns the room code that was joined.
func (g *Guest) Code() RoomCode { return g.session.code }

// Slot returns the guest's fixed position in the room.
func (g *Guest) Slot() int { return g.slot }

// MemberCount returns how many guests had joined before this one.
func (g *Guest) MemberCount() int { return g.memberCount }

// MaxSize returns the room capacity.
func (g *Guest) MaxSize() int { return g.session.maxSize }

// WaitForOffer suspends until the host sends this slot its offer. It reports
// false when the room closes first or ctx is done.
func (g *Guest) WaitForOffer(ctx context.Context) (*Offer, bool) {
	return g.offers.Recv(ctx)
}
