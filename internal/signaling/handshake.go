package signaling

import (
	"context"
	"sync/atomic"

	"github.com/BioHazard786/bola/internal/mailbox"
)

// SDPOffer, SDPAnswer and ICECandidate are routed verbatim; the broker never
// parses them.
type (
	SDPOffer     string
	SDPAnswer    string
	ICECandidate string
)

// OfferRequest is the host's view of the guests waiting for an offer. Its
// member count is a snapshot taken when the request was created.
type OfferRequest struct {
	session *session
	first   int
	count   int
}

// MemberCount is the number of offers SendOffers expects.
func (r *OfferRequest) MemberCount() int { return r.count }

// SendOffers delivers offers[i] to the i-th pending guest in join order and
// returns the stream their answers arrive on.
//
// If the batch size differs from the snapshot, or guests joined since the
// snapshot was taken, nothing is sent and a *CountMismatchError carrying the
// original offers and a refreshed request is returned. Delivery never blocks,
// so ctx does not affect the outcome. ErrClosed means the room closed.
func (r *OfferRequest) SendOffers(_ context.Context, offers []SDPOffer) (*AnswerStream, error) {
	s := r.session

	s.mu.Lock()
	if s.closed.Dead() {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	first, live := s.offered, len(s.peers)-s.offered
	if len(offers) != r.count || r.count != live || r.first != first {
		s.mu.Unlock()
		return nil, &CountMismatchError{
			Request: &OfferRequest{session: s, first: first, count: live},
			Offers:  offers,
			Want:    live,
		}
	}
	targets := make([]*mailbox.Sender[*Offer], live)
	copy(targets, s.peers[first:first+live])
	s.offered += live
	s.mu.Unlock()

	answers, receiver := mailbox.New[Answer](live)
	for i, sdp := range offers {
		// Each slot mailbox holds exactly one offer for its lifetime and these
		// slots were unoffered under the lock. A failed send therefore means
		// Close won the race.
		if !targets[i].TrySend(&Offer{
			SDP:     sdp,
			slot:    first + i,
			session: s,
			answers: answers,
		}) {
			return nil, ErrClosed
		}
	}

	return &AnswerStream{
		session:   s,
		answers:   receiver,
		remaining: live,
	}, nil
}

// Answer is one guest's reply to its offer.
type Answer struct {
	Slot   int
	SDP    SDPAnswer
	ICE    ICECandidate
	Return *ICESender
}

// AnswerStream yields the answers of one offer batch in arrival order.
// It is meant for a single consumer.
type AnswerStream struct {
	session   *session
	answers   *mailbox.Receiver[Answer]
	remaining int
}

// Remaining reports how many guests of the batch have not answered yet.
func (a *AnswerStream) Remaining() int { return a.remaining }

// Next waits for whichever outstanding guest answers first. It reports false
// once every guest has answered, the session closes, or ctx is done.
func (a *AnswerStream) Next(ctx context.Context) (Answer, bool) {
	if a.remaining == 0 {
		return Answer{}, false
	}

	ctx, cancel := a.session.bind(ctx)
	defer cancel()

	answer, ok := a.answers.Recv(ctx)
	if !ok {
		return Answer{}, false
	}
	a.remaining--
	return answer, true
}

// Offer is the host's offer as seen by one guest.
type Offer struct {
	SDP SDPOffer

	slot    int
	session *session
	answers *mailbox.Sender[Answer]
	sent    atomic.Bool
}

// Slot returns the slot this offer was addressed to.
func (o *Offer) Slot() int { return o.slot }

// SendAnswer returns the guest's answer and ICE candidate to the host and
// yields the receiver for the host's ICE. It may be called once.
func (o *Offer) SendAnswer(answer SDPAnswer, ice ICECandidate) (*ICEReceiver, error) {
	if o.session.closed.Dead() {
		return nil, ErrClosed
	}
	if !o.sent.CompareAndSwap(false, true) {
		return nil, ErrAlreadySent
	}

	iceSender, iceReceiver := mailbox.New[ICECandidate](1)
	// The answer mailbox has room for every slot of the batch.
	o.answers.TrySend(Answer{
		Slot:   o.slot,
		SDP:    answer,
		ICE:    ice,
		Return: &ICESender{sender: iceSender},
	})

	return &ICEReceiver{session: o.session, receiver: iceReceiver}, nil
}

// ICESender carries the host's ICE candidate back to one guest. Single use.
type ICESender struct {
	sender *mailbox.Sender[ICECandidate]
	sent   atomic.Bool
}

// Send delivers ice. A second call returns ErrAlreadySent and delivers nothing.
func (s *ICESender) Send(ice ICECandidate) error {
	if !s.sent.CompareAndSwap(false, true) {
		return ErrAlreadySent
	}
	s.sender.TrySend(ice)
	s.sender.Close()
	return nil
}

// ICEReceiver is the guest's end of an ICESender.
type ICEReceiver struct {
	session  *session
	receiver *mailbox.Receiver[ICECandidate]
}

// Recv waits for the host's ICE candidate. A candidate that was already
// delivered is returned even if the room has since closed. It reports false
// when the room closes first or ctx is done.
func (r *ICEReceiver) Recv(ctx context.Context) (ICECandidate, bool) {
	ctx, cancel := r.session.bind(ctx)
	defer cancel()
	return r.receiver.Recv(ctx)
}
