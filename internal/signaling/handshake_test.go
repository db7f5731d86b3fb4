package signaling

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"testing"
	"time"
)

func waitForConnection(t *testing.T, host *Host) *OfferRequest {
	t.Helper()
	req, ok := host.WaitForConnection(testContext(t))
	if !ok {
		t.Fatal("WaitForConnection reported closed")
	}
	return req
}

func waitForOffer(t *testing.T, guest *Guest) *Offer {
	t.Helper()
	offer, ok := guest.WaitForOffer(testContext(t))
	if !ok {
		t.Fatalf("slot %d: WaitForOffer reported closed", guest.Slot())
	}
	return offer
}

func nextAnswer(t *testing.T, stream *AnswerStream) Answer {
	t.Helper()
	answer, ok := stream.Next(testContext(t))
	if !ok {
		t.Fatal("AnswerStream.Next reported closed")
	}
	return answer
}

func TestHandshakeEndToEnd(t *testing.T) {
	m := NewManager()
	host := mustHost(t, m, 4242, 2)
	ctx := testContext(t)

	peer0 := mustJoin(t, m, 4242)
	peer1 := mustJoin(t, m, 4242)

	req := waitForConnection(t, host)
	if req.MemberCount() != 2 {
		t.Fatalf("MemberCount = %d, want 2", req.MemberCount())
	}
	stream, err := req.SendOffers(ctx, []SDPOffer{"A", "B"})
	if err != nil {
		t.Fatalf("SendOffers: %v", err)
	}

	offer0 := waitForOffer(t, peer0)
	offer1 := waitForOffer(t, peer1)
	if offer0.SDP != "A" || offer1.SDP != "B" {
		t.Fatalf("offers = %q, %q, want A, B", offer0.SDP, offer1.SDP)
	}
	if offer0.Slot() != 0 || offer1.Slot() != 1 {
		t.Fatalf("offer slots = %d, %d", offer0.Slot(), offer1.Slot())
	}

	// Peer 1 answers first and must come out of the fan-in first.
	ice1, err := offer1.SendAnswer("ans1", "ice1")
	if err != nil {
		t.Fatalf("peer 1 SendAnswer: %v", err)
	}
	first := nextAnswer(t, stream)
	if first.Slot != 1 || first.SDP != "ans1" || first.ICE != "ice1" {
		t.Fatalf("first answer = %+v, want slot 1 ans1 ice1", first)
	}
	if stream.Remaining() != 1 {
		t.Fatalf("Remaining = %d, want 1", stream.Remaining())
	}

	if err := first.Return.Send("host-ice-1"); err != nil {
		t.Fatalf("ICE Send: %v", err)
	}
	got, ok := ice1.Recv(ctx)
	if !ok || got != "host-ice-1" {
		t.Fatalf("peer 1 ICE = (%q, %v), want host-ice-1", got, ok)
	}

	ice0, err := offer0.SendAnswer("ans0", "ice0")
	if err != nil {
		t.Fatalf("peer 0 SendAnswer: %v", err)
	}
	second := nextAnswer(t, stream)
	if second.Slot != 0 || second.SDP != "ans0" {
		t.Fatalf("second answer = %+v, want slot 0", second)
	}
	if err := second.Return.Send("host-ice-0"); err != nil {
		t.Fatal(err)
	}
	if got, ok := ice0.Recv(ctx); !ok || got != "host-ice-0" {
		t.Fatalf("peer 0 ICE = (%q, %v)", got, ok)
	}

	if _, ok := stream.Next(ctx); ok {
		t.Fatal("Next returned an answer after the batch completed")
	}
}

func TestSendOffersCountMismatch(t *testing.T) {
	m := NewManager()
	host := mustHost(t, m, 4300, 3)
	ctx := testContext(t)

	mustJoin(t, m, 4300)
	req := waitForConnection(t, host)

	offers := []SDPOffer{"A", "B"}
	_, err := req.SendOffers(ctx, offers)
	var mismatch *CountMismatchError
	if !errors.As(err, &mismatch) || !errors.Is(err, ErrCountMismatch) {
		t.Fatalf("SendOffers = %v, want CountMismatchError", err)
	}
	if !slices.Equal(mismatch.Offers, offers) || mismatch.Want != 1 {
		t.Fatalf("mismatch = %+v, want original offers and Want 1", mismatch)
	}

	// Nothing was marked offered: the refreshed request still covers slot 0.
	stream, err := mismatch.Request.SendOffers(ctx, []SDPOffer{"A"})
	if err != nil {
		t.Fatalf("retry SendOffers: %v", err)
	}
	if stream.Remaining() != 1 {
		t.Fatalf("Remaining = %d, want 1", stream.Remaining())
	}
}

func TestSendOffersDetectsMembershipChange(t *testing.T) {
	m := NewManager()
	host := mustHost(t, m, 4400, 3)
	ctx := testContext(t)

	first := mustJoin(t, m, 4400)
	req := waitForConnection(t, host)
	if req.MemberCount() != 1 {
		t.Fatalf("MemberCount = %d, want 1", req.MemberCount())
	}

	// A guest joins after the host sized its batch.
	second := mustJoin(t, m, 4400)

	var mismatch *CountMismatchError
	_, err := req.SendOffers(ctx, []SDPOffer{"A"})
	if !errors.As(err, &mismatch) {
		t.Fatalf("stale SendOffers = %v, want CountMismatchError", err)
	}
	if got := mismatch.Request.MemberCount(); got != 2 {
		t.Fatalf("refreshed MemberCount = %d, want 2", got)
	}

	if _, err := mismatch.Request.SendOffers(ctx, []SDPOffer{"A", "B"}); err != nil {
		t.Fatalf("retry SendOffers: %v", err)
	}
	if offer := waitForOffer(t, first); offer.SDP != "A" {
		t.Fatalf("slot 0 offer = %q", offer.SDP)
	}
	if offer := waitForOffer(t, second); offer.SDP != "B" {
		t.Fatalf("slot 1 offer = %q", offer.SDP)
	}
}

func TestSendOffersRejectsReusedRequest(t *testing.T) {
	m := NewManager()
	host := mustHost(t, m, 4500, 2)
	ctx := testContext(t)

	mustJoin(t, m, 4500)
	req := waitForConnection(t, host)
	if _, err := req.SendOffers(ctx, []SDPOffer{"A"}); err != nil {
		t.Fatal(err)
	}
	if _, err := req.SendOffers(ctx, []SDPOffer{"A"}); !errors.Is(err, ErrCountMismatch) {
		t.Fatalf("reused request = %v, want ErrCountMismatch", err)
	}
}

func TestLateJoinerFormsNextBatch(t *testing.T) {
	m := NewManager()
	host := mustHost(t, m, 4600, 3)
	ctx := testContext(t)

	early := mustJoin(t, m, 4600)
	req := waitForConnection(t, host)
	if _, err := req.SendOffers(ctx, []SDPOffer{"first"}); err != nil {
		t.Fatal(err)
	}

	late := mustJoin(t, m, 4600)
	req = waitForConnection(t, host)
	if req.MemberCount() != 1 {
		t.Fatalf("second batch MemberCount = %d, want 1", req.MemberCount())
	}
	stream, err := req.SendOffers(ctx, []SDPOffer{"second"})
	if err != nil {
		t.Fatal(err)
	}

	if offer := waitForOffer(t, early); offer.SDP != "first" {
		t.Fatalf("early offer = %q", offer.SDP)
	}
	offer := waitForOffer(t, late)
	if offer.SDP != "second" || offer.Slot() != 1 {
		t.Fatalf("late offer = %q slot %d", offer.SDP, offer.Slot())
	}

	if _, err := offer.SendAnswer("ans", "ice"); err != nil {
		t.Fatal(err)
	}
	if answer := nextAnswer(t, stream); answer.Slot != 1 {
		t.Fatalf("answer slot = %d, want 1", answer.Slot)
	}
}

func TestWaitForConnectionBlocksUntilJoin(t *testing.T) {
	m := NewManager()
	host := mustHost(t, m, 4700, 2)

	result := make(chan int, 1)
	go func() {
		req, ok := host.WaitForConnection(context.Background())
		if !ok {
			result <- -1
			return
		}
		result <- req.MemberCount()
	}()

	select {
	case <-result:
		t.Fatal("WaitForConnection returned with no guests")
	case <-time.After(20 * time.Millisecond):
	}

	mustJoin(t, m, 4700)
	select {
	case count := <-result:
		if count != 1 {
			t.Fatalf("MemberCount = %d, want 1", count)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitForConnection did not wake on join")
	}
}

func TestSingleUseChannels(t *testing.T) {
	m := NewManager()
	host := mustHost(t, m, 4800, 1)
	ctx := testContext(t)

	guest := mustJoin(t, m, 4800)
	stream, err := waitForConnection(t, host).SendOffers(ctx, []SDPOffer{"A"})
	if err != nil {
		t.Fatal(err)
	}
	offer := waitForOffer(t, guest)

	ice, err := offer.SendAnswer("ans", "ice")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := offer.SendAnswer("ans", "ice"); !errors.Is(err, ErrAlreadySent) {
		t.Fatalf("second SendAnswer = %v, want ErrAlreadySent", err)
	}

	answer := nextAnswer(t, stream)
	if err := answer.Return.Send("one"); err != nil {
		t.Fatal(err)
	}
	if err := answer.Return.Send("two"); !errors.Is(err, ErrAlreadySent) {
		t.Fatalf("second ICE Send = %v, want ErrAlreadySent", err)
	}

	if got, ok := ice.Recv(ctx); !ok || got != "one" {
		t.Fatalf("ICE = (%q, %v), want one", got, ok)
	}
	if _, ok := ice.Recv(ctx); ok {
		t.Fatal("ICE receiver yielded a second candidate")
	}
}

func TestCloseWakesEveryWaiter(t *testing.T) {
	m := NewManager()
	host, err := m.Host(4900, 3)
	if err != nil {
		t.Fatal(err)
	}
	ctx := testContext(t)

	// Slot 0 completes its answer and waits for ICE; slot 1 has an open
	// answer stream entry; slot 2 joins late and waits for an offer.
	answered := mustJoin(t, m, 4900)
	pending := mustJoin(t, m, 4900)
	stream, err := waitForConnection(t, host).SendOffers(ctx, []SDPOffer{"A", "B"})
	if err != nil {
		t.Fatal(err)
	}
	offer := waitForOffer(t, answered)
	ice, err := offer.SendAnswer("ans", "ice")
	if err != nil {
		t.Fatal(err)
	}
	nextAnswer(t, stream)
	waitForOffer(t, pending)
	late := mustJoin(t, m, 4900)

	type result struct {
		name string
		ok   bool
	}
	results := make(chan result, 4)
	go func() {
		_, ok := ice.Recv(ctx)
		results <- result{"ice", ok}
	}()
	go func() {
		_, ok := stream.Next(ctx)
		results <- result{"answers", ok}
	}()
	go func() {
		_, ok := late.WaitForOffer(ctx)
		results <- result{"offer", ok}
	}()

	time.Sleep(20 * time.Millisecond)
	host.Close()

	go func() {
		_, ok := host.WaitForConnection(ctx)
		results <- result{"connection", ok}
	}()

	for range 4 {
		select {
		case r := <-results:
			if r.ok {
				t.Fatalf("%s wait succeeded after close", r.name)
			}
		case <-time.After(time.Second):
			t.Fatal("a waiter did not observe close")
		}
	}

	if _, err := offer.SendAnswer("again", "ice"); !errors.Is(err, ErrClosed) {
		t.Fatalf("SendAnswer after close = %v, want ErrClosed", err)
	}
	if _, err := m.Join(4900); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Join after close = %v, want ErrNotFound", err)
	}
	mustHost(t, m, 4900, 1)
}

func TestCloseWakesBlockedWaitForConnection(t *testing.T) {
	m := NewManager()
	host, err := m.Host(5000, 2)
	if err != nil {
		t.Fatal(err)
	}
	ctx := testContext(t)

	// One guest is fully offered, so nothing is pending and the wait blocks.
	guest := mustJoin(t, m, 5000)
	if _, err := waitForConnection(t, host).SendOffers(ctx, []SDPOffer{"A"}); err != nil {
		t.Fatal(err)
	}
	waitForOffer(t, guest)

	done := make(chan bool, 1)
	go func() {
		_, ok := host.WaitForConnection(ctx)
		done <- ok
	}()

	select {
	case ok := <-done:
		t.Fatalf("WaitForConnection returned %v with nothing pending", ok)
	case <-time.After(20 * time.Millisecond):
	}
	host.Close()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("blocked WaitForConnection succeeded after close")
		}
	case <-time.After(time.Second):
		t.Fatal("blocked WaitForConnection did not observe close")
	}
}

func TestDeliveredICEWinsOverClose(t *testing.T) {
	m := NewManager()
	host, err := m.Host(5100, 1)
	if err != nil {
		t.Fatal(err)
	}
	ctx := testContext(t)

	guest := mustJoin(t, m, 5100)
	stream, err := waitForConnection(t, host).SendOffers(ctx, []SDPOffer{"A"})
	if err != nil {
		t.Fatal(err)
	}
	ice, err := waitForOffer(t, guest).SendAnswer("ans", "ice")
	if err != nil {
		t.Fatal(err)
	}
	if err := nextAnswer(t, stream).Return.Send("host-ice"); err != nil {
		t.Fatal(err)
	}
	host.Close()

	if got, ok := ice.Recv(ctx); !ok || got != "host-ice" {
		t.Fatalf("ICE = (%q, %v), want delivered candidate", got, ok)
	}
}

func TestSendOffersAfterClose(t *testing.T) {
	m := NewManager()
	host, err := m.Host(5200, 1)
	if err != nil {
		t.Fatal(err)
	}
	mustJoin(t, m, 5200)
	req := waitForConnection(t, host)
	host.Close()

	if _, err := req.SendOffers(testContext(t), []SDPOffer{"A"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("SendOffers after close = %v, want ErrClosed", err)
	}
}

func TestSendOffersIgnoresCancelledContext(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	for round := range 50 {
		m := NewManager()
		host := mustHost(t, m, 5250, 4)
		guests := make([]*Guest, 4)
		for i := range guests {
			guests[i] = mustJoin(t, m, 5250)
		}
		req := waitForConnection(t, host)

		offers := []SDPOffer{"A", "B", "C", "D"}
		stream, err := req.SendOffers(cancelled, offers)
		if err != nil {
			t.Fatalf("round %d: SendOffers = %v, want success", round, err)
		}
		if stream.Remaining() != len(offers) {
			t.Fatalf("round %d: Remaining = %d, want %d", round, stream.Remaining(), len(offers))
		}
		for i, guest := range guests {
			if offer := waitForOffer(t, guest); offer.SDP != offers[i] {
				t.Fatalf("round %d: slot %d got %q, want %q", round, i, offer.SDP, offers[i])
			}
		}
		host.Close()
	}
}

func TestSlotsIncreaseAcrossBatches(t *testing.T) {
	m := NewManager()
	host := mustHost(t, m, 5300, 5)
	ctx := testContext(t)

	var slots []int
	for batch := range 3 {
		guest := mustJoin(t, m, 5300)
		slots = append(slots, guest.Slot())
		req := waitForConnection(t, host)
		if _, err := req.SendOffers(ctx, []SDPOffer{SDPOffer("offer-" + strconv.Itoa(batch))}); err != nil {
			t.Fatal(err)
		}
		if offer := waitForOffer(t, guest); offer.Slot() != guest.Slot() {
			t.Fatalf("offer slot %d for guest slot %d", offer.Slot(), guest.Slot())
		}
	}
	if !slices.Equal(slots, []int{0, 1, 2}) {
		t.Fatalf("slots = %v, want [0 1 2]", slots)
	}
}
