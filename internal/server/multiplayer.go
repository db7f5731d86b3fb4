package server

import (
	"context"
	"errors"
	"sync"

	"github.com/BioHazard786/bola/internal/signaling"
)

// Error strings sent to multiplayer clients.
const (
	errRoomNotFound = "Room not found"
	errRoomFull     = "Room is full"
	errRoomInUse    = "Room code in use"
	errBadRequest   = "Bad request"
	errInternal     = "Internal error"
)

func errorText(err error) string {
	switch {
	case errors.Is(err, signaling.ErrNotFound):
		return errRoomNotFound
	case errors.Is(err, signaling.ErrFull):
		return errRoomFull
	case errors.Is(err, signaling.ErrSessionExists):
		return errRoomInUse
	case errors.Is(err, signaling.ErrInvalidRoomCode), errors.Is(err, signaling.ErrInvalidRoomSize):
		return errBadRequest
	default:
		return errInternal
	}
}

// runMultiplayer drives one multiplayer connection. The first message picks
// the role: host or join.
func (s *Server) runMultiplayer(ctx context.Context, c *client) {
	msg, ok := c.read(ctx)
	if !ok {
		return
	}

	switch msg.Type {
	case TypeHost:
		s.runHost(ctx, c, msg)
	case TypeJoin:
		s.runGuest(ctx, c, msg)
	default:
		c.write(ctx, &Message{Type: TypeError, Error: errBadRequest})
	}
}

func (s *Server) openRoom(ctx context.Context, msg *Message) (*signaling.Host, error) {
	if msg.MaxSize < 1 || msg.MaxSize > s.cfg.MaxRoomSize {
		return nil, signaling.ErrInvalidRoomSize
	}
	if msg.RoomCode == 0 {
		return s.manager.HostRandom(ctx, msg.MaxSize)
	}
	code, err := signaling.NewRoomCode(msg.RoomCode)
	if err != nil {
		return nil, err
	}
	return s.manager.Host(code, msg.MaxSize)
}

// runHost serves the host side of a room. The room lives until the host
// cancels or disconnects.
func (s *Server) runHost(ctx context.Context, c *client, msg *Message) {
	host, err := s.openRoom(ctx, msg)
	if err != nil {
		if ctx.Err() == nil {
			c.write(ctx, &Message{Type: TypeError, Error: errorText(err)})
		}
		return
	}
	defer host.Close()

	logger := c.logger.With("room", host.Code(), "role", "host")
	logger.Info("room hosted", "max_size", host.MaxSize())

	if !c.write(ctx, &Message{
		Type:       TypeHosted,
		RoomCode:   uint16(host.Code()),
		MaxSize:    host.MaxSize(),
		ICEServers: s.cfg.ICEServers(),
	}) {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	requests := make(chan *signaling.OfferRequest)
	answers := make(chan signaling.Answer)

	// waitForPeers runs while no request is outstanding, so it never spins
	// on the same pending batch.
	waitForPeers := func() {
		go func() {
			req, ok := host.WaitForConnection(ctx)
			if !ok {
				return
			}
			select {
			case requests <- req:
			case <-ctx.Done():
			}
		}()
	}
	collect := func(stream *signaling.AnswerStream) {
		go func() {
			for {
				answer, ok := stream.Next(ctx)
				if !ok {
					return
				}
				select {
				case answers <- answer:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	var pending *signaling.OfferRequest
	returns := make(map[int]*signaling.ICESender)
	waitForPeers()

	for {
		select {
		case <-ctx.Done():
			return

		case req := <-requests:
			pending = req
			if !c.write(ctx, &Message{Type: TypePeersPending, MemberCount: req.MemberCount()}) {
				return
			}

		case answer := <-answers:
			returns[answer.Slot] = answer.Return
			if !c.write(ctx, &Message{
				Type: TypeAnswer,
				Slot: answer.Slot,
				SDP:  string(answer.SDP),
				ICE:  string(answer.ICE),
			}) {
				return
			}

		case msg, ok := <-c.incoming:
			if !ok {
				return
			}
			switch msg.Type {
			case TypeCancel:
				logger.Info("host cancelled room")
				return

			case TypeOffers:
				if pending == nil {
					c.write(ctx, &Message{Type: TypeError, Error: errBadRequest})
					continue
				}
				offers := make([]signaling.SDPOffer, len(msg.SDPs))
				for i, sdp := range msg.SDPs {
					offers[i] = signaling.SDPOffer(sdp)
				}

				stream, err := pending.SendOffers(ctx, offers)
				var mismatch *signaling.CountMismatchError
				switch {
				case errors.As(err, &mismatch):
					pending = mismatch.Request
					logger.Debug("offer count mismatch", "got", len(offers), "want", mismatch.Want)
					if !c.write(ctx, &Message{Type: TypeCountMismatch, MemberCount: mismatch.Want}) {
						return
					}
				case err != nil:
					logger.Warn("sending offers failed", "error", err)
					c.write(ctx, &Message{Type: TypeClosed})
					return
				default:
					logger.Debug("offers sent", "count", len(offers))
					pending = nil
					collect(stream)
					waitForPeers()
				}

			case TypeICE:
				ret, ok := returns[msg.Slot]
				if !ok {
					c.write(ctx, &Message{Type: TypeError, Error: errBadRequest})
					continue
				}
				delete(returns, msg.Slot)
				if err := ret.Send(signaling.ICECandidate(msg.ICE)); err != nil {
					logger.Warn("returning ICE failed", "slot", msg.Slot, "error", err)
				}

			default:
				c.write(ctx, &Message{Type: TypeError, Error: errBadRequest})
			}
		}
	}
}

// runGuest serves one joiner through its single offer/answer/ICE exchange.
func (s *Server) runGuest(ctx context.Context, c *client, msg *Message) {
	code, err := signaling.NewRoomCode(msg.RoomCode)
	if err != nil {
		c.write(ctx, &Message{Type: TypeError, Error: errorText(err)})
		return
	}
	guest, err := s.manager.Join(code)
	if err != nil {
		c.write(ctx, &Message{Type: TypeError, Error: errorText(err)})
		return
	}

	logger := c.logger.With("room", code, "role", "guest", "slot", guest.Slot())
	logger.Info("joined room", "member_count", guest.MemberCount())

	if !c.write(ctx, &Message{
		Type:        TypeJoined,
		RoomCode:    uint16(code),
		Slot:        guest.Slot(),
		MemberCount: guest.MemberCount(),
		MaxSize:     guest.MaxSize(),
		ICEServers:  s.cfg.ICEServers(),
	}) {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	// The reader writes to c, so it must be gone before the handler returns
	// and the connection is finished.
	var reader sync.WaitGroup
	defer reader.Wait()
	defer cancel()

	// Watch the client while waiting on the room so a cancel or hang-up
	// ends the wait.
	replies := make(chan *Message, 1)
	reader.Add(1)
	go func() {
		defer reader.Done()
		defer cancel()
		for {
			msg, ok := c.read(ctx)
			if !ok || msg.Type == TypeCancel {
				return
			}
			if msg.Type != TypeAnswer {
				c.write(ctx, &Message{Type: TypeError, Error: errBadRequest})
				continue
			}
			select {
			case replies <- msg:
			default:
				c.write(ctx, &Message{Type: TypeError, Error: errBadRequest})
			}
		}
	}()

	offer, ok := guest.WaitForOffer(ctx)
	if !ok {
		s.reportClosed(ctx, c)
		return
	}
	if !c.write(ctx, &Message{Type: TypeOffer, Slot: offer.Slot(), SDP: string(offer.SDP)}) {
		return
	}

	var reply *Message
	select {
	case reply = <-replies:
	case <-ctx.Done():
		return
	}

	ice, err := offer.SendAnswer(signaling.SDPAnswer(reply.SDP), signaling.ICECandidate(reply.ICE))
	if err != nil {
		logger.Debug("answer not delivered", "error", err)
		s.reportClosed(ctx, c)
		return
	}

	candidate, ok := ice.Recv(ctx)
	if !ok {
		s.reportClosed(ctx, c)
		return
	}
	c.write(ctx, &Message{Type: TypeICE, Slot: offer.Slot(), ICE: string(candidate)})
	logger.Info("handshake complete")
}

// reportClosed tells a waiting guest that the room went away. Nothing is
// sent if the guest itself left.
func (s *Server) reportClosed(ctx context.Context, c *client) {
	if ctx.Err() != nil {
		return
	}
	c.write(ctx, &Message{Type: TypeClosed})
}
