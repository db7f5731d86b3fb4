package server

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// Multiplayer message types, client to server.
const (
	TypeHost   = "host"
	TypeJoin   = "join"
	TypeOffers = "offers"
	TypeAnswer = "answer"
	TypeICE    = "ice"
	TypeCancel = "cancel"
)

// Multiplayer message types, server to client. TypeAnswer and TypeICE are
// also used in this direction.
const (
	TypeHosted        = "hosted"
	TypeJoined        = "joined"
	TypePeersPending  = "peers_pending"
	TypeCountMismatch = "count_mismatch"
	TypeOffer         = "offer"
	TypeClosed        = "closed"
	TypeError         = "error"
)

// Message defines the structure for all C2S (Client to Server)
// and S2C (Server to Client) multiplayer websocket messages.
type Message struct {
	Type        string             `json:"type"`
	RoomCode    uint16             `json:"room_code,omitempty"`
	MaxSize     int                `json:"max_size,omitempty"`
	Slot        int                `json:"slot"`
	MemberCount int                `json:"member_count"`
	SDP         string             `json:"sdp,omitempty"`
	SDPs        []string           `json:"sdps,omitempty"`
	ICE         string             `json:"ice,omitempty"`
	Error       string             `json:"error,omitempty"`
	ICEServers  []webrtc.ICEServer `json:"ice_servers,omitempty"`
}

// codec frames values on a websocket. The multiplayer endpoint negotiates
// one with the codec query parameter.
type codec interface {
	// frameType is the websocket message type carrying encoded values.
	frameType() int
	encode(v any) ([]byte, error)
	decode(data []byte, v any) error
}

func codecFor(name string) (codec, error) {
	switch name {
	case "", "json":
		return jsonCodec{}, nil
	case "msgpack":
		return msgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

type jsonCodec struct{}

func (jsonCodec) frameType() int                  { return websocket.TextMessage }
func (jsonCodec) encode(v any) ([]byte, error)    { return json.Marshal(v) }
func (jsonCodec) decode(data []byte, v any) error { return json.Unmarshal(data, v) }

// msgpackCodec reuses the json tags so both codecs share one field layout.
type msgpackCodec struct{}

func (msgpackCodec) frameType() int { return websocket.BinaryMessage }

func (msgpackCodec) encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) decode(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}
