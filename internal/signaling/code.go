package signaling

import (
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"strconv"
)

const (
	// MinRoomCode and MaxRoomCode bound the 4-digit room code space.
	MinRoomCode RoomCode = 1000
	MaxRoomCode RoomCode = 9999
)

// RoomCode identifies one hosted session. Codes are never zero.
type RoomCode uint16

// NewRoomCode validates a client-supplied code.
func NewRoomCode(v uint16) (RoomCode, error) {
	code := RoomCode(v)
	if code < MinRoomCode || code > MaxRoomCode {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRoomCode, v)
	}
	return code, nil
}

// ParseRoomCode parses the decimal form of a room code.
func ParseRoomCode(s string) (RoomCode, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRoomCode, s)
	}
	return NewRoomCode(uint16(v))
}

func (c RoomCode) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

// RandomRoomCode picks a code uniformly from [MinRoomCode, MaxRoomCode].
// It does not check whether the code is in use; Manager.HostRandom retries
// on collision.
func RandomRoomCode() RoomCode {
	return MinRoomCode + RoomCode(randomIndex(int(MaxRoomCode-MinRoomCode)+1))
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		log.Panic("Failed to generate random index:", err)
	}
	return int(n.Int64())
}
