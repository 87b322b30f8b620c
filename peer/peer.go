package peer

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

var (
	ErrUnknownPeer = errors.New("unknown peer")
	ErrInvalidID   = errors.New("invalid peer id")
)

// ID is the raw identity of a peer. It is stored as a string so it can be
// used as a map key; String returns the canonical base58 form.
type ID string

func IDFromBytes(b []byte) (ID, error) {
	if len(b) == 0 {
		return "", ErrInvalidID
	}
	return ID(b), nil
}

// Decode parses the canonical base58 encoding of an ID.
func Decode(s string) (ID, error) {
	if s == "" {
		return "", ErrInvalidID
	}
	b, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidID, err)
	}
	return IDFromBytes(b)
}

func (id ID) Bytes() []byte {
	return []byte(id)
}

func (id ID) String() string {
	return base58.Encode([]byte(id))
}

// ShortString is used in log lines.
func (id ID) ShortString() string {
	s := id.String()
	if len(s) <= 10 {
		return s
	}
	return s[:4] + "*" + s[len(s)-6:]
}

func (id ID) Validate() error {
	if id == "" {
		return ErrInvalidID
	}
	return nil
}

type Peer interface {
	ID() ID
	PublicAddr() string
}

type peer struct {
	id         ID
	publicAddr string
}

func (p peer) ID() ID {
	return p.id
}

func (p peer) PublicAddr() string {
	return p.publicAddr
}

func New(id ID, addr string) Peer {
	return peer{
		id:         id,
		publicAddr: addr,
	}
}
