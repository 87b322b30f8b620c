package encrypted

import (
	"context"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/FluffyKebab/mothra/crypto"
	"github.com/FluffyKebab/mothra/peer"
	"github.com/FluffyKebab/mothra/transport"
)

const _defaultHandshakeTimeout = 10 * time.Second

var ErrNilKey = errors.New("nil private key")

// Transport authenticates and encrypts the conns of an underlying transport.
// A conn is only handed out once the remote side has proven it owns the key
// its id is derived from.
type Transport struct {
	underlying       transport.Transport
	id               peer.ID
	privateKey       *rsa.PrivateKey
	publicKey        []byte
	handshakeTimeout time.Duration
}

var _ transport.Transport = &Transport{}

type Option func(*Transport)

// WithHandshakeTimeout bounds the handshake of conns that support deadlines.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.handshakeTimeout = d
	}
}

func NewTransport(underlying transport.Transport, key *rsa.PrivateKey, opts ...Option) (*Transport, error) {
	if key == nil {
		return nil, ErrNilKey
	}

	pubKeyBytes := crypto.MarshalPublicKey(&key.PublicKey)
	t := &Transport{
		underlying:       underlying,
		id:               crypto.IDFromPublicKeyBytes(pubKeyBytes),
		privateKey:       key,
		publicKey:        pubKeyBytes,
		handshakeTimeout: _defaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Listen upgrades every accepted conn in its own goroutine. Conns that fail
// the handshake are closed and reported on the error channel.
func (t *Transport) Listen(ctx context.Context) (<-chan transport.Conn, <-chan error, error) {
	chanConn, underlyingErrChan, err := t.underlying.Listen(ctx)
	if err != nil {
		return nil, nil, err
	}

	encryptedChanConn := make(chan transport.Conn)
	errChan := make(chan error)

	sendErr := func(err error) {
		select {
		case errChan <- err:
		case <-ctx.Done():
		}
	}

	go func() {
		for {
			select {
			case c, ok := <-chanConn:
				if !ok {
					return
				}
				go func() {
					encryptedConn, err := t.upgradeConn(c, "")
					if err != nil {
						c.Close()
						sendErr(err)
						return
					}

					select {
					case encryptedChanConn <- encryptedConn:
					case <-ctx.Done():
						encryptedConn.Close()
					}
				}()
			case err, ok := <-underlyingErrChan:
				if !ok {
					underlyingErrChan = nil
					continue
				}
				sendErr(err)
			case <-ctx.Done():
				return
			}
		}
	}()

	return encryptedChanConn, errChan, nil
}

// Dial connects to p. When p has an id the remote side must prove it owns
// that id.
func (t *Transport) Dial(ctx context.Context, p peer.Peer) (transport.Conn, error) {
	c, err := t.underlying.Dial(ctx, p)
	if err != nil {
		return nil, err
	}

	encryptedConn, err := t.upgradeConn(c, p.ID())
	if err != nil {
		c.Close()
		return nil, err
	}
	return encryptedConn, nil
}

func (t *Transport) ListenAddr() string {
	return t.underlying.ListenAddr()
}

func (t *Transport) ID() peer.ID {
	return t.id
}
