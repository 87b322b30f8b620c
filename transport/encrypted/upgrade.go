package encrypted

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/FluffyKebab/mothra/crypto"
	"github.com/FluffyKebab/mothra/peer"
	"github.com/FluffyKebab/mothra/transport"
	"github.com/multiformats/go-varint"
)

const _maxHandshakeMsgSize = 8 << 10

var (
	ErrHandshake        = errors.New("handshake failed")
	ErrIDMismatch       = errors.New("peer id does not match public key")
	ErrUnexpectedPeer   = errors.New("unexpected peer id")
	ErrKeyConfirmation  = errors.New("peer could not confirm session key")
	errHandshakeTooLong = errors.New("handshake message too large")
)

type upgraderPayload struct {
	ID        []byte
	PublicKey []byte
}

// upgradeConn runs the handshake on c:
//
//  1. both sides send their id and public key
//  2. both sides send a fresh write key, encrypted to the peer's public key
//  3. both sides seal their id with the key they received, proving they
//     own the private key their id is derived from
//
// expected, when set, is the id the remote side must have.
func (t *Transport) upgradeConn(c transport.Conn, expected peer.ID) (*Conn, error) {
	if t.handshakeTimeout > 0 {
		err := transport.SetDeadline(c, time.Now().Add(t.handshakeTimeout))
		if err != nil {
			return nil, err
		}
		defer transport.SetDeadline(c, time.Time{})
	}

	br := bufio.NewReader(c)

	err := sendPayload(c, t.id.Bytes(), t.publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	peerData, err := receivePayload(br)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	remoteID, peerPubKey, err := verifyPayload(peerData, expected)
	if err != nil {
		return nil, err
	}

	writeKey, err := crypto.NewSecretKey()
	if err != nil {
		return nil, err
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, peerPubKey, writeKey, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	err = writeMsg(c, wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	wrapped, err = readMsg(br)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	readKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, t.privateKey, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	err = confirmKeys(c, br, t.id, remoteID, readKey, writeKey)
	if err != nil {
		return nil, err
	}

	stream, err := crypto.NewStream(readKey, writeKey, br, c)
	if err != nil {
		return nil, err
	}

	return &Conn{
		raw:      c,
		r:        stream.Reader,
		w:        stream.Writer,
		remoteID: remoteID,
	}, nil
}

func verifyPayload(p upgraderPayload, expected peer.ID) (peer.ID, *rsa.PublicKey, error) {
	peerPubKey, err := x509.ParsePKCS1PublicKey(p.PublicKey)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	remoteID, err := peer.IDFromBytes(p.ID)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if crypto.IDFromPublicKeyBytes(p.PublicKey) != remoteID {
		return "", nil, ErrIDMismatch
	}
	if expected != "" && expected != remoteID {
		return "", nil, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedPeer, remoteID, expected)
	}

	return remoteID, peerPubKey, nil
}

// confirmKeys seals the local id with the key received from the peer and
// checks that the peer sealed its id with the key sent to it.
func confirmKeys(w io.Writer, r *bufio.Reader, localID, remoteID peer.ID, readKey, writeKey []byte) error {
	sealer, err := crypto.NewSymmetricEncryption(readKey)
	if err != nil {
		return err
	}
	proof, err := sealer.Encrypt(localID.Bytes())
	if err != nil {
		return err
	}
	err = writeMsg(w, proof)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	proof, err = readMsg(r)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	opener, err := crypto.NewSymmetricEncryption(writeKey)
	if err != nil {
		return err
	}
	plaintext, err := opener.Decrypt(proof)
	if err != nil || !bytes.Equal(plaintext, remoteID.Bytes()) {
		return ErrKeyConfirmation
	}
	return nil
}

func sendPayload(w io.Writer, id []byte, pubKey []byte) error {
	var msg bytes.Buffer
	encoder := gob.NewEncoder(&msg)
	err := encoder.Encode(upgraderPayload{
		ID:        id,
		PublicKey: pubKey,
	})
	if err != nil {
		return err
	}

	return writeMsg(w, msg.Bytes())
}

func receivePayload(r *bufio.Reader) (upgraderPayload, error) {
	data, err := readMsg(r)
	if err != nil {
		return upgraderPayload{}, err
	}

	var msg upgraderPayload
	err = gob.NewDecoder(bytes.NewReader(data)).Decode(&msg)
	return msg, err
}

func writeMsg(w io.Writer, msg []byte) error {
	buf := append(varint.ToUvarint(uint64(len(msg))), msg...)
	_, err := w.Write(buf)
	return err
}

func readMsg(r *bufio.Reader) ([]byte, error) {
	size, err := varint.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if size > _maxHandshakeMsgSize {
		return nil, errHandshakeTooLong
	}

	msg := make([]byte, size)
	_, err = io.ReadFull(r, msg)
	return msg, err
}
