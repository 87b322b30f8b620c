// Package wire encodes the frames exchanged by two sessions once a protocol
// version has been negotiated. A frame is an unsigned varint length followed
// by a protobuf encoded body.
package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/multiformats/go-varint"
	"google.golang.org/protobuf/encoding/protowire"
)

const DefaultMaxSize = 1 << 20

var (
	ErrFrameTooLarge = errors.New("frame too large")
	ErrInvalidFrame  = errors.New("invalid frame")
)

type Kind uint8

const (
	KindSubscribe Kind = iota + 1
	KindUnsubscribe
	KindGossip
	KindRequest
	KindResponse
	KindPing
	KindPong
)

func (k Kind) String() string {
	switch k {
	case KindSubscribe:
		return "subscribe"
	case KindUnsubscribe:
		return "unsubscribe"
	case KindGossip:
		return "gossip"
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) valid() bool {
	return k >= KindSubscribe && k <= KindPong
}

// Frame is one message on a session connection. Name is the topic for
// subscription and gossip frames and the method for requests and responses.
// ID is the gossip message id or the request correlation id.
type Frame struct {
	Kind    Kind
	Name    string
	ID      string
	Payload []byte
}

const (
	fieldKind    protowire.Number = 1
	fieldName    protowire.Number = 2
	fieldID      protowire.Number = 3
	fieldPayload protowire.Number = 4
)

func (f Frame) Marshal() []byte {
	b := make([]byte, 0, 16+len(f.Name)+len(f.ID)+len(f.Payload))
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.Kind))
	if f.Name != "" {
		b = protowire.AppendTag(b, fieldName, protowire.BytesType)
		b = protowire.AppendString(b, f.Name)
	}
	if f.ID != "" {
		b = protowire.AppendTag(b, fieldID, protowire.BytesType)
		b = protowire.AppendString(b, f.ID)
	}
	if len(f.Payload) > 0 {
		b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, f.Payload)
	}
	return b
}

// Size is the length of the encoded body, without the length prefix.
func (f Frame) Size() int {
	n := protowire.SizeTag(fieldKind) + protowire.SizeVarint(uint64(f.Kind))
	if f.Name != "" {
		n += protowire.SizeTag(fieldName) + protowire.SizeBytes(len(f.Name))
	}
	if f.ID != "" {
		n += protowire.SizeTag(fieldID) + protowire.SizeBytes(len(f.ID))
	}
	if len(f.Payload) > 0 {
		n += protowire.SizeTag(fieldPayload) + protowire.SizeBytes(len(f.Payload))
	}
	return n
}

// CheckSize returns ErrFrameTooLarge when a reader limited to maxSize would
// reject f.
func CheckSize(f Frame, maxSize int) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if size := f.Size(); size > maxSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, size, maxSize)
	}
	return nil
}

// Unmarshal decodes a frame body. Unknown fields are skipped. The returned
// payload does not alias b.
func Unmarshal(b []byte) (Frame, error) {
	var f Frame
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Frame{}, fmt.Errorf("%w: %w", ErrInvalidFrame, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Frame{}, fmt.Errorf("%w: %w", ErrInvalidFrame, protowire.ParseError(n))
			}
			f.Kind = Kind(v)
			b = b[n:]
		case (num == fieldName || num == fieldID || num == fieldPayload) && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Frame{}, fmt.Errorf("%w: %w", ErrInvalidFrame, protowire.ParseError(n))
			}
			switch num {
			case fieldName:
				f.Name = string(v)
			case fieldID:
				f.ID = string(v)
			default:
				f.Payload = append([]byte(nil), v...)
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Frame{}, fmt.Errorf("%w: %w", ErrInvalidFrame, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if !f.Kind.valid() {
		return Frame{}, fmt.Errorf("%w: unknown kind %d", ErrInvalidFrame, f.Kind)
	}
	return f, nil
}

// WriteFrame writes f with its length prefix in a single Write call.
func WriteFrame(w io.Writer, f Frame) error {
	body := f.Marshal()
	buf := make([]byte, 0, varint.UvarintSize(uint64(len(body)))+len(body))
	buf = append(buf, varint.ToUvarint(uint64(len(body)))...)
	buf = append(buf, body...)

	_, err := w.Write(buf)
	return err
}

// Reader reads length prefixed frames.
type Reader struct {
	r       *bufio.Reader
	maxSize int
}

func NewReader(r io.Reader, maxSize int) *Reader {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{r: br, maxSize: maxSize}
}

func (r *Reader) ReadFrame() (Frame, error) {
	size, err := varint.ReadUvarint(r.r)
	if err != nil {
		return Frame{}, err
	}
	if size > uint64(r.maxSize) {
		return Frame{}, fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, size, r.maxSize)
	}

	body := make([]byte, size)
	_, err = io.ReadFull(r.r, body)
	if err != nil {
		return Frame{}, err
	}
	return Unmarshal(body)
}
