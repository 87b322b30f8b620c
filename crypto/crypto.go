package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const SecretKeySize = 32

var ErrMissingNonce = errors.New("cipher missing nonce")

type Encrypter interface {
	Encrypt([]byte) ([]byte, error)
}

type Decrypter interface {
	Decrypt([]byte) ([]byte, error)
}

type EncryptDecrypter interface {
	Encrypter
	Decrypter
}

type symmetricEncrypter struct {
	aead cipher.AEAD
}

var _ EncryptDecrypter = symmetricEncrypter{}

// NewSymmetricEncryption returns an AES-GCM sealer. Every sealed message
// carries its own random nonce.
func NewSymmetricEncryption(secretKey []byte) (EncryptDecrypter, error) {
	block, err := aes.NewCipher(secretKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return symmetricEncrypter{gcm}, nil
}

func (e symmetricEncrypter) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	_, err := rand.Read(nonce)
	if err != nil {
		return nil, err
	}

	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (e symmetricEncrypter) Decrypt(sealed []byte) ([]byte, error) {
	if len(sealed) < e.aead.NonceSize() {
		return nil, ErrMissingNonce
	}

	nonce := sealed[:e.aead.NonceSize()]
	ciphertext := sealed[e.aead.NonceSize():]
	return e.aead.Open(nil, nonce, ciphertext, nil)
}

func NewSecretKey() ([]byte, error) {
	key := make([]byte, SecretKeySize)
	_, err := rand.Read(key)
	if err != nil {
		return nil, fmt.Errorf("generating secret key: %w", err)
	}
	return key, nil
}

// Stream encrypts what is written to w and decrypts what is read from r
// with AES-CTR. The two directions use independent keys, so each key must
// only ever be used for one direction of one connection.
type Stream struct {
	io.Reader
	io.Writer
}

func NewStream(readSecret, writeSecret []byte, r io.Reader, w io.Writer) (*Stream, error) {
	readBlock, err := aes.NewCipher(readSecret)
	if err != nil {
		return nil, err
	}
	writeBlock, err := aes.NewCipher(writeSecret)
	if err != nil {
		return nil, err
	}

	var iv [aes.BlockSize]byte
	return &Stream{
		Reader: cipher.StreamReader{S: cipher.NewCTR(readBlock, iv[:]), R: r},
		Writer: cipher.StreamWriter{S: cipher.NewCTR(writeBlock, iv[:]), W: w},
	}, nil
}
