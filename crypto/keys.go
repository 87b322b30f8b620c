package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/FluffyKebab/mothra/peer"
)

const (
	KeyBits     = 2048
	KeyFileName = "key"

	_pemType = "RSA PRIVATE KEY"
)

var ErrInvalidKeyFile = errors.New("invalid key file")

func GenerateKey(bits int) (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, bits)
}

func MarshalPublicKey(pub *rsa.PublicKey) []byte {
	return x509.MarshalPKCS1PublicKey(pub)
}

// IDFromPublicKey derives the peer id owned by the holder of the key.
func IDFromPublicKey(pub *rsa.PublicKey) peer.ID {
	return IDFromPublicKeyBytes(MarshalPublicKey(pub))
}

func IDFromPublicKeyBytes(pub []byte) peer.ID {
	sum := sha256.Sum256(pub)
	return peer.ID(sum[:])
}

// LoadOrGenerateKey reads the node key from dir. When there is none a new
// key is generated and written. The returned bool reports whether the key
// was generated.
func LoadOrGenerateKey(dir string) (*rsa.PrivateKey, bool, error) {
	path := filepath.Join(dir, KeyFileName)

	key, err := LoadKey(path)
	if err == nil {
		return key, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}

	key, err = GenerateKey(KeyBits)
	if err != nil {
		return nil, false, fmt.Errorf("generating node key: %w", err)
	}
	err = SaveKey(path, key)
	if err != nil {
		return nil, false, err
	}
	return key, true, nil
}

func LoadKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != _pemType {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKeyFile, path)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFile, err)
	}
	return key, nil
}

func SaveKey(path string, key *rsa.PrivateKey) error {
	err := os.MkdirAll(filepath.Dir(path), 0o700)
	if err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}

	data := pem.EncodeToMemory(&pem.Block{
		Type:  _pemType,
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	err = os.WriteFile(path, data, 0o600)
	if err != nil {
		return fmt.Errorf("writing node key: %w", err)
	}
	return nil
}
