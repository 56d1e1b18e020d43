package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// Identity holds a process keypair. Servers and clients use it as the
// Noise static identity; Fingerprint names the peer in logs and is what
// operators hand out for pinning.
type Identity struct {
	PrivateKey  ed25519.PrivateKey
	PublicKey   ed25519.PublicKey
	Fingerprint string // hex(sha256(public_key))
}

// Load reads the PKCS8 PEM key at path. If the file does not exist, a new
// keypair is generated and written there with 0600 permissions.
func Load(path string) (*Identity, error) {
	privPEM, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading private key: %w", err)
		}
		return generate(path)
	}
	return loadFrom(privPEM)
}

func generate(path string) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating keypair: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating key dir: %w", err)
	}

	pkcs8, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshaling private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: pkcs8,
	})
	if err := os.WriteFile(path, privPEM, 0600); err != nil {
		return nil, fmt.Errorf("writing private key: %w", err)
	}

	return fromKeyPair(priv, pub), nil
}

func loadFrom(privPEM []byte) (*Identity, error) {
	block, _ := pem.Decode(privPEM)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in private key")
	}

	rawKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	priv, ok := rawKey.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is not ED25519")
	}

	return fromKeyPair(priv, priv.Public().(ed25519.PublicKey)), nil
}

func fromKeyPair(priv ed25519.PrivateKey, pub ed25519.PublicKey) *Identity {
	hash := sha256.Sum256(pub)
	return &Identity{
		PrivateKey:  priv,
		PublicKey:   pub,
		Fingerprint: hex.EncodeToString(hash[:]),
	}
}

// Ephemeral returns a fresh keypair that is never persisted. Clients that
// have no reason to keep a stable identity use one per session.
func Ephemeral() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating keypair: %w", err)
	}
	return fromKeyPair(priv, pub), nil
}
