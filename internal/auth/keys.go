// Package auth provides JWT authentication for the hotspot portal.
package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// KeyPair holds the ECDSA key pair used for signing guest tokens.
type KeyPair struct {
	PrivateKey *ecdsa.PrivateKey
	PublicKey  *ecdsa.PublicKey
}

// GenerateKeyPair creates a new ECDSA P-256 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key: %w", err)
	}

	return &KeyPair{
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
	}, nil
}

// LoadOrGenerateKeyPair loads the PEM key pair from disk, generating
// and persisting a fresh one on first run.
func LoadOrGenerateKeyPair(privateKeyPath, publicKeyPath string) (*KeyPair, error) {
	kp, err := loadKeyPair(privateKeyPath, publicKeyPath)
	if err == nil {
		return kp, nil
	}

	kp, err = GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	if err := kp.save(privateKeyPath, publicKeyPath); err != nil {
		return nil, fmt.Errorf("failed to save key pair: %w", err)
	}

	return kp, nil
}

func (kp *KeyPair) save(privateKeyPath, publicKeyPath string) error {
	privBytes, err := x509.MarshalECPrivateKey(kp.PrivateKey)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}
	if err := writePEM(privateKeyPath, "EC PRIVATE KEY", privBytes, 0600); err != nil {
		return err
	}

	pubBytes, err := x509.MarshalPKIXPublicKey(kp.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to marshal public key: %w", err)
	}
	return writePEM(publicKeyPath, "PUBLIC KEY", pubBytes, 0644)
}

func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}
	defer file.Close()

	if err := pem.Encode(file, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		return fmt.Errorf("failed to write key: %w", err)
	}
	return nil
}

func loadKeyPair(privateKeyPath, publicKeyPath string) (*KeyPair, error) {
	privBlock, err := readPEM(privateKeyPath, "EC PRIVATE KEY")
	if err != nil {
		return nil, err
	}
	privateKey, err := x509.ParseECPrivateKey(privBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	pubBlock, err := readPEM(publicKeyPath, "PUBLIC KEY")
	if err != nil {
		return nil, err
	}
	pub, err := x509.ParsePKIXPublicKey(pubBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	publicKey, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key is not an ECDSA public key")
	}

	return &KeyPair{PrivateKey: privateKey, PublicKey: publicKey}, nil
}

func readPEM(path, wantType string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block in %s", path)
	}
	if block.Type != wantType {
		return nil, fmt.Errorf("unexpected key type in %s: %s", path, block.Type)
	}
	return block, nil
}
