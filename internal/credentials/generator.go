// Package credentials generates hotspot account credentials.
package credentials

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Generator produces username/password pairs for new hotspot accounts.
// Usernames follow the "userNNNN" pattern and passwords are 6 random
// digits, matching the RouterOS hotspot user naming constraints.
// Collisions with existing accounts are possible; callers must treat
// "user already exists" as retryable and regenerate.
type Generator struct {
	prefix string
}

// NewGenerator creates a generator with the given username prefix.
// An empty prefix defaults to "user".
func NewGenerator(prefix string) *Generator {
	if prefix == "" {
		prefix = "user"
	}
	return &Generator{prefix: prefix}
}

// Generate returns a new username/password pair. The password is an
// opaque secret: never log it.
func (g *Generator) Generate() (username, password string, err error) {
	userDigits, err := randomDigits(4)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate username: %w", err)
	}

	passDigits, err := randomDigits(6)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate password: %w", err)
	}

	return g.prefix + userDigits, passDigits, nil
}

// randomDigits returns n cryptographically random decimal digits.
func randomDigits(n int) (string, error) {
	max := big.NewInt(10)
	buf := make([]byte, n)
	for i := range buf {
		d, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = byte('0' + d.Int64())
	}
	return string(buf), nil
}
