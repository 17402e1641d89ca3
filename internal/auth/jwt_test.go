package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *JWTService {
	t.Helper()
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	return NewJWTService(kp, "test-portal")
}

func TestTokenRoundTrip(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.GenerateToken("user1234", "7_days", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user1234", claims.Username)
	assert.Equal(t, "7_days", claims.Profile)
	assert.Equal(t, "test-portal", claims.Issuer)
}

func TestExpiredTokenRejected(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.GenerateToken("user1234", "1_day", -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenFromOtherKeyRejected(t *testing.T) {
	svc := newTestService(t)
	other := newTestService(t)

	token, err := other.GenerateToken("user1234", "1_day", time.Hour)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestGarbageTokenRejected(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ValidateToken("not.a.token")
	assert.Error(t, err)
}

func TestLoadOrGenerateKeyPairPersists(t *testing.T) {
	dir := t.TempDir()
	priv := dir + "/private.pem"
	pub := dir + "/public.pem"

	kp1, err := LoadOrGenerateKeyPair(priv, pub)
	require.NoError(t, err)

	kp2, err := LoadOrGenerateKeyPair(priv, pub)
	require.NoError(t, err)

	// Same key on the second load, so tokens survive restarts.
	assert.Equal(t, kp1.PrivateKey.D, kp2.PrivateKey.D)
}
