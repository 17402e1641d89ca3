package credentials

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateShape(t *testing.T) {
	gen := NewGenerator("user")

	usernamePattern := regexp.MustCompile(`^user\d{4}$`)
	passwordPattern := regexp.MustCompile(`^\d{6}$`)

	for i := 0; i < 50; i++ {
		username, password, err := gen.Generate()
		require.NoError(t, err)
		assert.Regexp(t, usernamePattern, username)
		assert.Regexp(t, passwordPattern, password)
	}
}

func TestGenerateCustomPrefix(t *testing.T) {
	gen := NewGenerator("guest")

	username, _, err := gen.Generate()
	require.NoError(t, err)
	assert.Regexp(t, `^guest\d{4}$`, username)
}

func TestEmptyPrefixDefaults(t *testing.T) {
	gen := NewGenerator("")

	username, _, err := gen.Generate()
	require.NoError(t, err)
	assert.Regexp(t, `^user\d{4}$`, username)
}
