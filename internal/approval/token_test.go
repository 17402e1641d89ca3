package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	data, err := EncodeToken(ActionApprove, "user1234")
	require.NoError(t, err)

	ev, err := DecodeToken(data)
	require.NoError(t, err)
	assert.Equal(t, ActionApprove, ev.Action)
	assert.Equal(t, "user1234", ev.Correlation.RequestID)
}

func TestTokenFitsCallbackDataLimit(t *testing.T) {
	// Telegram caps callback data at 64 bytes.
	data, err := EncodeToken(ActionApprove, "user9999")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(data), 64)
}

func TestDecodeTokenRejectsGarbage(t *testing.T) {
	cases := map[string]string{
		"not json":        "approve|user1234",
		"empty":           "",
		"wrong version":   `{"v":2,"a":"approve","id":"user1234"}`,
		"unknown action":  `{"v":1,"a":"delete","id":"user1234"}`,
		"missing id":      `{"v":1,"a":"approve","id":""}`,
		"missing version": `{"a":"approve","id":"user1234"}`,
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeToken(data)
			assert.Error(t, err)
		})
	}
}

func TestDecodeTokenIDWithDelimiters(t *testing.T) {
	// Field values containing would-be delimiters must survive intact.
	data, err := EncodeToken(ActionReject, `user|12:34`)
	require.NoError(t, err)

	ev, err := DecodeToken(data)
	require.NoError(t, err)
	assert.Equal(t, `user|12:34`, ev.Correlation.RequestID)
}
