package approval

import (
	"encoding/json"
	"fmt"

	"github.com/hotspotbd/portal-backend/internal/store"
)

// Action is an admin decision on a pending request.
type Action string

const (
	// ActionApprove enables the account.
	ActionApprove Action = "approve"
	// ActionReject leaves the account disabled.
	ActionReject Action = "reject"
)

// Event is an approval decision delivered by a notification channel.
// Delivery may be duplicated; HandleEvent tolerates replays.
type Event struct {
	Action      Action
	Correlation store.Correlation
}

// tokenVersion guards the wire format of approval tokens. Bump it when
// the payload shape changes so stale buttons fail loudly instead of
// being misparsed.
const tokenVersion = 1

// token is the structured correlation payload embedded in an approval
// control. JSON with explicit fields, so field values containing any
// particular character cannot be misparsed.
type token struct {
	V      int    `json:"v"`
	Action Action `json:"a"`
	ID     string `json:"id"`
}

// EncodeToken serializes an approval control payload. The result must
// stay within Telegram's 64-byte callback-data limit, which the short
// generated usernames guarantee.
func EncodeToken(action Action, requestID string) (string, error) {
	data, err := json.Marshal(token{V: tokenVersion, Action: action, ID: requestID})
	if err != nil {
		return "", fmt.Errorf("failed to encode approval token: %w", err)
	}
	return string(data), nil
}

// DecodeToken parses an approval control payload back into an event.
func DecodeToken(data string) (Event, error) {
	var t token
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return Event{}, fmt.Errorf("malformed approval token: %w", err)
	}
	if t.V != tokenVersion {
		return Event{}, fmt.Errorf("unsupported approval token version %d", t.V)
	}
	if t.Action != ActionApprove && t.Action != ActionReject {
		return Event{}, fmt.Errorf("unknown approval action %q", t.Action)
	}
	if t.ID == "" {
		return Event{}, fmt.Errorf("approval token missing request id")
	}

	return Event{
		Action:      t.Action,
		Correlation: store.Correlation{RequestID: t.ID},
	}, nil
}
