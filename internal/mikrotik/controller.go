// Package mikrotik provides hotspot access control against a MikroTik router.
package mikrotik

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUserNotFound is returned when the hotspot user does not exist.
	ErrUserNotFound = errors.New("hotspot user not found")
	// ErrUserExists is returned when creating a user whose name is taken.
	ErrUserExists = errors.New("hotspot user already exists")
)

// User is a hotspot account as seen by the router.
type User struct {
	Name     string
	Password string
	Profile  string
	Comment  string
	Disabled bool
	// LimitUptime is the router-side remaining uptime limit, if any.
	LimitUptime string
}

// ActiveSession is a currently connected hotspot login.
type ActiveSession struct {
	Username   string
	Address    string
	MACAddress string
	Uptime     string
	BytesIn    int64
	BytesOut   int64
}

// Controller defines the hotspot operations consumed by the portal.
// Implementations report transport failures as errors and never retry
// on their own; retry policy belongs to the caller.
type Controller interface {
	// CreateDisabledUser provisions a hotspot account that cannot
	// authenticate until enabled.
	CreateDisabledUser(ctx context.Context, user User) error

	// SetEnabled flips the disabled flag on an account.
	SetEnabled(ctx context.Context, username string, enabled bool) error

	// SetComment replaces the free-text comment on an account.
	SetComment(ctx context.Context, username, comment string) error

	// RemoveUser deletes an account. Missing accounts are not an error.
	RemoveUser(ctx context.Context, username string) error

	// GetUser returns the account, or ErrUserNotFound.
	GetUser(ctx context.Context, username string) (*User, error)

	// GetActiveSession returns the live session for a user, or nil
	// when the user is not connected.
	GetActiveSession(ctx context.Context, username string) (*ActiveSession, error)

	// ListActiveSessions returns all connected hotspot logins.
	ListActiveSessions(ctx context.Context) ([]ActiveSession, error)

	// KickActiveSession disconnects a user's live session, if any.
	KickActiveSession(ctx context.Context, username string) error

	// ScheduleExpiry arranges for the account to be removed at the
	// given time via the router's scheduler.
	ScheduleExpiry(ctx context.Context, username string, at time.Time) error

	// TestConnection verifies the router is reachable.
	TestConnection(ctx context.Context) error
}

// expiryFormat is the RouterOS scheduler date format, e.g. "jun/23/2025 13:00:00".
const expiryFormat = "Jan/02/2006 15:04:05"

// NoopController is a no-op controller for development without a router.
type NoopController struct{}

// CreateDisabledUser does nothing.
func (NoopController) CreateDisabledUser(ctx context.Context, user User) error { return nil }

// SetEnabled does nothing.
func (NoopController) SetEnabled(ctx context.Context, username string, enabled bool) error {
	return nil
}

// SetComment does nothing.
func (NoopController) SetComment(ctx context.Context, username, comment string) error { return nil }

// RemoveUser does nothing.
func (NoopController) RemoveUser(ctx context.Context, username string) error { return nil }

// GetUser reports every user as missing.
func (NoopController) GetUser(ctx context.Context, username string) (*User, error) {
	return nil, ErrUserNotFound
}

// GetActiveSession reports no session.
func (NoopController) GetActiveSession(ctx context.Context, username string) (*ActiveSession, error) {
	return nil, nil
}

// ListActiveSessions reports no sessions.
func (NoopController) ListActiveSessions(ctx context.Context) ([]ActiveSession, error) {
	return nil, nil
}

// KickActiveSession does nothing.
func (NoopController) KickActiveSession(ctx context.Context, username string) error { return nil }

// ScheduleExpiry does nothing.
func (NoopController) ScheduleExpiry(ctx context.Context, username string, at time.Time) error {
	return nil
}

// TestConnection always succeeds.
func (NoopController) TestConnection(ctx context.Context) error { return nil }
