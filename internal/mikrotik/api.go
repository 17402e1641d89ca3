package mikrotik

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-routeros/routeros/v3"
	"go.uber.org/zap"
)

// Config holds the connection settings for the RouterOS management API.
type Config struct {
	Host     string // Router address (e.g., "192.168.88.1")
	Port     int    // API port (default: 8728)
	Username string // API username
	Password string // API password
	Timeout  time.Duration
}

// APIClient talks to the router over the RouterOS management API.
// A fresh connection is dialed per operation; hotspot traffic is low
// enough that pooling is not worth the reconnect handling.
type APIClient struct {
	config Config
	logger *zap.Logger
}

// NewAPIClient creates a RouterOS API controller.
func NewAPIClient(config Config, logger *zap.Logger) *APIClient {
	if config.Port == 0 {
		config.Port = 8728
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &APIClient{
		config: config,
		logger: logger,
	}
}

// CreateDisabledUser provisions a hotspot account with disabled=yes.
func (c *APIClient) CreateDisabledUser(ctx context.Context, user User) error {
	c.logger.Info("creating disabled hotspot user",
		zap.String("username", user.Name),
		zap.String("profile", user.Profile),
	)

	_, err := c.run(ctx,
		"/ip/hotspot/user/add",
		"=name="+user.Name,
		"=password="+user.Password,
		"=profile="+user.Profile,
		"=disabled=yes",
		"=comment="+user.Comment,
	)
	if err != nil {
		if isAlreadyExists(err) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create hotspot user: %w", err)
	}
	return nil
}

// SetEnabled flips the disabled flag on an account.
func (c *APIClient) SetEnabled(ctx context.Context, username string, enabled bool) error {
	id, err := c.findUserID(ctx, username)
	if err != nil {
		return err
	}

	disabled := "yes"
	if enabled {
		disabled = "no"
	}

	if _, err := c.run(ctx, "/ip/hotspot/user/set", "=.id="+id, "=disabled="+disabled); err != nil {
		return fmt.Errorf("failed to set user state: %w", err)
	}

	c.logger.Info("hotspot user state changed",
		zap.String("username", username),
		zap.Bool("enabled", enabled),
	)
	return nil
}

// SetComment replaces the free-text comment on an account.
func (c *APIClient) SetComment(ctx context.Context, username, comment string) error {
	id, err := c.findUserID(ctx, username)
	if err != nil {
		return err
	}

	if _, err := c.run(ctx, "/ip/hotspot/user/set", "=.id="+id, "=comment="+comment); err != nil {
		return fmt.Errorf("failed to set user comment: %w", err)
	}
	return nil
}

// RemoveUser deletes an account. A missing account is not an error.
func (c *APIClient) RemoveUser(ctx context.Context, username string) error {
	id, err := c.findUserID(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}

	if _, err := c.run(ctx, "/ip/hotspot/user/remove", "=.id="+id); err != nil {
		return fmt.Errorf("failed to remove hotspot user: %w", err)
	}

	c.logger.Info("hotspot user removed", zap.String("username", username))
	return nil
}

// GetUser returns the account, or ErrUserNotFound.
func (c *APIClient) GetUser(ctx context.Context, username string) (*User, error) {
	reply, err := c.run(ctx, "/ip/hotspot/user/print", "?name="+username)
	if err != nil {
		return nil, fmt.Errorf("failed to query hotspot user: %w", err)
	}
	if len(reply.Re) == 0 {
		return nil, ErrUserNotFound
	}

	m := reply.Re[0].Map
	return &User{
		Name:        m["name"],
		Password:    m["password"],
		Profile:     m["profile"],
		Comment:     m["comment"],
		Disabled:    m["disabled"] == "true" || m["disabled"] == "yes",
		LimitUptime: m["limit-uptime"],
	}, nil
}

// GetActiveSession returns the live session for a user, or nil.
func (c *APIClient) GetActiveSession(ctx context.Context, username string) (*ActiveSession, error) {
	reply, err := c.run(ctx, "/ip/hotspot/active/print", "?user="+username)
	if err != nil {
		return nil, fmt.Errorf("failed to query active sessions: %w", err)
	}
	if len(reply.Re) == 0 {
		return nil, nil
	}

	s := parseActiveSession(reply.Re[0].Map)
	return &s, nil
}

// ListActiveSessions returns all connected hotspot logins.
func (c *APIClient) ListActiveSessions(ctx context.Context) ([]ActiveSession, error) {
	reply, err := c.run(ctx, "/ip/hotspot/active/print")
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}

	sessions := make([]ActiveSession, 0, len(reply.Re))
	for _, re := range reply.Re {
		sessions = append(sessions, parseActiveSession(re.Map))
	}
	return sessions, nil
}

// KickActiveSession disconnects a user's live session, if any.
func (c *APIClient) KickActiveSession(ctx context.Context, username string) error {
	reply, err := c.run(ctx, "/ip/hotspot/active/print", "?user="+username)
	if err != nil {
		return fmt.Errorf("failed to query active sessions: %w", err)
	}
	if len(reply.Re) == 0 {
		return nil
	}

	id := reply.Re[0].Map[".id"]
	if _, err := c.run(ctx, "/ip/hotspot/active/remove", "=.id="+id); err != nil {
		return fmt.Errorf("failed to remove active session: %w", err)
	}

	c.logger.Info("active session kicked", zap.String("username", username))
	return nil
}

// ScheduleExpiry installs a one-shot scheduler that removes the account
// at the given time. Any previous scheduler for the same account is
// replaced, so re-approval after a top-up extends cleanly.
func (c *APIClient) ScheduleExpiry(ctx context.Context, username string, at time.Time) error {
	scriptName := "remove-user-" + username
	schedulerName := "expire-user-" + username

	// Drop leftovers from a previous approval.
	c.removeByName(ctx, "/system/script", scriptName)
	c.removeByName(ctx, "/system/scheduler", schedulerName)

	_, err := c.run(ctx,
		"/system/script/add",
		"=name="+scriptName,
		"=source=/ip hotspot user remove [find name="+username+"]",
		"=policy=read,write",
		"=dont-require-permissions=yes",
	)
	if err != nil {
		return fmt.Errorf("failed to create removal script: %w", err)
	}

	stamp := strings.ToLower(at.Format(expiryFormat))
	parts := strings.SplitN(stamp, " ", 2)

	_, err = c.run(ctx,
		"/system/scheduler/add",
		"=name="+schedulerName,
		"=start-date="+parts[0],
		"=start-time="+parts[1],
		"=interval=0",
		"=on-event="+scriptName,
		"=policy=read,write",
		"=disabled=no",
	)
	if err != nil {
		// Don't leave an orphaned script behind.
		c.removeByName(ctx, "/system/script", scriptName)
		return fmt.Errorf("failed to create expiry scheduler: %w", err)
	}

	c.logger.Info("expiry scheduled",
		zap.String("username", username),
		zap.Time("expires_at", at),
	)
	return nil
}

// TestConnection verifies the router API is reachable.
func (c *APIClient) TestConnection(ctx context.Context) error {
	if _, err := c.run(ctx, "/system/identity/print"); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// findUserID resolves a username to its internal .id.
func (c *APIClient) findUserID(ctx context.Context, username string) (string, error) {
	reply, err := c.run(ctx, "/ip/hotspot/user/print", "?name="+username)
	if err != nil {
		return "", fmt.Errorf("failed to query hotspot user: %w", err)
	}
	if len(reply.Re) == 0 {
		return "", ErrUserNotFound
	}
	return reply.Re[0].Map[".id"], nil
}

// removeByName deletes an item from a RouterOS list by name, ignoring
// lookup misses.
func (c *APIClient) removeByName(ctx context.Context, base, name string) {
	reply, err := c.run(ctx, base+"/print", "?name="+name)
	if err != nil || len(reply.Re) == 0 {
		return
	}
	if _, err := c.run(ctx, base+"/remove", "=.id="+reply.Re[0].Map[".id"]); err != nil {
		c.logger.Warn("failed to remove router item",
			zap.String("item", base+"/"+name),
			zap.Error(err),
		)
	}
}

// run dials the router and executes a single API sentence. The dial
// timeout bounds the whole call; a cancelled context short-circuits
// before dialing.
func (c *APIClient) run(ctx context.Context, sentence ...string) (*routeros.Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))

	client, err := routeros.DialTimeout(addr, c.config.Username, c.config.Password, c.config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("router API connection failed: %w", err)
	}
	defer client.Close()

	return client.Run(sentence...)
}

// isAlreadyExists detects RouterOS's duplicate-name failure reply.
func isAlreadyExists(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already have")
}

func parseActiveSession(m map[string]string) ActiveSession {
	bytesIn, _ := strconv.ParseInt(m["bytes-in"], 10, 64)
	bytesOut, _ := strconv.ParseInt(m["bytes-out"], 10, 64)
	return ActiveSession{
		Username:   m["user"],
		Address:    m["address"],
		MACAddress: m["mac-address"],
		Uptime:     m["uptime"],
		BytesIn:    bytesIn,
		BytesOut:   bytesOut,
	}
}
