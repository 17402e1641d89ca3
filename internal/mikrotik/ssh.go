package mikrotik

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// SSHConfig holds the settings for driving the router over SSH instead
// of the management API (useful when the API service is firewalled off).
type SSHConfig struct {
	Host       string
	Port       int // SSH port (default: 22)
	Username   string
	Password   string
	PrivateKey string // SSH private key PEM (alternative to password)
	Timeout    time.Duration
}

// SSHClient executes RouterOS CLI commands over SSH. Each operation
// opens a fresh connection, mirroring the one-shot nature of the calls.
type SSHClient struct {
	config    SSHConfig
	sshConfig *ssh.ClientConfig
	logger    *zap.Logger
}

// NewSSHClient creates an SSH-transport controller.
func NewSSHClient(config SSHConfig, logger *zap.Logger) (*SSHClient, error) {
	if config.Port == 0 {
		config.Port = 22
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var authMethods []ssh.AuthMethod

	if config.Password != "" {
		authMethods = append(authMethods, ssh.Password(config.Password))
	}

	if config.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(config.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	if len(authMethods) == 0 {
		return nil, fmt.Errorf("no authentication method provided (password or private key required)")
	}

	sshConfig := &ssh.ClientConfig{
		User:            config.Username,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // For simplicity; use known_hosts in production
		Timeout:         config.Timeout,
	}

	return &SSHClient{
		config:    config,
		sshConfig: sshConfig,
		logger:    logger,
	}, nil
}

// CreateDisabledUser provisions a hotspot account with disabled=yes.
func (c *SSHClient) CreateDisabledUser(ctx context.Context, user User) error {
	cmd := fmt.Sprintf(
		`/ip hotspot user add name=%s password=%s profile=%s disabled=yes comment="%s"`,
		user.Name, user.Password, user.Profile, user.Comment,
	)

	output, err := c.runCommand(ctx, cmd)
	if err != nil {
		return fmt.Errorf("failed to create hotspot user: %w", err)
	}
	if strings.Contains(strings.ToLower(output), "already have") {
		return ErrUserExists
	}
	if strings.Contains(strings.ToLower(output), "failure") {
		return fmt.Errorf("failed to create hotspot user: %s", strings.TrimSpace(output))
	}

	c.logger.Info("created disabled hotspot user",
		zap.String("username", user.Name),
		zap.String("profile", user.Profile),
	)
	return nil
}

// SetEnabled flips the disabled flag on an account.
func (c *SSHClient) SetEnabled(ctx context.Context, username string, enabled bool) error {
	if _, err := c.GetUser(ctx, username); err != nil {
		return err
	}

	disabled := "yes"
	if enabled {
		disabled = "no"
	}

	cmd := fmt.Sprintf(`/ip hotspot user set [find name=%s] disabled=%s`, username, disabled)
	if _, err := c.runCommand(ctx, cmd); err != nil {
		return fmt.Errorf("failed to set user state: %w", err)
	}
	return nil
}

// SetComment replaces the free-text comment on an account.
func (c *SSHClient) SetComment(ctx context.Context, username, comment string) error {
	cmd := fmt.Sprintf(`/ip hotspot user set [find name=%s] comment="%s"`, username, comment)
	if _, err := c.runCommand(ctx, cmd); err != nil {
		return fmt.Errorf("failed to set user comment: %w", err)
	}
	return nil
}

// RemoveUser deletes an account. A missing account is not an error.
func (c *SSHClient) RemoveUser(ctx context.Context, username string) error {
	cmd := fmt.Sprintf(`/ip hotspot user remove [find name=%s]`, username)
	if _, err := c.runCommand(ctx, cmd); err != nil {
		return fmt.Errorf("failed to remove hotspot user: %w", err)
	}
	return nil
}

// GetUser returns the account, or ErrUserNotFound.
func (c *SSHClient) GetUser(ctx context.Context, username string) (*User, error) {
	cmd := fmt.Sprintf(`:put [/ip hotspot user print as-value where name=%s]`, username)
	output, err := c.runCommand(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to query hotspot user: %w", err)
	}

	fields := parseAsValue(output)
	if fields["name"] == "" {
		return nil, ErrUserNotFound
	}

	return &User{
		Name:        fields["name"],
		Password:    fields["password"],
		Profile:     fields["profile"],
		Comment:     fields["comment"],
		Disabled:    fields["disabled"] == "true" || fields["disabled"] == "yes",
		LimitUptime: fields["limit-uptime"],
	}, nil
}

// GetActiveSession returns the live session for a user, or nil.
func (c *SSHClient) GetActiveSession(ctx context.Context, username string) (*ActiveSession, error) {
	cmd := fmt.Sprintf(`:put [/ip hotspot active print as-value where user=%s]`, username)
	output, err := c.runCommand(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to query active sessions: %w", err)
	}

	fields := parseAsValue(output)
	if fields["user"] == "" {
		return nil, nil
	}

	s := parseActiveSession(fields)
	return &s, nil
}

// ListActiveSessions returns all connected hotspot logins.
func (c *SSHClient) ListActiveSessions(ctx context.Context) ([]ActiveSession, error) {
	output, err := c.runCommand(ctx, `:put [/ip hotspot active print as-value]`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}

	var sessions []ActiveSession
	for _, line := range strings.Split(output, "\n") {
		fields := parseAsValue(line)
		if fields["user"] == "" {
			continue
		}
		sessions = append(sessions, parseActiveSession(fields))
	}
	return sessions, nil
}

// KickActiveSession disconnects a user's live session, if any.
func (c *SSHClient) KickActiveSession(ctx context.Context, username string) error {
	cmd := fmt.Sprintf(`/ip hotspot active remove [find user=%s]`, username)
	if _, err := c.runCommand(ctx, cmd); err != nil {
		return fmt.Errorf("failed to remove active session: %w", err)
	}
	return nil
}

// ScheduleExpiry installs a one-shot scheduler that removes the account
// at the given time, replacing any previous one for the same account.
func (c *SSHClient) ScheduleExpiry(ctx context.Context, username string, at time.Time) error {
	scriptName := "remove-user-" + username
	schedulerName := "expire-user-" + username

	_, _ = c.runCommand(ctx, fmt.Sprintf(`/system script remove [find name=%s]`, scriptName))
	_, _ = c.runCommand(ctx, fmt.Sprintf(`/system scheduler remove [find name=%s]`, schedulerName))

	addScript := fmt.Sprintf(
		`/system script add name=%s source="/ip hotspot user remove [find name=%s]" policy=read,write dont-require-permissions=yes`,
		scriptName, username,
	)
	if _, err := c.runCommand(ctx, addScript); err != nil {
		return fmt.Errorf("failed to create removal script: %w", err)
	}

	stamp := strings.ToLower(at.Format(expiryFormat))
	parts := strings.SplitN(stamp, " ", 2)

	addScheduler := fmt.Sprintf(
		`/system scheduler add name=%s start-date=%s start-time=%s interval=0 on-event=%s policy=read,write disabled=no`,
		schedulerName, parts[0], parts[1], scriptName,
	)
	if _, err := c.runCommand(ctx, addScheduler); err != nil {
		_, _ = c.runCommand(ctx, fmt.Sprintf(`/system script remove [find name=%s]`, scriptName))
		return fmt.Errorf("failed to create expiry scheduler: %w", err)
	}

	c.logger.Info("expiry scheduled",
		zap.String("username", username),
		zap.Time("expires_at", at),
	)
	return nil
}

// TestConnection verifies the router is reachable over SSH.
func (c *SSHClient) TestConnection(ctx context.Context) error {
	if _, err := c.runCommand(ctx, `/system identity print`); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// runCommand executes a RouterOS CLI command on the router via SSH.
func (c *SSHClient) runCommand(ctx context.Context, cmd string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	addr := net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))

	client, err := ssh.Dial("tcp", addr, c.sshConfig)
	if err != nil {
		return "", fmt.Errorf("SSH connection failed: %w", err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	output, err := session.CombinedOutput(cmd)
	if err != nil {
		// RouterOS returns non-zero with useful output for some commands
		if len(output) > 0 {
			return string(output), nil
		}
		return "", fmt.Errorf("command failed: %w", err)
	}

	return string(output), nil
}

// parseAsValue parses RouterOS "print as-value" output, a semicolon
// separated list of key=value pairs.
func parseAsValue(output string) map[string]string {
	fields := make(map[string]string)
	for _, pair := range strings.Split(strings.TrimSpace(output), ";") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		fields[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return fields
}
