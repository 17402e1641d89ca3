// Package telegram delivers approval requests to an administrator and
// relays their decisions back to the workflow.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/hotspotbd/portal-backend/internal/approval"
	"github.com/hotspotbd/portal-backend/internal/mikrotik"
	"github.com/hotspotbd/portal-backend/internal/store"
)

// DecisionHandler applies an admin decision to the workflow.
type DecisionHandler interface {
	HandleEvent(ctx context.Context, ev approval.Event) (*approval.Decision, error)
}

// Bot is the Telegram notification/approval channel. It pushes payment
// requests to the admin chat with inline Approve/Reject buttons and
// long-polls for the resulting callback queries.
type Bot struct {
	api         *tgbotapi.BotAPI
	adminChatID int64
	uploadDir   string
	handler     DecisionHandler
	controller  mikrotik.Controller
	logger      *zap.Logger
}

// NewBot creates the bot and verifies the token against the Telegram API.
func NewBot(token string, adminChatID int64, uploadDir string, controller mikrotik.Controller, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Bot{
		api:         api,
		adminChatID: adminChatID,
		uploadDir:   uploadDir,
		controller:  controller,
		logger:      logger,
	}, nil
}

// SetHandler registers the decision handler. Must be called before Run.
func (b *Bot) SetHandler(h DecisionHandler) {
	b.handler = h
}

// Notify sends the payment request to the admin chat with approval
// controls. The payment-proof image is attached when available.
func (b *Bot) Notify(ctx context.Context, req *store.Request) error {
	summary := fmt.Sprintf(
		"🆕 *New Payment Request*\n\n"+
			"👤 *Username:* `%s`\n"+
			"📦 *Package:* *%s*\n"+
			"📱 *Contact:* `%s`\n"+
			"🌐 *IP:* `%s`",
		req.Username,
		strings.ToUpper(strings.ReplaceAll(req.Package, "_", " ")),
		req.ContactNumber,
		req.SourceAddr,
	)

	approveData, err := approval.EncodeToken(approval.ActionApprove, req.ID)
	if err != nil {
		return err
	}
	rejectData, err := approval.EncodeToken(approval.ActionReject, req.ID)
	if err != nil {
		return err
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", approveData),
			tgbotapi.NewInlineKeyboardButtonData("❌ Reject", rejectData),
		),
	)

	var msg tgbotapi.Chattable
	if proofPath := b.proofPath(req.ProofRef); proofPath != "" {
		photo := tgbotapi.NewPhoto(b.adminChatID, tgbotapi.FilePath(proofPath))
		photo.Caption = summary
		photo.ParseMode = tgbotapi.ModeMarkdown
		photo.ReplyMarkup = keyboard
		msg = photo
	} else {
		text := tgbotapi.NewMessage(b.adminChatID, summary)
		text.ParseMode = tgbotapi.ModeMarkdown
		text.ReplyMarkup = keyboard
		msg = text
	}

	sent, err := b.api.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send approval request: %w", err)
	}

	b.logger.Info("approval request sent",
		zap.String("request_id", req.ID),
		zap.Int("message_id", sent.MessageID),
	)
	return nil
}

// Run starts the update loop and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	b.startupNotify(ctx)

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)

	b.logger.Info("telegram bot running", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			switch {
			case update.CallbackQuery != nil:
				b.handleCallback(ctx, update.CallbackQuery)
			case update.Message != nil && update.Message.IsCommand():
				b.handleCommand(ctx, update.Message)
			}
		}
	}
}

// handleCallback applies an Approve/Reject button press.
func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	// Always answer so the button stops spinning, whatever happens next.
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Warn("failed to answer callback query", zap.Error(err))
	}

	ev, err := approval.DecodeToken(cb.Data)
	if err != nil {
		b.logger.Warn("approval callback dropped", zap.Error(err))
		b.editResult(cb, "❌ Invalid approval data.")
		return
	}

	decision, err := b.handler.HandleEvent(ctx, ev)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			b.editResult(cb, fmt.Sprintf("❌ No pending request found for `%s`.", ev.Correlation.RequestID))
		case errors.Is(err, store.ErrAmbiguous):
			b.editResult(cb, "❌ Decision matches more than one request; resolve manually.")
		default:
			b.logger.Error("decision failed",
				zap.String("request_id", ev.Correlation.RequestID),
				zap.Error(err),
			)
			b.editResult(cb, fmt.Sprintf("⚠️ Decision failed, request stays pending: %s", err))
		}
		return
	}

	req := decision.Request
	switch req.Status {
	case store.StatusApproved:
		b.editResult(cb, fmt.Sprintf(
			"✅ *Approved!*\n\n👤 *Username:* `%s`\n📦 *Package:* `%s`\n📅 *Valid Till:* `%s`",
			req.Username, req.Package, decision.ExpiresAt.Format("2006-01-02 15:04"),
		))
	case store.StatusRejected:
		b.editResult(cb, fmt.Sprintf(
			"❌ *Rejected.*\n\n👤 *Username:* `%s`\n📦 *Package:* `%s`",
			req.Username, req.Package,
		))
	}
}

// handleCommand serves the small admin command set.
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat.ID != b.adminChatID {
		return
	}

	switch msg.Command() {
	case "activeusers":
		b.replyActiveUsers(ctx, msg.Chat.ID)
	case "usage":
		b.replyUsage(ctx, msg.Chat.ID, strings.TrimSpace(msg.CommandArguments()))
	case "help":
		b.reply(msg.Chat.ID,
			"⚙️ *Commands:*\n"+
				"/activeusers - List connected users\n"+
				"/usage <username> - Show traffic\n"+
				"/help - Show this message")
	}
}

func (b *Bot) replyActiveUsers(ctx context.Context, chatID int64) {
	sessions, err := b.controller.ListActiveSessions(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("❌ Error: %s", err))
		return
	}
	if len(sessions) == 0 {
		b.reply(chatID, "No active users.")
		return
	}

	var sb strings.Builder
	sb.WriteString("*📶 Active Users:*\n")
	for _, s := range sessions {
		fmt.Fprintf(&sb, "• `%s` - IP: %s, Uptime: %s\n", s.Username, s.Address, s.Uptime)
	}
	b.reply(chatID, sb.String())
}

func (b *Bot) replyUsage(ctx context.Context, chatID int64, username string) {
	if username == "" {
		b.reply(chatID, "Usage: /usage <username>")
		return
	}

	session, err := b.controller.GetActiveSession(ctx, username)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("❌ Error: %s", err))
		return
	}
	if session == nil {
		b.reply(chatID, fmt.Sprintf("User `%s` is not active.", username))
		return
	}

	b.reply(chatID, fmt.Sprintf(
		"📊 Usage for `%s`:\n⬆️ Upload: %.2f MB\n⬇️ Download: %.2f MB",
		username,
		float64(session.BytesOut)/(1024*1024),
		float64(session.BytesIn)/(1024*1024),
	))
}

// startupNotify tells the admin the bot is up and whether the router is
// reachable.
func (b *Bot) startupNotify(ctx context.Context) {
	if err := b.controller.TestConnection(ctx); err != nil {
		b.reply(b.adminChatID, fmt.Sprintf("⚠️ Bot started but router check failed: %s", err))
		return
	}
	b.reply(b.adminChatID, "✅ Bot is running and connected to the router.")
}

// editResult rewrites the approval message so the buttons disappear and
// the outcome is visible in the chat history.
func (b *Bot) editResult(cb *tgbotapi.CallbackQuery, text string) {
	if cb.Message == nil {
		return
	}

	var edit tgbotapi.Chattable
	if cb.Message.Caption != "" || len(cb.Message.Photo) > 0 {
		e := tgbotapi.NewEditMessageCaption(cb.Message.Chat.ID, cb.Message.MessageID, text)
		e.ParseMode = tgbotapi.ModeMarkdown
		edit = e
	} else {
		e := tgbotapi.NewEditMessageText(cb.Message.Chat.ID, cb.Message.MessageID, text)
		e.ParseMode = tgbotapi.ModeMarkdown
		edit = e
	}

	if _, err := b.api.Send(edit); err != nil {
		b.logger.Warn("failed to edit approval message", zap.Error(err))
	}
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("failed to send telegram message", zap.Error(err))
	}
}

// proofPath returns the on-disk path of a proof upload, or "" when the
// reference is absent or the file is gone.
func (b *Bot) proofPath(ref string) string {
	if ref == "" || b.uploadDir == "" {
		return ""
	}
	path := filepath.Join(b.uploadDir, filepath.Base(ref))
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
