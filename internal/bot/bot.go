// Package bot is the Telegram glue: it maps updates onto workflow calls and
// relays replies. No business logic lives here.
package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/denkond/hrgate/internal/model"
	"github.com/denkond/hrgate/internal/workflow"
)

const (
	msgInternalError = "Something went wrong. Please try again later."
	msgHelp          = "Commands:\n" +
		"/start - sign in\n" +
		"/admin - sign in as administrator\n" +
		"/addlogin - add a login to the whitelist (admin)\n" +
		"/removelogin - revoke a login (admin)\n" +
		"Anything else is treated as a question to the HR assistant."
)

// Bot runs a long-polling loop against the Telegram API.
type Bot struct {
	api    *tgbotapi.BotAPI
	wf     *workflow.Workflow
	logger *zap.Logger
}

// New constructs a Bot around an authorized API client.
func New(api *tgbotapi.BotAPI, wf *workflow.Workflow, logger *zap.Logger) *Bot {
	return &Bot{api: api, wf: wf, logger: logger}
}

// NotifyRevoked implements workflow.Revocations: it tells a signed-out device
// why its next message will bounce.
func (b *Bot) NotifyRevoked(_ context.Context, tgID int64) {
	if _, err := b.api.Send(tgbotapi.NewMessage(tgID, workflow.BannedReply())); err != nil {
		b.logger.Warn("revocation notice failed", zap.Int64("tg_id", tgID), zap.Error(err))
	}
}

// Run receives updates until ctx is cancelled. Each message is an
// independent unit of work.
func (b *Bot) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			if upd.Message == nil || upd.Message.Text == "" || upd.Message.From == nil {
				continue
			}
			go b.handleMessage(ctx, upd.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	key := model.ConvKey{ChatID: m.Chat.ID, UserID: m.From.ID}

	var reply string
	var err error
	switch m.Command() {
	case "start":
		reply, err = b.wf.Start(ctx, key)
	case "admin":
		reply, err = b.wf.StartAdmin(ctx, key)
	case "addlogin":
		reply, err = b.wf.BeginAddLogin(ctx, key)
	case "removelogin":
		reply, err = b.wf.BeginRemoveLogin(ctx, key)
	case "help":
		reply = msgHelp
	default:
		reply, err = b.wf.Handle(ctx, key, m.Text)
	}
	if err != nil {
		b.logger.Error("update handling failed",
			zap.Int64("chat_id", key.ChatID),
			zap.Int64("user_id", key.UserID),
			zap.Error(err))
		reply = msgInternalError
	}

	if _, err := b.api.Send(tgbotapi.NewMessage(m.Chat.ID, reply)); err != nil {
		b.logger.Error("send reply failed", zap.Int64("chat_id", key.ChatID), zap.Error(err))
	}
}
