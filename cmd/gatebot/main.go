// Command gatebot starts the HR assistant gate bot.
package main

import (
	"context"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/denkond/hrgate/internal/bot"
	"github.com/denkond/hrgate/internal/config"
	"github.com/denkond/hrgate/internal/migrate"
	"github.com/denkond/hrgate/internal/notify"
	"github.com/denkond/hrgate/internal/repository/postgres"
	"github.com/denkond/hrgate/internal/upstream"
	"github.com/denkond/hrgate/internal/workflow"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations, and starts the polling loop.
func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.Postgres.DSN); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	db, err := postgres.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal("postgres.New", zap.Error(err))
	}
	defer db.Close()

	// Repositories
	creds := postgres.NewCredRepo(db)
	states := postgres.NewStateRepo(db)

	// Upstream API
	tokens := upstream.NewTokenManager(
		upstream.NewFileStore(cfg.Upstream.TokenFile),
		nil,
		cfg.Upstream.BaseURL,
		cfg.Upstream.Username,
		cfg.Upstream.Password,
		logger.Named("tokens"),
	)
	client := upstream.NewClient(
		tokens,
		nil,
		cfg.Upstream.BaseURL,
		1, 54,
		upstream.DefaultOptions(),
		upstream.PollPolicy{
			Base:     cfg.Upstream.PollBase,
			Cap:      cfg.Upstream.PollCap,
			Attempts: cfg.Upstream.PollAttempts,
		},
		logger.Named("upstream"),
	)

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal("telegram api", zap.Error(err))
	}
	api.Debug = cfg.Telegram.Debug

	// The bot doubles as the revocation notifier, so wire it in two steps.
	wf := workflow.New(
		creds,
		states,
		client,
		&notify.LogSender{Logger: logger.Named("notify")},
		nil,
		cfg.Auth.DomainSuffix,
		cfg.Auth.CodeLength,
		logger.Named("workflow"),
	)
	b := bot.New(api, wf, logger.Named("bot"))
	wf.SetRevocations(b)

	logger.Info("polling", zap.String("bot", api.Self.UserName))
	if err := b.Run(ctx); err != nil {
		logger.Fatal("bot stopped", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
