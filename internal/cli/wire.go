package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"leetmail/internal/auth"
	"leetmail/internal/config"
	"leetmail/internal/db"
	"leetmail/internal/leetcode"
	"leetmail/internal/logging"
	"leetmail/internal/mail"
	"leetmail/internal/runs"
	"leetmail/internal/scheduler"
	"leetmail/internal/subscriber"
	"leetmail/internal/subscription"
)

// app is everything a command may need, built once from config.
type app struct {
	cfg    config.Config
	log    zerolog.Logger
	db     *gorm.DB
	store  *subscriber.Store
	lc     *leetcode.Client
	sender mail.Sender
	engine *scheduler.Engine
	runs   *runs.Repo
	cycles *runs.Service
	subs   *subscription.Service
}

func loadConfig() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, logging.New(cfg.LogLevel, cfg.LogConsole), nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sender, err := newSender(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		log:    log,
		db:     gdb,
		store:  &subscriber.Store{DB: gdb},
		lc:     leetcode.New(cfg.LeetcodeAPI, cfg.OracleTimeout),
		sender: sender,
		runs:   &runs.Repo{DB: gdb},
	}
	a.engine = scheduler.New(scheduler.Config{
		Slots:           cfg.Slots,
		PublicURL:       cfg.PublicURL,
		Concurrency:     cfg.Concurrency,
		RatePerSec:      cfg.RatePerSec,
		TaskTimeout:     cfg.TaskTimeout,
		OracleTimeout:   cfg.OracleTimeout,
		DeliveryTimeout: cfg.DeliveryTimeout,
		OnUncertain:     cfg.FailPolicy,
	}, a.lc, a.lc, a.store, a.sender, log)
	a.cycles = &runs.Service{Ledger: a.runs, Engine: a.engine, Log: log}
	a.subs = &subscription.Service{
		Store:  a.store,
		Users:  a.lc,
		Sender: a.sender,
		Links:  subscriber.Links{Base: cfg.PublicURL},
		Log:    log.With().Str("comp", "subscription").Logger(),
	}
	return a, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func newSender(ctx context.Context, cfg config.Config, log zerolog.Logger) (mail.Sender, error) {
	if cfg.Delivery == "log" {
		return mail.LogSender{Log: log.With().Str("comp", "mail").Logger()}, nil
	}
	if err := cfg.RequireGmail(); err != nil {
		return nil, err
	}
	ts, err := mail.FileTokenSource(context.WithoutCancel(ctx), cfg.GmailCredentials, cfg.GmailToken)
	if err != nil {
		return nil, fmt.Errorf("gmail credentials: %w", err)
	}
	return mail.NewGmail(cfg.GmailUser, ts, cfg.DeliveryTimeout), nil
}

func newJWT(cfg config.Config) *auth.JWT {
	return auth.NewJWT(cfg.JWTSecret, cfg.TriggerTokenTTL)
}

func cronSecret(cfg config.Config) auth.Secret {
	return auth.Secret{Hash: cfg.CronSecretHash, Plain: cfg.CronSecret}
}
