// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ticketbridge/bridge"
	"github.com/bureau-foundation/ticketbridge/lib/catalog"
	"github.com/bureau-foundation/ticketbridge/lib/config"
	"github.com/bureau-foundation/ticketbridge/lib/connpool"
	"github.com/bureau-foundation/ticketbridge/lib/events"
	"github.com/bureau-foundation/ticketbridge/lib/ledger"
	"github.com/bureau-foundation/ticketbridge/lib/ratelimit"
	"github.com/bureau-foundation/ticketbridge/lib/sessionstore"
	"github.com/bureau-foundation/ticketbridge/lib/store"
	"github.com/bureau-foundation/ticketbridge/lib/supervisor"
	"github.com/bureau-foundation/ticketbridge/lib/telegram"
	"github.com/bureau-foundation/ticketbridge/lib/workflow"
	"github.com/bureau-foundation/ticketbridge/messaging"
)

func serveFlags(flagSet *pflag.FlagSet) func(context.Context, *environment) error {
	return serve
}

// serve wires every component and blocks until ctx is cancelled. Faults
// in the long-running loops go to the supervisor, which decides whether
// the process restarts.
func serve(ctx context.Context, env *environment) error {
	cfg, logger := env.cfg, env.logger

	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	supervise, err := supervisor.New(supervisor.Config{
		Policy: supervisor.Policy{
			BaseBackoff:        cfg.Recovery.BaseBackoff,
			MaxBackoff:         cfg.Recovery.MaxBackoff,
			RapidWindow:        cfg.Recovery.RapidWindow,
			MaxAttemptsPerHour: cfg.Recovery.MaxAttemptsPerHour,
		},
		StatePath:    cfg.Paths.RestartState,
		CrashLogPath: cfg.Paths.CrashLog,
		Logger:       logger.With("component", "supervisor"),
	})
	if err != nil {
		return err
	}

	db, err := store.Open(store.Config{
		Path:   cfg.Paths.Database,
		Logger: logger.With("component", "store"),
	})
	if err != nil {
		return err
	}
	defer db.Close()
	supervise.Register("database", db)

	categories, err := catalog.Load(cfg.Paths.Catalog)
	if err != nil {
		return err
	}
	if err := db.SyncCategories(ctx, categories.Records()); err != nil {
		return err
	}

	earnings, err := ledger.New(ledger.Config{
		Pool:   db.Pool(),
		Logger: logger.With("component", "ledger"),
	})
	if err != nil {
		return err
	}

	sessions, closeSessions, err := openSessions(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	defer closeSessions()

	telegramToken, err := cfg.TelegramToken()
	if err != nil {
		return err
	}
	customers, err := telegram.New(telegram.Config{
		Token:       telegramToken,
		APIEndpoint: cfg.Telegram.APIEndpoint,
		Sessions:    sessions,
		PollTimeout: cfg.Telegram.PollTimeout,
		Logger:      logger.With("component", "telegram"),
	})
	if err != nil {
		return err
	}

	staff, err := connectStaff(cfg, logger)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(ratelimit.Config{
		Limits: rateLimits(cfg.RateLimits),
		Logger: logger.With("component", "ratelimit"),
	})
	defer limiter.Close()

	pool, err := connpool.New(connpool.Config{
		Dial:             staff.CreateConnection,
		MaxPerChannel:    cfg.Pool.MaxPerChannel,
		IdleTimeout:      cfg.Pool.IdleTimeout,
		FailureThreshold: cfg.Pool.FailureThreshold,
		Logger:           logger.With("component", "connpool"),
	})
	if err != nil {
		return err
	}
	defer pool.Close()
	supervise.Register("connection pool", pool)

	relay, err := bridge.New(bridge.Config{
		Staff:     staff,
		Customers: customers,
		Pool:      pool,
		Limiter:   limiter,
		Retry: bridge.RetryPolicy{
			MaxAttempts: cfg.Relay.MaxAttempts,
			BaseBackoff: cfg.Relay.BaseBackoff,
			MaxBackoff:  cfg.Relay.MaxBackoff,
			CallTimeout: cfg.Relay.CallTimeout,
		},
		MaintenanceInterval: cfg.Pool.SweepInterval,
		Logger:              logger.With("component", "bridge"),
	})
	if err != nil {
		return err
	}
	relay.Start(ctx)
	defer relay.Stop()

	publisher, closeEvents, err := openEvents(cfg, logger)
	if err != nil {
		return err
	}
	defer closeEvents()

	service, err := workflow.New(workflow.Config{
		Store:       db,
		Ledger:      earnings,
		Bridge:      relay,
		Sessions:    sessions,
		Catalog:     categories,
		Events:      publisher,
		StaffSpace:  cfg.Matrix.StaffSpace,
		StaffInvite: cfg.Matrix.StaffInvite,
		Logger:      logger.With("component", "workflow"),
	})
	if err != nil {
		return err
	}

	supervise.Go(ctx, "telegram", func(ctx context.Context) error {
		return customers.Poll(ctx, func(ctx context.Context, message telegram.Inbound) error {
			return service.HandleCustomer(ctx, workflow.CustomerMessage{
				SessionRef:  message.SessionRef,
				UserID:      message.UserID,
				DisplayName: message.DisplayName,
				MessageID:   message.MessageID,
				Text:        message.Text,
				Attachment:  message.Attachment,
			})
		})
	})

	supervise.Go(ctx, "matrix", func(ctx context.Context) error {
		return staff.Listen(ctx, func(ctx context.Context, message messaging.Inbound) error {
			err := service.HandleStaff(ctx, workflow.StaffMessage{
				ChannelRef: message.RoomID,
				Sender:     message.Sender,
				EventID:    message.EventID,
				Text:       message.Text,
				Attachment: message.Attachment,
			})
			// Rooms that are not ticket channels (the staff space, a
			// lobby) are ignored.
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		})
	})

	if interval := cfg.Ledger.ReconcileInterval; interval > 0 {
		supervise.Go(ctx, "reconcile", func(ctx context.Context) error {
			earnings.ReconcileEvery(ctx, interval)
			return nil
		})
	}

	logger.Info("ticketbridge running",
		"environment", string(cfg.Environment),
		"database", cfg.Paths.Database,
		"categories", len(categories.Categories),
		"staff_user", cfg.Matrix.UserID,
	)
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func connectStaff(cfg *config.Config, logger *slog.Logger) (*messaging.Staff, error) {
	token, err := cfg.MatrixToken()
	if err != nil {
		return nil, err
	}
	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Matrix.HomeserverURL,
		Logger:        logger.With("component", "matrix"),
	})
	if err != nil {
		return nil, err
	}
	return messaging.NewStaff(messaging.StaffConfig{
		Session:     client.SessionFromToken(cfg.Matrix.UserID, token),
		SyncTimeout: cfg.Matrix.SyncTimeout,
		Logger:      logger.With("component", "matrix"),
	})
}

// openSessions picks the session store: Redis when configured,
// otherwise the SQLite database.
func openSessions(ctx context.Context, cfg *config.Config, db *store.Store, logger *slog.Logger) (sessionstore.Store, func(), error) {
	if cfg.Redis.URL == "" {
		return sessionstore.NewSQLite(db, nil), func() {}, nil
	}
	client, err := sessionstore.DialRedis(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	sessions, err := sessionstore.NewRedis(sessionstore.RedisConfig{
		Client:    client,
		KeyPrefix: cfg.Redis.KeyPrefix,
		TTL:       cfg.Redis.SessionTTL,
	})
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	logger.Info("sessions stored in redis", "key_prefix", cfg.Redis.KeyPrefix)
	return sessions, func() { closeLogged(logger, "redis", client) }, nil
}

// openEvents connects the AMQP publisher when configured and discards
// events otherwise.
func openEvents(cfg *config.Config, logger *slog.Logger) (events.Publisher, func(), error) {
	if cfg.AMQP.URL == "" {
		return events.Discard{}, func() {}, nil
	}
	publisher, err := events.DialAMQP(events.AMQPConfig{
		URL:      cfg.AMQP.URL,
		Exchange: cfg.AMQP.Exchange,
		Logger:   logger.With("component", "events"),
	})
	if err != nil {
		return nil, nil, err
	}
	return publisher, func() { closeLogged(logger, "amqp", publisher) }, nil
}

// rateLimits converts configured bucket shapes into limiter overrides.
// Validate has already rejected unknown categories.
func rateLimits(configured map[string]config.LimitConfig) map[ratelimit.Category]ratelimit.Limit {
	if len(configured) == 0 {
		return nil
	}
	limits := make(map[ratelimit.Category]ratelimit.Limit, len(configured))
	for name, limit := range configured {
		limits[ratelimit.Category(name)] = ratelimit.Limit{Capacity: limit.Capacity, Interval: limit.Interval}
	}
	return limits
}

func closeLogged(logger *slog.Logger, name string, closer io.Closer) {
	if err := closer.Close(); err != nil {
		logger.Warn(fmt.Sprintf("closing %s failed", name), "error", err)
	}
}
