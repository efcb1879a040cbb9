package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/fighterboy13/WhatsApp/internal/api"
	"github.com/fighterboy13/WhatsApp/internal/cache"
	"github.com/fighterboy13/WhatsApp/internal/client"
	"github.com/fighterboy13/WhatsApp/internal/config"
	"github.com/fighterboy13/WhatsApp/internal/repo"
	"github.com/fighterboy13/WhatsApp/internal/scheduler"
	"github.com/fighterboy13/WhatsApp/internal/service"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadAll()
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg.Log, os.Stdout))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory, err := transportFactory(ctx, cfg)
	if err != nil {
		return err
	}

	sessions := service.NewSessions(factory).WithThrottle(cfg.Bulk.SessionSendsPerMinute)
	tasks := repo.NewMemoryTaskRepo()
	engine := service.NewBulkEngine(sessions, tasks, cfg.Bulk.SendTimeout)

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unavailable, delivery cache disabled", "addr", cfg.Redis.Address, "err", err)
		} else {
			withDeliveryCache(engine, cache.NewRedisCache(rdb, cfg.Redis.TTL))
			slog.Info("delivery cache enabled", "addr", cfg.Redis.Address, "ttl", cfg.Redis.TTL.String())
		}
	}

	// Zero retention keeps finished tasks forever.
	if cfg.Bulk.Retention > 0 {
		janitor, err := scheduler.New("task-janitor", cfg.Bulk.JanitorInterval,
			scheduler.EvictionJob(tasks.EvictFinished, cfg.Bulk.Retention))
		if err != nil {
			return err
		}
		janitor.Start()
		defer janitor.Stop()
	}

	handler := api.NewHandler(sessions, service.NewSender(sessions, cfg.Bulk.SendTimeout), engine, cfg.Bulk.DefaultDelay)
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(handler)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		slog.Info("http server listening",
			"addr", cfg.Server.Address,
			"driver", cfg.Transport.Driver,
			"redis", cfg.Redis.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sdNotify(daemon.SdNotifyReady)

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case serveErr = <-errCh:
		slog.Error("http server failed", "err", serveErr)
	}

	sdNotify(daemon.SdNotifyStopping)
	shutdown(srv, engine, sessions, cfg.Server.ShutdownTimeout)
	return serveErr
}

// shutdown drains HTTP first so no new task can start, then stops running
// tasks, then tears down every session.
func shutdown(srv *http.Server, engine *service.BulkEngine, sessions *service.Sessions, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("http shutdown", "err", err)
	}
	if err := engine.Shutdown(ctx); err != nil {
		slog.Warn("bulk engine shutdown", "err", err)
	}
	if err := sessions.Close(ctx); err != nil {
		slog.Warn("session teardown", "err", err)
	}
	slog.Info("shutdown complete")
}

func transportFactory(ctx context.Context, cfg *config.Config) (service.TransportFactory, error) {
	switch cfg.Transport.Driver {
	case config.DriverWebhook:
		return func(sessionID, clientID string) (service.Transport, error) {
			return client.NewWebhookClient(cfg.Webhook.URL, cfg.Webhook.Timeout), nil
		}, nil

	case config.DriverWhatsApp:
		container, err := client.OpenDeviceStore(ctx, cfg.Store.PostgresURL, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		return func(sessionID, clientID string) (service.Transport, error) {
			return client.NewWhatsAppClient(container, sessionID, clientID), nil
		}, nil

	default:
		return nil, fmt.Errorf("unknown transport driver %q", cfg.Transport.Driver)
	}
}

func withDeliveryCache(engine *service.BulkEngine, dc cache.DeliveryCache) {
	engine.WithHooks(
		func(ctx context.Context, taskID, chatID string) error {
			return dc.StoreSent(ctx, taskID, chatID, time.Now())
		},
		func(ctx context.Context, taskID, chatID, reason string) error {
			return dc.StoreFailed(ctx, taskID, chatID, reason, time.Now())
		},
	)
}

func sdNotify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		slog.Warn("systemd notify failed", "state", state, "err", err)
		return
	}
	if sent {
		slog.Debug("systemd notified", "state", state)
	}
}
