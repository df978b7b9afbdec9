package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leaddesk_backend/internal/agents"
	agentsrepo "leaddesk_backend/internal/agents/repository"
	"leaddesk_backend/internal/events"
	apphttp "leaddesk_backend/internal/http"
	"leaddesk_backend/internal/http/router"
	"leaddesk_backend/internal/leads"
	"leaddesk_backend/internal/leads/assignment"
	leadsrepo "leaddesk_backend/internal/leads/repository"
	"leaddesk_backend/internal/notification"
	"leaddesk_backend/internal/notification/inapp"
	"leaddesk_backend/internal/notification/outbox"
	"leaddesk_backend/internal/notification/sse"
	"leaddesk_backend/internal/payments"
	paymentsrepo "leaddesk_backend/internal/payments/repository"
	"leaddesk_backend/internal/scheduler"
	"leaddesk_backend/internal/store/memory"
	"leaddesk_backend/migrations"
	"leaddesk_backend/platform/config"
	"leaddesk_backend/platform/db"
	"leaddesk_backend/platform/logger"
	"leaddesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// stores groups the repositories of the selected store driver.
type stores struct {
	leads    leadsrepo.LeadsRepository
	agents   agentsrepo.AgentsRepository
	payments paymentsrepo.PaymentsRepository
	outbox   outbox.Store
	inbox    inapp.Store
	health   apphttp.HealthChecker
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr, "store", cfg.StoreDriver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	st, closeStores := initStores(ctx, cfg, log)
	defer closeStores()

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	counter, closeCounter := initCursorCounter(ctx, cfg, log)
	defer closeCounter()
	cursor := assignment.NewCursor(st.agents, counter)

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	sseService := sse.New(log)
	defer sseService.Close()

	notificationModule := notification.New(st.inbox, log)
	notificationModule.SetSSE(sseService)
	notificationModule.RegisterHandlers(eventBus)

	leadsModule := leads.NewModule(st.leads, st.agents, cursor, eventBus, val, log)
	agentsModule := agents.NewModule(st.agents, cursor, val, log)
	paymentsModule := payments.NewModule(st.payments, st.leads, st.agents, eventBus, cfg, val, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   st.health,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			leadsModule,
			agentsModule,
			paymentsModule,
			notificationModule,
		},
	}

	engine := router.New(app)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// Outbox delivery runs in-process so SSE pushes reach agents connected here.
	if cfg.GetRedisURL() != "" {
		notificationModule.SetNotificationOutbox(st.outbox)
		if err := startOutboxDelivery(gctx, g, cfg, st.outbox, eventBus, log); err != nil {
			log.Error("failed to start notification delivery", "error", err)
			panic("failed to start notification delivery: " + err.Error())
		}
	} else {
		log.Warn("REDIS_URL not configured; notifications are delivered inline")
	}

	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		eventBus.Wait()
		panic("server error: " + err.Error())
	}
	eventBus.Wait()
}

func initStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (stores, func()) {
	if cfg.IsMemoryStore() {
		log.Warn("using in-memory store; data is lost on restart")
		mem := memory.NewStore()
		return stores{
			leads:    mem.Leads(),
			agents:   mem.Agents(),
			payments: mem.Payments(),
			outbox:   mem.Outbox(),
			inbox:    mem.Inbox(),
		}, func() {}
	}

	if cfg.MigrationsEnabled {
		if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
			return db.RunMigrations(ctx, cfg, migrations.FS)
		}); err != nil {
			log.Error("failed to run database migrations", "error", err)
			panic("failed to run database migrations: " + err.Error())
		}
		log.Info("database migrations complete")
	}

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	log.Info("database connection established")

	return stores{
		leads:    leadsrepo.New(pool),
		agents:   agentsrepo.New(pool),
		payments: paymentsrepo.New(pool),
		outbox:   outbox.New(pool),
		inbox:    inapp.NewRepository(pool),
		health:   db.NewPoolAdapter(pool),
	}, pool.Close
}

func initCursorCounter(ctx context.Context, cfg config.CursorConfig, log *logger.Logger) (assignment.Counter, func()) {
	if cfg.GetCursorBackend() != config.CursorBackendRedis {
		return assignment.NewLocalCounter(), func() {}
	}

	client, err := newRedisClient(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		log.Error("failed to configure redis cursor", "error", err)
		panic("failed to configure redis cursor: " + err.Error())
	}
	if err := withRetry(ctx, log, "redis connection", 5, time.Second, func() error {
		return client.Ping(ctx).Err()
	}); err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	log.Info("round-robin cursor backed by redis", "key", cfg.GetCursorRedisKey())

	return assignment.NewRedisCounter(client, cfg.GetCursorRedisKey()), func() { _ = client.Close() }
}

func startOutboxDelivery(ctx context.Context, g *errgroup.Group, cfg config.SchedulerConfig, store outbox.Store, bus events.Bus, log *logger.Logger) error {
	client, err := scheduler.NewClient(cfg)
	if err != nil {
		return err
	}
	worker, err := scheduler.NewWorker(cfg, bus, log)
	if err != nil {
		_ = client.Close()
		return err
	}
	dispatcher := scheduler.NewNotificationOutboxDispatcher(store, client, log)

	g.Go(func() error {
		defer func() { _ = client.Close() }()
		return dispatcher.Run(ctx)
	})
	g.Go(func() error {
		return worker.Run(ctx)
	})
	return nil
}

func newRedisClient(redisURL string, tlsInsecure bool) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if tlsInsecure {
		if opt.TLSConfig == nil {
			opt.TLSConfig = &tls.Config{}
		}
		opt.TLSConfig.InsecureSkipVerify = true
	}
	return redis.NewClient(opt), nil
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
