package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sabihealth/outreach/internal/call"
	"github.com/sabihealth/outreach/internal/calllog"
	"github.com/sabihealth/outreach/internal/message"
	"github.com/sabihealth/outreach/internal/outreach"
	"github.com/sabihealth/outreach/internal/outreach/api"
	"github.com/sabihealth/outreach/internal/recipient"
	"github.com/sabihealth/outreach/internal/referral"
	"github.com/sabihealth/outreach/internal/risk"
	"github.com/sabihealth/outreach/internal/shared/config"
	"github.com/sabihealth/outreach/internal/shared/database"
	"github.com/sabihealth/outreach/internal/shared/events"
	"github.com/sabihealth/outreach/internal/shared/logging"
	"github.com/sabihealth/outreach/internal/shared/metrics"
	secmiddleware "github.com/sabihealth/outreach/internal/shared/middleware"
	"github.com/sabihealth/outreach/internal/shared/queue"
	"github.com/sabihealth/outreach/internal/symptom"
	"github.com/sabihealth/outreach/internal/trigger"
)

// App holds all application dependencies
type App struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *database.DB
	Redis  *redis.Client
	Bus    events.EventBus
	HIS    *referral.HISDirectory
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &App{Config: cfg, Logger: logger}
	defer app.close()

	// Database (optional - memory stores when unavailable)
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		logger.Warn("database not available, using in-memory stores", "error", err)
	} else {
		app.DB = db
		if err := database.Migrate(ctx, db.Pool, logger); err != nil {
			logger.Warn("migration failed", "error", err)
		}
	}

	// Event bus with KurrentDB (optional)
	app.Bus = events.NewMemoryBus()
	if cfg.KurrentDB.Enabled {
		bus, err := events.NewBus(ctx, cfg.KurrentDB)
		if err != nil {
			logger.Warn("KurrentDB not available, events stay in memory", "error", err)
		} else {
			app.Bus = bus
			logger.Info("KurrentDB event bus initialized")
		}
	}

	// Risk signals, optionally cached in Redis
	var source risk.SignalSource = risk.NewSeededSource()
	if cfg.Redis.Enabled {
		app.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := app.Redis.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not reachable, cache will be bypassed", "error", err)
		}
		source = risk.NewCachedSource(app.Redis, source, cfg.Redis.SignalTTL, logger)
	}
	evaluator := risk.NewEvaluator(source, cfg.Risk.SignalTimeout, logger)

	// Stores
	var (
		recipients recipient.Directory
		logRepo    calllog.Repository
		symRepo    symptom.Repository
	)
	if app.DB != nil {
		recipients = recipient.NewPostgresDirectory(app.DB.Pool)
		logRepo = calllog.NewPostgresRepository(app.DB.Pool)
		symRepo = symptom.NewPostgresRepository(app.DB.Pool)
	} else {
		recipients = recipient.NewMemoryDirectory(recipient.DemoRecipients()...)
		logRepo = calllog.NewMemoryRepository()
		symRepo = symptom.NewMemoryRepository()
	}

	facilities, err := app.facilityDirectory(ctx)
	if err != nil {
		logger.Warn("facility directory not available, referrals use the fallback", "error", err)
	}

	// Call log publisher on Kafka (optional)
	var publisher calllog.Publisher
	if cfg.Kafka.Enabled {
		producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.CallLogTopic)
		defer producer.Close()
		publisher = calllog.NewKafkaPublisher(producer)
	}
	recorder := calllog.NewRecorder(logRepo, publisher, logger)

	delivery, err := call.NewDelivery(cfg.Delivery)
	if err != nil {
		logger.Error("failed to configure delivery", "error", err)
		os.Exit(1)
	}

	calls := call.NewManager(call.ManagerConfig{
		Delivery:        delivery,
		DeliveryTimeout: cfg.Delivery.Timeout,
		Resolver:        referral.NewResolver(facilities, cfg.Referral.Timeout, logger),
		Recorder:        recorder,
		Events:          app.Bus,
		Logger:          logger,
	})
	svc := outreach.NewService(recipients, evaluator, message.NewComposer(nil), calls, logger)

	// Automatic triggering
	if cfg.Scheduler.Enabled {
		go trigger.NewScheduler(svc, calls, cfg.Scheduler, logger).Run(ctx)
		logger.Info("scheduler started", "interval", cfg.Scheduler.Interval)
	}
	if cfg.Kafka.Enabled {
		consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.SignalTopic, cfg.Kafka.GroupID)
		defer consumer.Close()
		go trigger.NewSignalConsumer(consumer, svc, logger).Run(ctx)
		logger.Info("signal consumer started", "topic", cfg.Kafka.SignalTopic)
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(secmiddleware.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(metrics.Middleware)
	r.Use(secmiddleware.CORS(secmiddleware.DefaultCORSConfig()))

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())
	r.Get("/", infoHandler)

	// Synthesized audio for the telephony provider to fetch
	r.Handle("/audio/*", http.StripPrefix("/audio/", http.FileServer(http.Dir(cfg.Delivery.AudioDir))))

	limiter := secmiddleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Use(secmiddleware.BodyLimit(1 << 20))

		// Operators authenticate in production; development runs open
		var authCfg *config.AuthConfig
		if cfg.Server.Env == "production" {
			authCfg = &cfg.Auth
		}

		h := api.NewHandler(api.HandlerConfig{
			Outreach: svc,
			Calls:    calls,
			Logs:     recorder,
			Symptoms: symptom.NewService(symRepo, recipients, logger),
			Auth:     authCfg,
		})
		r.Mount("/", h.Routes())
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Delivery.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("outreach core listening",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"delivery", delivery.Name(),
		"referral_directory", cfg.Referral.Directory,
		"database", app.DB != nil,
		"kafka", cfg.Kafka.Enabled,
	)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// facilityDirectory builds the configured referral directory. A nil
// directory makes every referral the fallback.
func (app *App) facilityDirectory(ctx context.Context) (referral.Directory, error) {
	switch app.Config.Referral.Directory {
	case "postgres":
		if app.DB == nil {
			return nil, fmt.Errorf("postgres facility directory needs a database")
		}
		return referral.NewPostgresDirectory(app.DB.Pool), nil
	case "his":
		his, err := referral.NewHISDirectory(ctx, app.Config.Referral.HIS)
		if err != nil {
			return nil, err
		}
		app.HIS = his
		return his, nil
	default:
		return referral.NewSeededDirectory(), nil
	}
}

func (app *App) close() {
	if app.HIS != nil {
		app.HIS.Close()
	}
	if app.Redis != nil {
		app.Redis.Close()
	}
	if app.Bus != nil {
		app.Bus.Close()
	}
	if app.DB != nil {
		app.DB.Close()
	}
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "Sabi Health Outreach Core",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}
		check := func(name string, configured bool, probe func() error) {
			if !configured {
				checks[name] = "not configured"
				return
			}
			if err := probe(); err != nil {
				checks[name] = "not ready: " + err.Error()
				return
			}
			checks[name] = "ready"
		}

		check("database", app.DB != nil, func() error { return app.DB.Health(r.Context()) })
		check("redis", app.Redis != nil, func() error { return app.Redis.Ping(r.Context()).Err() })
		check("kurrentdb", app.Config.KurrentDB.Enabled, app.Bus.Health)
		check("his", app.HIS != nil, func() error { return app.HIS.Health(r.Context()) })

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}
