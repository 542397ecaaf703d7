package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/sevans717/aphila-sub004/internal/config"
	"github.com/sevans717/aphila-sub004/internal/domain"
	"github.com/sevans717/aphila-sub004/internal/httpserver"
	"github.com/sevans717/aphila-sub004/internal/logging"
	"github.com/sevans717/aphila-sub004/internal/maintenance"
	"github.com/sevans717/aphila-sub004/internal/metrics"
	"github.com/sevans717/aphila-sub004/internal/offline"
	"github.com/sevans717/aphila-sub004/internal/push"
	"github.com/sevans717/aphila-sub004/internal/ratelimit"
	"github.com/sevans717/aphila-sub004/internal/security"
	"github.com/sevans717/aphila-sub004/internal/service"
	"github.com/sevans717/aphila-sub004/internal/store/postgres"
	"github.com/sevans717/aphila-sub004/internal/store/sqlite"
	"github.com/sevans717/aphila-sub004/internal/ws"
)

// @title           Realtime Gateway API
// @version         1.0
// @description     Token issuance, presence lookup and message history for the realtime websocket gateway at /ws.

// @BasePath        /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type repositories struct {
	users         domain.UserRepository
	conversations domain.ConversationRepository
	relationships domain.RelationshipRepository
	messages      domain.MessageRepository
	presence      domain.PresenceRepository
}

func openStore(cfg *config.Config) (*sql.DB, *repositories, error) {
	switch cfg.DBDriver {
	case "sqlite":
		db, err := sqlite.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := sqlite.Migrate(db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return db, &repositories{
			users:         sqlite.NewUserRepo(db),
			conversations: sqlite.NewConversationRepo(db),
			relationships: sqlite.NewRelationshipRepo(db),
			messages:      sqlite.NewMessageRepo(db),
			presence:      sqlite.NewPresenceRepo(db),
		}, nil
	default:
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return db, &repositories{
			users:         postgres.NewUserRepo(db),
			conversations: postgres.NewConversationRepo(db),
			relationships: postgres.NewRelationshipRepo(db),
			messages:      postgres.NewMessageRepo(db),
			presence:      postgres.NewPresenceRepo(db),
		}, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logging.Init(cfg.Env, cfg.Debug)

	db, repos, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("open database")
	}
	defer db.Close()

	// Security components
	tokenSvc := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)
	passwordHasher := security.NewPasswordHasher(0)
	encryptor, err := security.NewEncryptor([]byte(cfg.EncryptKey), cfg.LegacyEncryptKeys)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize encryptor")
	}

	clk := clock.New()
	hub := ws.NewHub()

	queue, err := offline.New(cfg.OfflineQueueCapacity, cfg.OfflineQueueMaxUsers, clk)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize offline queue")
	}
	queue.OnEvict = func(int64) { metrics.OfflineQueueEvictions.Inc() }

	var notifier push.Notifier = push.LogNotifier{}
	if cfg.PushURL != "" {
		notifier = push.NewHTTPNotifier(cfg.PushURL, cfg.PushTimeout, clk)
	}
	limiter := ratelimit.New(cfg.MessagesPerMinute, time.Minute, clk)
	loginLimiter := ratelimit.NewBuckets(
		rate.Every(time.Minute/time.Duration(cfg.LoginAttemptsPerMinute)), cfg.LoginAttemptsPerMinute, clk)

	// Services
	authSvc := service.NewAuthService(repos.users, tokenSvc, passwordHasher)
	presenceSvc := service.NewPresenceService(repos.presence, repos.relationships, hub, clk, cfg.PresenceStaleAfter)
	roomSvc := service.NewRoomService(repos.conversations, hub)
	typingSvc := service.NewTypingService(hub, clk, cfg.TypingTimeout)
	messageSvc := service.NewMessageService(repos.conversations, repos.messages, encryptor, limiter, hub, queue, notifier, clk)
	sessionSvc := service.NewSessionService(hub, presenceSvc, typingSvc, messageSvc, queue)
	historySvc := service.NewHistoryService(repos.conversations, repos.messages, repos.users, roomSvc, encryptor)

	gateway := ws.NewGateway(ws.GatewayDeps{
		Hub:            hub,
		Auth:           authSvc,
		Sessions:       sessionSvc,
		Rooms:          roomSvc,
		Messages:       messageSvc,
		Typing:         typingSvc,
		Presence:       presenceSvc,
		Clock:          clk,
		AllowedOrigins: cfg.CORSOrigins,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := maintenance.New(cfg.MaintenanceInterval, clk,
		maintenance.PresenceSweep(presenceSvc),
		maintenance.OfflineQueueExpiry(queue, cfg.OfflineQueueTTL),
		maintenance.RateLimiterGC("sender_rate_gc", limiter, 10*time.Minute),
		maintenance.RateLimiterGC("login_throttle_gc", loginLimiter, 10*time.Minute),
	)
	go loop.Run(ctx)

	srv := &http.Server{
		Addr: cfg.HTTPAddr(),
		Handler: httpserver.NewRouter(cfg, httpserver.Deps{
			Auth:     authSvc,
			Presence: presenceSvc,
			History:  historySvc,
			Gateway:  gateway,

			LoginLimiter: loginLimiter,
		}),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr()).Str("driver", cfg.DBDriver).Msg("starting gateway")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	messageSvc.Wait()
}
