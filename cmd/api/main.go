package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gema-chat/internal/auth"
	"github.com/noah-isme/gema-chat/internal/config"
	"github.com/noah-isme/gema-chat/internal/database"
	"github.com/noah-isme/gema-chat/internal/handler"
	"github.com/noah-isme/gema-chat/internal/middleware"
	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/realtime"
	"github.com/noah-isme/gema-chat/internal/relay"
	"github.com/noah-isme/gema-chat/internal/repository"
	"github.com/noah-isme/gema-chat/internal/router"
	"github.com/noah-isme/gema-chat/internal/service"
	"github.com/noah-isme/gema-chat/internal/simulation"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if cfg.AppEnv == "production" {
		logger = logger.Level(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	generator := simulation.NewContentGenerator(cfg.Simulation.Seed)

	var (
		threads []models.Conversation
		history map[string][]models.Message
	)
	if cfg.SeedEnabled {
		threads, history = simulation.DemoData(generator, time.Now())
	}

	repo := repository.NewMemoryConversationRepository(threads, history)
	bus := realtime.NewBus(logger)
	inbound := service.NewInbound(repo, bus, logger)

	redisClient, natsConn := connectBrokers(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	var (
		deliverer  service.Deliverer
		lastSeen   service.LastMessageLookup
		connection handler.ConnectionState
		probes     []handler.HealthProbe
	)
	if redisClient != nil || natsConn != nil {
		chatRelay := relay.New(inbound, relay.Options{
			Redis:       redisClient,
			NATS:        natsConn,
			ChannelBase: cfg.RelayBase,
			Logger:      logger,
		})
		detach := chatRelay.Start(ctx, bus)
		defer detach()

		deliverer = chatRelay
		lastSeen = chatRelay
		connection = chatRelay
		probes = append(probes, handler.HealthProbe{Name: "relay", Check: chatRelay.Connected})
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	chatService := service.NewChatService(repo, bus, service.ChatServiceOptions{
		Latency:      cfg.Latency,
		Lifecycle:    cfg.Lifecycle,
		Retry:        cfg.Retry,
		Deliverer:    deliverer,
		LastMessages: lastSeen,
		Validator:    validate,
		Logger:       logger,
	})
	defer chatService.Close()

	if cfg.Simulation.Enabled {
		driver := simulation.NewDriver(repo, inbound, generator, cfg.Simulation, logger)
		driver.Start(ctx)
		defer driver.Stop()
	}

	issuer, err := auth.NewJWTIssuer(cfg.JWTSecret, cfg.LocalUserID, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("failed to create token issuer: %v", err)
	}
	if cfg.AppEnv == "development" {
		if token, err := issuer.GetAuthToken(ctx); err == nil {
			logger.Info().Str("token", token).Msg("development bearer token for the local user")
		}
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	chatHandler := handler.NewChatHandler(chatService, validate, middleware.RateLimit("chat-send", 30, time.Minute), logger)
	if connection != nil {
		chatHandler.WithConnectionState(connection)
	}

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		ChatHandler:   chatHandler,
		JWTMiddleware: middleware.JWTProtected(issuer),
		SubjectGuard:  middleware.RequireSubject(cfg.LocalUserID),
		HealthProbes:  probes,
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return app.Listen(cfg.HTTPAddress())
	})
	group.Go(func() error {
		<-groupCtx.Done()
		return waitForShutdown(app)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("server stopped with error")
		return
	}
	logger.Info().Msg("server stopped")
}

// connectBrokers dials the optional relay brokers. A broker that cannot be
// reached is logged and skipped; the chat core runs without it.
func connectBrokers(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*redis.Client, *nats.Conn) {
	var (
		redisClient *redis.Client
		natsConn    *nats.Conn
	)

	if cfg.RedisURL != "" {
		client, err := database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis relay disabled")
		} else {
			redisClient = client
		}
	}

	if cfg.NATSURL != "" {
		conn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Warn().Err(err).Msg("nats relay disabled")
		} else {
			natsConn = conn
		}
	}

	return redisClient, natsConn
}

func waitForShutdown(app *fiber.App) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		return err
	}
	return nil
}
