package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"ridematch/internal/auth"
	"ridematch/internal/avatar"
	"ridematch/internal/config"
	"ridematch/internal/database"
	"ridematch/internal/handlers"
	"ridematch/internal/presence"
	"ridematch/internal/services"
	"ridematch/internal/websocket"
	"ridematch/pkg/logger"

	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	// Initialize database
	db, err := database.NewPostgresDB(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	}

	// Shared presence is optional; without it the status rows are authoritative.
	var (
		mirror websocket.PresenceMirror
		lookup services.PresenceLookup
		pinger handlers.Pinger
	)
	if cfg.Redis.URL != "" {
		rdb, err := presence.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		store := presence.NewRedisStore(rdb, cfg.Redis.PresenceTTL)
		mirror, lookup, pinger = store, store, store
		logger.Info().Msg("redis presence enabled")
	}

	// Initialize the chat gateway
	statusSync := websocket.NewStatusSync(db, mirror, cfg.Server.InstanceID, cfg.Gateway.StatusQueueSize)
	registry := websocket.NewRegistry(statusSync, cfg.Gateway.SendTimeout)
	statusSync.KeepAlive(registry, cfg.Redis.PresenceRefresh())
	gateway, err := websocket.NewGateway(registry, db, websocket.GatewayConfig{
		HistoryLimit:      cfg.Gateway.HistoryLimit,
		MessagesPerSecond: cfg.Gateway.MessagesPerSecond,
		MessageBurst:      cfg.Gateway.MessageBurst,
	})
	if err != nil {
		return err
	}

	// Initialize services
	authService := auth.NewService(db, cfg.JWT)
	userService := services.NewUserService(db, db, registry, lookup)
	hobbyService := services.NewHobbyService(db)
	friendService := services.NewFriendService(db, db, db)
	roomService := services.NewRoomService(db, registry)
	gpsService := services.NewGPSService(db, db)

	avatars, err := avatar.NewDiskStore(cfg.Avatar.Dir)
	if err != nil {
		return err
	}
	avatarService := services.NewAvatarService(db, avatars, cfg.Avatar.URLPrefix, cfg.Avatar.MaxBytes)

	router := handlers.NewRouter(handlers.Handlers{
		Auth:        handlers.NewAuthHandlers(authService),
		Users:       handlers.NewUserHandlers(userService, hobbyService),
		Friends:     handlers.NewFriendHandlers(friendService),
		Rooms:       handlers.NewRoomHandlers(roomService),
		GPS:         handlers.NewGPSHandlers(gpsService),
		Avatars:     handlers.NewAvatarHandlers(avatarService, avatars),
		WebSocket:   handlers.NewWebSocketHandlers(ctx, gateway, cfg.Gateway.MaxMessageBytes),
		AuthService: authService,
		Registry:    registry,
		DB:          db,
		Presence:    pinger,

		LoginRateLimit: cfg.Server.LoginRateLimit,
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	// The status worker outlives the listener so offline writes from the
	// final disconnects are applied.
	syncCtx, stopSync := context.WithCancel(context.Background())
	defer stopSync()
	g.Go(func() error {
		return statusSync.Run(syncCtx)
	})

	g.Go(func() error {
		logger.Info().
			Str("addr", cfg.Server.Port).
			Str("instance", cfg.Server.InstanceID).
			Msg("server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)

		// Upgraded connections are not tracked by Shutdown.
		n := registry.DisconnectAll()
		logger.Info().Int("sessions", n).Msg("websocket sessions closed")
		stopSync()
		return err
	})

	return g.Wait()
}
