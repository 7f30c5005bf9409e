package main

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"chat-sync/internal/api"
	"chat-sync/internal/archive"
	"chat-sync/internal/chatsync"
	"chat-sync/internal/config"
	"chat-sync/internal/models"
	"chat-sync/internal/session"
	"chat-sync/internal/transport"
	"chat-sync/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	sess, err := loadSession(cfg.Session)
	if err != nil {
		logger.Fatal("Invalid session: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := api.NewClient(cfg.Service.HTTPURL, cfg.Service.HTTPTimeout, sess)
	if err != nil {
		logger.Fatal("Failed to create API client: %v", err)
	}

	loop := chatsync.NewLoop()
	push := transport.New(transport.Config{
		URL:              cfg.Service.WSURL,
		HandshakeTimeout: cfg.Transport.HandshakeTimeout,
		PingPeriod:       cfg.Transport.PingPeriod,
		PongWait:         cfg.Transport.PongWait,
		WriteWait:        cfg.Transport.WriteWait,
		ReconnectInitial: cfg.Transport.ReconnectInitial,
		ReconnectMax:     cfg.Transport.ReconnectMax,
		SendRate:         cfg.Transport.SendRate,
		SendBurst:        cfg.Transport.SendBurst,
	}, loop)

	opts := []chatsync.Option{chatsync.WithLoop(loop)}

	// Optional transcript archive
	if cfg.Archive.DatabaseURL != "" {
		transcript, closePool, err := archive.Open(ctx, cfg.Archive.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to open transcript archive: %v", err)
		}
		defer closePool()
		defer transcript.Close()
		transcript.Start(ctx)
		opts = append(opts, chatsync.WithMessageObserver(func(msg models.Message) { transcript.Record(msg) }))
	}

	engine := chatsync.New(chatsync.Config{
		PublicRoom:         cfg.Sync.PublicRoom,
		ReconcileWait:      cfg.Sync.ReconcileWait,
		DedupTTL:           cfg.Sync.DedupTTL,
		DedupSweepInterval: cfg.Sync.DedupSweepInterval,
	}, sess, push, client, opts...)

	logger.Info("Connecting to %s as %s", cfg.Service.WSURL, sess.Username)

	runErr := make(chan error, 1)
	go func() { runErr <- engine.Run(ctx) }()

	console := newConsole(engine, os.Stdout)
	go console.watch(ctx)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if err := console.execute(ctx, scanner.Text()); err != nil {
				if errors.Is(err, errQuit) {
					stop()
					return
				}
				console.printf("! %v", err)
			}
		}
		stop()
	}()

	if err := <-runErr; err != nil {
		var authErr *transport.AuthenticationError
		if errors.As(err, &authErr) {
			logger.Fatal("Session rejected by service (status %d), sign in again", authErr.StatusCode)
		}
		logger.Fatal("Client error: %v", err)
	}
	logger.Info("Client shutting down...")
}

func loadSession(cfg config.SessionConfig) (session.Session, error) {
	if cfg.Token != "" {
		return session.FromToken(cfg.Token)
	}
	return session.New(cfg.UserID, cfg.Username, cfg.Secret)
}
