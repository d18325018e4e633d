package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/atriumhq/atrium/internal/db"
	"github.com/atriumhq/atrium/internal/handlers"
	"github.com/atriumhq/atrium/internal/logger"
	"github.com/atriumhq/atrium/internal/mailer"
	"github.com/atriumhq/atrium/internal/repository/postgres"
	"github.com/atriumhq/atrium/internal/service/account"
	"github.com/atriumhq/atrium/internal/service/auth"
	"github.com/atriumhq/atrium/internal/service/group"
	"github.com/atriumhq/atrium/internal/service/verification"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Code delivery: real SMTP when configured, logged codes otherwise
	var sender mailer.Sender
	if c.SMTPAddr != "" {
		sender, err = mailer.NewSMTPSender(mailer.SMTPConfig{
			Addr:     c.SMTPAddr,
			Username: c.SMTPUsername,
			Password: c.SMTPPassword,
			From:     c.SMTPFrom,
		})
		if err != nil {
			return nil, fmt.Errorf("error while creating smtp sender. Err: %w", err)
		}
	} else {
		sender = &mailer.LogSender{Logger: logger}
	}

	// Initialize services
	hasher := auth.BcryptHasher{Cost: c.PasswordHashCost}

	refreshService, err := auth.NewRefreshTokenService(auth.RefreshTokenConfig{
		TokenLength: c.RefreshTokenLength,
		HashRounds:  c.RefreshTokenRounds,
		TTL:         time.Duration(c.RefreshTokenExpiry) * time.Second,
	}, storage.RefreshTokens())
	if err != nil {
		return nil, fmt.Errorf("error while creating refresh token service. Err: %w", err)
	}

	authService, err := auth.NewService(auth.Config{
		SecretKey: c.SecretKey,
		AccessTTL: time.Duration(c.JWTExpiry) * time.Second,
		Hasher:    hasher,
	}, storage.Accounts(), refreshService)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	verificationService, err := verification.NewService(storage)
	if err != nil {
		return nil, fmt.Errorf("error while creating verification service. Err: %w", err)
	}

	accountService, err := account.NewService(
		account.Config{WebAppURL: c.WebAppURL, Hasher: hasher},
		storage.Accounts(),
		verificationService,
		authService,
		sender,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("error while creating account service. Err: %w", err)
	}

	groupService, err := group.NewService(
		group.Config{WebAppURL: c.WebAppURL},
		storage,
		sender,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("error while creating group service. Err: %w", err)
	}

	mux := handlers.NewRouter(authService, accountService, groupService, logger)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			slog.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		slog.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	slog.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
