// Command mailer serves Lumi's transactional email endpoints over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danieldreier/mcp-lumi/internal/config"
	"github.com/danieldreier/mcp-lumi/internal/mailer"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	envFile := flag.String("env-file", ".env", "Path to a .env file to load")
	flag.Parse()

	cfg, err := config.LoadMailer(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mailer: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mailer: failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Mailer stopped", zap.Error(err))
	}
}

func newTransport(ctx context.Context, cfg config.MailerConfig) (mailer.Transport, error) {
	switch cfg.Transport {
	case config.TransportSES:
		return mailer.NewSESTransport(ctx, cfg.AWSRegion, cfg.MailFrom, cfg.FromName)
	default:
		return mailer.NewSMTPTransport(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom, cfg.FromName), nil
	}
}

func run(cfg config.MailerConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport, err := newTransport(ctx, cfg)
	if err != nil {
		return err
	}

	if cfg.LogMode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(mailer.New(transport, cfg.AppBaseURL, logger), cfg.JWTSecret, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Mailer listening",
			zap.String("addr", srv.Addr),
			zap.String("transport", cfg.Transport),
			zap.Bool("auth", cfg.JWTSecret != ""))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("Shutting down mailer")
	return srv.Shutdown(shutdownCtx)
}
