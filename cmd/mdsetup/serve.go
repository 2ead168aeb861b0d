package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CZERTAINLY/mdsetup/internal/httpapi"
	"github.com/CZERTAINLY/mdsetup/internal/log"
	"github.com/CZERTAINLY/mdsetup/internal/service"
	"github.com/spf13/cobra"
)

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve starts the HTTP API compiling scripts and running simulations",
	RunE:  doServe,
}

var (
	flagTokenSubject string
	flagTokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "token issues a bearer token for the HTTP API signed with server.jwt_secret",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if config.Server.JWTSecret == "" {
			return errors.New("server.jwt_secret is not configured")
		}
		token, err := httpapi.GenerateToken(config.Server.JWTSecret, flagTokenSubject, flagTokenTTL)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write([]byte(token + "\n"))
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address, overrides server.addr")
	tokenCmd.Flags().StringVar(&flagTokenSubject, "subject", "", "session the token grants access to")
	tokenCmd.Flags().DurationVar(&flagTokenTTL, "ttl", 24*time.Hour, "token lifetime, zero means no expiry")
	_ = tokenCmd.MarkFlagRequired("subject")
}

func doServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.ContextAttrs(ctx, slog.Group("mdsetup",
		slog.String("cmd", "serve"),
		slog.Int("pid", os.Getpid()),
	))

	svc, err := service.NewService(ctx, config)
	if err != nil {
		return err
	}
	defer func() {
		_ = svc.Close()
	}()

	addr := config.Server.Addr
	if flagAddr != "" {
		addr = flagAddr
	}
	srv := httpapi.New(config.Server, svc, httpapi.WithAccessLog(os.Stderr))
	if err := svc.ScheduleSweep(ctx, srv.Sessions()); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.InfoContext(ctx, "shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.Worker.Grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.WarnContext(ctx, "server shutdown", "error", err)
	}
	return <-errCh
}
