package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qabilityp/namechecker/internal/api"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initEnv(ctx, cfg, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		env.Countries.Start()
		defer env.Countries.Stop()

		srv := &http.Server{
			Handler:           newHandler(env, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 5 * time.Second,
		}
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
		if err != nil {
			return eris.Wrap(err, "server listen")
		}

		zap.L().Info("starting server",
			zap.Int("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Driver),
		)
		return runServer(ctx, srv, ln, shutdownTimeout)
	},
}

const shutdownTimeout = 10 * time.Second

// runServer serves on ln until ctx is done, then waits for in-flight
// requests to drain (bounded by drain) before returning.
func runServer(ctx context.Context, srv *http.Server, ln net.Listener, drain time.Duration) error {
	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drain)
		defer cancel()
		done <- srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	if err := <-done; err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return nil
}

func newHandler(env *appEnv, corsOrigins []string) http.Handler {
	return api.NewRouter(api.Deps{
		Resolver:    env.Resolver,
		Ranker:      env.Ranker,
		Accounts:    env.Accounts,
		Store:       env.Store,
		Circuits:    env.Breakers,
		Gatherer:    env.Registry,
		CORSOrigins: corsOrigins,
	})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
