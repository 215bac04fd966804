package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/holographxyz/holograph-sub000/builder"
	"github.com/holographxyz/holograph-sub000/internal/config"
	"github.com/holographxyz/holograph-sub000/internal/jsonrpc"
	"github.com/holographxyz/holograph-sub000/internal/metrics"
	"github.com/holographxyz/holograph-sub000/internal/middleware"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the holo_* JSON-RPC API",
		Long: `Serve the library over JSON-RPC 2.0 on POST / and POST /rpc, with
/health, /ready and Prometheus /metrics.

Configured chains are dialled for transaction audits; redis and Postgres
back the audit cache and archive when configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewJSONHandler(cmd.OutOrStdout(), &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}))
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, logger)
		},
	}
}

func (a *app) serve(ctx context.Context, logger *slog.Logger) error {
	logger.Info("Starting holoctl server", slog.String("version", Version))

	factory, err := a.factory()
	if err != nil {
		return err
	}
	code, err := a.enforcerBytecode()
	if err != nil {
		return err
	}
	mode, err := a.mode("")
	if err != nil {
		return err
	}
	registry, err := a.registry()
	if err != nil {
		return err
	}

	clients, chainClosers := a.dialChains(ctx, logger)
	defer chainClosers.Close()

	auditor, stores, err := a.newAuditor(ctx, logger, clients...)
	if err != nil {
		return err
	}
	defer stores.Close()

	rpcServer := jsonrpc.NewServer(jsonrpc.ServerConfig{
		Builder:          builder.New(registry),
		Factory:          factory,
		EnforcerBytecode: code,
		SigningMode:      mode,
		Logger:           logger,
		Auditor:          auditor,
	})

	srv := &http.Server{
		Addr:         a.cfg.Server.Addr(),
		Handler:      newRouter(rpcServer, stores, a.cfg.Server, logger),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening",
			slog.String("addr", srv.Addr),
			slog.String("factory", factory.Hex()),
			slog.Int("chains", len(clients)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// readiness reports the first failing backend.
type readiness interface {
	Ready(ctx context.Context) (string, error)
}

func newRouter(rpcServer *jsonrpc.Server, ready readiness, cfg config.ServerConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	if cfg.WriteTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.WriteTimeout))
	}

	r.Get("/health", rpcServer.Handler().HealthHandler())
	r.Get("/ready", readyHandler(ready))
	r.Handle("/metrics", metrics.Handler())

	r.Post("/", rpcServer.ServeHTTP)
	r.Post("/rpc", rpcServer.ServeHTTP)
	return r
}

// readyHandler checks the cache and archive connections.
func readyHandler(ready readiness) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if component, err := ready.Ready(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"error","component":%q}`, component)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}
}
