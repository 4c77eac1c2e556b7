package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AnshRaj112/sparklink-backend/internal/config"
	"github.com/AnshRaj112/sparklink-backend/internal/database"
	"github.com/AnshRaj112/sparklink-backend/internal/handlers"
	"github.com/AnshRaj112/sparklink-backend/internal/logger"
	"github.com/AnshRaj112/sparklink-backend/internal/middleware"
	"github.com/AnshRaj112/sparklink-backend/internal/repository"
	"github.com/AnshRaj112/sparklink-backend/internal/routes"
)

const shutdownTimeout = 15 * time.Second

var rootCmd = &cobra.Command{
	Use:   "sparklink",
	Short: "SparkLink social network backend",
	Long: `SparkLink API server and background worker.

Examples:
  sparklink            # same as "sparklink serve"
  sparklink serve
  sparklink worker
  sparklink indexes`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (and the job worker unless WORKER_ENABLED=false)",
	RunE:  runServe,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run only the background job worker",
	RunE:  runWorker,
}

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "Create MongoDB indexes and PostgreSQL tables, then exit",
	RunE:  runIndexes,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(indexesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads .env and the configuration and builds the logger.
func setup() (*config.Config, *zap.SugaredLogger, error) {
	envErr := godotenv.Load()
	cfg := config.Load()

	zl, err := logger.Init(logger.Config{Level: cfg.LogLevel, Dev: cfg.LogDev})
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	log := zl.Sugar()
	if envErr != nil {
		log.Debug("no .env file found")
	}
	return cfg, log, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Errorw("startup failed", "error", err)
		return err
	}
	defer a.close()

	if err := repository.EnsureIndexes(ctx, a.db); err != nil {
		log.Warnw("failed to ensure MongoDB indexes", "error", err)
	}

	auth, err := middleware.NewAuthenticator(cfg.ClerkJWTKey, cfg.AuthJWTSecret)
	if err != nil {
		return fmt.Errorf("init authenticator: %w", err)
	}
	if !auth.Configured() {
		log.Warn("no CLERK_JWT_KEY or AUTH_JWT_SECRET set, every authenticated route will answer 401")
	}
	verifier, err := handlers.NewSignatureVerifier(cfg.ClerkWebhookSecret)
	if err != nil {
		return fmt.Errorf("init webhook verifier: %w", err)
	}

	router := routes.NewRouter(routes.Options{
		Production:        cfg.IsProduction(),
		AllowedHost:       cfg.AllowedHost,
		AllowedOrigins:    cfg.AllowedOrigins,
		TrustProxy:        cfg.TrustProxy,
		StreamRequireAuth: cfg.StreamRequireAuth,
		Redis:             a.redis,
	}, routes.Handlers{
		Auth:    auth,
		User:    handlers.NewUserHandler(a.identity, a.userService, a.postService, a.relay, log.Named("user")),
		Post:    handlers.NewPostHandler(a.postService, a.relay, log.Named("post")),
		Story:   handlers.NewStoryHandler(a.storyService, a.relay, log.Named("story")),
		Message: handlers.NewMessageHandler(a.messageService, a.relay, log.Named("message")),
		Stream:  handlers.NewStreamHandler(a.registry, log.Named("stream")),
		Webhook: handlers.NewWebhookHandler(verifier, a.emitter, log.Named("webhook")),
	}, log.Named("http"))

	workerDone := make(chan struct{})
	if cfg.WorkerEnabled {
		go func() {
			defer close(workerDone)
			if err := a.newWorker().Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Errorw("worker stopped", "error", err)
			}
		}()
	} else {
		close(workerDone)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infow("server starting", "port", cfg.Port, "env", cfg.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("server failed", "error", err)
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	// Open streams never finish on their own.
	a.registry.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("graceful shutdown failed", "error", err)
	}
	stop()
	<-workerDone
	return nil
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.PostgresURI == "" {
		return errors.New("POSTGRES_URI is required to run a standalone worker")
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Errorw("startup failed", "error", err)
		return err
	}
	defer a.close()

	log.Info("worker starting")
	if err := a.newWorker().Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runIndexes(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	client, db, err := database.ConnectMongo(ctx, cfg.MongoURI, log)
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	defer database.DisconnectMongo(client)

	if err := repository.EnsureIndexes(ctx, db); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	log.Info("MongoDB indexes ensured")

	if cfg.PostgresURI != "" {
		pg, err := database.ConnectPostgres(ctx, cfg.PostgresURI, log)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		pg.Close()
	}
	return nil
}
