package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/TrueFaces/CNN-FineTuning/internal/auth"
	"github.com/TrueFaces/CNN-FineTuning/internal/config"
	"github.com/TrueFaces/CNN-FineTuning/internal/grpcclient"
	"github.com/TrueFaces/CNN-FineTuning/internal/handlers"
	"github.com/TrueFaces/CNN-FineTuning/internal/logging"
	"github.com/TrueFaces/CNN-FineTuning/internal/model"
	"github.com/TrueFaces/CNN-FineTuning/internal/repository"
	"github.com/TrueFaces/CNN-FineTuning/internal/storage"
	"github.com/TrueFaces/CNN-FineTuning/internal/usecase"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the face classification API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	root := &cobra.Command{
		Use:          "facecheck",
		Short:        "Face / non-face image classifier over HTTP",
		SilenceUsage: true,
		RunE:         serveCmd.RunE,
	}
	root.AddCommand(serveCmd, &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	})
	return root
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

func runMigrate() error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := initDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if err := repository.Migrate(ctx, db); err != nil {
		logger.Error("auto migrate failed", zap.Error(err))
		return err
	}
	logger.Info("database schema up to date")
	return nil
}

func runServe() error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db, err := initDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", zap.Error(err))
		return err
	}
	if err := repository.Migrate(ctx, db); err != nil {
		logger.Error("auto migrate failed", zap.Error(err))
		return err
	}

	cache, err := initCache(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Error("redis connection failed", zap.Error(err))
		return err
	}

	blobs, err := initStorage(ctx, cfg.Minio, logger)
	if err != nil {
		logger.Error("object storage unavailable", zap.Error(err))
		return err
	}

	classifier, closeClassifier, err := initClassifier(ctx, cfg.Model, logger)
	if err != nil {
		logger.Error("failed to load model", zap.Error(err))
		return err
	}
	defer closeClassifier()

	predictions := usecase.NewPredictionUseCase(classifier, cache, logger)
	issuer := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience, cfg.Auth.AccessTokenTTL)

	router := newRouter(logger, handlers.Services{
		Predictions: predictions,
		Users:       usecase.NewUserUseCase(repository.NewUserRepository(db, logger), logger),
		Images:      usecase.NewImageUseCase(repository.NewImageRepository(db, logger), predictions, blobs, logger),
		Tokens:      issuer,
		Logger:      logger,
	}, auth.JWTMiddleware(issuer))

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	logger.Info("face classifier API listening", zap.String("addr", cfg.HTTP.Addr))
	if err := serveHTTPServer(server, cfg.HTTP.ShutdownTimeout, logger); err != nil {
		logger.Error("server failed", zap.Error(err))
		return err
	}
	return nil
}

func newRouter(logger *zap.Logger, svc handlers.Services, authMiddleware gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(logging.GinLogger(logger), gin.Recovery())
	r.MaxMultipartMemory = handlers.MaxUploadSize
	handlers.RegisterRoutes(r, svc, authMiddleware)
	return r
}

func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access db handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// initCache returns a no-op cache when redis is not configured.
func initCache(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (usecase.Cache, error) {
	if !cfg.Enabled() {
		logger.Info("prediction cache disabled")
		return usecase.NoopCache{}, nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	return usecase.NewRedisCache(client), nil
}

func initStorage(ctx context.Context, cfg config.MinioConfig, logger *zap.Logger) (usecase.BlobStore, error) {
	if !cfg.Enabled() {
		logger.Info("object storage disabled; image content will not be kept")
		return nil, nil
	}

	store, err := storage.NewMinioStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	logger.Info("object storage ready", zap.String("bucket", store.Bucket()))
	return store, nil
}

// initClassifier loads the model once. A configured model server takes
// precedence over the local artifact.
func initClassifier(ctx context.Context, cfg config.ModelConfig, logger *zap.Logger) (model.Classifier, func(), error) {
	if cfg.Addr != "" {
		classifier, conn, err := grpcclient.DialClassifier(ctx, cfg.Addr, cfg.Method, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using remote model", zap.String("addr", cfg.Addr))
		return classifier, func() { conn.Close() }, nil
	}

	dense, err := model.LoadDense(cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("model loaded",
		zap.String("path", cfg.Path),
		zap.String("model_id", dense.ModelID()),
		zap.Ints("input_shape", dense.InputShape()),
	)
	return dense, func() {}, nil
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithListener(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, listener, nil)
}

// serveHTTPServerWithOptions serves until the server fails or a shutdown
// signal arrives, then drains in-flight requests for up to shutdownTimeout.
// A nil listener means ListenAndServe; a nil signalCh means SIGINT/SIGTERM.
func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	serveErr := make(chan error, 1)
	go func() {
		serve := server.ListenAndServe
		if listener != nil {
			serve = func() error { return server.Serve(listener) }
		}
		if err := serve(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	if signalCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		signalCh = ch
	}

	select {
	case err := <-serveErr:
		return err
	case sig, ok := <-signalCh:
		if !ok {
			return <-serveErr
		}
		logger.Info("shutting down", zap.String("signal", sig.String()), zap.Duration("timeout", shutdownTimeout))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return <-serveErr
}
