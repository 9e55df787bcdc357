// Package app wires the database, caches, and HTTP surface into a
// runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/modelgate/modelgate/internal/cache"
	"github.com/modelgate/modelgate/internal/chat"
	"github.com/modelgate/modelgate/internal/config"
	"github.com/modelgate/modelgate/internal/db"
	"github.com/modelgate/modelgate/internal/http/api/front"
	"github.com/modelgate/modelgate/internal/pricing"
	"github.com/modelgate/modelgate/internal/providers"
	"github.com/modelgate/modelgate/internal/usage"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const shutdownTimeout = 10 * time.Second

// Options holds command-line inputs for the server.
type Options struct {
	ConfigPath string
}

// SetupLogging configures logrus output, optionally teeing into a
// rotating file under cfg.Dir.
func SetupLogging(cfg config.LoggingConfig) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if cfg.Dir == "" {
		return
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, "modelgate.log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
}

// Migrate opens the database and runs migrations plus reference seeds.
func Migrate(ctx context.Context, opts Options) error {
	cfg, err := config.Load(config.ResolveConfigPath(opts.ConfigPath))
	if err != nil {
		return err
	}
	conn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	return db.SeedReferenceData(conn)
}

// RunServer boots the API server and blocks until ctx is cancelled.
func RunServer(ctx context.Context, opts Options) error {
	configPath := config.ResolveConfigPath(opts.ConfigPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	SetupLogging(cfg.Logging)

	conn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errSeed := db.SeedReferenceData(conn); errSeed != nil {
		return errSeed
	}

	responses, errCache := cache.New(cfg.Redis.URL, cfg.Cache.TTL)
	if errCache != nil {
		log.WithError(errCache).Warn("app: response cache unavailable, continuing without it")
		responses = nil
	}
	if responses != nil {
		defer func() { _ = responses.Close() }()
	}

	clientCache := providers.NewClientCache()
	resolver := providers.NewResolver(conn, clientCache)
	calculator := pricing.NewCalculator(conn)
	recorder := usage.NewRecorder(conn)
	rollups := usage.NewRollups(conn)
	chatService := chat.NewService(conn, resolver, calculator, recorder, responses)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	front.RegisterFrontRoutes(engine, front.Deps{
		DB:          conn,
		Config:      cfg,
		ClientCache: clientCache,
		Chat:        chatService,
		Rollups:     rollups,
		Responses:   responses,
		Calculator:  calculator,
	})

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s (config=%s)", cfg.Listen, configPath)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return fmt.Errorf("app: shutdown: %w", errShutdown)
		}
		return nil
	case errServe := <-errCh:
		if errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", errServe)
		}
		return nil
	}
}

// requestLogger emits one structured line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start).String(),
		}).Info("request")
	}
}
