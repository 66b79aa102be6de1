package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/snapclassify/internal/camera"
	"github.com/example/snapclassify/internal/camera/webcam"
	"github.com/example/snapclassify/internal/classifier"
	"github.com/example/snapclassify/internal/config"
	"github.com/example/snapclassify/internal/handlers"
	"github.com/example/snapclassify/internal/history"
	"github.com/example/snapclassify/internal/logging"
	"github.com/example/snapclassify/internal/notify"
	"github.com/example/snapclassify/internal/repository"
	"github.com/example/snapclassify/internal/result"
	"github.com/example/snapclassify/internal/settings"
	"github.com/example/snapclassify/internal/source"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var db *gorm.DB
	if cfg.NeedsDatabase() {
		db = initDatabase(ctx, cfg.DatabaseDSN, logger)
	}

	store := settings.NewStore(initSettingsBackend(ctx, cfg, db, logger), cfg.DefaultEndpoint, logger)
	endpoint := store.Load(ctx)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := notify.NewHub(logger)
	go hub.Run(hubCtx)

	model := result.NewModel()
	session := camera.NewSession(webcam.New(cfg.CameraDevice, cfg.CameraJPEGQuality, logger), logger)
	live := newLiveState(hub)
	model.OnChange(live.setResult)
	session.OnStateChange(live.setCamera)

	client := classifier.NewClient(classifier.NewHTTPClient(cfg.ClassifyTimeout), model, logger)
	notifier := notify.Multi{notify.NewLog(logger), hub}
	pipeline := source.New(session, client, store, model, notifier, logger)
	defer pipeline.Close()

	var historyRoutes handlers.History
	if cfg.HistoryEnabled {
		repo := repository.NewClassificationRepository(db, logger)
		if err := repo.AutoMigrate(ctx); err != nil {
			logger.Fatal("auto migrate failed", zap.Error(err))
		}
		recorder := history.NewRecorder(repo, logger)
		pipeline.WithRecorder(recorder)
		historyRoutes = recorder
	}

	r := gin.Default()
	r.MaxMultipartMemory = handlers.MaxUploadSize

	handlers.RegisterRoutes(r, handlers.Dependencies{
		Pipeline:  pipeline,
		Camera:    session,
		Results:   model,
		Config:    store,
		History:   historyRoutes,
		WebSocket: hub.ServeWS,
		Logger:    logger,
	})

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	logger.Info("snapclassify listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("endpoint", endpoint),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Bool("history", cfg.HistoryEnabled),
	)
	if err := serveHTTPServer(server, 15*time.Second, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initSettingsBackend(ctx context.Context, cfg *config.Config, db *gorm.DB, zapLogger *zap.Logger) settings.PersistentStore {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		defer redisCancel()
		return settings.NewRedisStore(initRedis(redisCtx, cfg.RedisAddr, zapLogger), zapLogger)
	case config.BackendPostgres:
		repo := repository.NewSettingRepository(db, zapLogger)
		if err := repo.AutoMigrate(ctx); err != nil {
			zapLogger.Fatal("auto migrate failed", zap.Error(err))
		}
		return settings.NewSQLStore(repo)
	default:
		store, err := settings.NewFileStore(cfg.StorePath)
		if err != nil {
			zapLogger.Fatal("failed to open settings file", zap.Error(err), zap.String("path", cfg.StorePath))
		}
		return store
	}
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
