package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/marketplace/config"
	"github.com/d60-Lab/marketplace/internal/api/handler"
	"github.com/d60-Lab/marketplace/internal/api/router"
	"github.com/d60-Lab/marketplace/internal/cache"
	"github.com/d60-Lab/marketplace/internal/dto"
	"github.com/d60-Lab/marketplace/internal/media"
	"github.com/d60-Lab/marketplace/internal/push"
	"github.com/d60-Lab/marketplace/internal/realtime"
	"github.com/d60-Lab/marketplace/internal/repository"
	"github.com/d60-Lab/marketplace/internal/service"
	"github.com/d60-Lab/marketplace/pkg/database"
	"github.com/d60-Lab/marketplace/pkg/jwtauth"
	"github.com/d60-Lab/marketplace/pkg/logger"
	"github.com/d60-Lab/marketplace/pkg/tracing"
)

// @title Marketplace API
// @version 1.0
// @description 二手交易平台：商品、分类、私信与实时推送
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.Sentry.Environment}); err != nil {
			logger.Warn("sentry init failed", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal("init tracing", zap.Error(err))
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Fatal("init database", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()

	store, err := media.NewLocalStore(cfg.Media.Root, cfg.Media.BaseURL)
	if err != nil {
		logger.Fatal("init media store", zap.Error(err))
	}
	processor := media.NewProcessor(store, cfg.Media.MaxUploadSize)
	mapper := dto.Mapper{URL: store.URL}

	// repositories
	users := repository.NewUserRepository(db)
	listings := repository.NewListingRepository(db)
	messages := repository.NewMessageRepository(db)
	outbox := repository.NewPushRepository(db)
	categories := cache.NewCategoryRepository(repository.NewCategoryRepository(db), rdb, cfg.Redis.CacheTTL)

	var layer realtime.ChannelLayer = realtime.NewLocalLayer()
	if cfg.Realtime.Layer == "redis" {
		layer = realtime.NewRedisLayer(rdb, cfg.Realtime.Channel)
	}
	hub := realtime.NewHub(layer)
	stopHub, err := hub.Start(ctx)
	if err != nil {
		logger.Fatal("start realtime hub", zap.Error(err))
	}

	stopPush := func(context.Context) error { return nil }
	if cfg.Push.Enabled {
		w := push.NewWorker(outbox, users, push.NewExpoClient(cfg.Push.Host, cfg.Push.AccessToken),
			cfg.Push.Workers, cfg.Push.ClaimLimit, cfg.Push.PollInterval, cfg.Push.RatePerSec)
		stopPush = w.Start()
	}

	issuer := jwtauth.NewIssuer(cfg.JWT.Secret, cfg.JWT.TTL)
	h := handler.NewHandler(handler.Deps{
		Accounts:   service.NewAccountService(users, issuer, processor),
		Listings:   service.NewListingService(listings, categories, processor, cfg.Page.ListingSize),
		Categories: service.NewCategoryService(categories),
		Messages: service.NewMessageService(messages, users, listings, processor, service.MessageServiceOptions{
			Outbox:      outbox,
			Broadcaster: hub,
			Mapper:      mapper,
			PushEnabled: cfg.Push.Enabled,
			PageSize:    cfg.Page.MessageSize,
		}),
		Issuer: issuer,
		Hub:    hub,
		Mapper: mapper,
	})
	r := router.Setup(router.Options{Config: cfg, Handler: h, Issuer: issuer, Users: users})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	sctx, scancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := stopPush(sctx); err != nil {
		logger.Warn("push worker stop", zap.Error(err))
	}
	if err := stopHub(sctx); err != nil {
		logger.Warn("realtime hub stop", zap.Error(err))
	}
	if err := shutdownTracing(sctx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
	cancel()
	if err := database.Close(db); err != nil {
		logger.Warn("close database", zap.Error(err))
	}
}
