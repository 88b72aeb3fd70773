package router

import (
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/marketplace/config"
	_ "github.com/d60-Lab/marketplace/docs"
	"github.com/d60-Lab/marketplace/internal/api/handler"
	"github.com/d60-Lab/marketplace/internal/middleware"
	"github.com/d60-Lab/marketplace/internal/repository"
	"github.com/d60-Lab/marketplace/pkg/jwtauth"
)

// Options 路由依赖
type Options struct {
	Config  *config.Config
	Handler *handler.Handler
	Issuer  *jwtauth.Issuer
	Users   repository.UserRepository
}

// Setup 注册中间件与全部路由
func Setup(opts Options) *gin.Engine {
	cfg := opts.Config
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(middleware.Recovery())
	if cfg.Sentry.DSN != "" {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	r.Use(middleware.RequestID(), middleware.Logger())
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: false,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws", "/api/v1/ws"})))
	if cfg.RateLimit.Enabled {
		r.Use(middleware.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst).Middleware())
	}

	h := opts.Handler
	r.GET("/healthz", h.Health)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.Group(cfg.Media.BaseURL, middleware.MediaHeaders()).Static("/", cfg.Media.Root)
	r.GET("/ws", h.ServeWS)

	v1 := r.Group("/api/v1")
	v1.GET("/ws", h.ServeWS)

	auth := middleware.Auth(opts.Issuer, opts.Users)

	accounts := v1.Group("/auth")
	{
		accounts.POST("/register", h.Register)
		accounts.POST("/login", h.Login)
		accounts.GET("/me", auth, h.Me)
		accounts.PATCH("/me", auth, h.UpdateMe)
		accounts.PUT("/me/avatar", auth, h.SetAvatar)
	}

	v1.GET("/push-token", auth, h.GetPushToken)
	v1.PUT("/push-token", auth, h.SetPushToken)

	listings := v1.Group("/listings", auth)
	{
		listings.GET("", h.ListListings)
		listings.POST("", h.CreateListing)
		listings.GET("/mine", h.MyListings)
		listings.GET("/:id", h.GetListing)
		listings.PUT("/:id", h.PutListing)
		listings.DELETE("/:id", h.DeleteListing)
		listings.GET("/:id/images", h.ListImages)
		listings.POST("/:id/images", h.AddImage)
		listings.DELETE("/:id/images/:image_id", h.DeleteImage)
	}

	categories := v1.Group("/categories", auth)
	{
		categories.GET("", h.ListCategories)
		categories.POST("", middleware.StaffOnly(), h.CreateCategory)
		categories.DELETE("/:id", middleware.StaffOnly(), h.DeleteCategory)
	}

	messages := v1.Group("/messages", auth)
	{
		messages.GET("", h.ListMessages)
		messages.POST("", h.SendMessage)
		messages.GET("/chats", h.ChatList)
		messages.GET("/thread/:user_id", h.Thread)
		messages.POST("/mark-read", h.MarkRead)
		messages.POST("/delete-for-me", h.DeleteForMe)
		messages.POST("/delete-for-all", h.DeleteForAll)
		messages.GET("/:id", h.GetMessage)
		messages.PATCH("/:id", h.UpdateMessage)
	}

	return r
}
