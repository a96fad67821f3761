package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	authoritydomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/authority/domain"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/config"
	obslogger "github.com/DikshantJangra/hoperxpharma-sub011/internal/observability/logger"
	obstracing "github.com/DikshantJangra/hoperxpharma-sub011/internal/observability/tracing"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/ratelimit"
	"github.com/DikshantJangra/hoperxpharma-sub011/pkg/telemetry"
)

var Module = fx.Module("http.server",
	ratelimit.Module,
	fx.Provide(provideMetrics),
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)

func provideMetrics() *telemetry.Metrics {
	return telemetry.NewMetrics(nil)
}

func NewEngine(cfg config.Config, log *zap.Logger, metrics *telemetry.Metrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log))
	r.Use(obstracing.GinMiddleware())
	r.Use(requestMetrics(metrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func requestMetrics(metrics *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		metrics.ObserveAPIRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	addr := cfg.Authority.Addr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("authority server stopped", zap.Error(err))
				}
			}()
			log.Info("authority listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine  *gin.Engine
	cfg     config.Config
	svc     authoritydomain.Service
	limiter *ratelimit.OrderLimiter
	metrics *telemetry.Metrics
	log     *zap.Logger
}

type ServerParams struct {
	fx.In

	Engine  *gin.Engine
	Cfg     config.Config
	Service authoritydomain.Service
	Limiter *ratelimit.OrderLimiter `optional:"true"`
	Metrics *telemetry.Metrics      `optional:"true"`
	Log     *zap.Logger
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:  p.Engine,
		cfg:     p.Cfg,
		svc:     p.Service,
		limiter: p.Limiter,
		metrics: p.Metrics,
		log:     p.Log.Named("authority.http"),
	}
	s.registerAPIRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/")
	api.Use(s.StoreAuth())

	orders := api.Group("/orders")
	orders.POST("", s.CreateOrder)
	orders.GET("/suggestions", s.ListSuggestions)
	orders.GET("/:id", s.GetOrder)
	orders.PUT("/:id", s.UpdateOrder)
	orders.PUT("/:id/autosave", s.AutosaveRateLimit(), s.AutosaveOrder)
	orders.PUT("/:id/send", s.TransitionLock(), s.SendOrder)
	orders.POST("/:id/request-approval", s.TransitionLock(), s.RequestApproval)
	orders.POST("/:id/approve", s.TransitionLock(), s.ApproveOrder)

	templates := api.Group("/templates")
	templates.POST("", s.CreateTemplate)
	templates.POST("/:id/load", s.LoadTemplate)
}
