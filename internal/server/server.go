package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/clinicbilling/internal/config"
	"github.com/smallbiznis/clinicbilling/internal/observability"
	obslogger "github.com/smallbiznis/clinicbilling/internal/observability/logger"
	obstracing "github.com/smallbiznis/clinicbilling/internal/observability/tracing"
	"github.com/smallbiznis/clinicbilling/internal/resource"
	"github.com/smallbiznis/clinicbilling/internal/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("ops.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log.Named("http"), obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(log, obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.OpsHTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("ops server stopped", zap.String("addr", cfg.OpsHTTPAddr), zap.Error(err))
				}
			}()
			log.Info("ops server listening", zap.String("addr", cfg.OpsHTTPAddr))
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
	engine    *gin.Engine
	db        *gorm.DB
	log       *zap.Logger
	scheduler *scheduler.Scheduler
	resources *resource.Registry
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	DB        *gorm.DB
	Log       *zap.Logger
	Resources *resource.Registry
	Scheduler *scheduler.Scheduler `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:    p.Gin,
		db:        p.DB,
		log:       p.Log.Named("ops.server"),
		scheduler: p.Scheduler,
		resources: p.Resources,
	}

	svc.engine.GET("/healthz", svc.Health)
	svc.registerInternalRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerInternalRoutes() {
	internal := s.engine.Group("/internal", TenantContext())

	internal.POST("/jobs/:job", s.RunJob)
	internal.GET("/resources/:kind/:id", s.GetResource)
}

func (s *Server) Health(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": "down"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "up"})
}
