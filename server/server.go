package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/customeros/mailwarden/api"
	"github.com/customeros/mailwarden/api/handlers"
	"github.com/customeros/mailwarden/config"
	"github.com/customeros/mailwarden/internal/cache"
	"github.com/customeros/mailwarden/internal/cron"
	"github.com/customeros/mailwarden/internal/logger"
	"github.com/customeros/mailwarden/internal/repository"
	"github.com/customeros/mailwarden/internal/tracing"
	"github.com/customeros/mailwarden/services"
)

type Server struct {
	config       *config.Config
	log          logger.Logger
	httpServer   *http.Server
	router       *gin.Engine
	services     *services.Services
	repositories *repository.Repositories
	redis        *redis.Client
	cron         *cron.CronManager
	tracerCloser io.Closer
}

func NewServer(cfg *config.Config, mailwardenDB *gorm.DB) (*Server, error) {
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		return nil, fmt.Errorf("could not initialize jaeger tracer: %w", err)
	}
	opentracing.SetGlobalTracer(tracer)

	rdb, err := cache.NewRedisClient(context.Background(), cfg.RedisConfig.URL)
	if err != nil {
		return nil, err
	}

	repos := repository.InitRepositories(mailwardenDB)

	svcs, err := services.InitServices(cfg, appLogger, repos, rdb)
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	return &Server{
		config:       cfg,
		log:          appLogger,
		router:       router,
		services:     svcs,
		repositories: repos,
		redis:        rdb,
		cron:         cron.NewCronManager(cfg, appLogger.Named("cron"), kubernetesClient(appLogger), svcs.MonitorService, svcs.TrainingEngine),
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:              ":" + cfg.AppConfig.APIPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// kubernetesClient returns nil outside a cluster, which puts the cron manager in local mode.
func kubernetesClient(log logger.Logger) kubernetes.Interface {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		log.Infof("Not running in kubernetes: %v", err)
		return nil
	}
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		log.Warnf("Could not create kubernetes client: %v", err)
		return nil
	}
	return client
}

func (s *Server) Initialize() error {
	apiHandlers := handlers.InitHandlers(
		s.services.TrainingEngine,
		s.services.MonitorService,
		s.services.BouncePoller,
		s.services.SuppressionService,
	)
	api.RegisterRoutes(s.router, apiHandlers, s.config.AppConfig.APIKey)

	if err := s.services.Start(s.log); err != nil {
		return err
	}
	return nil
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		span := opentracing.GlobalTracer().StartSpan(
			fmt.Sprintf("panic.%s", name),
		)
		defer span.Finish()

		ext.Error.Set(span, true)
		span.LogKV(
			"event", "panic",
			"process", name,
			"error", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)

		s.log.Errorf("Panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

func (s *Server) Run() error {
	if err := s.Initialize(); err != nil {
		return err
	}

	podName := os.Getenv("POD_NAME")
	if podName == "" {
		podName = "local"
	}
	if err := s.cron.Start(podName, os.Getenv("POD_NAMESPACE")); err != nil {
		return err
	}

	go s.wrapGoroutine("http_server", func() {
		s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("HTTP server error: %v", err)
		}
	})
	s.log.Info("Mailwarden is now running. Press Ctrl+C to exit.")

	return s.waitForShutdown()
}

func (s *Server) waitForShutdown() error {
	defer s.recoverWithJaeger("shutdown")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	s.log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("HTTP server shutdown error: %v", err)
	}

	// waits for a running monitoring pass to finish
	cronDone := make(chan struct{})
	go s.wrapGoroutine("cron_shutdown", func() {
		defer close(cronDone)
		s.cron.Stop()
	})
	select {
	case <-cronDone:
		s.log.Info("Cron jobs stopped")
	case <-time.After(10 * time.Second):
		s.log.Warn("Cron stop timed out, forcing exit")
	}

	if err := s.services.Close(); err != nil {
		s.log.Errorf("Events shutdown error: %v", err)
	}
	if err := s.redis.Close(); err != nil {
		s.log.Errorf("Redis shutdown error: %v", err)
	}
	if s.tracerCloser != nil {
		s.tracerCloser.Close()
	}
	_ = s.log.Sync()
	return nil
}
