package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/akave-ai/logreader/internal/config"
	"github.com/akave-ai/logreader/internal/handler"
	"github.com/akave-ai/logreader/internal/infrastructure/sinks"
	"github.com/akave-ai/logreader/internal/registry"
)

// Deps are the job components the HTTP surface reads from.
type Deps struct {
	Registry *registry.Registry
	Replayer handler.Replayer
	Health   handler.HealthChecker
	Sinks    *sinks.Registry
	Logger   zerolog.Logger
	Version  string
}

// Server holds the Echo app.
type Server struct {
	Echo   *echo.Echo
	Config *config.Config
	log    zerolog.Logger
}

// New builds the Echo server and registers routes.
func New(cfg *config.Config, deps Deps) *Server {
	log := deps.Logger.With().Str("component", "http").Logger()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	e.Server.IdleTimeout = cfg.Server.IdleTimeout
	e.Use(middleware.Recover(), requestLogger(log))

	healthHandler := &handler.HealthHandler{
		Name:    cfg.Observability.ServiceName,
		Version: deps.Version,
		Env:     cfg.Primary.Env,
		Checker: deps.Health,
	}
	managementHandler := &handler.ManagementHandler{
		Registry: deps.Registry,
		Replayer: deps.Replayer,
		Logger:   log,
	}
	sinkHandler := &handler.SinkHandler{
		Registry: deps.Sinks,
		Active:   cfg.Sink.Kinds,
	}

	api := e.Group("/api")
	api.GET("/isalive", healthHandler.IsAlive)

	api.GET("/management", managementHandler.GetInfo)
	api.POST("/management/load", managementHandler.LoadData)

	api.GET("/sinks/types", sinkHandler.ListTypes)
	api.GET("/sinks/types/:type", sinkHandler.GetTypeInfo)
	api.GET("/sinks/info", sinkHandler.GetAllTypesInfo)

	return &Server{Echo: e, Config: cfg, log: log}
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := log.Debug()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	})
}

// Start serves until Shutdown is called. A closed server is not an error.
func (s *Server) Start() error {
	addr := ":" + s.Config.Server.Port
	s.log.Info().Str("addr", addr).Msg("http server listening")
	if err := s.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}
