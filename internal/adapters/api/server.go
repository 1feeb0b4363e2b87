// Package api expone los backtests y las estadísticas de dígitos por HTTP.
package api

import (
	"errors"
	"log/slog"
	"maps"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/alejandrodnm/digitbot/internal/domain"
	"github.com/alejandrodnm/digitbot/internal/ports"
)

const (
	maxRequestTicks  = 200_000
	defaultListLimit = 50
	defaultDigits    = 100
	maxDigits        = 10_000
)

// Options configura el Server.
type Options struct {
	Defaults       domain.SessionConfig // base de cada request
	AllowedOrigins []string
	Workers        int // para /backtest/compare
	Release        bool
}

// Server sirve el API JSON.
type Server struct {
	backtests ports.BacktestStorage
	sessions  ports.SessionStorage
	source    ports.TickSource // puede ser nil: entonces las ticks vienen en la request
	opts      Options
	router    *gin.Engine
}

// New crea el servidor y registra las rutas.
func New(backtests ports.BacktestStorage, sessions ports.SessionStorage, source ports.TickSource, opts Options) *Server {
	if opts.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{backtests: backtests, sessions: sessions, source: source, opts: opts}

	router := gin.New()
	router.Use(requestLogger(), errorHandler())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/backtest", s.runBacktest)
		v1.POST("/backtest/compare", s.compareBacktests)
		v1.GET("/backtests", s.listBacktests)
		v1.GET("/backtests/:id", s.getBacktest)
		v1.GET("/backtests/:id/ledger", s.getLedger)
		v1.GET("/digits/:market", s.digitStats)
		v1.GET("/sessions", s.listSessions)
		v1.GET("/sessions/:id", s.getSession)
	}
	router.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})

	s.router = router
	return s
}

// Handler devuelve el router envuelto en CORS.
func (s *Server) Handler() http.Handler {
	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}).Handler(s.router)
}

// defaults devuelve una copia de la config base; el map de payouts no se comparte.
func (s *Server) defaults() domain.SessionConfig {
	cfg := s.opts.Defaults
	cfg.Payouts = maps.Clone(cfg.Payouts)
	return cfg
}

// --- middleware ---

// requestLogger registra cada request con slog.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("api: request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

// errorHandler convierte un panic en un 500 con el formato de error común.
func errorHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		slog.Error("api: panic", "recovered", recovered, "path", c.Request.URL.Path)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "an unexpected error occurred")
		c.Abort()
	})
}

func writeError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, ErrorResponse{Error: ErrorDetail{Code: code, Message: msg}})
}

// statusFor mapea errores de dominio a códigos HTTP.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrInvalidConfig), errors.Is(err, domain.ErrUnknownContract):
		return http.StatusBadRequest, "INVALID_CONFIG"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

func queryInt(c *gin.Context, key string, def, limit int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return def
	}
	return min(v, limit)
}

func newID() string { return uuid.NewString() }
