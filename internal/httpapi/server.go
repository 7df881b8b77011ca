// Package httpapi exposes the caption translation service over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/valpere/captran/internal/catalog"
	"github.com/valpere/captran/internal/orchestrator"
	"github.com/valpere/captran/internal/progress"
	"github.com/valpere/captran/internal/service"
)

const defaultUpgradeBuffer = 1024

// Translator is the service surface the API serves.
type Translator interface {
	Translate(ctx context.Context, text, lang, requestID string) service.Result
	Preload(ctx context.Context, lang string, onProgress progress.Func) error
	IsSupported(lang string) bool
	Languages() []catalog.Entry
	State() orchestrator.State
	Progress() progress.State
	OnUpgrade(fn func(requestID, text string))
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	UpgradeBuffer   int
}

// Upgrade is a model translation delivered after a fallback answer.
type Upgrade struct {
	Seq       uint64    `json:"seq"`
	RequestID string    `json:"requestId"`
	Text      string    `json:"text"`
	At        time.Time `json:"at"`
}

type Server struct {
	svc    Translator
	logger zerolog.Logger
	opts   Options

	mu       sync.Mutex
	upgrades []Upgrade
	seq      uint64
}

type translateRequest struct {
	Text      string `json:"text"`
	Language  string `json:"language"`
	RequestID string `json:"requestId"`
}


func NewServer(svc Translator, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := opts.Port
	if port <= 0 {
		port = 8095
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	buffer := opts.UpgradeBuffer
	if buffer <= 0 {
		buffer = defaultUpgradeBuffer
	}

	s := &Server{
		svc:    svc,
		logger: logger.With().Str("component", "http").Logger(),
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			UpgradeBuffer:   buffer,
		},
	}
	svc.OnUpgrade(s.recordUpgrade)
	return s
}

// Handler builds the echo router.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/languages", s.handleLanguages)
	api.POST("/translate", s.handleTranslate)
	api.POST("/preload/:language", s.handlePreload)
	api.GET("/state", s.handleState)
	api.GET("/progress", s.handleProgress)
	api.GET("/upgrades", s.handleUpgrades)

	return e
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.svc == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.Handler()
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("captran api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("captran api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if v, ok := he.Message.(string); ok && strings.TrimSpace(v) != "" {
			message = v
		} else if text := http.StatusText(status); text != "" {
			message = text
		}
	}
	if status >= 500 {
		s.logger.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("request failed")
		message = "Internal server error"
	}
	_ = fail(c, status, message)
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "captran",
		"time":    time.Now().UTC(),
		"state":   s.svc.State().Phase,
	})
}

func (s *Server) handleLanguages(c echo.Context) error {
	return success(c, map[string]any{
		"items": s.svc.Languages(),
	})
}

func (s *Server) handleTranslate(c echo.Context) error {
	var req translateRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid JSON body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return fail(c, http.StatusBadRequest, "text is required")
	}
	lang := catalog.Normalize(req.Language)
	if lang == "" {
		return fail(c, http.StatusBadRequest, "language is required")
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	return success(c, s.svc.Translate(c.Request().Context(), req.Text, lang, req.RequestID))
}

func (s *Server) handlePreload(c echo.Context) error {
	lang := catalog.Normalize(c.Param("language"))
	if !s.svc.IsSupported(lang) {
		return fail(c, http.StatusNotFound, fmt.Sprintf("unsupported language %q", c.Param("language")))
	}

	if wait, _ := strconv.ParseBool(c.QueryParam("wait")); wait {
		if err := s.svc.Preload(c.Request().Context(), lang, nil); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return fail(c, http.StatusGatewayTimeout, "model is still loading")
			}
			return fail(c, http.StatusBadGateway, err.Error())
		}
		return success(c, s.svc.State())
	}

	go func() {
		if err := s.svc.Preload(context.Background(), lang, nil); err != nil {
			s.logger.Warn().Err(err).Str("language", lang).Msg("preload failed")
		}
	}()
	return c.JSON(http.StatusAccepted, envelope{Data: map[string]any{"language": lang}})
}

func (s *Server) handleState(c echo.Context) error {
	return success(c, s.svc.State())
}

func (s *Server) handleProgress(c echo.Context) error {
	return success(c, s.svc.Progress())
}

func (s *Server) handleUpgrades(c echo.Context) error {
	var since uint64
	if raw := strings.TrimSpace(c.QueryParam("since")); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fail(c, http.StatusBadRequest, "since must be a non-negative integer")
		}
		since = n
	}

	items, next := s.upgradesSince(since)
	return success(c, map[string]any{
		"items": items,
		"next":  next,
	})
}

func (s *Server) recordUpgrade(requestID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.upgrades = append(s.upgrades, Upgrade{
		Seq:       s.seq,
		RequestID: requestID,
		Text:      text,
		At:        time.Now().UTC(),
	})
	if over := len(s.upgrades) - s.opts.UpgradeBuffer; over > 0 {
		s.upgrades = append(s.upgrades[:0:0], s.upgrades[over:]...)
	}
}

func (s *Server) upgradesSince(since uint64) ([]Upgrade, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Upgrade, 0)
	for _, u := range s.upgrades {
		if u.Seq > since {
			out = append(out, u)
		}
	}
	return out, s.seq
}
