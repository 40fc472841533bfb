// Package httpapi is the admin surface: health, a state snapshot for
// debugging, and Prometheus metrics. It never speaks the chat protocol.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"strife/server/internal/session"
)

// ConnCounter reports how many handshaken connections a channel listener
// currently holds. *transport.Listener satisfies it.
type ConnCounter interface {
	ConnCount() int
}

// Server is the Echo application.
type Server struct {
	echo     *echo.Echo
	name     string
	started  time.Time
	sessions *session.Registry
	general  ConnCounter
	chats    ConnCounter
	files    ConnCounter
}

// New constructs the admin app over the session registry and the three
// channel listeners.
func New(name string, sessions *session.Registry, general, chats, files ConnCounter) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Debug("http request", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))

	s := &Server{
		echo:     e,
		name:     name,
		started:  time.Now(),
		sessions: sessions,
		general:  general,
		chats:    chats,
		files:    files,
	}
	s.registerRoutes()
	return s
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/state", s.handleState)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		return nil
	}
}

type healthResponse struct {
	Status string `json:"status"`
	Name   string `json:"name"`
	Uptime string `json:"uptime"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status: "ok",
		Name:   s.name,
		Uptime: time.Since(s.started).Round(time.Second).String(),
	})
}

type stateResponse struct {
	Sessions    int            `json:"sessions"`
	OnlineUsers []string       `json:"online_users"`
	Connections map[string]int `json:"connections"`
}

func (s *Server) handleState(c echo.Context) error {
	users := s.sessions.OnlineUsers()
	if users == nil {
		users = []string{}
	}
	return c.JSON(http.StatusOK, stateResponse{
		Sessions:    s.sessions.SessionCount(),
		OnlineUsers: users,
		Connections: map[string]int{
			"general": connCount(s.general),
			"chats":   connCount(s.chats),
			"files":   connCount(s.files),
		},
	})
}

func connCount(c ConnCounter) int {
	if c == nil {
		return 0
	}
	return c.ConnCount()
}
