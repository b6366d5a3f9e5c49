package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/Joeboy77/dms-backend-sub000/core"
	"github.com/Joeboy77/dms-backend-sub000/core/defense"
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Panels     *defense.PanelRegistry
		Scheduler  *defense.Scheduler
		Calendar   *defense.Calendar
		Candidates *defense.CandidateResolver
		Validate   *validator.Validate
		Translator ut.Translator
	}

	Server struct {
		address  string
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	s := &Server{
		address:  deps.Conf.Server.Address,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: shutdown,
	}
	s.setup(deps)
	return s
}

func (s *Server) setup(deps ServerDeps) {
	conf := deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(deps.Logger, deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug && !conf.TestMode

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(conf))

	registerPanelAPI(v1, jwt, deps)
	registerScheduleAPI(v1, jwt, deps)
}

func (s *Server) Start() {
	if err := s.app.Start(s.address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

// Errors receives the errors preventing the server from listening.
func (s *Server) Errors() <-chan error {
	return s.errors
}

// ShutdownSignal receives SIGINT, SIGTERM and the shutdown requests coming from the handlers.
func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already shutting down
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to the DMS defense scheduling API!")
}
