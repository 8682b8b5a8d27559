package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/ekipa/core"
	"github.com/trezcool/ekipa/core/event"
	"github.com/trezcool/ekipa/core/ride"
	"github.com/trezcool/ekipa/core/team"
	"github.com/trezcool/ekipa/core/user"
	standingssvc "github.com/trezcool/ekipa/services/standings"
)

type (
	Options struct {
		Address        string
		DisableReqLogs bool
		Logger         core.Logger
		ShutdownFunc   func()

		UserSvc      user.Service
		TeamSvc      team.Service
		EventSvc     event.Service
		RideSvc      ride.Service
		StandingsSvc *standingssvc.Service
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(core.Conf.Debug || core.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	shutdown := s.opts.ShutdownFunc
	if shutdown == nil {
		shutdown = func() {}
	}
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, shutdown)
	s.app.Debug = core.Conf.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(appJWTConfig)

	registerUserAPI(v1, jwt, s.opts.UserSvc)
	registerTeamAPI(v1, jwt, s.opts.TeamSvc, s.opts.UserSvc)
	registerEventAPI(v1, jwt, s.opts.EventSvc, s.opts.UserSvc)
	registerRideAPI(v1, jwt, s.opts.RideSvc, s.opts.UserSvc)
	registerStandingsAPI(v1, s.opts.StandingsSvc)
}

func (s *server) Start() {
	s.app.Logger.Fatal(s.app.Start(s.opts.Address))
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Ekipa API!")
}
