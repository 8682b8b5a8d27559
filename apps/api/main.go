package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/ekipa/apps/api/echo"
	"github.com/trezcool/ekipa/core"
	"github.com/trezcool/ekipa/core/event"
	"github.com/trezcool/ekipa/core/ride"
	"github.com/trezcool/ekipa/core/team"
	"github.com/trezcool/ekipa/core/user"
	emailsvc "github.com/trezcool/ekipa/services/email"
	logsvc "github.com/trezcool/ekipa/services/logger"
	standingssvc "github.com/trezcool/ekipa/services/standings"
	"github.com/trezcool/ekipa/storage/database"
	"github.com/trezcool/ekipa/storage/database/sqlxrepos"
)

func main() {
	// set up logger
	std := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	var logger core.Logger
	if core.Conf.RollbarToken != "" {
		rollbarLogger := logsvc.NewRollbarLogger(std, core.Conf)
		rollbarLogger.Enable(!core.Conf.Debug)
		logger = rollbarLogger
	} else {
		logger = logsvc.NewStdLogger(std)
	}

	// set up DB
	sqlDB, err := database.Open(core.Conf)
	errAndDie(err)
	defer func() { _ = sqlDB.Close() }()
	errAndDie(database.Ping(sqlDB))
	errAndDie(database.Migrate(sqlDB))
	db := sqlx.NewDb(sqlDB, core.Conf.Database.Engine)

	// set up repos
	usrRepo := sqlxrepos.NewUserRepository(db)
	teamRepo := sqlxrepos.NewTeamRepository(db)
	eventRepo := sqlxrepos.NewEventRepository(db)
	rideRepo := sqlxrepos.NewRideRepository(db)

	// set up services
	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}
	usrSvc := user.NewService(usrRepo, mailSvc)
	teamSvc := team.NewService(teamRepo, usrRepo)
	eventSvc := event.NewService(eventRepo, teamRepo, usrRepo, rideRepo, mailSvc, logger)
	rideSvc := ride.NewService(rideRepo, eventRepo, teamRepo, usrRepo)
	standingsSvc := standingssvc.NewService(core.Conf.FrontendBaseURL + "/standings")

	// start API server
	shutdown := make(chan struct{})
	app := echoapi.NewServer(
		&echoapi.Options{
			Address:      core.Conf.Server.Address(),
			Logger:       logger,
			ShutdownFunc: func() { close(shutdown) },

			UserSvc:      usrSvc,
			TeamSvc:      teamSvc,
			EventSvc:     eventSvc,
			RideSvc:      rideSvc,
			StandingsSvc: standingsSvc,
		},
	)

	go app.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info(fmt.Sprintf("%v: start shutdown...", s))
	case <-shutdown:
		logger.Info("shutdown error: start shutdown...")
	}

	// give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = app.Stop(ctx); err != nil {
		logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
	}
}

func errAndDie(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
