package main

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/ekipa/core"
	"github.com/trezcool/ekipa/storage/database"
	"github.com/trezcool/ekipa/storage/database/sqlxrepos"
)

var logger *log.Logger // todo: logger service

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	// set up DB
	sqlDB, err := database.Open(core.Conf)
	errAndDie(err)
	defer sqlDB.Close()
	errAndDie(database.Ping(sqlDB))
	db := sqlx.NewDb(sqlDB, core.Conf.Database.Engine)

	// start CLI
	cli := commandLine{
		db:       sqlDB,
		usrRepo:  sqlxrepos.NewUserRepository(db),
		teamRepo: sqlxrepos.NewTeamRepository(db),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
