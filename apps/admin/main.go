package main

import (
	"log"
	"os"

	"github.com/insightlab/insightlab/core"
	"github.com/insightlab/insightlab/storage/database"
	sqlxrepos "github.com/insightlab/insightlab/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	workDir, err := os.Getwd()
	errAndDie(err)
	conf := core.NewConfig(workDir)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()

	// start CLI
	cli := commandLine{
		db:      db,
		usrRepo: sqlxrepos.NewUserRepository(sqlxrepos.Wrap(db)),
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
