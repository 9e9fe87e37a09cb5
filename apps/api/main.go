package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/insightlab/insightlab/apps/api/echo"
	"github.com/insightlab/insightlab/core"
	"github.com/insightlab/insightlab/core/evaluation"
	"github.com/insightlab/insightlab/core/quiz"
	"github.com/insightlab/insightlab/core/review"
	"github.com/insightlab/insightlab/core/user"
	emailsvc "github.com/insightlab/insightlab/services/email"
	logsvc "github.com/insightlab/insightlab/services/logger"
	notifsvc "github.com/insightlab/insightlab/services/notification"
	"github.com/insightlab/insightlab/storage/database"
	sqlxrepos "github.com/insightlab/insightlab/storage/database/sqlx"
)

const shutdownTimeout = 20 * time.Second

func main() {
	// =========================================================================
	// Set up Dependencies

	workDir, err := os.Getwd()
	if err != nil {
		log.Fatalf("getting working directory: %v", err)
	}
	conf := core.NewConfig(workDir)

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Critical(fmt.Sprintf("setting up database: %v", err), err)
		os.Exit(1)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()
	sdb := sqlxrepos.Wrap(db)

	// set up repositories
	usrRepo := sqlxrepos.NewUserRepository(sdb)
	quizRepo := sqlxrepos.NewQuizRepository(sdb)
	evalRepo := sqlxrepos.NewEvaluationRepository(sdb)
	reviewRepo := sqlxrepos.NewReviewRepository(sdb)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	notifSvc := notifsvc.NewEmailNotifier(mailSvc, logger)

	usrSvc := user.NewService(usrRepo)
	quizSvc := quiz.NewService(quizRepo)
	evalSvc := evaluation.NewService(evalRepo, usrRepo, quizSvc, notifSvc, logger)
	reviewSvc := review.NewService(reviewRepo, evalRepo, usrRepo, notifSvc, logger, conf.FastEvalThresholdSeconds)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	core.InitValidators(validator.New(), newTranslator())

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:      conf,
			Logger:    logger,
			UserSvc:   usrSvc,
			EvalSvc:   evalSvc,
			ReviewSvc: reviewSvc,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Critical(fmt.Sprintf("server error: %v", err), err)
		os.Exit(1)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Critical(fmt.Sprintf("could not force stop server: %v", err), err)
				os.Exit(1)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
