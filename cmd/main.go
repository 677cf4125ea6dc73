package main

import (
	"log"
	"net/http"
	"time"

	"github.com/senyabanana/marketplace-service/internal/db"
	"github.com/senyabanana/marketplace-service/internal/events"
	"github.com/senyabanana/marketplace-service/internal/handlers"
	"github.com/senyabanana/marketplace-service/internal/repository"
	"github.com/senyabanana/marketplace-service/internal/router"
	"github.com/senyabanana/marketplace-service/internal/router/config"
	"github.com/senyabanana/marketplace-service/internal/services"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal("cannot load config:", err)
	}

	runDBMigration(cfg.MigrationURL, cfg.PostgresConn)

	dbPool, err := db.InitDb(cfg)
	if err != nil {
		log.Fatalf("error initializing database: %v", err)
	}
	defer dbPool.Close()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("error initializing logger: %v", err)
	}
	defer logger.Sync()

	tenderRepo := repository.NewPostgresTenderRepository(dbPool)
	proposalRepo := repository.NewPostgresProposalRepository(dbPool)
	bookmarkRepo := repository.NewRedisBookmarkRepository(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	sink := events.NewLogSink(logger)
	timeout := time.Duration(cfg.RequestTimeout) * time.Second

	tenderService := services.NewTenderService(tenderRepo, proposalRepo, sink, logger)
	proposalService := services.NewProposalService(proposalRepo, tenderRepo, sink, logger)
	bookmarkService := services.NewBookmarkService(bookmarkRepo, tenderRepo)

	tenderHandler := handlers.NewTenderHandler(tenderService, bookmarkService, logger, timeout)
	proposalHandler := handlers.NewProposalHandler(proposalService, logger, timeout)

	routes := router.InitRoutes(tenderHandler, proposalHandler)

	logger.Info("server is listening", zap.String("address", cfg.ServerAddress))
	if err := http.ListenAndServe(cfg.ServerAddress, routes); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func runDBMigration(migrationURL string, dbSource string) {
	migration, err := migrate.New(migrationURL, dbSource)
	if err != nil {
		log.Fatal("cannot create a new migrate instance", err)
	}

	if err = migration.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatal("failed to run migrate up:", err)
	}
	log.Println("db migrated successfully")
}
