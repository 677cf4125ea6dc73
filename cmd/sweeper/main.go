package main

import (
	"context"
	"log"
	"time"

	"github.com/senyabanana/marketplace-service/internal/db"
	"github.com/senyabanana/marketplace-service/internal/events"
	"github.com/senyabanana/marketplace-service/internal/repository"
	"github.com/senyabanana/marketplace-service/internal/router/config"
	"github.com/senyabanana/marketplace-service/internal/services"

	"go.uber.org/zap"
)

// Зачистка просроченных тендеров. Запускается снаружи по расписанию
// (cron) и идёт через тот же контракт перехода, что и запросы владельцев:
// отдельного кода со своими правилами у неё нет.
func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal("cannot load config:", err)
	}

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
	sink := events.NewLogSink(logger)

	tenderService := services.NewTenderService(tenderRepo, proposalRepo, sink, logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	results, err := tenderService.CloseExpired(ctx)
	if err != nil {
		logger.Fatal("sweep failed", zap.Error(err))
	}

	for _, result := range results {
		logger.Info("expired tender cancelled",
			zap.String("tenderId", result.Tender.ID),
			zap.Int("withdrawnProposals", len(result.Withdrawn)),
			zap.Int("failedProposals", len(result.Failed)))
	}
	logger.Info("sweep finished", zap.Int("cancelled", len(results)))
}
