package main

import (
	"context"
	"errors"
	"flag"
	"time"

	"github.com/dvloznov/smartfinance/internal/config"
	"github.com/dvloznov/smartfinance/internal/infra/bigquery"
	"github.com/dvloznov/smartfinance/internal/logger"
)

var (
	envFile   = flag.String("env", "", "Path to a .env file")
	projectID = flag.String("project", "", "GCP project ID (default: EXPORT_BQ_PROJECT)")
	datasetID = flag.String("dataset", "", "BigQuery dataset ID (default: EXPORT_BQ_DATASET)")
	location  = flag.String("location", "EU", "Location for a newly created dataset")
)

func main() {
	flag.Parse()
	log := logger.New()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	project, dataset, err := resolveTarget(cfg.Export, *projectID, *datasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid export target")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	repo, err := bigquery.NewBigQueryLedgerRepository(ctx, project, dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer repo.Close()

	log.Info().Str("dataset", repo.Dataset()).Msg("Connected to BigQuery")

	created, err := repo.EnsureDataset(ctx, *location)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure dataset")
	}
	if created {
		log.Info().Str("location", *location).Msg("Created dataset")
	}

	if err := repo.EnsureTables(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure export tables")
	}

	log.Info().Msg("Export tables are ready")
}

// resolveTarget applies flag overrides on top of the configured export target.
func resolveTarget(cfg config.ExportConfig, project, dataset string) (string, string, error) {
	if project == "" {
		project = cfg.BQProject
	}
	if dataset == "" {
		dataset = cfg.BQDataset
	}
	if project == "" || dataset == "" {
		return "", "", errors.New("project and dataset are required: set -project/-dataset or EXPORT_BQ_PROJECT/EXPORT_BQ_DATASET")
	}
	return project, dataset, nil
}
