// Package bigquery writes ledger exports into BigQuery tables for analytics.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/smartfinance/internal/domain"
	"google.golang.org/api/googleapi"
)

const (
	accountsTable     = "ledger_accounts"
	transactionsTable = "ledger_transactions"
)

// BigQueryLedgerRepository appends ledger exports to one dataset.
type BigQueryLedgerRepository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewBigQueryLedgerRepository creates a BigQuery client for projectID.
func NewBigQueryLedgerRepository(ctx context.Context, projectID, datasetID string) (*BigQueryLedgerRepository, error) {
	if projectID == "" || datasetID == "" {
		return nil, fmt.Errorf("NewBigQueryLedgerRepository: project and dataset are required")
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryLedgerRepository: creating client: %w", err)
	}
	return NewBigQueryLedgerRepositoryWithClient(client, projectID, datasetID), nil
}

// NewBigQueryLedgerRepositoryWithClient wraps an existing client.
func NewBigQueryLedgerRepositoryWithClient(client *bigquery.Client, projectID, datasetID string) *BigQueryLedgerRepository {
	return &BigQueryLedgerRepository{client: client, projectID: projectID, datasetID: datasetID}
}

// Close closes the BigQuery client connection.
func (r *BigQueryLedgerRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Dataset returns the fully qualified dataset name, project.dataset.
func (r *BigQueryLedgerRepository) Dataset() string {
	return r.projectID + "." + r.datasetID
}

// ExportLedger writes one export of a user's ledger, tagging every row
// with exportID. Missing tables are created first.
func (r *BigQueryLedgerRepository) ExportLedger(ctx context.Context, exportID, userID string, accounts []domain.Account, txs []domain.Transaction, now time.Time) error {
	accountRows := make([]*LedgerAccountRow, 0, len(accounts))
	for _, a := range accounts {
		accountRows = append(accountRows, NewLedgerAccountRow(exportID, userID, a, now))
	}
	txRows := make([]*LedgerTransactionRow, 0, len(txs))
	for _, t := range txs {
		row, err := NewLedgerTransactionRow(exportID, userID, t, now)
		if err != nil {
			return fmt.Errorf("ExportLedger: %w", err)
		}
		txRows = append(txRows, row)
	}

	if err := r.EnsureTables(ctx); err != nil {
		return fmt.Errorf("ExportLedger: %w", err)
	}
	if err := InsertLedgerAccountsWithClient(ctx, r.client, r.projectID, r.datasetID, accountRows); err != nil {
		return fmt.Errorf("ExportLedger: %w", err)
	}
	if err := InsertLedgerTransactionsWithClient(ctx, r.client, r.projectID, r.datasetID, txRows); err != nil {
		return fmt.Errorf("ExportLedger: %w", err)
	}
	return nil
}

// EnsureDataset creates the dataset in location when it does not exist.
func (r *BigQueryLedgerRepository) EnsureDataset(ctx context.Context, location string) (bool, error) {
	ds := r.client.DatasetInProject(r.projectID, r.datasetID)
	if _, err := ds.Metadata(ctx); err == nil {
		return false, nil
	} else if !isNotFound(err) {
		return false, fmt.Errorf("EnsureDataset: reading metadata: %w", err)
	}
	if err := ds.Create(ctx, &bigquery.DatasetMetadata{Location: location}); err != nil {
		return false, fmt.Errorf("EnsureDataset: creating %s: %w", r.Dataset(), err)
	}
	return true, nil
}

// EnsureTables creates the export tables when they do not exist.
func (r *BigQueryLedgerRepository) EnsureTables(ctx context.Context) error {
	return EnsureTablesWithClient(ctx, r.client, r.projectID, r.datasetID)
}

// EnsureTablesWithClient creates the export tables when they do not exist.
func EnsureTablesWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string) error {
	tables := []struct {
		name string
		row  any
	}{
		{accountsTable, LedgerAccountRow{}},
		{transactionsTable, LedgerTransactionRow{}},
	}

	for _, t := range tables {
		table := client.DatasetInProject(projectID, datasetID).Table(t.name)
		_, err := table.Metadata(ctx)
		if err == nil {
			continue
		}
		if !isNotFound(err) {
			return fmt.Errorf("EnsureTables: reading %s metadata: %w", t.name, err)
		}

		schema, err := bigquery.InferSchema(t.row)
		if err != nil {
			return fmt.Errorf("EnsureTables: inferring %s schema: %w", t.name, err)
		}
		meta := &bigquery.TableMetadata{
			Schema: schema,
			TimePartitioning: &bigquery.TimePartitioning{
				Type:  bigquery.DayPartitioningType,
				Field: "exported_ts",
			},
		}
		if err := table.Create(ctx, meta); err != nil {
			return fmt.Errorf("EnsureTables: creating %s: %w", t.name, err)
		}
	}
	return nil
}

// InsertLedgerAccountsWithClient streams account rows into ledger_accounts.
func InsertLedgerAccountsWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string, rows []*LedgerAccountRow) error {
	if len(rows) == 0 {
		return nil
	}
	inserter := client.DatasetInProject(projectID, datasetID).Table(accountsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertLedgerAccounts: inserting rows: %w", err)
	}
	return nil
}

// InsertLedgerTransactionsWithClient streams transaction rows into ledger_transactions.
func InsertLedgerTransactionsWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string, rows []*LedgerTransactionRow) error {
	if len(rows) == 0 {
		return nil
	}
	inserter := client.DatasetInProject(projectID, datasetID).Table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertLedgerTransactions: inserting rows: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
