// Package export runs ledger export jobs and restores snapshot backups.
package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/smartfinance/internal/domain"
	"github.com/dvloznov/smartfinance/internal/jobs"
	"github.com/dvloznov/smartfinance/internal/store"
	"github.com/rs/zerolog"
)

// ErrTargetDisabled is returned for jobs whose target is not configured.
var ErrTargetDisabled = errors.New("export target is not configured")

// SnapshotWriter uploads a ledger snapshot and returns where it was written.
type SnapshotWriter interface {
	SaveSnapshot(ctx context.Context, bucket, userID string, snap store.Snapshot, now time.Time) (string, error)
}

// SnapshotReader downloads a ledger snapshot.
type SnapshotReader interface {
	LoadSnapshot(ctx context.Context, uri string) (store.Snapshot, error)
}

// LedgerExporter writes ledger rows to an analytics dataset.
type LedgerExporter interface {
	ExportLedger(ctx context.Context, exportID, userID string, accounts []domain.Account, txs []domain.Transaction, now time.Time) error
	Dataset() string
}

// Replacer overwrites a whole ledger, as the local store does on restore.
type Replacer interface {
	Replace(ctx context.Context, snap store.Snapshot) error
}

// Options wires the export targets. A nil target disables it.
type Options struct {
	Snapshots SnapshotWriter
	Bucket    string
	Analytics LedgerExporter
	Now       func() time.Time
}

// Handler executes export jobs against the store returned by current.
type Handler struct {
	current   func() store.Store
	snapshots SnapshotWriter
	bucket    string
	analytics LedgerExporter
	now       func() time.Time
	log       zerolog.Logger
}

// NewHandler creates an export job handler. current is called once per job,
// so exports follow a store mode switch.
func NewHandler(current func() store.Store, opts Options, log zerolog.Logger) *Handler {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	snapshots := opts.Snapshots
	if opts.Bucket == "" {
		snapshots = nil
	}
	return &Handler{
		current:   current,
		snapshots: snapshots,
		bucket:    opts.Bucket,
		analytics: opts.Analytics,
		now:       now,
		log:       log.With().Str("component", "export").Logger(),
	}
}

// Enabled reports whether target can be exported to.
func (h *Handler) Enabled(target jobs.ExportTarget) bool {
	switch target {
	case jobs.ExportTargetGCS:
		return h.snapshots != nil
	case jobs.ExportTargetBigQuery:
		return h.analytics != nil
	}
	return false
}

// Handle implements jobs.JobHandler.
func (h *Handler) Handle(ctx context.Context, job jobs.Job) error {
	export, ok := job.(*jobs.ExportLedgerJob)
	if !ok {
		return fmt.Errorf("Handle: unsupported job type %s", job.GetType())
	}
	if !h.Enabled(export.Target) {
		return fmt.Errorf("Handle: %s: %w", export.Target, ErrTargetDisabled)
	}

	st := h.current()
	accounts, err := st.ListAccounts(ctx, export.UserID)
	if err != nil {
		return fmt.Errorf("Handle: reading accounts: %w", err)
	}
	txs, err := st.ListTransactions(ctx, export.UserID)
	if err != nil {
		return fmt.Errorf("Handle: reading transactions: %w", err)
	}

	now := h.now()
	log := h.log.With().
		Str("job_id", export.JobID).
		Str("user_id", export.UserID).
		Str("mode", string(st.Mode())).
		Logger()
	log.Info().Int("accounts", len(accounts)).Int("transactions", len(txs)).Msg("Exporting ledger")

	switch export.Target {
	case jobs.ExportTargetGCS:
		uri, err := h.snapshots.SaveSnapshot(ctx, h.bucket, export.UserID, store.NewSnapshot(export.UserID, accounts, txs), now)
		if err != nil {
			return fmt.Errorf("Handle: %w", err)
		}
		export.Location = uri
	case jobs.ExportTargetBigQuery:
		if err := h.analytics.ExportLedger(ctx, export.JobID, export.UserID, accounts, txs, now); err != nil {
			return fmt.Errorf("Handle: %w", err)
		}
		export.Location = h.analytics.Dataset()
	}

	export.AccountCount = len(accounts)
	export.TransactionCount = len(txs)
	return nil
}

// Restore loads the snapshot at uri into dst, replacing its whole ledger.
func Restore(ctx context.Context, src SnapshotReader, uri string, dst Replacer) (store.Snapshot, error) {
	snap, err := src.LoadSnapshot(ctx, uri)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("Restore: %w", err)
	}
	if err := dst.Replace(ctx, snap); err != nil {
		return store.Snapshot{}, fmt.Errorf("Restore: %w", err)
	}
	return snap, nil
}
