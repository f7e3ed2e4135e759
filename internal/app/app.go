// Package app wires the configured components into a running ledger for the
// API server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dvloznov/smartfinance/internal/advice"
	"github.com/dvloznov/smartfinance/internal/config"
	"github.com/dvloznov/smartfinance/internal/export"
	"github.com/dvloznov/smartfinance/internal/infra/bigquery"
	"github.com/dvloznov/smartfinance/internal/infra/firestore"
	"github.com/dvloznov/smartfinance/internal/infra/gcs"
	"github.com/dvloznov/smartfinance/internal/infra/local"
	"github.com/dvloznov/smartfinance/internal/session"
	"github.com/dvloznov/smartfinance/internal/store"
	"github.com/rs/zerolog"
)

// ErrNotLocal is returned by Restore when the active store is not local.
var ErrNotLocal = errors.New("restore requires the local store")

// App holds the components shared by the commands.
type App struct {
	Config    *config.Config
	Session   *session.Session
	Advisor   *advice.Client
	Exporter  *export.Handler
	Snapshots *gcs.SnapshotStore

	// Banners are the configuration notices, including any added while
	// starting up.
	Banners []string

	log     zerolog.Logger
	closers []func() error
}

// StoreOpener returns the session opener for cfg.
func StoreOpener(cfg *config.Config, log zerolog.Logger) session.Opener {
	return func(ctx context.Context, mode store.Mode) (store.Store, error) {
		switch mode {
		case store.ModeRemote:
			s, err := firestore.New(ctx, firestore.Config{
				ProjectID:       cfg.Firebase.ProjectID,
				DatabaseID:      cfg.Firebase.DatabaseID,
				CredentialsFile: cfg.Firebase.CredentialsFile,
			}, log)
			if err != nil {
				return nil, err
			}
			return s, nil
		case store.ModeLocal:
			if dir := filepath.Dir(cfg.Local.DBPath); dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("creating local data directory: %w", err)
				}
			}
			s, err := local.Open(cfg.Local.DBPath, local.Options{SeedDefaultWallet: cfg.Local.SeedWallet})
			if err != nil {
				return nil, err
			}
			log.Debug().Str("path", s.Path()).Msg("Opened local ledger")
			return s, nil
		}
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}

// New opens the session and the optional integrations. A remote store that
// fails to open falls back to local mode with a banner; export targets that
// fail to connect are disabled with a warning.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Banners: append([]string(nil), cfg.Banners...),
		log:     log,
	}

	open := StoreOpener(cfg, log)
	sess, err := session.New(ctx, cfg.Mode, open, log)
	if err != nil && cfg.Mode == store.ModeRemote {
		log.Warn().Err(err).Msg("Remote store unavailable, falling back to local mode")
		a.Banners = append(a.Banners, config.BannerLocalMode)
		sess, err = session.New(ctx, store.ModeLocal, open, log)
	}
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}
	a.Session = sess
	a.closers = append(a.closers, sess.Close)

	advisor, err := advice.NewClient(ctx, advice.Config{
		APIKey:          cfg.Advice.APIKey,
		Model:           cfg.Advice.Model,
		MaxTransactions: cfg.Advice.MaxTransactions,
	}, log)
	if err != nil {
		log.Warn().Err(err).Msg("Advice client unavailable, serving fallback text")
		advisor = advice.NewClientWithGenerator(nil, advice.Config{}, log)
	}
	a.Advisor = advisor

	opts := export.Options{Bucket: cfg.Export.GCSBucket}
	if cfg.GCSExportEnabled() {
		snaps, err := gcs.NewSnapshotStore(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("GCS export disabled")
		} else {
			a.Snapshots = snaps
			opts.Snapshots = snaps
			a.closers = append(a.closers, snaps.Close)
		}
	}
	if cfg.BigQueryExportEnabled() {
		repo, err := bigquery.NewBigQueryLedgerRepository(ctx, cfg.Export.BQProject, cfg.Export.BQDataset)
		if err != nil {
			log.Warn().Err(err).Msg("BigQuery export disabled")
		} else {
			opts.Analytics = repo
			a.closers = append(a.closers, repo.Close)
		}
	}
	a.Exporter = export.NewHandler(sess.Store, opts, log)

	for _, b := range a.Banners {
		log.Warn().Msg(b)
	}
	return a, nil
}

// UserID returns the configured default user.
func (a *App) UserID() string {
	return a.Config.Server.DefaultUserID
}

// Restore replaces the local ledger with the snapshot at uri. The session
// must be in local mode.
func (a *App) Restore(ctx context.Context, uri string) (store.Snapshot, error) {
	if a.Snapshots == nil {
		return store.Snapshot{}, fmt.Errorf("Restore: %w", export.ErrTargetDisabled)
	}
	dst, ok := a.Session.Store().(*local.Store)
	if !ok {
		return store.Snapshot{}, fmt.Errorf("Restore: %w", ErrNotLocal)
	}
	return export.Restore(ctx, a.Snapshots, uri, dst)
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
