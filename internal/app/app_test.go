package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dvloznov/smartfinance/internal/config"
	"github.com/dvloznov/smartfinance/internal/export"
	"github.com/dvloznov/smartfinance/internal/jobs"
	"github.com/dvloznov/smartfinance/internal/store"
	"github.com/rs/zerolog"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.FromLookup(func(key string) string {
		if key == "LOCAL_DB_PATH" {
			return filepath.Join(t.TempDir(), "nested", "ledger.db")
		}
		return ""
	})
	if err != nil {
		t.Fatalf("FromLookup() error = %v", err)
	}
	return cfg
}

func TestNew_LocalMode(t *testing.T) {
	a, err := New(context.Background(), localConfig(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if a.Session.Mode() != store.ModeLocal {
		t.Errorf("mode = %s, want local", a.Session.Mode())
	}
	if a.Advisor.Enabled() {
		t.Error("advice should be disabled without a key")
	}
	if a.Exporter.Enabled(jobs.ExportTargetGCS) || a.Exporter.Enabled(jobs.ExportTargetBigQuery) {
		t.Error("exports should be disabled without targets")
	}

	accounts, err := a.Session.Ledger().Accounts(context.Background(), a.UserID())
	if err != nil || len(accounts) != 1 {
		t.Errorf("expected seeded wallet, got %v %v", accounts, err)
	}
}

func TestNew_RemoteFailureFallsBackToLocal(t *testing.T) {
	cfg := localConfig(t)
	cfg.Mode = store.ModeRemote
	cfg.Banners = nil
	// No project id: the remote opener fails before any network call.

	a, err := New(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if a.Session.Mode() != store.ModeLocal {
		t.Errorf("mode = %s, want local", a.Session.Mode())
	}
	if len(a.Banners) != 1 || a.Banners[0] != config.BannerLocalMode {
		t.Errorf("banners = %v", a.Banners)
	}
}

func TestRestore_WithoutSnapshotsIsDisabled(t *testing.T) {
	a, err := New(context.Background(), localConfig(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if _, err := a.Restore(context.Background(), "gs://b/o.json"); !errors.Is(err, export.ErrTargetDisabled) {
		t.Errorf("Restore() error = %v, want ErrTargetDisabled", err)
	}
}
