package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dvloznov/smartfinance/internal/domain"
	"github.com/dvloznov/smartfinance/internal/infra/local"
	"github.com/dvloznov/smartfinance/internal/ledger"
	"github.com/dvloznov/smartfinance/internal/store"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// remoteStandIn is a local store reporting itself as remote, so mode
// switching can be exercised without a Firestore project.
type remoteStandIn struct {
	*local.Store
}

func (remoteStandIn) Mode() store.Mode { return store.ModeRemote }

type testOpener struct {
	t      *testing.T
	dir    string
	mu     sync.Mutex
	opened []store.Mode
	fail   map[store.Mode]error
}

func newTestOpener(t *testing.T) *testOpener {
	return &testOpener{t: t, dir: t.TempDir(), fail: map[store.Mode]error{}}
}

func (o *testOpener) open(ctx context.Context, mode store.Mode) (store.Store, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.fail[mode]; err != nil {
		return nil, err
	}
	o.opened = append(o.opened, mode)

	s, err := local.Open(filepath.Join(o.dir, string(mode)+".db"), local.Options{SeedDefaultWallet: mode == store.ModeLocal})
	if err != nil {
		return nil, err
	}
	if mode == store.ModeRemote {
		return remoteStandIn{s}, nil
	}
	return s, nil
}

func newTestSession(t *testing.T, mode store.Mode) (*Session, *testOpener) {
	t.Helper()
	o := newTestOpener(t)
	s, err := New(context.Background(), mode, o.open, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, o
}

// liveViews returns how many views the session holds open.
func liveViews(s *Session) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.views)
}

func TestNew_RejectsUnknownMode(t *testing.T) {
	o := newTestOpener(t)
	if _, err := New(context.Background(), "cloudy", o.open, zerolog.Nop()); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestWatch_ReplacedWholesaleOnPush(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, store.ModeRemote)

	v, release, err := s.Watch("alice")
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer release()
	if !v.Ready() || len(v.Accounts()) != 0 {
		t.Fatalf("expected an empty, ready view; ready=%v accounts=%v", v.Ready(), v.Accounts())
	}

	var events []Event
	cancel := v.Listen(func(e Event) { events = append(events, e) })
	defer cancel()

	acc, err := s.Ledger().CreateAccount(ctx, "alice", ledger.NewAccount{Name: "A", BankName: "B", Balance: decimal.NewFromInt(1000)})
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if _, err := s.Ledger().AddTransaction(ctx, "alice", ledger.NewTransaction{
		AccountID: acc.ID, Amount: decimal.NewFromInt(200), Type: domain.TransactionTypeExpense,
	}); err != nil {
		t.Fatalf("AddTransaction() error = %v", err)
	}

	accounts := v.Accounts()
	if len(accounts) != 1 || !accounts[0].Balance.Equal(decimal.NewFromInt(800)) {
		t.Errorf("view accounts = %+v", accounts)
	}
	if len(v.Transactions()) != 1 {
		t.Errorf("view transactions = %+v", v.Transactions())
	}
	if len(events) != 3 || events[0].Kind != EventAccounts || events[len(events)-1].Kind != EventTransactions {
		t.Errorf("unexpected events: %+v", events)
	}

	again, releaseAgain, _ := s.Watch("alice")
	defer releaseAgain()
	if again != v {
		t.Error("Watch() should reuse the open view")
	}
}

func TestEnterSandbox_DiscardsStateAndRepopulates(t *testing.T) {
	ctx := context.Background()
	s, o := newTestSession(t, store.ModeRemote)

	if _, err := s.Ledger().CreateAccount(ctx, "alice", ledger.NewAccount{Name: "Remote", BankName: "B"}); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	old, releaseOld, _ := s.Watch("alice")
	defer releaseOld()
	if len(old.Accounts()) != 1 {
		t.Fatalf("expected remote account in view")
	}

	var reset bool
	old.Listen(func(e Event) {
		if e.Kind == EventReset {
			reset = true
		}
	})

	if err := s.EnterSandbox(ctx); err != nil {
		t.Fatalf("EnterSandbox() error = %v", err)
	}
	if s.Mode() != store.ModeLocal {
		t.Errorf("Mode() = %q, want local", s.Mode())
	}
	if !reset {
		t.Error("listeners of the discarded view were not told to reset")
	}
	if len(old.Accounts()) != 0 {
		t.Error("discarded view still holds state")
	}

	fresh, releaseFresh, err := s.Watch("alice")
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer releaseFresh()
	if fresh == old {
		t.Fatal("expected a new view after switching")
	}
	accounts := fresh.Accounts()
	if len(accounts) != 1 || accounts[0].Name != local.DefaultWalletName {
		t.Errorf("expected seeded sandbox wallet, got %+v", accounts)
	}

	if err := s.EnterSandbox(ctx); err != nil {
		t.Fatalf("second EnterSandbox() error = %v", err)
	}
	if len(o.opened) != 2 {
		t.Errorf("switching to the active mode should not reopen: opened %v", o.opened)
	}
}

func TestSwitchMode_OpenFailureKeepsCurrentStore(t *testing.T) {
	s, o := newTestSession(t, store.ModeLocal)
	o.fail[store.ModeRemote] = errors.New("no credentials")

	if err := s.SwitchMode(context.Background(), store.ModeRemote); err == nil {
		t.Fatal("expected error")
	}
	if s.Mode() != store.ModeLocal {
		t.Errorf("Mode() = %q after failed switch", s.Mode())
	}
	if _, err := s.Store().ListAccounts(context.Background(), "u"); err != nil {
		t.Errorf("current store unusable after failed switch: %v", err)
	}
}

func TestSnapshot_DoesNotOpenViews(t *testing.T) {
	s, _ := newTestSession(t, store.ModeLocal)
	for _, user := range []string{"u1", "u2", "u3"} {
		accounts, txs, err := s.Snapshot(context.Background(), user)
		if err != nil {
			t.Fatalf("Snapshot(%s) error = %v", user, err)
		}
		if len(accounts) != 1 || len(txs) != 0 {
			t.Errorf("Snapshot(%s) = %d accounts, %d transactions", user, len(accounts), len(txs))
		}
	}
	if n := liveViews(s); n != 0 {
		t.Errorf("live views after one-shot reads = %d, want 0", n)
	}
}

func TestWatch_LastReleaseClosesView(t *testing.T) {
	s, _ := newTestSession(t, store.ModeLocal)

	first, releaseFirst, err := s.Watch("alice")
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	second, releaseSecond, err := s.Watch("alice")
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if first != second {
		t.Fatal("expected both watchers to share one view")
	}

	releaseFirst()
	releaseFirst()
	if first.isClosed() || liveViews(s) != 1 {
		t.Fatalf("view closed while still watched: closed=%v live=%d", first.isClosed(), liveViews(s))
	}

	releaseSecond()
	if !first.isClosed() || liveViews(s) != 0 {
		t.Errorf("view kept after last release: closed=%v live=%d", first.isClosed(), liveViews(s))
	}

	next, releaseNext, err := s.Watch("alice")
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer releaseNext()
	if next == first || !next.Ready() {
		t.Errorf("expected a fresh ready view, got same=%v ready=%v", next == first, next.Ready())
	}
}

func TestListen_OnDiscardedViewResetsImmediately(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, store.ModeRemote)

	v, release, err := s.Watch("u")
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer release()
	if err := s.EnterSandbox(ctx); err != nil {
		t.Fatalf("EnterSandbox() error = %v", err)
	}

	var events []Event
	cancel := v.Listen(func(e Event) { events = append(events, e) })
	defer cancel()

	if len(events) != 1 || events[0].Kind != EventReset || events[0].Mode != store.ModeRemote {
		t.Fatalf("Listen() on a discarded view delivered %+v, want one reset", events)
	}

	acc, err := s.Ledger().CreateAccount(ctx, "u", ledger.NewAccount{Name: "A", BankName: "B"})
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if _, err := s.Ledger().AddTransaction(ctx, "u", ledger.NewTransaction{
		AccountID: acc.ID, Amount: decimal.NewFromInt(5), Type: domain.TransactionTypeExpense,
	}); err != nil {
		t.Fatalf("AddTransaction() error = %v", err)
	}
	if len(events) != 1 {
		t.Errorf("discarded view kept delivering events: %+v", events)
	}
}

func TestClose(t *testing.T) {
	o := newTestOpener(t)
	s, err := New(context.Background(), store.ModeLocal, o.open, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, _, err := s.Watch("u"); !errors.Is(err, ErrClosed) {
		t.Errorf("Watch() after close error = %v", err)
	}
	if _, _, err := s.Snapshot(context.Background(), "u"); !errors.Is(err, ErrClosed) {
		t.Errorf("Snapshot() after close error = %v", err)
	}
	if err := s.EnterSandbox(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("EnterSandbox() after close error = %v", err)
	}
}
