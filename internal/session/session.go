// Package session owns the active ledger store and the per-user live views
// built on it. Switching modes replaces the store and discards every view.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dvloznov/smartfinance/internal/domain"
	"github.com/dvloznov/smartfinance/internal/ledger"
	"github.com/dvloznov/smartfinance/internal/store"
	"github.com/rs/zerolog"
)

// ErrClosed is returned once the session has been closed.
var ErrClosed = errors.New("session is closed")

// Opener opens the store for a mode.
type Opener func(ctx context.Context, mode store.Mode) (store.Store, error)

// Session holds the active store. It is safe for concurrent use.
type Session struct {
	open Opener
	log  zerolog.Logger

	// ctx bounds the lifetime of view subscriptions.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	store  store.Store
	views  map[string]*View
	closed bool
}

// New opens the store for mode and returns a session on it.
func New(ctx context.Context, mode store.Mode, open Opener, log zerolog.Logger) (*Session, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("New: unknown mode %q", mode)
	}
	st, err := open(ctx, mode)
	if err != nil {
		return nil, fmt.Errorf("New: opening %s store: %w", mode, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	return &Session{
		open:   open,
		log:    log.With().Str("component", "session").Logger(),
		ctx:    subCtx,
		cancel: cancel,
		store:  st,
		views:  make(map[string]*View),
	}, nil
}

// Mode returns the active store mode.
func (s *Session) Mode() store.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Mode()
}

// Store returns the active store.
func (s *Session) Store() store.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// Ledger returns a ledger service over the active store.
func (s *Session) Ledger() *ledger.Service {
	return ledger.NewService(s.Store())
}

// Watch returns the user's live view, opening it on first use, and holds it
// open until release is called. The view is closed once its last holder
// releases it.
func (s *Session) Watch(userID string) (v *View, release func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, ErrClosed
	}

	v, ok := s.views[userID]
	if !ok {
		v, err = openView(s.ctx, s.store, userID)
		if err != nil {
			return nil, nil, fmt.Errorf("Watch: %w", err)
		}
		s.views[userID] = v
		s.log.Debug().Str("user_id", userID).Str("mode", string(v.Mode())).Msg("Opened live view")
	}
	v.refs++

	var once sync.Once
	return v, func() { once.Do(func() { s.release(userID, v) }) }, nil
}

func (s *Session) release(userID string, v *View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.refs--
	if v.refs > 0 {
		return
	}
	// A mode switch may already have replaced the view.
	if s.views[userID] == v {
		delete(s.views, userID)
	}
	v.close()
	s.log.Debug().Str("user_id", userID).Msg("Closed live view")
}

// Snapshot returns the user's displayed accounts and transactions. It serves
// them from a live view when one is open and ready, and otherwise reads the
// store without opening one.
func (s *Session) Snapshot(ctx context.Context, userID string) ([]domain.Account, []domain.Transaction, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, nil, ErrClosed
	}
	v, ok := s.views[userID]
	st := s.store
	s.mu.RUnlock()

	if ok && v.Ready() {
		return v.Accounts(), v.Transactions(), nil
	}

	accounts, err := st.ListAccounts(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("Snapshot: %w", err)
	}
	txs, err := st.ListTransactions(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("Snapshot: %w", err)
	}
	return accounts, txs, nil
}

// SwitchMode replaces the active store with one for mode. Every view is
// discarded and re-populates from the new store on next use. Switching to
// the active mode does nothing.
func (s *Session) SwitchMode(ctx context.Context, mode store.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("SwitchMode: unknown mode %q", mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.store.Mode() == mode {
		return nil
	}

	next, err := s.open(ctx, mode)
	if err != nil {
		return fmt.Errorf("SwitchMode: opening %s store: %w", mode, err)
	}

	prev := s.store
	s.closeViewsLocked()
	s.store = next

	if err := prev.Close(); err != nil {
		s.log.Warn().Err(err).Str("mode", string(prev.Mode())).Msg("Failed to close previous store")
	}
	s.log.Info().Str("from", string(prev.Mode())).Str("to", string(mode)).Msg("Switched store mode")
	return nil
}

// EnterSandbox switches the session to the local store.
func (s *Session) EnterSandbox(ctx context.Context) error {
	return s.SwitchMode(ctx, store.ModeLocal)
}

// Close discards all views and closes the active store.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.closeViewsLocked()
	s.cancel()
	return s.store.Close()
}

func (s *Session) closeViewsLocked() {
	for id, v := range s.views {
		v.close()
		delete(s.views, id)
	}
}
