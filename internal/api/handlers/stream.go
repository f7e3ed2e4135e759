package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/dvloznov/smartfinance/internal/api/middleware"
	"github.com/dvloznov/smartfinance/internal/logger"
	"github.com/dvloznov/smartfinance/internal/session"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// StreamHandler pushes the user's ledger over a websocket whenever it changes.
type StreamHandler struct {
	session  *session.Session
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a stream handler. Any origin may connect.
func NewStreamHandler(s *session.Session) *StreamHandler {
	return &StreamHandler{
		session: s,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Stream handles GET /api/stream. Every message is a session.Event. A mode
// switch sends a reset event followed by the ledger of the new store.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	log := logger.FromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	// The client sends nothing; reading only services control frames and
	// notices the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	send := func(e session.Event) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(e); err != nil {
			log.Debug().Err(err).Msg("Stream write failed")
			return false
		}
		return true
	}

	for {
		view, release, err := h.session.Watch(userID)
		if err != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "ledger unavailable"),
				time.Now().Add(writeWait))
			return
		}

		buf := newEventBuffer()
		stopListening := view.Listen(buf.put)
		cancel := func() {
			stopListening()
			release()
		}

		if view.Ready() {
			ok := send(session.Event{Kind: session.EventAccounts, Mode: view.Mode(), Accounts: view.Accounts()}) &&
				send(session.Event{Kind: session.EventTransactions, Mode: view.Mode(), Transactions: view.Transactions()})
			if !ok {
				cancel()
				return
			}
		}

		reset := false
		for !reset {
			select {
			case <-gone:
				cancel()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					cancel()
					return
				}
			case <-buf.ready:
				for _, e := range buf.take() {
					if !send(e) {
						cancel()
						return
					}
					if e.Kind == session.EventReset {
						reset = true
					}
				}
			}
		}
		cancel()
	}
}

// eventBuffer keeps only the latest event of each kind so a slow client
// never blocks the store's push path.
type eventBuffer struct {
	mu      sync.Mutex
	pending map[session.EventKind]session.Event
	ready   chan struct{}
}

func newEventBuffer() *eventBuffer {
	return &eventBuffer{
		pending: make(map[session.EventKind]session.Event),
		ready:   make(chan struct{}, 1),
	}
}

func (b *eventBuffer) put(e session.Event) {
	b.mu.Lock()
	if e.Kind == session.EventReset {
		b.pending = make(map[session.EventKind]session.Event)
	}
	b.pending[e.Kind] = e
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// take drains the buffer. A reset is always returned last.
func (b *eventBuffer) take() []session.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]session.Event, 0, len(b.pending))
	for _, kind := range []session.EventKind{session.EventAccounts, session.EventTransactions, session.EventReset} {
		if e, ok := b.pending[kind]; ok {
			out = append(out, e)
		}
	}
	b.pending = make(map[session.EventKind]session.Event)
	return out
}
