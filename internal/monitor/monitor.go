// Package monitor serves the session state over HTTP. GET /status returns one
// JSON snapshot; GET /ws streams snapshots over a WebSocket.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/chaz8081/navelo-gatts/internal/gatts"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Source provides session snapshots. *gatts.Server satisfies it.
type Source interface {
	Snapshot(ctx context.Context) (gatts.Snapshot, error)
}

// Monitor is the HTTP handler of the status feed.
type Monitor struct {
	src      Source
	interval time.Duration
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// New creates a Monitor streaming a snapshot every interval on /ws.
func New(src Source, interval time.Duration, log logrus.FieldLogger) *Monitor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := &Monitor{
		src:      src,
		interval: interval,
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		mux:      http.NewServeMux(),
	}
	m.mux.HandleFunc("/status", m.handleStatus)
	m.mux.HandleFunc("/ws", m.handleWebSocket)
	return m
}

func (m *Monitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mux.ServeHTTP(w, r)
}

func (m *Monitor) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap, err := m.src.Snapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		m.log.WithError(err).Debug("[MON] writing status")
	}
}

func (m *Monitor) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		m.log.WithError(err).Debug("[MON] websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The reader only notices the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	m.log.WithField("remote", r.RemoteAddr).Info("[MON] websocket client connected")
	defer m.log.WithField("remote", r.RemoteAddr).Info("[MON] websocket client disconnected")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		snap, err := m.src.Snapshot(ctx)
		if err != nil {
			if errors.Is(err, gatts.ErrServerClosed) {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
			}
			return
		}
		if err := conn.WriteJSON(snap); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ListenAndServe serves the monitor on addr until ctx is done.
func (m *Monitor) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		m.log.WithField("addr", addr).Info("[MON] listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Hijacked WebSocket connections are not tracked by Shutdown; their
		// handlers exit once the session closes.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
