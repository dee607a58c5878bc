package mxe

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"evalys-gmpc/internal/domain"
)

// WSConfig configures WebSocket watcher behavior.
type WSConfig struct {
	// ReconnectDelay is initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default watcher configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// StatusNotification is one computation status push from the gateway.
type StatusNotification struct {
	ComputationID string                   `json:"computationId"`
	Status        domain.ComputationStatus `json:"status"`
}

// WSWatcher subscribes to computation status pushes over the gateway's
// WebSocket endpoint, as an alternative to HTTP polling. The orchestrator
// still fetches the result over HTTP once a COMPLETED push arrives.
type WSWatcher struct {
	endpoint string
	config   WSConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// watchers maps computation ID to the channel receiving its pushes.
	watchers   map[string]chan StatusNotification
	watchersMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWSWatcher connects to the gateway WebSocket endpoint and starts the
// read loop.
func NewWSWatcher(ctx context.Context, endpoint string, config *WSConfig) (*WSWatcher, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	w := &WSWatcher{
		endpoint: endpoint,
		config:   cfg,
		watchers: make(map[string]chan StatusNotification),
		done:     make(chan struct{}),
	}

	if err := w.connect(ctx); err != nil {
		return nil, err
	}

	w.wg.Add(1)
	go w.readLoop()

	return w, nil
}

// connect establishes the WebSocket connection.
func (w *WSWatcher) connect(ctx context.Context) error {
	w.connMu.Lock()
	defer w.connMu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	w.conn = conn
	return nil
}

// wsRequest is a JSON-RPC 2.0 request frame.
type wsRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// wsMessage covers both subscription confirmations and notifications.
type wsMessage struct {
	ID     uint64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params struct {
		Result StatusNotification `json:"result"`
	} `json:"params"`
}

// Watch subscribes to status pushes for one computation. The returned
// cancel function releases the subscription; the channel closes when the
// watcher shuts down.
func (w *WSWatcher) Watch(ctx context.Context, computationID string) (<-chan StatusNotification, func(), error) {
	if w.closed.Load() {
		return nil, nil, fmt.Errorf("watcher closed")
	}

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      w.requestID.Add(1),
		Method:  "evalys_subscribeComputationStatus",
		Params:  []string{computationID},
	}

	w.connMu.Lock()
	if w.conn == nil {
		w.connMu.Unlock()
		return nil, nil, fmt.Errorf("not connected")
	}
	w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
	err := w.conn.WriteJSON(req)
	w.connMu.Unlock()
	if err != nil {
		return nil, nil, fmt.Errorf("write subscribe: %w", err)
	}

	// Buffered so a slow consumer cannot stall the read loop for a single
	// status push stream.
	ch := make(chan StatusNotification, 16)
	w.watchersMu.Lock()
	w.watchers[computationID] = ch
	w.watchersMu.Unlock()

	cancel := func() {
		w.watchersMu.Lock()
		if existing, ok := w.watchers[computationID]; ok && existing == ch {
			delete(w.watchers, computationID)
			close(ch)
		}
		w.watchersMu.Unlock()
	}
	return ch, cancel, nil
}

// Close shuts down the connection and all subscriptions.
func (w *WSWatcher) Close() error {
	if w.closed.Swap(true) {
		return nil // already closed
	}

	close(w.done)

	w.connMu.Lock()
	if w.conn != nil {
		w.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		w.conn.Close()
	}
	w.connMu.Unlock()

	w.watchersMu.Lock()
	for id, ch := range w.watchers {
		close(ch)
		delete(w.watchers, id)
	}
	w.watchersMu.Unlock()

	w.wg.Wait()
	return nil
}

// readLoop reads pushes and dispatches them to watchers, reconnecting with
// capped backoff on transport errors.
func (w *WSWatcher) readLoop() {
	defer w.wg.Done()

	reconnectDelay := w.config.ReconnectDelay

	for !w.closed.Load() {
		w.connMu.Lock()
		conn := w.conn
		w.connMu.Unlock()

		if conn == nil {
			if !w.reconnect(&reconnectDelay) {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if w.closed.Load() {
				return
			}
			w.connMu.Lock()
			w.conn = nil
			w.connMu.Unlock()
			conn.Close()
			continue
		}
		reconnectDelay = w.config.ReconnectDelay

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Method != "evalys_computationStatus" {
			continue
		}

		w.watchersMu.Lock()
		ch, ok := w.watchers[msg.Params.Result.ComputationID]
		w.watchersMu.Unlock()
		if !ok {
			continue
		}
		select {
		case ch <- msg.Params.Result:
		default:
			// Consumer buffer full: drop the push, polling covers the gap.
		}
	}
}

// reconnect re-establishes the connection and resubscribes all watched
// computations. Returns false when the watcher is shutting down.
func (w *WSWatcher) reconnect(delay *time.Duration) bool {
	select {
	case <-w.done:
		return false
	case <-time.After(*delay):
	}
	*delay *= 2
	if *delay > w.config.MaxReconnectDelay {
		*delay = w.config.MaxReconnectDelay
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := w.connect(ctx); err != nil {
		return !w.closed.Load()
	}

	// Resubscribe everything we were watching.
	w.watchersMu.Lock()
	ids := make([]string, 0, len(w.watchers))
	for id := range w.watchers {
		ids = append(ids, id)
	}
	w.watchersMu.Unlock()

	w.connMu.Lock()
	defer w.connMu.Unlock()
	if w.conn == nil {
		return true
	}
	for _, id := range ids {
		req := wsRequest{
			JSONRPC: "2.0",
			ID:      w.requestID.Add(1),
			Method:  "evalys_subscribeComputationStatus",
			Params:  []string{id},
		}
		w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
		if err := w.conn.WriteJSON(req); err != nil {
			w.conn.Close()
			w.conn = nil
			return true
		}
	}
	return true
}
