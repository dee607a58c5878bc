package mxe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"evalys-gmpc/internal/domain"
)

// wsTestGateway is a minimal push-side gateway: it records subscriptions and
// lets the test push status notifications to the connected watcher.
type wsTestGateway struct {
	srv        *httptest.Server
	upgrader   websocket.Upgrader
	conns      chan *websocket.Conn
	subscribed chan string
}

func newWSTestGateway(t *testing.T) *wsTestGateway {
	t.Helper()
	g := &wsTestGateway{
		conns:      make(chan *websocket.Conn, 4),
		subscribed: make(chan string, 16),
	}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		g.conns <- conn
		go func() {
			for {
				var req wsRequest
				if err := conn.ReadJSON(&req); err != nil {
					return
				}
				if req.Method != "evalys_subscribeComputationStatus" {
					t.Errorf("unexpected method %q", req.Method)
					continue
				}
				ids, ok := req.Params.([]interface{})
				if !ok || len(ids) != 1 {
					t.Errorf("bad subscribe params %v", req.Params)
					continue
				}
				g.subscribed <- ids[0].(string)
			}
		}()
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *wsTestGateway) url() string {
	return "ws" + strings.TrimPrefix(g.srv.URL, "http")
}

// push sends one status notification over the given connection.
func (g *wsTestGateway) push(t *testing.T, conn *websocket.Conn, computationID string, status domain.ComputationStatus) {
	t.Helper()
	msg := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "evalys_computationStatus",
		"params": map[string]interface{}{
			"result": StatusNotification{ComputationID: computationID, Status: status},
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal push: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write push: %v", err)
	}
}

func waitConn(t *testing.T, g *wsTestGateway) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-g.conns:
		return conn
	case <-time.After(5 * time.Second):
		t.Fatal("gateway saw no connection")
		return nil
	}
}

func waitSubscribe(t *testing.T, g *wsTestGateway, want string) {
	t.Helper()
	select {
	case id := <-g.subscribed:
		if id != want {
			t.Fatalf("subscribed to %q, want %q", id, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no subscription for %q", want)
	}
}

func TestWSWatcherDeliversPushes(t *testing.T) {
	g := newWSTestGateway(t)

	watcher, err := NewWSWatcher(context.Background(), g.url(), nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer watcher.Close()
	conn := waitConn(t, g)

	ch, cancel, err := watcher.Watch(context.Background(), "comp-1")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer cancel()
	waitSubscribe(t, g, "comp-1")

	g.push(t, conn, "comp-1", domain.StatusPending)
	g.push(t, conn, "comp-1", domain.StatusCompleted)

	for _, want := range []domain.ComputationStatus{domain.StatusPending, domain.StatusCompleted} {
		select {
		case n := <-ch:
			if n.ComputationID != "comp-1" || n.Status != want {
				t.Errorf("got %+v, want status %q", n, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("push %q never arrived", want)
		}
	}
}

func TestWSWatcherIgnoresUnwatchedComputations(t *testing.T) {
	g := newWSTestGateway(t)

	watcher, err := NewWSWatcher(context.Background(), g.url(), nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer watcher.Close()
	conn := waitConn(t, g)

	ch, cancel, err := watcher.Watch(context.Background(), "comp-mine")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer cancel()
	waitSubscribe(t, g, "comp-mine")

	g.push(t, conn, "comp-other", domain.StatusCompleted)
	g.push(t, conn, "comp-mine", domain.StatusCompleted)

	select {
	case n := <-ch:
		if n.ComputationID != "comp-mine" {
			t.Errorf("received push for %q", n.ComputationID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("own push never arrived")
	}
}

func TestWSWatcherCancelReleasesSubscription(t *testing.T) {
	g := newWSTestGateway(t)

	watcher, err := NewWSWatcher(context.Background(), g.url(), nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer watcher.Close()
	waitConn(t, g)

	ch, cancel, err := watcher.Watch(context.Background(), "comp-1")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	waitSubscribe(t, g, "comp-1")

	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel still open after cancel")
	}
	// Cancel twice must not panic.
	cancel()
}

func TestWSWatcherCloseClosesChannels(t *testing.T) {
	g := newWSTestGateway(t)

	watcher, err := NewWSWatcher(context.Background(), g.url(), nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	waitConn(t, g)

	ch, _, err := watcher.Watch(context.Background(), "comp-1")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	waitSubscribe(t, g, "comp-1")

	if err := watcher.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel after watcher Close")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel never closed")
	}

	if _, _, err := watcher.Watch(context.Background(), "comp-2"); err == nil {
		t.Error("Watch accepted after Close")
	}

	// Close twice must not panic.
	if err := watcher.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestWSWatcherReconnectsAndResubscribes(t *testing.T) {
	g := newWSTestGateway(t)

	cfg := DefaultWSConfig()
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnectDelay = 50 * time.Millisecond

	watcher, err := NewWSWatcher(context.Background(), g.url(), &cfg)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer watcher.Close()
	conn := waitConn(t, g)

	ch, cancel, err := watcher.Watch(context.Background(), "comp-1")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer cancel()
	waitSubscribe(t, g, "comp-1")

	// Drop the connection from the server side; the watcher should dial
	// again and resubscribe on its own.
	conn.Close()
	conn = waitConn(t, g)
	waitSubscribe(t, g, "comp-1")

	g.push(t, conn, "comp-1", domain.StatusCompleted)
	select {
	case n := <-ch:
		if n.Status != domain.StatusCompleted {
			t.Errorf("status = %q", n.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("push after reconnect never arrived")
	}
}
