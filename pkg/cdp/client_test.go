package cdp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTarget is an in-process DevTools endpoint. Handlers receive decoded
// command envelopes and write whatever they like back on the connection.
type fakeTarget struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conn    *websocket.Conn
	handler func(conn *websocket.Conn, env envelope)
}

func newFakeTarget(t *testing.T, handler func(conn *websocket.Conn, env envelope)) *httptest.Server {
	target := &fakeTarget{t: t, handler: handler}
	return httptest.NewServer(http.HandlerFunc(target.serve))
}

func (f *fakeTarget) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.t.Logf("upgrade failed: %v", err)
		return
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		if f.handler != nil {
			f.handler(conn, env)
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func writeJSON(conn *websocket.Conn, v any) error {
	// The fake target is single-goroutine per connection except when tests
	// push events, so serialize writes through the connection's own mutex.
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func TestCallRoundTrip(t *testing.T) {
	srv := newFakeTarget(t, func(conn *websocket.Conn, env envelope) {
		assert.Equal(t, "Profiler.enable", env.Method)
		_ = writeJSON(conn, map[string]any{
			"id":     env.ID,
			"result": map[string]any{"ok": true},
		})
	})
	defer srv.Close()

	client, err := Dial(context.Background(), wsURL(srv), nil)
	require.NoError(t, err)
	defer client.Close()

	var result struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, client.Call(context.Background(), "Profiler.enable", nil, &result))
	assert.True(t, result.OK)
}

func TestCallRemoteError(t *testing.T) {
	srv := newFakeTarget(t, func(conn *websocket.Conn, env envelope) {
		_ = writeJSON(conn, map[string]any{
			"id": env.ID,
			"error": map[string]any{
				"code":    -32000,
				"message": "No script for id",
			},
		})
	})
	defer srv.Close()

	client, err := Dial(context.Background(), wsURL(srv), nil)
	require.NoError(t, err)
	defer client.Close()

	err = client.Call(context.Background(), "Debugger.getScriptSource", map[string]string{"scriptId": "404"}, nil)
	require.Error(t, err)
	assert.True(t, IsRemoteError(err))
	assert.Contains(t, err.Error(), "No script for id")
}

func TestCallContextCancelled(t *testing.T) {
	srv := newFakeTarget(t, func(conn *websocket.Conn, env envelope) {
		// Never respond.
	})
	defer srv.Close()

	client, err := Dial(context.Background(), wsURL(srv), nil)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = client.Call(ctx, "Profiler.takePreciseCoverage", nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEventDispatchAndUnsubscribe(t *testing.T) {
	var targetConn *websocket.Conn
	connReady := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		targetConn = conn
		close(connReady)
		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	client, err := Dial(context.Background(), wsURL(srv), nil)
	require.NoError(t, err)
	defer client.Close()
	<-connReady

	events := make(chan string, 4)
	sub, err := client.Subscribe("Debugger.scriptParsed", func(params json.RawMessage) {
		var ev struct {
			URL string `json:"url"`
		}
		_ = json.Unmarshal(params, &ev)
		events <- ev.URL
	})
	require.NoError(t, err)

	push := func(url string) {
		err := writeJSON(targetConn, map[string]any{
			"method": "Debugger.scriptParsed",
			"params": map[string]any{"scriptId": "1", "url": url},
		})
		require.NoError(t, err)
	}

	push("https://example.com/app.js")
	select {
	case url := <-events:
		assert.Equal(t, "https://example.com/app.js", url)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	require.NoError(t, sub.Unsubscribe())
	push("https://example.com/late.js")

	select {
	case url := <-events:
		t.Fatalf("unexpected delivery after unsubscribe: %s", url)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPendingCallFailsOnClose(t *testing.T) {
	srv := newFakeTarget(t, func(conn *websocket.Conn, env envelope) {
		// Never respond.
	})
	defer srv.Close()

	client, err := Dial(context.Background(), wsURL(srv), nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- client.Call(context.Background(), "CSS.stopRuleUsageTracking", nil, nil)
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, client.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("call did not fail after close")
	}
}

func TestSubscribeAfterClose(t *testing.T) {
	srv := newFakeTarget(t, nil)
	defer srv.Close()

	client, err := Dial(context.Background(), wsURL(srv), nil)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, err = client.Subscribe("CSS.styleSheetAdded", func(json.RawMessage) {})
	assert.ErrorIs(t, err, ErrClosed)
}
