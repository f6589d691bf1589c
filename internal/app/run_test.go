package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talkwire/talkwire/internal/config"
	"github.com/talkwire/talkwire/internal/storage"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// The history snapshot must be fetched before the channel dials: an event
// sent after the snapshot then arrives on the channel only, so it can never
// be appended twice (once seeded, once live).
func TestHistoryLoadsBeforeChannelDial(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(what string) {
		mu.Lock()
		order = append(order, what)
		mu.Unlock()
	}

	wsConnected := make(chan struct{})
	var once sync.Once

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/messages/":
			record("history")
			w.Write([]byte("[]"))
		case "/ws/chat/":
			record("dial")
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			once.Do(func() { close(wsConnected) })
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	// Pre-seeded credentials skip the login dialogue.
	dir := t.TempDir()
	st, err := storage.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.SaveToken("alice", "tok"); err != nil {
		t.Fatal(err)
	}
	st.Close()

	cfg := config.Default()
	cfg.Server.BaseURL = srv.URL
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	// Quit only once the websocket is up, so both requests are observed.
	pr, pw := io.Pipe()
	go func() {
		select {
		case <-wsConnected:
		case <-time.After(5 * time.Second):
		}
		io.WriteString(pw, "/quit\n")
		pw.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := Run(ctx, Options{ProfileDir: dir, Cfg: cfg, In: pr, Out: io.Discard}); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) < 2 || order[0] != "history" || order[1] != "dial" {
		t.Fatalf("request order = %v, want history before dial", order)
	}
}
