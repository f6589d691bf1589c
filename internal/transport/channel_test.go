package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talkwire/talkwire/internal/proto"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestInboundOrderPreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization header = %q", got)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		for _, body := range []string{"one", "two", "three"} {
			conn.WriteJSON(proto.NewText("bob", body))
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ch := Dial(wsURL(srv), "tok")
	defer ch.Close()

	var got []string
	for i := 0; i < 3; i++ {
		select {
		case ev := <-ch.Events():
			got = append(got, ev.Message)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, received %v", got)
		}
	}
	if got[0] != "one" || got[1] != "two" || got[2] != "three" {
		t.Fatalf("order not preserved: %v", got)
	}
}

func TestSendReachesServer(t *testing.T) {
	received := make(chan *proto.Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var ev proto.Event
		if err := conn.ReadJSON(&ev); err == nil {
			received <- &ev
		}
	}))
	defer srv.Close()

	ch := Dial(wsURL(srv), "tok")
	defer ch.Close()

	// Send fails with ErrNotConnected until the dial completes.
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := ch.Send(proto.NewText("alice", "hi"))
		if err == nil {
			break
		}
		if err != ErrNotConnected || time.Now().After(deadline) {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case ev := <-received:
		if ev.Username != "alice" || ev.Message != "hi" {
			t.Fatalf("server got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the event")
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := conns.Add(1)
		if n == 1 {
			// Drop the first connection immediately.
			conn.Close()
			return
		}
		conn.WriteJSON(proto.NewText("bob", "back"))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ch := Dial(wsURL(srv), "tok")
	defer ch.Close()

	select {
	case ev := <-ch.Events():
		if ev.Message != "back" {
			t.Fatalf("got %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel never recovered from the dropped connection")
	}
	if conns.Load() < 2 {
		t.Fatalf("expected a reconnect, saw %d connection(s)", conns.Load())
	}
}
