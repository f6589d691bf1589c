package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/talkwire/talkwire/internal/api"
	"github.com/talkwire/talkwire/internal/storage"
)

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	st, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func tokenServer(t *testing.T, token string) *api.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/token/" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access": token})
	}))
	t.Cleanup(srv.Close)
	return api.NewClient(srv.URL)
}

func TestLoginPersistsAndResumes(t *testing.T) {
	st := newStore(t)
	client := tokenServer(t, "tok-1")

	sess, err := Login(context.Background(), client, st, "alice", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Username != "alice" || sess.Token != "tok-1" {
		t.Fatalf("session = %+v", sess)
	}

	// A later start finds the same identity without re-authenticating.
	resumed, err := Resume(st)
	if err != nil {
		t.Fatal(err)
	}
	if resumed.Username != "alice" || resumed.Token != "tok-1" {
		t.Fatalf("resumed = %+v", resumed)
	}
}

func TestResumeWithoutCredentials(t *testing.T) {
	st := newStore(t)

	if _, err := Resume(st); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestLogoutClearsStoredToken(t *testing.T) {
	st := newStore(t)
	client := tokenServer(t, "tok-2")

	sess, err := Login(context.Background(), client, st, "bob", "pw")
	if err != nil {
		t.Fatal(err)
	}
	sess.Logout()

	if sess.Token != "" {
		t.Fatal("token not cleared in memory")
	}
	if _, err := Resume(st); !errors.Is(err, ErrNoSession) {
		t.Fatalf("token survived logout: %v", err)
	}
}
