package upload

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/talkwire/talkwire/internal/chat"
	"github.com/talkwire/talkwire/internal/proto"
)

type stubUploader struct {
	url   string
	err   error
	delay time.Duration
}

func (u *stubUploader) Upload(ctx context.Context, token, path string) (string, error) {
	if u.delay > 0 {
		time.Sleep(u.delay)
	}
	return u.url, u.err
}

type recordingSender struct {
	mu   sync.Mutex
	sent []*proto.Event
}

func (s *recordingSender) Send(ev *proto.Event) error {
	s.mu.Lock()
	s.sent = append(s.sent, ev)
	s.mu.Unlock()
	return nil
}

func (s *recordingSender) snapshot() []*proto.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*proto.Event(nil), s.sent...)
}

func TestClassify(t *testing.T) {
	cases := map[string]string{
		"photo.png": "image",
		"photo.JPG": "image",
		"clip.mp4":  "video",
		"song.mp3":  "file", // audio is never offered as an upload category
		"notes.pdf": "file",
		"noext":     "file",
	}
	for path, want := range cases {
		if got := Classify(path); got != want {
			t.Errorf("Classify(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestSubmitBodyUsesRawMediaCategory(t *testing.T) {
	out := &recordingSender{}
	rec := chat.New("alice", "http://127.0.0.1:8000", out, 0)
	up := &stubUploader{url: "/media/uploads/song.mp3"}
	p := New("alice", "tok", up, rec, out, nil)

	done, err := p.Submit(context.Background(), "/tmp/song.mp3")
	if err != nil {
		t.Fatal(err)
	}
	<-done

	// Ships as a generic file, but the body keeps the real category.
	tr := rec.Transcript()
	if len(tr) != 1 || tr[0].Type != proto.TypeFile || tr[0].Message != "Sent a audio" {
		t.Fatalf("optimistic entry = %+v", tr[0])
	}
	sent := out.snapshot()
	if len(sent) != 1 || sent[0].Type != proto.TypeFile || sent[0].Message != "Sent a audio" {
		t.Fatalf("republished event = %+v", sent)
	}
}

func TestSubmitOptimisticThenDurable(t *testing.T) {
	out := &recordingSender{}
	rec := chat.New("alice", "http://127.0.0.1:8000", out, 0)
	up := &stubUploader{url: "/media/uploads/pic.png", delay: 20 * time.Millisecond}
	p := New("alice", "tok", up, rec, out, func(string) { t.Error("unexpected alert") })

	done, err := p.Submit(context.Background(), "/tmp/pic.png")
	if err != nil {
		t.Fatal(err)
	}

	// The optimistic entry is visible immediately, before the upload lands.
	tr := rec.Transcript()
	if len(tr) != 1 {
		t.Fatalf("transcript length %d, want 1", len(tr))
	}
	if tr[0].Type != proto.TypeImage || tr[0].MediaURL != "file:///tmp/pic.png" {
		t.Fatalf("optimistic entry = %+v", tr[0])
	}
	if len(out.snapshot()) != 0 {
		t.Fatal("nothing should be on the wire before the upload resolves")
	}

	<-done

	sent := out.snapshot()
	if len(sent) != 1 {
		t.Fatalf("expected one republished event, got %d", len(sent))
	}
	if sent[0].Type != proto.TypeImage || sent[0].MediaURL != "/media/uploads/pic.png" {
		t.Fatalf("republished event = %+v", sent[0])
	}

	// The optimistic entry is superseded on the wire, never removed locally.
	if tr := rec.Transcript(); len(tr) != 1 || tr[0].MediaURL != "file:///tmp/pic.png" {
		t.Fatalf("optimistic entry was rewritten: %+v", tr)
	}
}

func TestSubmitFailureAlertsAndKeepsOptimisticEntry(t *testing.T) {
	out := &recordingSender{}
	rec := chat.New("alice", "http://127.0.0.1:8000", out, 0)
	up := &stubUploader{err: errors.New("boom")}

	var alerts []string
	p := New("alice", "tok", up, rec, out, func(msg string) { alerts = append(alerts, msg) })

	done, err := p.Submit(context.Background(), "/tmp/doc.pdf")
	if err != nil {
		t.Fatal(err)
	}
	<-done

	if len(alerts) != 1 || alerts[0] != "Upload failed" {
		t.Fatalf("alerts = %v", alerts)
	}
	if len(out.snapshot()) != 0 {
		t.Fatal("failed upload must not republish")
	}
	if tr := rec.Transcript(); len(tr) != 1 {
		t.Fatalf("optimistic entry must stand after failure, transcript = %+v", tr)
	}
}
