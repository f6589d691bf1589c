// Package chat maintains the canonical ordered transcript. Local sends are
// appended optimistically before the server sees them; the server's echo of
// our own events is discarded so each message renders exactly once.
package chat

import (
	"log"
	"sync"

	"github.com/talkwire/talkwire/internal/proto"
	"github.com/talkwire/talkwire/internal/util"
)

// Sender is the outbound side of the transport channel.
type Sender interface {
	Send(*proto.Event) error
}

// DefaultHistorySize is the transcript capacity when none is configured.
const DefaultHistorySize = 500

// Reconciler owns the transcript for one session.
type Reconciler struct {
	self   string
	origin string
	out    Sender

	transcript *util.Ring[*proto.Event]

	mu        sync.RWMutex
	listeners []chan *proto.Event
}

// New creates a reconciler for the local username. origin is the server base
// URL used to qualify relative media URLs at render time.
func New(self, origin string, out Sender, historySize int) *Reconciler {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Reconciler{
		self:       self,
		origin:     origin,
		out:        out,
		transcript: util.NewRing[*proto.Event](historySize),
	}
}

// Self returns the local username.
func (r *Reconciler) Self() string { return r.self }

// Seed preloads the transcript with server history, oldest first. Called
// once before the dispatch loop starts; no echo suppression applies because
// history legitimately contains our own past messages.
func (r *Reconciler) Seed(events []*proto.Event) {
	for _, ev := range events {
		r.transcript.Append(ev)
	}
}

// SendText appends a text message optimistically and emits it on the
// channel. The send is fire-and-forget: the optimistic entry stands whether
// or not the server ever delivers it.
func (r *Reconciler) SendText(body string) *proto.Event {
	ev := proto.NewText(r.self, body)
	r.append(ev)
	if err := r.out.Send(ev); err != nil {
		log.Printf("CHAT: send failed (message kept locally): %v", err)
	}
	return ev
}

// AppendLocal appends an optimistic local entry without sending it. The
// upload pipeline uses this for instant media previews.
func (r *Reconciler) AppendLocal(ev *proto.Event) {
	r.append(ev)
}

// OnInbound applies one inbound chat event. Events originated by the local
// username are the echo of an optimistic write and are discarded — the
// one-entry-per-send invariant was satisfied at send time. This also makes
// the transcript idempotent against duplicate delivery of our own events.
func (r *Reconciler) OnInbound(ev *proto.Event) {
	if ev.Username == r.self {
		return
	}
	r.append(ev)
}

// Transcript returns a copy of the transcript, oldest first.
func (r *Reconciler) Transcript() []*proto.Event {
	return r.transcript.Snapshot()
}

// Subscribe returns a channel that receives each appended message.
func (r *Reconciler) Subscribe() <-chan *proto.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan *proto.Event, 16)
	r.listeners = append(r.listeners, ch)
	return ch
}

// Unsubscribe removes a listener channel.
func (r *Reconciler) Unsubscribe(ch <-chan *proto.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, l := range r.listeners {
		if l == ch {
			close(l)
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			return
		}
	}
}

// Close shuts down the reconciler's listeners.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.listeners {
		close(l)
	}
	r.listeners = nil
}

func (r *Reconciler) append(ev *proto.Event) {
	r.transcript.Append(ev)

	r.mu.RLock()
	for _, l := range r.listeners {
		select {
		case l <- ev:
		default:
			// Listener buffer full, skip.
		}
	}
	r.mu.RUnlock()
}
