package call

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/talkwire/talkwire/internal/proto"
)

// State of the current call attempt.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateRinging
	StateNegotiating
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateRinging:
		return "ringing"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// ConfirmFunc solicits the local accept/reject decision for an incoming
// call. It blocks the signaling flow until the user answers; conflicting
// signaling events queue up behind it rather than racing the decision.
type ConfirmFunc func(from, mode string) bool

// Negotiator is the per-client call state machine. One mutex serializes
// every transition: user intents, inbound signals and media callbacks never
// interleave mid-negotiation, which closes the re-entrancy window between
// the asynchronous capture/offer/answer steps.
type Negotiator struct {
	sig     Signaler
	self    string
	media   MediaFactory
	confirm ConfirmFunc

	mu        sync.Mutex
	state     State
	mode      string
	id        string // per-attempt id, logs only
	sess      Media
	remoteSet bool              // remote description applied to sess
	pending   []json.RawMessage // remote candidates awaiting the remote description
}

// New creates an idle negotiator for the local username.
func New(sig Signaler, self string, media MediaFactory, confirm ConfirmFunc) *Negotiator {
	return &Negotiator{sig: sig, self: self, media: media, confirm: confirm}
}

// State returns the current call state.
func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Mode returns the call mode of the active attempt ("" when idle).
func (n *Negotiator) Mode() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mode
}

// Call starts an outbound call in the given mode. Returns ErrBusy if a call
// attempt is already active, a *HardwareError if capture acquisition fails
// (no retry; the state returns to idle).
func (n *Negotiator) Call(mode string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != StateIdle {
		return ErrBusy
	}
	n.state = StateRequesting
	n.mode = mode
	n.id = uuid.NewString()[:8]

	m, err := n.media(mode)
	if err != nil {
		n.resetLocked()
		return &HardwareError{Err: err}
	}
	n.attachLocked(m)

	offer, err := m.CreateOffer()
	if err != nil {
		m.Close()
		n.resetLocked()
		return err
	}
	n.sess = m

	if err := n.sig.Send(proto.NewOffer(n.self, mode, offer)); err != nil {
		log.Printf("CALL [%s]: offer send failed: %v", n.id, err)
	}
	n.state = StateNegotiating
	log.Printf("CALL [%s]: %s call offered, negotiating", n.id, mode)
	return nil
}

// End hangs up the active attempt. Capture devices and the peer connection
// are released on every exit path; no end-of-call event goes on the wire —
// the remote side observes the loss of media on its own.
func (n *Negotiator) End() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateIdle {
		return
	}
	log.Printf("CALL [%s]: ended locally", n.id)
	n.resetLocked()
}

// HandleSignal applies one inbound signaling event. Events carrying the
// local username are self-echo and never change state.
func (n *Negotiator) HandleSignal(ev *proto.Event) {
	if ev.Username == n.self {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	switch ev.Type {
	case proto.TypeRTCOffer:
		n.handleOfferLocked(ev)
	case proto.TypeRTCAnswer:
		n.handleAnswerLocked(ev)
	case proto.TypeRTCCandidate:
		n.handleCandidateLocked(ev)
	}
}

func (n *Negotiator) handleOfferLocked(ev *proto.Event) {
	if n.state != StateIdle {
		// No re-entrant negotiation: a second offer while busy is dropped
		// without a reply.
		log.Printf("CALL [%s]: rejecting offer from %s while %s", n.id, ev.Username, n.state)
		return
	}
	n.state = StateRinging
	n.mode = ev.CallMode
	n.id = uuid.NewString()[:8]

	if n.confirm == nil || !n.confirm(ev.Username, ev.CallMode) {
		log.Printf("CALL [%s]: %s call from %s declined", n.id, ev.CallMode, ev.Username)
		n.resetLocked()
		return
	}

	m, err := n.media(ev.CallMode)
	if err != nil {
		// The peer gets no abort signal; it only ever sees silence.
		log.Printf("CALL [%s]: capture failed, abandoning ring: %v", n.id, err)
		n.resetLocked()
		return
	}
	n.attachLocked(m)

	answer, err := m.CreateAnswer(ev.Offer)
	if err != nil {
		log.Printf("CALL [%s]: answer failed: %v", n.id, err)
		m.Close()
		n.resetLocked()
		return
	}
	n.sess = m
	n.remoteSet = true // CreateAnswer applied the remote offer
	n.flushCandidatesLocked()

	if err := n.sig.Send(proto.NewAnswer(n.self, answer)); err != nil {
		log.Printf("CALL [%s]: answer send failed: %v", n.id, err)
	}
	n.state = StateNegotiating
	log.Printf("CALL [%s]: answered %s call from %s", n.id, ev.CallMode, ev.Username)
}

func (n *Negotiator) handleAnswerLocked(ev *proto.Event) {
	if n.state != StateNegotiating || n.sess == nil {
		log.Printf("CALL [%s]: ignoring answer from %s while %s", n.id, ev.Username, n.state)
		return
	}
	if err := n.sess.AcceptAnswer(ev.Answer); err != nil {
		log.Printf("CALL [%s]: applying answer failed: %v", n.id, err)
		return
	}
	n.remoteSet = true
	n.flushCandidatesLocked()
	n.state = StateConnected
	log.Printf("CALL [%s]: connected to %s", n.id, ev.Username)
}

func (n *Negotiator) handleCandidateLocked(ev *proto.Event) {
	if n.sess == nil || !n.remoteSet {
		// Candidate raced ahead of the remote description: the answerer's
		// gathering starts before its rtc_answer goes out, so its candidates
		// can precede the answer on the ordered wire (and on the answerer
		// side, candidates can arrive while the accept prompt is open).
		// Park it; it is applied once the remote description is set and
		// dropped if the attempt dies first.
		if n.state != StateIdle {
			n.pending = append(n.pending, ev.Candidate)
		}
		return
	}
	if err := n.sess.AddCandidate(ev.Candidate); err != nil {
		log.Printf("CALL [%s]: add candidate: %v", n.id, err)
	}
}

// onRemoteTrack promotes the answering side to connected: no explicit ack
// completes its transition, the first remote media does.
func (n *Negotiator) onRemoteTrack() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateNegotiating {
		n.state = StateConnected
		log.Printf("CALL [%s]: remote media arrived, connected", n.id)
	}
}

// attachLocked wires media callbacks. Locally gathered candidates go out
// immediately; they carry no state change.
func (n *Negotiator) attachLocked(m Media) {
	m.OnCandidate(func(c json.RawMessage) {
		if err := n.sig.Send(proto.NewCandidate(n.self, c)); err != nil {
			log.Printf("CALL [%s]: candidate send failed: %v", n.id, err)
		}
	})
	m.OnRemoteTrack(n.onRemoteTrack)
}

func (n *Negotiator) flushCandidatesLocked() {
	for _, c := range n.pending {
		if err := n.sess.AddCandidate(c); err != nil {
			log.Printf("CALL [%s]: add buffered candidate: %v", n.id, err)
		}
	}
	n.pending = nil
}

func (n *Negotiator) resetLocked() {
	if n.sess != nil {
		n.sess.Close()
		n.sess = nil
	}
	n.pending = nil
	n.remoteSet = false
	n.state = StateIdle
	n.mode = ""
}
