// Package call drives a two-party call attempt through offer → answer →
// ICE exchange → connected → ended. It is coupled to the rest of talkwire
// only through the Signaler and Media interfaces.
package call

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/talkwire/talkwire/internal/proto"
)

// Signaler is the outbound side of the signaling channel.
type Signaler interface {
	Send(*proto.Event) error
}

// Media is the capture-plus-peer-connection capability a negotiation drives.
// The production implementation wraps Pion; tests substitute a fake.
type Media interface {
	// CreateOffer generates a local offer and sets it as the local
	// description. The returned payload is opaque to the caller.
	CreateOffer() (json.RawMessage, error)

	// CreateAnswer applies the remote offer, generates an answer and sets
	// it as the local description.
	CreateAnswer(offer json.RawMessage) (json.RawMessage, error)

	// AcceptAnswer applies the remote answer description.
	AcceptAnswer(answer json.RawMessage) error

	// AddCandidate applies one remote ICE candidate.
	AddCandidate(candidate json.RawMessage) error

	// OnCandidate registers the sink for locally gathered ICE candidates.
	OnCandidate(fn func(json.RawMessage))

	// OnRemoteTrack registers a callback fired once when the first remote
	// media track arrives.
	OnRemoteTrack(fn func())

	// Close releases the capture devices and discards the peer connection.
	// Idempotent.
	Close()
}

// MediaFactory acquires local capture for the given call mode ("audio" or
// "video") and returns a ready Media. Acquisition failure is a hardware
// error: the devices are missing or busy.
type MediaFactory func(mode string) (Media, error)

// ErrBusy is returned by Call while another call attempt is active.
// Exactly one call session may exist at a time.
var ErrBusy = errors.New("call: another call is active")

// HardwareError reports that the capture devices could not be acquired.
// It is surfaced to the initiating user only; the flow returns to idle.
type HardwareError struct {
	Err error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("camera/mic unavailable: %v", e.Err)
}

func (e *HardwareError) Unwrap() error { return e.Err }
