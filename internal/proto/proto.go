// Package proto defines the wire events exchanged on the chat/signaling
// channel. Chat and call negotiation share one JSON event shape; Kind()
// tells the dispatcher which flow an inbound event belongs to.
package proto

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message types carried in the msg_type field.
const (
	TypeText  = "text"
	TypeImage = "image"
	TypeVideo = "video"
	TypeAudio = "audio"
	TypeFile  = "file"

	TypeRTCOffer     = "rtc_offer"
	TypeRTCAnswer    = "rtc_answer"
	TypeRTCCandidate = "rtc_candidate"
)

// Call modes carried in the call_mode field of an rtc_offer.
const (
	ModeAudio = "audio"
	ModeVideo = "video"
)

// Kind partitions events into the two flows multiplexed on the channel.
type Kind int

const (
	KindChat Kind = iota
	KindSignal
)

// Event is one message on the channel. Chat variants use Message/MediaURL/
// Timestamp; rtc_* variants carry exactly one of Offer/Answer/Candidate as
// an opaque payload. Username identifies the originator in both families —
// it is the only identity the protocol provides.
type Event struct {
	Type     string `json:"msg_type"`
	Username string `json:"username"`

	Message   string `json:"message,omitempty"`
	MediaURL  string `json:"media_url,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`

	CallMode  string          `json:"call_mode,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// Kind classifies the event. Anything that is not an rtc_* signal is chat,
// including unknown msg_type values — render has a plain-text fallback, so
// unknown chat types still flow to the transcript.
func (e *Event) Kind() Kind {
	switch e.Type {
	case TypeRTCOffer, TypeRTCAnswer, TypeRTCCandidate:
		return KindSignal
	}
	return KindChat
}

// NewText builds a locally-timestamped text message.
func NewText(username, body string) *Event {
	return &Event{
		Type:      TypeText,
		Username:  username,
		Message:   body,
		Timestamp: Stamp(time.Now()),
	}
}

// NewMedia builds a media message of the given chat type pointing at url.
// The body mirrors the server's "Sent a <category>" convention.
func NewMedia(username, msgType, url, body string) *Event {
	return &Event{
		Type:      msgType,
		Username:  username,
		Message:   body,
		MediaURL:  url,
		Timestamp: Stamp(time.Now()),
	}
}

// NewOffer builds an rtc_offer for the given call mode.
func NewOffer(username, mode string, offer json.RawMessage) *Event {
	return &Event{Type: TypeRTCOffer, Username: username, CallMode: mode, Offer: offer}
}

// NewAnswer builds an rtc_answer.
func NewAnswer(username string, answer json.RawMessage) *Event {
	return &Event{Type: TypeRTCAnswer, Username: username, Answer: answer}
}

// NewCandidate builds an rtc_candidate.
func NewCandidate(username string, cand json.RawMessage) *Event {
	return &Event{Type: TypeRTCCandidate, Username: username, Candidate: cand}
}

// Stamp renders t the way the server labels message timestamps:
// "Today, 15:04:05", "Yesterday, 15:04:05", or "02 Jan, 15:04:05".
func Stamp(t time.Time) string {
	clock := t.Format("15:04:05")

	y, m, d := time.Now().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	y, m, d = t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())

	switch {
	case day.Equal(today):
		return fmt.Sprintf("Today, %s", clock)
	case day.Equal(today.AddDate(0, 0, -1)):
		return fmt.Sprintf("Yesterday, %s", clock)
	default:
		return t.Format("02 Jan, 15:04:05")
	}
}
