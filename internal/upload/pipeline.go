// Package upload turns a local file into an optimistic chat message and, in
// the background, a durable media reference republished to peers.
package upload

import (
	"context"
	"fmt"
	"log"
	"mime"
	"path/filepath"
	"strings"

	"github.com/talkwire/talkwire/internal/chat"
	"github.com/talkwire/talkwire/internal/proto"
)

// Uploader is the REST collaborator that stores file bytes durably.
type Uploader interface {
	Upload(ctx context.Context, token, path string) (url string, err error)
}

// Pipeline publishes file messages for one session.
type Pipeline struct {
	self  string
	token string
	api   Uploader
	rec   *chat.Reconciler
	out   chat.Sender

	// alert surfaces terminal upload failures to the local user only.
	alert func(string)
}

func New(self, token string, api Uploader, rec *chat.Reconciler, out chat.Sender, alert func(string)) *Pipeline {
	if alert == nil {
		alert = func(msg string) { log.Printf("UPLOAD: %s", msg) }
	}
	return &Pipeline{self: self, token: token, api: api, rec: rec, out: out, alert: alert}
}

// Submit appends an optimistic local message for the file immediately, then
// uploads it in the background. On success the durable URL is republished
// on the channel for peers; the optimistic entry is never rewritten or
// removed. On failure the user gets a one-shot alert and the optimistic
// entry stands. The returned channel closes when the background transfer
// settles (tests and shutdown hooks wait on it).
func (p *Pipeline) Submit(ctx context.Context, path string) (<-chan struct{}, error) {
	msgType := Classify(path)
	// The body names the raw mime category, which differs from msg_type for
	// anything folded into "file" (an mp3 reads "Sent a audio").
	body := fmt.Sprintf("Sent a %s", mediaCategory(path))

	// Local preview uses a transient reference to the file's bytes; the
	// local view never needs the durable URL.
	optimistic := proto.NewMedia(p.self, msgType, "file://"+filepath.ToSlash(path), body)
	p.rec.AppendLocal(optimistic)

	done := make(chan struct{})
	go func() {
		defer close(done)

		url, err := p.api.Upload(ctx, p.token, path)
		if err != nil {
			log.Printf("UPLOAD: %s: %v", path, err)
			p.alert("Upload failed")
			return
		}

		// Addressed to peers; our own echo of it is suppressed like any
		// other self-originated event.
		resolved := proto.NewMedia(p.self, msgType, url, body)
		if err := p.out.Send(resolved); err != nil {
			log.Printf("UPLOAD: republish failed (peers will miss %s): %v", url, err)
		}
	}()
	return done, nil
}

// Classify maps a filename to its chat message type by top-level media
// category. Only image and video pass through; everything else — audio
// included — is a generic file, matching the sender's classifier even
// though render understands an audio type.
func Classify(path string) string {
	switch mediaCategory(path) {
	case "image":
		return proto.TypeImage
	case "video":
		return proto.TypeVideo
	default:
		return proto.TypeFile
	}
}

// mediaCategory is the raw top-level mime category of the filename, "file"
// when the extension is unknown.
func mediaCategory(path string) string {
	mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	category, _, _ := strings.Cut(mt, "/")
	if category == "" {
		return "file"
	}
	return category
}
