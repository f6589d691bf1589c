package chat

import (
	"strings"

	"github.com/talkwire/talkwire/internal/proto"
)

// Display is the presentation-ready form of a transcript entry. Media kinds
// carry an absolute URL; Body is the message text (or the download label for
// plain files).
type Display struct {
	Kind string // "text", "image", "video", "audio" or "file"
	Body string
	URL  string
}

// Render maps a transcript entry to its display payload. It is a pure
// function and total over msg_type: unrecognized types fall back to plain
// text so a newer server never breaks rendering.
func (r *Reconciler) Render(ev *proto.Event) Display {
	switch ev.Type {
	case proto.TypeImage, proto.TypeVideo, proto.TypeAudio:
		return Display{Kind: ev.Type, Body: ev.Message, URL: r.absoluteURL(ev.MediaURL)}
	case proto.TypeFile:
		return Display{Kind: proto.TypeFile, Body: "Download File", URL: r.absoluteURL(ev.MediaURL)}
	default:
		return Display{Kind: proto.TypeText, Body: ev.Message}
	}
}

// absoluteURL qualifies a media reference against the server origin. Local
// preview handles (file://) and already-qualified URLs pass through.
func (r *Reconciler) absoluteURL(u string) string {
	if u == "" {
		return ""
	}
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") ||
		strings.HasPrefix(u, "file://") || strings.HasPrefix(u, "blob:") {
		return u
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return r.origin + u
}
