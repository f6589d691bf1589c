// Package app wires the client together: credentials, history preload, the
// websocket channel, the chat reconciler, the call negotiator and the upload
// pipeline, driven from a line-oriented console.
package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/talkwire/talkwire/internal/api"
	"github.com/talkwire/talkwire/internal/call"
	"github.com/talkwire/talkwire/internal/chat"
	"github.com/talkwire/talkwire/internal/config"
	"github.com/talkwire/talkwire/internal/proto"
	"github.com/talkwire/talkwire/internal/session"
	"github.com/talkwire/talkwire/internal/storage"
	"github.com/talkwire/talkwire/internal/upload"
)

type Options struct {
	ProfileDir string
	Cfg        config.Config

	// In/Out default to stdin/stdout; tests substitute buffers.
	In  io.Reader
	Out io.Writer
}

func Run(ctx context.Context, opt Options) error {
	if opt.In == nil {
		opt.In = os.Stdin
	}
	if opt.Out == nil {
		opt.Out = os.Stdout
	}
	cfg := opt.Cfg
	con := newConsole(opt.In, opt.Out)

	store, err := storage.Open(opt.ProfileDir)
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer store.Close()

	client := api.NewClient(cfg.Server.BaseURL)

	sess, err := session.Resume(store)
	switch {
	case err == nil:
		log.Printf("APP: resumed session for %s", sess.Username)
	case err == session.ErrNoSession:
		sess, err = promptSession(ctx, con, client, store)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("restore session: %w", err)
	}

	for {
		again, err := runSession(ctx, con, opt, client, store, sess)
		if err != nil || !again {
			return err
		}
		// Logged out: prompt for the next identity.
		sess, err = promptSession(ctx, con, client, store)
		if err != nil {
			return err
		}
	}
}

// runSession drives one logged-in session to its end. It reports whether the
// user logged out (true: prompt again) or quit (false).
func runSession(ctx context.Context, con *console, opt Options, client *api.Client, store *storage.Store, sess *session.Session) (loggedOut bool, err error) {
	cfg := opt.Cfg

	// Preload before dialing: anything sent after this snapshot arrives on
	// the channel only, so a live event can never duplicate a seeded entry.
	// A token rejection here means the stored token went stale: drop it and
	// ask for a fresh login.
	history, err := client.Messages(ctx, sess.Token)
	if err != nil {
		if _, stale := err.(*api.AuthError); stale {
			log.Printf("APP: stored token rejected, logging out")
			sess.Logout()
			return true, nil
		}
		return false, fmt.Errorf("load history: %w", err)
	}

	ch := sess.Connect(cfg.Server.WSURL)
	defer ch.Close()

	rec := chat.New(sess.Username, cfg.Server.BaseURL, ch, cfg.Chat.HistorySize)
	defer rec.Close()
	rec.Seed(history)

	confirm := func(from, mode string) bool {
		if cfg.Media.CallsDisabled {
			log.Printf("APP: auto-rejecting %s call from %s (calls disabled)", mode, from)
			return false
		}
		accept, ok := con.askBool(ctx, fmt.Sprintf("%s is %s calling you. Accept", from, mode), false)
		return ok && accept
	}
	neg := call.New(ch, sess.Username,
		call.NewMediaFactory(cfg.Media.PreferredCam, cfg.Media.PreferredMic), confirm)
	defer neg.End()

	pipe := upload.New(sess.Username, sess.Token, client, rec, ch, func(msg string) {
		con.printf("! %s", msg)
	})

	feed := rec.Subscribe()
	defer rec.Unsubscribe(feed)

	banner(con, sess.Username, len(history))
	for _, ev := range rec.Transcript() {
		printEvent(con, rec, ev)
	}

	for {
		select {
		case <-ctx.Done():
			return false, nil

		case ev, ok := <-ch.Events():
			if !ok {
				return false, fmt.Errorf("channel closed")
			}
			switch ev.Kind() {
			case proto.KindSignal:
				neg.HandleSignal(ev)
			default:
				rec.OnInbound(ev)
			}

		case ev := <-feed:
			printEvent(con, rec, ev)

		case line, ok := <-con.lines:
			if !ok {
				return false, nil
			}
			quit, out := command(ctx, con, cfg, rec, neg, pipe, sess, line)
			if quit {
				return false, nil
			}
			if out {
				return true, nil
			}
		}
	}
}

// command executes one console line. Lines starting with "/" are commands,
// anything else is sent as a chat message.
func command(ctx context.Context, con *console, cfg config.Config, rec *chat.Reconciler, neg *call.Negotiator, pipe *upload.Pipeline, sess *session.Session, line string) (quit, loggedOut bool) {
	if line == "" {
		return false, false
	}
	if !strings.HasPrefix(line, "/") {
		rec.SendText(line)
		return false, false
	}

	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "call":
		if cfg.Media.CallsDisabled {
			con.printf("Calls are disabled in the configuration.")
			return false, false
		}
		mode := proto.ModeAudio
		if arg == proto.ModeVideo {
			mode = proto.ModeVideo
		}
		switch err := neg.Call(mode); {
		case err == nil:
			con.printf("Calling (%s)...", mode)
		case err == call.ErrBusy:
			con.printf("Already in a call. /end it first.")
		default:
			con.printf("Call failed: %v", err)
		}

	case "end":
		neg.End()
		con.printf("Call ended.")

	case "upload":
		if arg == "" {
			con.printf("Usage: /upload <path>")
			return false, false
		}
		if _, err := pipe.Submit(ctx, arg); err != nil {
			con.printf("Upload failed: %v", err)
		}

	case "status":
		con.printf("Signed in as %s. Call state: %s.", sess.Username, neg.State())

	case "logout":
		sess.Logout()
		con.printf("Logged out.")
		return false, true

	case "quit", "exit":
		return true, false

	case "help":
		con.printf("Commands: /call [audio|video], /end, /upload <path>, /status, /logout, /quit")

	default:
		con.printf("Unknown command %q. Try /help.", cmd)
	}
	return false, false
}

func printEvent(con *console, rec *chat.Reconciler, ev *proto.Event) {
	d := rec.Render(ev)
	when := ev.Timestamp
	if when == "" {
		when = "-"
	}
	if d.URL != "" {
		con.printf("[%s] %s: %s <%s>", when, ev.Username, d.Body, d.URL)
		return
	}
	con.printf("[%s] %s: %s", when, ev.Username, d.Body)
}

func banner(con *console, username string, history int) {
	con.printf("────────────────────────────────────────")
	con.printf(" Talkwire · signed in as %s", username)
	con.printf(" %d messages preloaded · /help for commands", history)
	con.printf("────────────────────────────────────────")
}
