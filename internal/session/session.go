// Package session ties an authenticated identity to the resources that live
// exactly as long as it: the access token and the websocket channel. A
// session is built on successful login (or restored from the token store)
// and torn down on logout — nothing session-scoped lives in ambient state.
package session

import (
	"context"
	"errors"
	"log"

	"github.com/talkwire/talkwire/internal/api"
	"github.com/talkwire/talkwire/internal/storage"
	"github.com/talkwire/talkwire/internal/transport"
)

// ErrNoSession is returned by Resume when no token is stored.
var ErrNoSession = errors.New("session: no stored credentials")

type Session struct {
	Username string
	Token    string

	store   *storage.Store
	channel *transport.Channel
}

// Login exchanges credentials for a token and persists it so the session
// survives a restart.
func Login(ctx context.Context, client *api.Client, store *storage.Store, username, password string) (*Session, error) {
	token, err := client.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if err := store.SaveToken(username, token); err != nil {
		log.Printf("SESSION: persisting token failed (session is memory-only): %v", err)
	}
	return &Session{Username: username, Token: token, store: store}, nil
}

// Resume rebuilds a session from the persisted token, if any.
func Resume(store *storage.Store) (*Session, error) {
	username, token, err := store.Token()
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrNoSession
	}
	return &Session{Username: username, Token: token, store: store}, nil
}

// Connect opens the chat/signaling channel. The channel exists only while
// the session does: it is dialed here and closed by Logout.
func (s *Session) Connect(wsURL string) *transport.Channel {
	s.channel = transport.Dial(wsURL, s.Token)
	return s.channel
}

// Channel returns the open channel, nil before Connect.
func (s *Session) Channel() *transport.Channel { return s.channel }

// Logout tears the channel down and clears the persisted token.
func (s *Session) Logout() {
	if s.channel != nil {
		s.channel.Close()
		s.channel = nil
	}
	if err := s.store.ClearToken(); err != nil {
		log.Printf("SESSION: clearing token failed: %v", err)
	}
	s.Token = ""
}
