// internal/app/prompt.go
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/talkwire/talkwire/internal/api"
	"github.com/talkwire/talkwire/internal/session"
	"github.com/talkwire/talkwire/internal/storage"
	"github.com/talkwire/talkwire/internal/util"
)

var errInputClosed = errors.New("input closed")

// console multiplexes one line-oriented input between the command loop and
// modal questions (login, call confirmation). A single goroutine owns the
// underlying reader; everyone else receives whole lines from the channel, so
// a modal question simply claims the next line typed.
type console struct {
	out   io.Writer
	lines chan string
}

func newConsole(in io.Reader, out io.Writer) *console {
	c := &console{out: out, lines: make(chan string)}
	go func() {
		defer close(c.lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			c.lines <- strings.TrimSpace(sc.Text())
		}
	}()
	return c
}

func (c *console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *console) readLine(ctx context.Context) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	case s, ok := <-c.lines:
		return s, ok
	}
}

func (c *console) ask(ctx context.Context, label, def string) (string, bool) {
	if def != "" {
		fmt.Fprintf(c.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(c.out, "%s: ", label)
	}
	s, ok := c.readLine(ctx)
	if !ok {
		return "", false
	}
	if s == "" {
		return def, true
	}
	return s, true
}

func (c *console) askBool(ctx context.Context, label string, def bool) (bool, bool) {
	defStr := "n"
	if def {
		defStr = "y"
	}
	for {
		fmt.Fprintf(c.out, "%s [y/n] (default=%s): ", label, defStr)
		s, ok := c.readLine(ctx)
		if !ok {
			return false, false
		}
		switch strings.ToLower(s) {
		case "":
			return def, true
		case "y", "yes", "true", "1":
			return true, true
		case "n", "no", "false", "0":
			return false, true
		default:
			c.printf("Please enter y or n.")
		}
	}
}

// promptSession runs the login dialogue until a session exists. A failed
// login offers registration; anything other than bad credentials aborts,
// since retyping won't fix an unreachable server.
func promptSession(ctx context.Context, con *console, client *api.Client, store *storage.Store) (*session.Session, error) {
	for {
		raw, ok := con.ask(ctx, "Username", "")
		if !ok {
			return nil, errInputClosed
		}
		username, err := util.ValidateUsername(raw)
		if err != nil {
			con.printf("%v", err)
			continue
		}
		password, ok := con.ask(ctx, "Password", "")
		if !ok {
			return nil, errInputClosed
		}

		sess, err := session.Login(ctx, client, store, username, password)
		if err == nil {
			return sess, nil
		}
		var authErr *api.AuthError
		if !errors.As(err, &authErr) {
			return nil, err
		}
		con.printf("Login failed: %v", authErr)

		register, ok := con.askBool(ctx, "Create this account", false)
		if !ok {
			return nil, errInputClosed
		}
		if !register {
			continue
		}
		if err := client.Register(ctx, username, password); err != nil {
			con.printf("Registration failed: %v", err)
			continue
		}
		sess, err = session.Login(ctx, client, store, username, password)
		if err == nil {
			con.printf("Account created.")
			return sess, nil
		}
		con.printf("Login after registration failed: %v", err)
	}
}
