// Package api talks to the chat server's REST endpoints: registration,
// login, message history and file upload. The websocket channel is handled
// separately by internal/transport.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/talkwire/talkwire/internal/proto"
	"github.com/talkwire/talkwire/internal/util"
)

// AuthError is a credential rejection reported by the server. It is surfaced
// to the user and leaves the login flow where it is.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: util.NormalizeURL(baseURL),
		HTTP: &http.Client{
			Timeout: util.DefaultFetchTimeout,
		},
	}
}

// postJSON sends body as JSON and decodes the response into out (out may be
// nil). 4xx with an "error" field is returned as *AuthError.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	b, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode/100 == 4 {
		var e struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&e); err == nil {
			msg := e.Error
			if msg == "" {
				msg = e.Detail
			}
			if msg != "" {
				return &AuthError{Message: msg}
			}
		}
		return &AuthError{Message: fmt.Sprintf("request rejected: %s", resp.Status)}
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("POST %s: status %s", path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Register creates a new account. The caller falls back to the login form
// afterwards; no token is issued.
func (c *Client) Register(ctx context.Context, username, password string) error {
	body := map[string]string{"username": username, "password": password}
	return c.postJSON(ctx, "/api/register/", body, nil)
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	body := map[string]string{"username": username, "password": password}
	var out struct {
		Access string `json:"access"`
	}
	if err := c.postJSON(ctx, "/api/token/", body, &out); err != nil {
		return "", err
	}
	if out.Access == "" {
		return "", &AuthError{Message: "login response carried no access token"}
	}
	return out.Access, nil
}

// Messages fetches the recent transcript (oldest first, as served).
func (c *Client) Messages(ctx context.Context, token string) ([]*proto.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/messages/", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// Stale or revoked token; the caller drops it and re-authenticates.
		return nil, &AuthError{Message: fmt.Sprintf("history rejected: %s", resp.Status)}
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("GET /api/messages/: status %s", resp.Status)
	}
	var out []*proto.Event
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Upload transfers a local file and returns the durable URL the server
// assigned. Uploads get a longer deadline than the regular API calls.
func (c *Client) Upload(ctx context.Context, token, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/upload/", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	// Uploads can outlive the regular API timeout by a wide margin.
	resp, err := (&http.Client{Timeout: 5 * time.Minute}).Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("upload: status %s", resp.Status)
	}
	var out struct {
		File string `json:"file"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.File == "" {
		return "", fmt.Errorf("upload: response carried no file URL")
	}
	return out.File, nil
}
