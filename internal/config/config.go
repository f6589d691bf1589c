package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/talkwire/talkwire/internal/util"
)

type Config struct {
	Server Server `json:"server"`
	Media  Media  `json:"media"`
	Chat   Chat   `json:"chat"`
}

type Server struct {
	// Base URL of the REST API, e.g. "http://127.0.0.1:8000".
	// Relative media_url values are resolved against this origin.
	BaseURL string `json:"base_url"`

	// WebSocket endpoint for the chat/signaling channel.
	// Empty means derived from BaseURL ("/ws/chat/", ws scheme).
	WSURL string `json:"ws_url"`
}

type Media struct {
	// Preferred capture devices. Empty = first available.
	PreferredCam string `json:"preferred_cam"`
	PreferredMic string `json:"preferred_mic"`

	// Disable video/audio calls entirely (e.g. headless machines).
	CallsDisabled bool `json:"calls_disabled"`
}

type Chat struct {
	// Number of transcript entries kept in memory.
	HistorySize int `json:"history_size"`
}

func Default() Config {
	return Config{
		Server: Server{BaseURL: "http://127.0.0.1:8000"},
		Chat:   Chat{HistorySize: 500},
	}
}

// Load reads the config file at path. A missing file yields Default().
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config as indented JSON.
func Save(path string, cfg Config) error {
	return util.WriteJSONFile(path, cfg)
}

// Validate checks URLs and fills derived defaults in place.
func (c *Config) Validate() error {
	c.Server.BaseURL = util.NormalizeURL(c.Server.BaseURL)
	if c.Server.BaseURL == "" {
		return errors.New("server.base_url is required")
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server.base_url %q is not a valid http(s) URL", c.Server.BaseURL)
	}

	if c.Server.WSURL == "" {
		ws := "ws"
		if u.Scheme == "https" {
			ws = "wss"
		}
		c.Server.WSURL = ws + "://" + u.Host + "/ws/chat/"
	}
	wu, err := url.Parse(c.Server.WSURL)
	if err != nil || !strings.HasPrefix(wu.Scheme, "ws") || wu.Host == "" {
		return fmt.Errorf("server.ws_url %q is not a valid ws(s) URL", c.Server.WSURL)
	}

	if c.Chat.HistorySize <= 0 {
		c.Chat.HistorySize = Default().Chat.HistorySize
	}
	return nil
}
