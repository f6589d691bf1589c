package config

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.BaseURL != Default().Server.BaseURL {
		t.Fatalf("expected default base_url, got %q", cfg.Server.BaseURL)
	}
}

func TestValidateDerivesWSURL(t *testing.T) {
	cfg := Default()
	cfg.Server.BaseURL = "https://chat.example.org/"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Server.BaseURL != "https://chat.example.org" {
		t.Fatalf("base_url not normalized: %q", cfg.Server.BaseURL)
	}
	if cfg.Server.WSURL != "wss://chat.example.org/ws/chat/" {
		t.Fatalf("ws_url not derived: %q", cfg.Server.WSURL)
	}
}

func TestValidateRejectsBadURLs(t *testing.T) {
	cfg := Default()
	cfg.Server.BaseURL = "ftp://nope"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-http base_url")
	}

	cfg = Default()
	cfg.Server.WSURL = "http://not-ws"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-ws ws_url")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Default()
	cfg.Media.PreferredCam = "front"
	cfg.Chat.HistorySize = 42
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Media.PreferredCam != "front" || got.Chat.HistorySize != 42 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
