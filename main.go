// main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/talkwire/talkwire/internal/app"
	"github.com/talkwire/talkwire/internal/config"
)

var (
	profileDir = flag.String("profile", defaultProfileDir(), "profile directory (config, credentials)")
	serverURL  = flag.String("server", "", "override the chat server base URL")
	showHelp   = flag.Bool("h", false, "Show help")
	version    = flag.Bool("version", false, "Show version")
)

// appVersion is set at build time via -ldflags "-X main.appVersion=x.y.z"
var appVersion = "dev"

func main() {
	// A .env next to the binary can set TALKWIRE_SERVER for development.
	_ = godotenv.Load()

	flag.Parse()

	if *version {
		fmt.Printf("Talkwire v%s\n", appVersion)
		return
	}
	if *showHelp {
		showUsage()
		return
	}

	absDir, err := filepath.Abs(*profileDir)
	if err != nil {
		log.Fatalf("Invalid profile directory: %v", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		log.Fatalf("Cannot create profile directory: %v", err)
	}

	cfgPath := filepath.Join(absDir, "talkwire.json")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *serverURL != "" {
		cfg.Server.BaseURL = *serverURL
	} else if env := os.Getenv("TALKWIRE_SERVER"); env != "" {
		cfg.Server.BaseURL = env
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		log.Printf("WARNING: could not persist config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("\nShutting down...")
		cancel()
	}()

	if err := app.Run(ctx, app.Options{
		ProfileDir: absDir,
		Cfg:        cfg,
	}); err != nil {
		log.Fatalf("Client failed: %v", err)
	}
}

func defaultProfileDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "talkwire")
	}
	return ".talkwire"
}

func showUsage() {
	fmt.Println("Talkwire - chat and calls over one websocket")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  talkwire [-profile <directory>] [-server <url>]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -profile  Profile directory holding talkwire.json and credentials")
	fmt.Println("  -server   Chat server base URL (overrides config and TALKWIRE_SERVER)")
	fmt.Println("  -h        Show this help message")
	fmt.Println("  -version  Show version information")
	fmt.Println()
	fmt.Println("Once connected, type a message and press enter to send it.")
	fmt.Println("Commands: /call [audio|video], /end, /upload <path>, /status, /logout, /quit")
}
