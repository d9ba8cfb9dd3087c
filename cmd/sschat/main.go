package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/danhigham/sschat/internal/api"
	"github.com/danhigham/sschat/internal/chat"
	"github.com/danhigham/sschat/internal/config"
	"github.com/danhigham/sschat/internal/persist"
	"github.com/danhigham/sschat/internal/state"
	"github.com/danhigham/sschat/internal/ui"
)

func main() {
	// Load config
	cfgDir := config.Dir()
	cfgPath := filepath.Join(cfgDir, "config.yaml")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config from %s: %v\n", cfgPath, err)
		fmt.Fprintf(os.Stderr, "\nCreate the config file with:\n")
		fmt.Fprintf(os.Stderr, "  mkdir -p %s\n", cfgDir)
		fmt.Fprintf(os.Stderr, "  cat > %s << 'EOF'\n", cfgPath)
		fmt.Fprintf(os.Stderr, "server:\n  base_url: %q\nEOF\n", config.DefaultBaseURL)
		fmt.Fprintf(os.Stderr, "\nCredentials may go under account: or in SSCHAT_USERNAME / SSCHAT_PASSWORD.\n")
		os.Exit(1)
	}

	// Setup logging to file; the terminal belongs to the UI.
	logPath := filepath.Join(cfgDir, "sschat.log")
	logCfg := zap.NewDevelopmentConfig()
	logCfg.OutputPaths = []string{logPath}
	logCfg.ErrorOutputPaths = []string{logPath}
	if lvl, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		logCfg.Level = lvl
	}
	logger, err := logCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	client, err := api.New(cfg.Server.BaseURL, cfg.Server.Timeout, logger.Named("api"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid server.base_url: %v\n", err)
		os.Exit(1)
	}

	states, err := persist.NewDir(cfg.StateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open state directory: %v\n", err)
		os.Exit(1)
	}

	// Create store (drawFunc will be set after app is created)
	store := state.New(nil)
	svc := chat.NewService(client, store, states, logger.Named("chat"))
	poller := chat.NewPoller(svc, cfg.Poll.Interval, cfg.Poll.RefreshInterval, logger.Named("poller"))

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Without a full credential pair the login screen opens, pre-filled with
	// any configured username.
	creds := ui.Credentials{Username: cfg.Account.Username}
	if cfg.HasCredentials() {
		creds.Password = cfg.Account.Password
	}
	app := ui.NewApp(ctx, store, svc, poller, creds)

	// Now wire the callbacks into the event loop
	store.SetDrawFunc(app.DrawFunc())
	poller.OnTick = app.TickFunc()
	poller.OnExpired = app.ExpiredFunc()

	logger.Info("starting", zap.String("server", cfg.Server.BaseURL), zap.Duration("poll", cfg.Poll.Interval))

	// Run TUI (blocks until quit)
	runErr := app.Run()

	cancel()
	poller.Stop()
	svc.Save()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
}
