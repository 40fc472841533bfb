package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"strife/server/internal/blob"
	"strife/server/internal/dispatch"
	"strife/server/internal/httpapi"
	"strife/server/internal/protocol"
	"strife/server/internal/session"
	"strife/server/internal/store"
	"strife/server/internal/transport"
)

// Version is injected at build time with -ldflags.
var Version = "0.1.0-dev"

// queueDepth buffers decrypted frames between each listener and its
// dispatcher loop.
const queueDepth = 256

func main() {
	cfg, rest, err := loadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	if RunCLI(rest, cfg.DB) {
		return
	}

	// Auto-enable debug logging for dev builds; override with -debug flag.
	level := slog.LevelInfo
	if cfg.Debug || strings.Contains(Version, "dev") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("starting server", "version", Version, "name", cfg.Name, "db", cfg.DB)

	if err := run(cfg); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func run(cfg Config) error {
	st, err := store.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("open sqlite store: %w", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("close sqlite store", "err", closeErr)
		}
	}()

	dataDir := strings.TrimSpace(cfg.DataDir)
	if dataDir == "" {
		dataDir = filepath.Join(filepath.Dir(cfg.DB), "data")
	}
	blobs, err := blob.NewStore(dataDir)
	if err != nil {
		return fmt.Errorf("initialize blob store: %w", err)
	}

	sessions := session.NewRegistry()

	generalQueue := make(chan transport.Frame, queueDepth)
	chatsQueue := make(chan transport.Frame, queueDepth)
	filesQueue := make(chan transport.Frame, queueDepth)

	general, err := transport.NewListener(protocol.General, cfg.General, generalQueue)
	if err != nil {
		return err
	}
	chats, err := transport.NewListener(protocol.Chats, cfg.Chats, chatsQueue)
	if err != nil {
		return err
	}
	files, err := transport.NewListener(protocol.Files, cfg.Files, filesQueue)
	if err != nil {
		return err
	}

	if err := general.Start(); err != nil {
		return err
	}
	if err := chats.Start(); err != nil {
		general.Stop()
		return err
	}
	if err := files.Start(); err != nil {
		general.Stop()
		chats.Stop()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := dispatch.New(st, blobs, sessions, general, chats, files)

	var wg sync.WaitGroup
	channels := []struct {
		ch    protocol.Channel
		queue chan transport.Frame
	}{
		{protocol.General, generalQueue},
		{protocol.Chats, chatsQueue},
		{protocol.Files, filesQueue},
	}
	for _, c := range channels {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Run(ctx, c.ch, c.queue)
		}()
	}

	api := httpapi.New(cfg.Name, sessions, general, chats, files)
	slog.Info("listening",
		"general", general.Addr().String(),
		"chats", chats.Addr().String(),
		"files", files.Addr().String(),
		"http", cfg.HTTP)

	err = api.Run(ctx, cfg.HTTP)

	// Stopping a listener drains its connection goroutines and then closes
	// its queue, which is what ends the matching dispatcher loop.
	general.Stop()
	chats.Stop()
	files.Stop()
	wg.Wait()
	return err
}
