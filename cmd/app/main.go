package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"coin_swap/internal/app"
	"coin_swap/internal/domain"
	"coin_swap/internal/service"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		if errors.Is(err, domain.ErrConfigNotFound) {
			fmt.Fprintf(os.Stderr, "config file not found: %s\n", *configPath)
		}
		os.Exit(1)
	}
	defer bootstrap.Close()
	cfg := bootstrap.Config

	// 2. Pprof Server (for performance profiling)
	if addr := cfg.Debug.PprofAddr; addr != "" {
		go func() {
			slog.Info("Pprof server started", slog.String("addr", addr))
			if err := http.ListenAndServe(addr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Mount the widget
	widget := bootstrap.NewWidget()
	if err := widget.Mount(ctx); err != nil {
		slog.Error("Failed to mount widget", slog.Any("error", err))
		os.Exit(1)
	}
	defer widget.Unmount()

	console := app.NewConsole(widget, bootstrap.Storage, bootstrap.Metrics, os.Stdout)

	// 5. Loading screen, then background icon sync
	fmt.Fprintln(os.Stdout, "Loading asset catalog...")
	select {
	case <-widget.Ready():
	case <-ctx.Done():
		return
	}
	console.Print(widget.Snapshot())
	if widget.Snapshot().Status == service.StatusReady.String() {
		go bootstrap.SyncIcons(ctx, bootstrap.Catalog.Assets())
	}

	slog.Info("Coin swap widget running", slog.String("id", widget.ID()))

	// 6. Command loop until quit, EOF or signal
	if err := console.Run(ctx, os.Stdin); err != nil {
		slog.Error("Console stopped", slog.Any("error", err))
	}

	slog.Info("Shutting down gracefully...")
}
