package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/astromechza/memoboard/pkg/api"
	"github.com/astromechza/memoboard/pkg/broadcast"
	"github.com/astromechza/memoboard/pkg/config"
	"github.com/astromechza/memoboard/pkg/store"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	cfg, err := config.Load(".env", os.Args[1:])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := store.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer s.Close()

	hub := broadcast.NewHub(cfg.SubscriberBuffer)
	gateway := api.NewGateway(
		s.Boards(), s.Memos(), hub,
		api.WithMaxBodyBytes(cfg.MaxBodyBytes),
		api.WithPinger(s),
	)
	r := api.NewRouter(gateway, broadcast.NewHandler(hub))

	httpServer := &http.Server{Addr: cfg.Addr, Handler: r}

	var listenErr error
	wg := new(sync.WaitGroup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("Server listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr = err
			cancel()
		}
	}()

	exit := make(chan os.Signal, 1) // we need to reserve to buffer size 1, so the notifier are not blocked
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-exit:
		slog.Info("Signal caught", "sig", sig)
	case <-ctx.Done():
	}

	// push connections are hijacked so Shutdown does not wait for them, end them first
	hub.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "err", err)
		_ = httpServer.Close()
	}

	wg.Wait()
	if listenErr != nil {
		return fmt.Errorf("server listen failed: %w", listenErr)
	}
	slog.Info("Stopped")
	return nil
}
