package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/wsmd/console/internal/client"
	"github.com/wsmd/console/internal/config"
	"github.com/wsmd/console/internal/mockserver"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	configPath := flag.String("config", "wsmd.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	simulate := flag.Bool("simulate", false, "Generate device registrations and hits")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Mock.Port = *port
	}
	if *simulate {
		cfg.Mock.Simulate.Enabled = true
	}

	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	secret := cfg.Mock.JWTSecret
	if secret == "" {
		var err error
		if secret, err = config.GenerateToken(); err != nil {
			return fmt.Errorf("generate signing secret: %w", err)
		}
		logger.Warn("no jwt_secret configured, sessions will not survive a restart")
	}

	store := mockserver.NewStore(bcrypt.DefaultCost)
	for _, u := range cfg.Mock.Users {
		if _, err := store.AddUser(u.Username, u.Password, u.IsKeyUser); err != nil {
			return fmt.Errorf("seed user %q: %w", u.Username, err)
		}
	}
	for _, d := range cfg.Mock.Devices {
		store.PutDevice(client.Device{MACAddress: d.MACAddress, Name: d.Name, MaxHits: d.MaxHits})
	}

	srv := mockserver.NewServer(store, mockserver.NewTokens(secret, cfg.Mock.TokenTTL), mockserver.Options{
		PollInterval:   cfg.Mock.PollInterval,
		HeartbeatEvery: cfg.Mock.HeartbeatEvery,
		AllowedOrigins: cfg.Mock.AllowedOrigins,
		Logger:         logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Mock.Simulate.Enabled {
		logger.Info("starting device simulator", "devices", cfg.Mock.Simulate.Devices, "interval", cfg.Mock.Simulate.Interval)
		sim := mockserver.NewSimulator(store, cfg.Mock.Simulate.Interval, cfg.Mock.Simulate.Devices, clock.New(), logger)
		sim.Start(ctx)
	}

	addr := net.JoinHostPort(cfg.Mock.Host, fmt.Sprint(cfg.Mock.Port))
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		// Streams end with the process context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mock backend listening", "addr", addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
