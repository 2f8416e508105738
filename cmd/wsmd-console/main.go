package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/wsmd/console/internal/app"
	"github.com/wsmd/console/internal/client"
	"github.com/wsmd/console/internal/config"
	"github.com/wsmd/console/internal/stream"
)

func main() {
	configPath := flag.String("config", "wsmd.yaml", "Path to config file")
	backendURL := flag.String("url", "", "Override backend base URL, e.g. http://127.0.0.1:8000")
	transport := flag.String("transport", "", "Override stream transport (sse or websocket)")
	logFile := flag.String("log", "", "Write logs to this file (the terminal belongs to the UI)")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	if *backendURL != "" {
		cfg.Backend.URL = *backendURL
	}
	if *transport != "" {
		cfg.Stream.Transport = *transport
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
	if err := cfg.Validate(); err != nil {
		fatalf("config: %v", err)
	}

	var logOut io.Writer = io.Discard
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			fatalf("open log file: %v", err)
		}
		defer f.Close()
		logOut = f
	}
	logger, err := cfg.Log.NewLogger(logOut)
	if err != nil {
		fatalf("%v", err)
	}

	bridge := app.NewBridge()
	api, err := client.NewHTTPClient(cfg.Backend.URL,
		client.WithNavigator(bridge),
		client.WithLogger(logger),
		client.WithTimeout(cfg.Backend.Timeout),
	)
	if err != nil {
		fatalf("backend: %v", err)
	}
	forms := client.NewFormController(api, logger)

	streamURL := cfg.StreamURL()
	streams := func(consumer stream.Consumer, privileged bool) app.Stream {
		var src stream.Source
		if cfg.Stream.Transport == config.TransportWebSocket {
			src = &stream.WSSource{URL: streamURL, Jar: api.Jar(), IdleTimeout: cfg.Stream.IdleTimeout}
		} else {
			src = &stream.SSESource{URL: streamURL, Client: api.StreamClient(), IdleTimeout: cfg.Stream.IdleTimeout}
		}
		return stream.New(src, consumer,
			stream.WithPrivileged(privileged),
			stream.WithLogger(logger.With("transport", cfg.Stream.Transport)),
		)
	}

	logger.Info("starting console", "backend", cfg.Backend.URL, "transport", cfg.Stream.Transport)
	m := app.New(bridge, api, forms, streams, app.WithLogger(logger))
	p := tea.NewProgram(m, tea.WithAltScreen())
	bridge.SetSend(p.Send)

	if _, err := p.Run(); err != nil {
		fatalf("%v", err)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
