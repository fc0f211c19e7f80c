package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/palantir-watch/palantir-go/internal/config"
	"github.com/palantir-watch/palantir-go/pkg/palantir"
	"github.com/palantir-watch/palantir-go/pkg/session"
)

func connectCmd() *cobra.Command {
	var (
		server   string
		username string
		metrics  bool
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to the server and wait",
		Long: `Connect to the configured server and keep the session open.

State changes and errors are printed as they happen. Press Ctrl-C
to close the session and exit.

Examples:
  palantir connect
  palantir connect --server=wss://example.com/ws --username=alice
  palantir connect --metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(server, username, metrics, nil)
		},
	}

	addClientFlags(cmd, &server, &username, &metrics)

	return cmd
}

func addClientFlags(cmd *cobra.Command, server, username *string, metrics *bool) {
	cmd.Flags().StringVarP(server, "server", "S", "", "Server URL (default from palantir.json)")
	cmd.Flags().StringVarP(username, "username", "u", "", "Display name (default from palantir.json)")
	cmd.Flags().BoolVarP(metrics, "metrics", "m", false, "Expose prometheus metrics locally")
}

// loadConfig resolves palantir.json and applies command-line overrides.
func loadConfig(server, username string) (*config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	var cfg *config.Config
	if path, err := config.FindConfig(wd); err == nil {
		cfg, err = config.LoadFile(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.New()
	}

	if server != "" {
		cfg.Server = server
	}
	if username != "" {
		cfg.Username = username
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func sessionConfig(cfg *config.Config, logger *slog.Logger) *session.Config {
	sc := session.DefaultConfig(cfg.Server, cfg.Username)
	sc.APIKey = cfg.APIKey
	sc.KeepaliveInterval = cfg.KeepaliveInterval()
	sc.AckTimeout = cfg.AckWindow()
	sc.Logger = logger
	return sc
}

// runClient connects, optionally runs action against the live session,
// then blocks until the session ends or the process is interrupted.
func runClient(server, username string, metrics bool, action func(context.Context, *session.Session) error) error {
	cfg, err := loadConfig(server, username)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	if metrics || cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Addr, logger)
	}

	client := palantir.New(logger)
	done := make(chan string, 1)
	client.OnUpdate(func(st session.State) {
		printState(st)
	})
	client.OnError(func(msg string) {
		warn("%s", msg)
	})
	client.OnClosed(func(msg string) {
		done <- msg
	})

	sess := client.Connect(sessionConfig(cfg, logger))
	openCh := make(chan struct{}, 1)
	sess.OnOpen(func() {
		select {
		case openCh <- struct{}{}:
		default:
		}
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ctx := context.Background()

	select {
	case <-openCh:
		success("Connected to %s as %s", cfg.Server, cfg.Username)
	case msg := <-done:
		return fmt.Errorf("connection failed: %s", msg)
	case <-sigCh:
		client.Clear("interrupted")
		return nil
	}

	if action != nil {
		if err := action(ctx, sess); err != nil {
			client.Clear("client shutting down")
			return err
		}
	}

	select {
	case msg := <-done:
		info("Session ended: %s", msg)
	case <-sigCh:
		fmt.Println()
		client.Clear("client shutting down")
		<-done
	}
	return nil
}

func printState(st session.State) {
	switch st.RoomConnectionStatus {
	case session.StatusInRoom:
		if st.RoomData != nil {
			info("In room %q (%s), %d users", st.RoomData.Name, st.RoomData.ID, len(st.RoomData.Users))
			for _, u := range st.RoomData.Users {
				info("  %s (%s)", u.Name, u.Role)
			}
		}
	case session.StatusJoining:
		info("Joining room...")
	case session.StatusLeaving:
		info("Leaving room...")
	default:
		info("Not in a room")
	}
}

// serveMetrics exposes the prometheus registry on a local listener.
func serveMetrics(addr string, logger *slog.Logger) {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	logger.Info("metrics listener started", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Error("metrics listener failed", "err", err)
	}
}
