package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"go.zsiec.dev/ovtpull/ovt"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	configPath := flag.String("config", "ovtpull.yaml", "path to the stream configuration file")
	flag.Parse()

	fc, err := loadFileConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	reg := newRegistry()

	slog.Info("ovtpull starting", "streams", len(fc.Streams), "config", *configPath)

	g, gctx := errgroup.WithContext(ctx)
	clients := make([]*ovt.Client, len(fc.Streams))

	for i, sc := range fc.Streams {
		i, sc := i, sc
		handle := reg.issue(sc.Name)

		cfg := ovt.Config{
			URLs:              sc.URLs,
			ConnectTimeout:    sc.connectTimeout(),
			RecvTimeout:       sc.recvTimeout(),
			MaxPacketSize:     sc.MaxPacketSize,
			MaxInFlightFrames: sc.MaxInFlightFrames,
		}
		metrics := newAtomicMetrics()
		client := ovt.NewClient(cfg, newLogRouter(sc.Name),
			ovt.WithMetrics(metrics),
			ovt.WithStreamHandle(handle.String()),
		)
		clients[i] = client

		g.Go(func() error {
			return runStream(gctx, sc.Name, client, metrics)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		for i, c := range clients {
			if c.State() == ovt.StatePlaying {
				if err := c.Stop(); err != nil {
					slog.Warn("graceful stop failed", "stream", fc.Streams[i].Name, "error", err)
				}
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("ovtpull exiting with error", "error", err)
		os.Exit(1)
	}
	slog.Info("ovtpull exited cleanly")
}

// runStream drives one client's full lifecycle: Start, Wait for the worker
// to finish, log a final metrics snapshot. Start failure is permitted to
// retry against the next configured URL, mirroring the failover allowed
// between attempts (not mid-session).
func runStream(ctx context.Context, name string, client *ovt.Client, metrics *atomicMetrics) error {
	for {
		if err := client.Start(ctx); err != nil {
			slog.Error("stream start failed", "stream", name, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			if client.State() != ovt.StateError {
				return nil
			}
			continue
		}

		slog.Info("stream playing", "stream", name, "session_id", client.SessionID(), "tracks", len(client.Tracks()))

		if err := client.Wait(ctx); err != nil {
			slog.Warn("wait interrupted", "stream", name, "error", err)
		}

		bytesIn, reqMS, respMS := metrics.snapshot()
		slog.Info("stream ended", "stream", name, "state", client.State(),
			"bytes_in", bytesIn, "connect_ms", reqMS, "handshake_ms", respMS)

		if ctx.Err() != nil || client.State() != ovt.StateError {
			return nil
		}
	}
}
