package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/airwave/internal/config"
	"github.com/dkeye/airwave/internal/listener"
	"github.com/dkeye/airwave/internal/playback"
	"github.com/dkeye/airwave/internal/sink"
)

const statusPeriod = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	flags := config.ListenerFlags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatal().Err(err).Msg("bad flags")
	}
	cfg, err := config.LoadListener(flags)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(config.ParseLevel(cfg.LogLevel))

	var out io.Writer = io.Discard
	if cfg.Output != "" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.Output).Msg("open output")
		}
		defer f.Close()
		out = f
	}

	loop := playback.NewLoop(&sink.Factory{Out: out, MaxBuffered: cfg.MaxBuffered}, playback.Options{
		Config: playback.Config{
			High:       cfg.HighWater,
			Low:        cfg.LowWater,
			MaxPending: cfg.MaxPending,
			RetryDelay: cfg.RetryDelay,
		},
		Candidates: cfg.Codecs,
		OnExhausted: func(err error) {
			log.Error().Err(err).Msg("no compatible playback path for this broadcaster")
		},
	})

	client, err := listener.Dial(ctx, cfg.ServerURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect")
	}
	lst := listener.New(client, loop, cfg.Broadcaster)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		loop.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return client.Run(gctx, lst)
	})
	g.Go(func() error {
		if err := client.GetBroadcasters(); err != nil {
			return err
		}
		t := time.NewTicker(statusPeriod)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				report(gctx, lst, loop)
			}
		}
	})

	err = g.Wait()
	_ = lst.Stop()
	_ = client.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("listener stopped")
		os.Exit(1)
	}
	log.Info().Msg("Listener exited gracefully")
}

func report(ctx context.Context, lst *listener.Listener, loop *playback.Loop) {
	snap, err := loop.Snapshot(ctx)
	if err != nil {
		return
	}
	log.Info().
		Str("broadcaster", string(lst.Tuned())).
		Int("available", len(lst.Broadcasters())).
		Str("state", snap.State.String()).
		Str("codec", snap.Codec).
		Dur("buffered", snap.Buffered).
		Int("pending", snap.Pending).
		Int("handed_off", snap.Stats.HandedOff).
		Int("dropped", snap.Stats.Dropped).
		Int("trimmed", snap.Stats.Trimmed).
		Msg("status")
}
