package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"
	"github.com/tcriess/lightspeed-pagechat/chat"
	"github.com/tcriess/lightspeed-pagechat/config"
	"github.com/tcriess/lightspeed-pagechat/globals"
	"github.com/tcriess/lightspeed-pagechat/rooms"
	"github.com/tcriess/lightspeed-pagechat/urlnorm"
	"github.com/tcriess/lightspeed-pagechat/ws"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
)

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	cfg, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		globals.AppLogger.Error("could not read configuration", "error", err)
		os.Exit(1)
	}
	globals.AppLogger.SetLevel(hclog.LevelFromString(cfg.LogLevel))

	if err := run(cfg); err != nil {
		globals.AppLogger.Error("stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	normalizer, err := urlnorm.NewNormalizer(cfg.UrlCacheSize)
	if err != nil {
		return err
	}
	directory, err := rooms.NewDirectory(cfg.DefaultRoom, normalizer, globals.AppLogger.Named("rooms"))
	if err != nil {
		return err
	}
	defer directory.Close()

	hub := ws.NewHub(globals.AppLogger.Named("hub"))
	coordinator := chat.NewCoordinator(directory, hub, chat.Options{
		DisablePrivateFallback: cfg.DisablePrivateFallback,
	}, globals.AppLogger.Named("chat"))
	if cfg.Presence.SweepSpec != "" {
		err = coordinator.StartPresenceSweep(cfg.Presence.SweepSpec, cfg.Presence.IdleAfter, cfg.Presence.AwayAfter)
		if err != nil {
			return err
		}
	}
	defer coordinator.Stop()

	handler := ws.NewHandler(hub, coordinator, ws.Options{
		AllowedOrigins:  cfg.AllowedOrigins,
		MaxMessageSize:  cfg.MaxMessageSize,
		SendBuffer:      cfg.SendBuffer,
		EventsPerSecond: cfg.RateLimit.EventsPerSecond,
		Burst:           cfg.RateLimit.Burst,
	}, globals.AppLogger.Named("ws"))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           ws.NewRouter(handler, directory, hub),
		ReadHeaderTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		globals.AppLogger.Info("listening", "addr", cfg.Addr, "tls", cfg.SSLCert != "" && cfg.SSLKey != "")
		var err error
		if cfg.SSLCert != "" && cfg.SSLKey != "" {
			err = srv.ListenAndServeTLS(cfg.SSLCert, cfg.SSLKey)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		globals.AppLogger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
