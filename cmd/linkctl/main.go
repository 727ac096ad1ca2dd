package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/edgelink/internal/admin"
	"github.com/danmuck/edgelink/internal/auth"
	"github.com/danmuck/edgelink/internal/config"
	"github.com/danmuck/edgelink/internal/logging"
	"github.com/danmuck/edgelink/internal/node"
	"github.com/danmuck/edgelink/internal/observability"
	"github.com/danmuck/edgelink/internal/plugins"
	"github.com/danmuck/edgelink/internal/rest"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type options struct {
	configPath string
	logLevel   string
	check      bool
	watch      bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("linkctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	fs.StringVar(&opts.configPath, "config", "edgelink.toml", "config path (.toml or .yaml)")
	fs.StringVar(&opts.logLevel, "log-level", "", "override log level (trace|debug|info|warn|error)")
	fs.BoolVar(&opts.check, "check", false, "load and validate the config, then exit")
	fs.BoolVar(&opts.watch, "watch", true, "reload nodes when the config file changes")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.logLevel != "" {
		if _, ok := logging.ParseLevel(opts.logLevel); !ok {
			return options{}, fmt.Errorf("unknown log level %q", opts.logLevel)
		}
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logging.ConfigureRuntime()
	observability.InitLogger("edgelink")
	if opts.logLevel != "" {
		level, _ := logging.ParseLevel(opts.logLevel)
		zerolog.SetGlobalLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatal().Err(err).Msg("linkctl stopped")
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	log.Info().Str("path", opts.configPath).Int("nodes", len(cfg.Nodes)).Msg("loaded config")
	if opts.check {
		return nil
	}

	store, err := config.OpenStore(cfg.Store)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	manager := node.NewManager(node.Options{
		UserID: cfg.Client.UserID,
		Store:  store,
	})
	defer manager.Close()
	if err := manager.Apply(cfg); err != nil {
		return err
	}

	sources, err := plugins.NewDefaultRegistry()
	if err != nil {
		return err
	}
	adminCfg := admin.Config{Addr: cfg.Admin.Addr, CorsOrigins: cfg.Admin.CorsOrigins}
	if cfg.Admin.Token != "" {
		adminCfg.Auth = auth.StaticToken{Token: cfg.Admin.Token}
	}
	server := admin.New(adminCfg, manager, rest.NewTable(), sources)

	if opts.watch {
		go watchConfig(ctx, opts.configPath, cfg, manager)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Str("user_id", manager.UserID()).Msg("admin listening")
		errCh <- server.Serve()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// watchConfig applies node and client edits live. Store and admin sections
// are read once at startup.
func watchConfig(ctx context.Context, path string, initial config.Config, manager *node.Manager) {
	err := config.Watch(ctx, path, func(next config.Config) {
		if next.Store != initial.Store || next.Admin.Addr != initial.Admin.Addr || next.Admin.Token != initial.Admin.Token {
			log.Warn().Str("path", path).Msg("store and admin changes need a restart")
		}
		if err := manager.Apply(next); err != nil {
			log.Error().Err(err).Msg("config reload rejected")
			return
		}
		log.Info().Int("nodes", len(next.Nodes)).Msg("config reloaded")
	}, func(err error) {
		log.Warn().Err(err).Str("path", path).Msg("config reload failed")
	})
	if err != nil {
		log.Error().Err(err).Msg("config watch stopped")
	}
}
