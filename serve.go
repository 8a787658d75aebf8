package main

import (
	"context"
	"os"
	"syscall"

	"livereload/config"
	"livereload/platform/shutdown"
	"livereload/proxy"
	"livereload/reconcile"
	"livereload/web"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/rweb"
	"github.com/rohanthewiz/serr"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the live reload stream, client script and optional injecting proxy",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		flags := cmd.Flags()
		if flags.Changed("addr") {
			cfg.Addr, _ = flags.GetString("addr")
		}
		if flags.Changed("public-url") {
			cfg.PublicURL, _ = flags.GetString("public-url")
		}
		if flags.Changed("interval") {
			cfg.Interval, _ = flags.GetDuration("interval")
		}
		if flags.Changed("proxy-addr") {
			cfg.ProxyAddr, _ = flags.GetString("proxy-addr")
		}
		if flags.Changed("proxy-target") {
			cfg.ProxyTarget, _ = flags.GetString("proxy-target")
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	f := serveCmd.Flags()
	f.SortFlags = false
	f.String("addr", "", "listen address (default :8090)")
	f.String("public-url", "", "URL browsers use to reach this server (default: relative)")
	f.Duration("interval", 0, "rescan interval per connection (default 1s)")
	f.String("proxy-addr", "", "listen address of the injecting proxy (disabled when empty)")
	f.String("proxy-target", "", "upstream dev site behind the proxy")
}

func serve(ctx context.Context, cfg *config.Config) error {
	host, err := os.Hostname()
	if err != nil {
		return serr.Wrap(err, "failed to read hostname")
	}
	if !cfg.HostAllowed(host) {
		return serr.F("live reload is not enabled on host %q (allowed: %v)", host, cfg.AllowedHosts)
	}

	match, err := reconcile.ParseMatchMode(cfg.Match)
	if err != nil {
		return err
	}

	fp, w, err := newFingerprinter(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lr := web.New(ctx, fp, cfg.PublicURL, cfg.Interval, match)

	s := rweb.NewServer(rweb.ServerOptions{
		Address: cfg.Addr,
		Verbose: true,
	})
	s.Use(rweb.RequestInfo)
	web.SetupRoutes(s, lr)

	var px *rweb.Server
	if cfg.ProxyAddr != "" {
		p, err := proxy.New(ctx, cfg.ProxyTarget, lr.Snippet)
		if err != nil {
			return err
		}
		px = rweb.NewServer(rweb.ServerOptions{
			Address: cfg.ProxyAddr,
			Verbose: true,
		})
		px.Use(rweb.RequestInfo)
		p.SetupRoutes(px)
	}

	done := make(chan struct{})
	shutdown.InitShutdownService(done)
	shutdown.RegisterHook("live reload streams", func(context.Context) error {
		cancel()
		lr.Hub().CancelAll()
		return nil
	})
	shutdown.RegisterHook("http servers", func(context.Context) error {
		return stopServers()
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting live reload server", "addr", cfg.Addr, "components", len(w.Names), "roots", len(w.Roots))
		if err := s.Run(); err != nil {
			return serr.Wrap(err, "live reload server stopped", "addr", cfg.Addr)
		}
		return nil
	})

	if px != nil {
		g.Go(func() error {
			logger.Info("Starting injecting proxy", "addr", cfg.ProxyAddr, "target", cfg.ProxyTarget)
			if err := px.Run(); err != nil {
				return serr.Wrap(err, "proxy stopped", "addr", cfg.ProxyAddr)
			}
			return nil
		})
	}

	go func() {
		<-gctx.Done()
		shutdown.Trigger("server stopped")
	}()

	<-done
	return g.Wait()
}

// stopServers ends rweb's Run loops, which only return on SIGINT/SIGTERM.
// A signal that started shutdown has already reached them; a second one is
// dropped, so this also covers shutdown started by Trigger.
func stopServers() error {
	proc, err := os.FindProcess(os.Getpid())
	if err != nil {
		return serr.Wrap(err, "failed to find own process")
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return serr.Wrap(err, "failed to signal http servers")
	}
	return nil
}
