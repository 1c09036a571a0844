package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"raceview/internal/watch"
)

var openBrowser = browser.OpenURL

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().String("addr", "", "listen address (overrides http.addr)")
	cmd.Flags().Bool("open", false, "open the page in the default browser once listening")
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			open, err := cmd.Flags().GetBool("open")
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts, open, nil)
		},
	}
	addServeFlags(cmd)
	return cmd
}

// serve runs the server until ctx is done. ready, when set, receives the
// page URL once the listener is bound.
func serve(ctx context.Context, opts *rootOptions, open bool, ready func(url string)) error {
	cfg, logger := opts.cfg, opts.logger
	a, err := newApp(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close", zap.Error(err))
		}
	}()

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTP.Addr, err)
	}
	var watcher *watch.Watcher
	if cfg.Source.Watch {
		if watcher, err = watch.New(cfg.DataPath(), a.service, logger.Named("watch"), 0); err != nil {
			_ = ln.Close()
			return err
		}
	}
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	a.service.Start(gctx)
	g.Go(func() error {
		<-gctx.Done()
		a.service.Wait()
		return nil
	})

	if a.exporter != nil {
		a.exporter.Start()
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			return a.exporter.Stop(sctx)
		})
	}

	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}

	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	url := "http://" + ln.Addr().String() + "/"
	logger.Info("serving race records",
		zap.String("url", url),
		zap.String("source", a.service.Source()))
	if ready != nil {
		ready(url)
	}
	if open {
		if err := openBrowser(url); err != nil {
			logger.Warn("open browser", zap.Error(err))
		}
	}

	err = g.Wait()
	logger.Info("server stopped")
	return err
}
