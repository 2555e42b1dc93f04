package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/yuanying/epubrsvp/internal/api"
	"github.com/yuanying/epubrsvp/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the library over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			origins, _ := cmd.Flags().GetStringSlice("allow-origin")
			importRate, _ := cmd.Flags().GetFloat64("import-rate")
			watchDir, _ := cmd.Flags().GetString("watch")
			if importRate <= 0 {
				return fmt.Errorf("invalid --import-rate %v (must be positive)", importRate)
			}

			a, err := openApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := a.ensureIndexed(ctx); err != nil {
				a.logger.Warn("search index rebuild failed", "error", err)
			}

			srv := &http.Server{
				Addr:    addr,
				Handler: api.NewServer(api.Options{
					Library:        a.library,
					Positions:      a.positions,
					Settings:       a.settings,
					Search:         a.index,
					Logger:         a.logger,
					AllowedOrigins: origins,
					ImportRate:     rate.Limit(importRate),
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.logger.Info("listening", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			if watchDir != "" {
				w, err := watcher.New(watchDir, a.library, a.logger, watcher.Options{ImportExisting: true})
				if err != nil {
					stop()
					_ = g.Wait()
					return err
				}
				g.Go(func() error { return w.Run(gctx) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().StringSlice("allow-origin", nil, "Allowed CORS origin, repeatable (default: any)")
	cmd.Flags().Float64("import-rate", 1, "Import requests allowed per second")
	cmd.Flags().String("watch", "", "Also import books dropped into this folder")
	return cmd
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch DIR",
		Short: "Import books dropped into a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			existing, _ := cmd.Flags().GetBool("existing")
			settle, _ := cmd.Flags().GetDuration("settle")
			if settle < 0 {
				return fmt.Errorf("invalid --settle %v (must not be negative)", settle)
			}

			a, err := openApp(cmd, args)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w, err := watcher.New(args[0], a.library, a.logger, watcher.Options{
				SettleDelay:    settle,
				ImportExisting: existing,
			})
			if err != nil {
				return err
			}
			return w.Run(ctx)
		},
	}
	cmd.Flags().Bool("existing", false, "Import files already in the folder first")
	cmd.Flags().Duration("settle", 0, "How long a file must stay unchanged before import (default 500ms)")
	return cmd
}
