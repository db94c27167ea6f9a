package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xraph/bastion/api"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			srv := &http.Server{
				Addr:         addr,
				Handler:      api.New(a.eng, nil).Handler(),
				ReadTimeout:  a.cfg.Server.ReadTimeout,
				WriteTimeout: a.cfg.Server.WriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				a.log.Info("http server listening", "addr", addr)
				fmt.Printf("bastion listening on %s (log: %s)\n", addr, a.log.Path)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
			case err = <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					a.log.Error("http server failed", "error", err)
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
			defer cancel()
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				a.log.Warn("http shutdown incomplete", "error", serr)
			}
			if cerr := a.close(shutdownCtx); cerr != nil {
				return cerr
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from server.addr)")
	return cmd
}
