package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/gsmc-io/gsmc/internal/httpapi"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server (spec.md §6's endpoint table)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			api := httpapi.New(a.prov, a.log)
			srv := &http.Server{
				Addr:         a.cfg.HTTPAddr,
				Handler:      api,
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 30 * time.Second,
				IdleTimeout:  90 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.log.Sugar().Infow("httpapi: listening", "addr", a.cfg.HTTPAddr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
					return
				}
				errCh <- nil
			}()

			select {
			case <-cmd.Context().Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shut down HTTP server: %w", err)
				}
				return cmd.Context().Err()
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("httpapi: listen and serve: %w", err)
				}
				return nil
			}
		},
	}
}
