package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"idcmosaic/internal/server"
	"idcmosaic/pkg/manifest"
)

// newServeCmd creates the serve command: host a manifest over HTTP.
func newServeCmd() *cobra.Command {
	var (
		manifestPath string
		addr         string
		client       clientOptions
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the manifest and rendered mosaics over HTTP",
		Long: `Serve hosts a generated manifest: GET /manifest.json returns the raw
document, GET /mosaic.png renders a mosaic with runtime query parameters
(tiles, mode, width, height, seed), and GET /healthz reports liveness.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			m, err := manifest.Load(manifestPath)
			if err != nil {
				return err
			}
			client.useManifestEndpoint(cmd, m)
			dw, err := client.newClient(ctx)
			if err != nil {
				return fmt.Errorf("build transport client: %w", err)
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           server.New(m, dw, logger).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Infof("serving %d tiles on %s", m.TotalTiles, addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
				return ctx.Err()
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "manifest.json", "manifest to serve")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	client.register(cmd)

	return cmd
}
