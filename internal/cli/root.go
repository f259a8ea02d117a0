// Package cli implements the idcmosaic command-line interface.
//
// Commands:
//   - generate: sample tiles from the imaging catalog into a manifest
//   - update-viewer-urls: recompute derived viewer links in a manifest
//   - render: draw a mosaic PNG from a manifest
//   - serve: expose the manifest and rendered mosaics over HTTP
//   - cache: manage the transport response cache
//
// All commands support --verbose (-v) for debug-level logging. Loggers are
// passed through context.Context so every layer logs through the same sink.
package cli

import (
	"context"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	version string // semantic version (e.g., "v1.2.3")
	commit  string // git commit SHA
	date    string // build timestamp
)

// SetVersion sets the version information displayed by --version. Typically
// called by the main package with values injected via ldflags.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the idcmosaic CLI and returns an error if any command fails.
//
// Logging defaults to info level on stderr; --verbose (-v) switches to
// debug. The logger is attached to the command context and retrieved by
// subcommands via loggerFromContext.
func Execute(ctx context.Context) error {
	var verbose bool

	root := &cobra.Command{
		Use:          "idcmosaic",
		Short:        "idcmosaic samples medical-imaging tiles into an interactive mosaic",
		Long:         `idcmosaic draws a stratified, quality-filtered sample of imaging tiles from the IDC catalog, attaches AI-segmentation overlays to CT tiles, and renders the result as an irregularly packed mosaic.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(ctx)
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("idcmosaic %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newGenerateCmd())
	root.AddCommand(newUpdateViewerURLsCmd())
	root.AddCommand(newRenderCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newCacheCmd())
	root.AddCommand(newCompletionCmd())

	return root.ExecuteContext(ctx)
}
