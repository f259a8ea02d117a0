package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"idcmosaic/pkg/dicomweb"
	"idcmosaic/pkg/manifest"
)

// newUpdateViewerURLsCmd creates the update-viewer-urls command: the fast
// path that recomputes derived viewer links without touching sampled
// content.
func newUpdateViewerURLsCmd() *cobra.Command {
	var (
		output    string
		viewerURL string
	)

	cmd := &cobra.Command{
		Use:   "update-viewer-urls MANIFEST",
		Short: "Recompute derived viewer links in a manifest",
		Long: `Update-viewer-urls rewrites every viewer link in a manifest against the
given viewer root. No re-sampling and no segmentation resolution happens;
all sampled content is carried over byte for byte.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}

			client := dicomweb.New(dicomweb.Config{ViewerBaseURL: viewerURL})
			m.RefreshViewerURLs(client.ViewerURL)

			if output == "" {
				output = args[0]
			}
			if err := m.Save(output); err != nil {
				return fmt.Errorf("write manifest: %w", err)
			}
			printSuccess("Refreshed viewer links for %d tiles", m.TotalTiles)
			printFile(output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default: overwrite input)")
	cmd.Flags().StringVar(&viewerURL, "viewer-url", dicomweb.DefaultViewerBaseURL, "viewer root for citation links")

	return cmd
}
