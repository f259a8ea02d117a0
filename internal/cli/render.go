package cli

import (
	"fmt"
	"image/png"
	"math/rand/v2"
	"os"
	"time"

	"github.com/spf13/cobra"

	"idcmosaic/pkg/manifest"
	"idcmosaic/pkg/mosaic"
)

// newRenderCmd creates the render command: draw a manifest as a mosaic PNG.
func newRenderCmd() *cobra.Command {
	var (
		output string
		tiles  int
		mode   string
		width  int
		height int
		seed   uint64
		client clientOptions
	)

	cmd := &cobra.Command{
		Use:   "render MANIFEST",
		Short: "Draw a mosaic PNG from a manifest",
		Long: `Render fetches base imagery (and segmentation masks, where the manifest
carries them) for up to --tiles tiles and packs them into a randomized
treemap layout. Individual tile failures degrade to plainer tiles; only a
fully empty render fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			renderMode, err := mosaic.ParseMode(mode)
			if err != nil {
				return err
			}

			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}
			client.useManifestEndpoint(cmd, m)

			dw, err := client.newClient(ctx)
			if err != nil {
				return fmt.Errorf("build transport client: %w", err)
			}

			if seed == 0 {
				seed = uint64(time.Now().UnixNano())
			}
			rng := rand.New(rand.NewPCG(seed, seed))
			session := mosaic.NewSession(m, dw, logger, rng)

			prog := newProgress(logger)
			spin := newSpinnerWithContext(ctx, "Rendering mosaic...")
			spin.Start()
			img, err := session.Render(ctx, tiles, renderMode, width, height)
			spin.Stop()
			if err != nil {
				return fmt.Errorf("render mosaic: %w", err)
			}
			prog.done("Rendered mosaic")

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := png.Encode(f, img); err != nil {
				return fmt.Errorf("encode %s: %w", output, err)
			}

			printSuccess("Rendered %dx%d mosaic (%s mode)", width, height, renderMode)
			printFile(output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "mosaic.png", "output image path")
	cmd.Flags().IntVar(&tiles, "tiles", 0, "number of tiles to draw (0 = all)")
	cmd.Flags().StringVar(&mode, "mode", "diverse", "view mode: diverse, base, or segmentation")
	cmd.Flags().IntVar(&width, "width", 1920, "canvas width in pixels")
	cmd.Flags().IntVar(&height, "height", 1080, "canvas height in pixels")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "layout seed (0 = varies per run)")
	client.register(cmd)

	return cmd
}
