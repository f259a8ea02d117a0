package cli

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"idcmosaic/pkg/manifest"
	"idcmosaic/pkg/sampler"
	"idcmosaic/pkg/seg"
)

// newGenerateCmd creates the generate command: sample the catalog and write
// a manifest.
func newGenerateCmd() *cobra.Command {
	var (
		tiles       int
		output      string
		seed        uint64
		withSeg     bool
		filter      bool
		configPath  string
		catalogSpec string
		catalogDB   string
		client      clientOptions
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Sample tiles from the imaging catalog into a manifest",
		Long: `Generate draws a stratified, content-filtered sample of imaging tiles
from the catalog, optionally attaches AI-segmentation data to CT tiles, and
writes the result as a manifest JSON document.

Runs are reproducible: the same seed against the same catalog snapshot
produces an identical manifest.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx).With("run", uuid.NewString()[:8])

			cfg := sampler.DefaultConfig()
			if configPath != "" {
				var err error
				if cfg, err = sampler.LoadConfig(configPath); err != nil {
					return err
				}
			}
			// Flags win over the config file only when set explicitly.
			if cmd.Flags().Changed("with-segmentations") || configPath == "" {
				cfg.WithSegmentations = withSeg
			}
			if cmd.Flags().Changed("content-filter") || configPath == "" {
				cfg.ContentFilter = filter
			}

			cat, closeCat, err := openCatalog(ctx, catalogSpec, catalogDB)
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			defer closeCat()

			dw, err := client.newClient(ctx)
			if err != nil {
				return fmt.Errorf("build transport client: %w", err)
			}

			var resolver *seg.Resolver
			if cfg.WithSegmentations {
				resolver = seg.NewResolver(cat, dw)
			}

			catalogVersion, err := cat.Version(ctx)
			if err != nil {
				return fmt.Errorf("read catalog version: %w", err)
			}

			rng := rand.New(rand.NewPCG(seed, seed))
			s := sampler.New(cat, dw, resolver, cfg, logger, rng)

			prog := newProgress(logger)
			spin := newSpinnerWithContext(ctx, fmt.Sprintf("Sampling %d tiles...", tiles))
			spin.Start()
			samples, err := s.Sample(ctx, tiles)
			spin.Stop()
			if err != nil {
				return fmt.Errorf("sample tiles: %w", err)
			}
			prog.done(fmt.Sprintf("Sampled %d tiles", len(samples)))

			m := manifest.New(catalogVersion, dw.BaseURL(), samples)
			if err := m.Save(output); err != nil {
				return fmt.Errorf("write manifest: %w", err)
			}

			printSuccess("Generated manifest with %d tiles", m.TotalTiles)
			if m.TotalTiles < tiles {
				printWarning("%d of %d requested tiles (candidates exhausted)", m.TotalTiles, tiles)
			}
			printFile(output)
			printModalitySummary(m)
			printNextStep("Render it", fmt.Sprintf("idcmosaic render %s -o mosaic.png", output))
			return nil
		},
	}

	cmd.Flags().IntVarP(&tiles, "tiles", "n", 100, "number of tiles to sample")
	cmd.Flags().StringVarP(&output, "output", "o", "manifest.json", "manifest output path")
	cmd.Flags().Uint64Var(&seed, "seed", 42, "random seed for reproducible runs")
	cmd.Flags().BoolVar(&withSeg, "with-segmentations", true, "attach segmentation data to CT tiles")
	cmd.Flags().BoolVar(&filter, "content-filter", true, "reject blank or low-content previews")
	cmd.Flags().StringVar(&configPath, "config", "", "TOML file overriding sampler defaults")
	cmd.Flags().StringVar(&catalogSpec, "catalog", "catalog.json", "catalog snapshot path or MongoDB URI")
	cmd.Flags().StringVar(&catalogDB, "catalog-db", "idc", "MongoDB database name (with a mongodb:// catalog)")
	client.register(cmd)

	return cmd
}

// printModalitySummary prints the per-modality tile distribution.
func printModalitySummary(m *manifest.Manifest) {
	counts := make(map[string]int)
	segCount := 0
	for _, t := range m.Tiles {
		counts[t.Modality]++
		if t.Segmentation != nil {
			segCount++
		}
	}

	modalities := make([]string, 0, len(counts))
	for mod := range counts {
		modalities = append(modalities, mod)
	}
	sort.Strings(modalities)

	printNewline()
	for _, mod := range modalities {
		printKeyValue(mod, fmt.Sprintf("%d tiles", counts[mod]))
	}
	if segCount > 0 {
		printKeyValue("segmented", fmt.Sprintf("%d CT tiles", segCount))
	}
}
