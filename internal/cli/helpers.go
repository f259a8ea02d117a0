package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"idcmosaic/pkg/cache"
	"idcmosaic/pkg/catalog"
	"idcmosaic/pkg/dicomweb"
	"idcmosaic/pkg/manifest"
)

// appName is the application name used for directories and display.
const appName = "idcmosaic"

// cacheDir returns the cache directory using XDG standard (~/.cache/idcmosaic/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// clientOptions are the transport flags shared by every command that talks
// to the DICOMweb endpoint.
type clientOptions struct {
	baseURL   string
	viewerURL string
	noCache   bool
	cacheTTL  time.Duration
	redisAddr string
}

func (o *clientOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.baseURL, "base-url", dicomweb.DefaultBaseURL, "DICOMweb endpoint root")
	cmd.Flags().StringVar(&o.viewerURL, "viewer-url", dicomweb.DefaultViewerBaseURL, "viewer root for citation links")
	cmd.Flags().BoolVar(&o.noCache, "no-cache", false, "disable the transport response cache")
	cmd.Flags().DurationVar(&o.cacheTTL, "cache-ttl", 24*time.Hour, "lifetime of cached responses (0 = no expiry)")
	cmd.Flags().StringVar(&o.redisAddr, "redis", "", "Redis address for a shared cache (default: local file cache)")
}

// newClient builds the DICOMweb client, choosing the cache backend from the
// flags: Redis when --redis is set, the XDG file cache otherwise, and the
// null cache with --no-cache or when no cache directory can be resolved.
func (o *clientOptions) newClient(ctx context.Context) (*dicomweb.Client, error) {
	backend, err := o.newCache(ctx)
	if err != nil {
		return nil, err
	}
	return dicomweb.New(dicomweb.Config{
		BaseURL:       o.baseURL,
		ViewerBaseURL: o.viewerURL,
		Cache:         backend,
		CacheTTL:      o.cacheTTL,
	}), nil
}

// useManifestEndpoint points the transport at the endpoint the manifest was
// generated against, so tiles render from the archive that produced them.
// An explicit --base-url still wins.
func (o *clientOptions) useManifestEndpoint(cmd *cobra.Command, m *manifest.Manifest) {
	if m.BaseFrameURL != "" && !cmd.Flags().Changed("base-url") {
		o.baseURL = m.BaseFrameURL
	}
}

func (o *clientOptions) newCache(ctx context.Context) (cache.Cache, error) {
	if o.noCache {
		return cache.NewNullCache(), nil
	}
	if o.redisAddr != "" {
		return cache.NewRedisCache(ctx, cache.RedisConfig{Addr: o.redisAddr})
	}
	dir, err := cacheDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// openCatalog builds a catalog backend from its flag value: a MongoDB URI
// selects the live mirror, anything else is read as a snapshot file path.
// The returned func releases backend resources.
func openCatalog(ctx context.Context, source, database string) (catalog.Catalog, func(), error) {
	if strings.HasPrefix(source, "mongodb://") || strings.HasPrefix(source, "mongodb+srv://") {
		m, err := catalog.NewMongo(ctx, source, database)
		if err != nil {
			return nil, nil, err
		}
		return m, func() { _ = m.Close(context.Background()) }, nil
	}
	snap, err := catalog.LoadSnapshot(source)
	if err != nil {
		return nil, nil, err
	}
	return snap, func() {}, nil
}
