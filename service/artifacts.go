package service

import (
	"context"
	"time"

	"github.com/vocdoni/aegis/circuits"
	"github.com/vocdoni/aegis/log"
	"golang.org/x/sync/errgroup"
)

// DownloadArtifacts downloads the artifacts of every circuit variant of the
// registry concurrently.
func DownloadArtifacts(timeout time.Duration, registry circuits.Registry) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for variant, artifacts := range registry {
		g.Go(func() error {
			log.Debugw("downloading circuit artifacts", "circuit", variant.Name())
			return artifacts.DownloadAll(ctx)
		})
	}
	return g.Wait()
}
