package platform

import (
	"context"

	"ordersync/internal/models"
)

// Source is the uniform per-platform contract the orchestrator drives: one
// credential check, one finite fetch pass, one normalization pass. A fetch is
// not restartable; calling Fetch again re-runs pagination from the start.
type Source interface {
	Platform() models.Platform
	Authenticate(ctx context.Context) error
	// Fetch gathers the not-yet-imported raw records, bounding pagination
	// with the known order ids or the platform's watermark. Returns the
	// number of orders gathered.
	Fetch(ctx context.Context, known map[string]struct{}) (int, error)
	// Normalize maps the gathered records into canonical rows, draining the
	// fetcher.
	Normalize() (Batch, error)
}

// TokenProvider hands out valid access tokens. Satisfied by creds.Store.
type TokenProvider interface {
	ValidToken(ctx context.Context, platform models.Platform) (string, error)
}

// Batch is one platform's normalized output for a run.
type Batch struct {
	Orders []models.Order
	Items  []models.LineItem
	// Watermark carries an advanced high-water mark when the platform keeps
	// one; empty means nothing to advance.
	Watermark string
}
