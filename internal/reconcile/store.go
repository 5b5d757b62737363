package reconcile

import (
	"context"

	"horse.fit/showpipe/internal/catalog"
	"horse.fit/showpipe/internal/db"
)

// Store is the persistence surface the engine needs. *db.Store satisfies
// it; tests substitute an in-memory fake.
type Store interface {
	ShowByTitle(ctx context.Context, title string) (*db.Show, error)
	CreateShowWithEpisode(ctx context.Context, show *db.Show, episode *db.Episode) error
	CreateEpisode(ctx context.Context, episode *db.Episode) error
	EpisodeExists(ctx context.Context, showID int64, season, episode int) (bool, error)
	ApplyShowEnrichment(ctx context.Context, showID int64, enrichment db.ShowEnrichment) error
}

// Catalog is the metadata-lookup surface the engine needs. *catalog.Client
// satisfies it.
type Catalog interface {
	Resolve(ctx context.Context, title string) (int64, error)
	FetchDetails(ctx context.Context, catalogID int64) (*catalog.Details, error)
	FetchTrailer(ctx context.Context, catalogID int64) (string, error)
}

var _ Store = (*db.Store)(nil)
var _ Catalog = (*catalog.Client)(nil)
