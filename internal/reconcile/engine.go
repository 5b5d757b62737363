// Package reconcile merges parsed episode records into the store:
// matching or creating shows, inserting episodes, and triggering one-time
// catalog enrichment.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"horse.fit/showpipe/internal/catalog"
	"horse.fit/showpipe/internal/db"
	"horse.fit/showpipe/internal/parser"
)

// Outcome classifies what Apply did with a record.
type Outcome string

const (
	// OutcomeCreatedShow: new show created with enrichment plus its first episode.
	OutcomeCreatedShow Outcome = "created_show"
	// OutcomeAddedEpisode: episode added to an existing show.
	OutcomeAddedEpisode Outcome = "added_episode"
	// OutcomeDuplicate: the episode already existed; redelivery no-op.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeUnresolved: brand-new show with no confident catalog match;
	// nothing persisted.
	OutcomeUnresolved Outcome = "unresolved"
)

type Engine struct {
	store   Store
	catalog Catalog
	logger  zerolog.Logger
}

func NewEngine(store Store, cat Catalog, logger zerolog.Logger) *Engine {
	return &Engine{
		store:   store,
		catalog: cat,
		logger:  logger,
	}
}

// Apply mutates the store so the record's show and episode exist and are
// consistent. A returned error is a store-level failure the run should
// retry; parse-adjacent and catalog failures are absorbed here.
func (e *Engine) Apply(ctx context.Context, record *parser.Record) (Outcome, error) {
	if record == nil {
		return "", fmt.Errorf("nil record")
	}

	show, err := e.store.ShowByTitle(ctx, record.ShowName)
	switch {
	case err == nil:
		return e.addEpisode(ctx, show, record)
	case errors.Is(err, db.ErrNotFound):
		return e.createShow(ctx, record)
	default:
		return "", fmt.Errorf("look up show %q: %w", record.ShowName, err)
	}
}

// addEpisode inserts the episode under an existing show and runs the
// one-time enrichment if the show still has no catalog id. Enrichment is
// gated on the missing id rather than on season 1 / episode 1 so
// out-of-order delivery still enriches exactly once.
func (e *Engine) addEpisode(ctx context.Context, show *db.Show, record *parser.Record) (Outcome, error) {
	exists, err := e.store.EpisodeExists(ctx, show.ID, record.Season, record.Episode)
	if err != nil {
		return "", fmt.Errorf("check episode existence: %w", err)
	}
	if exists {
		e.logger.Debug().
			Str("show", show.Title).
			Int("season", record.Season).
			Int("episode", record.Episode).
			Msg("episode already stored, skipping")
		return OutcomeDuplicate, nil
	}

	episode := &db.Episode{
		ShowID:       show.ID,
		Season:       record.Season,
		Episode:      record.Episode,
		DownloadLink: record.DownloadLink,
		MessageID:    record.MessageID,
	}
	if err := e.store.CreateEpisode(ctx, episode); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return OutcomeDuplicate, nil
		}
		return "", err
	}

	// Enrichment failure must never undo an already-inserted episode.
	if !show.Enriched() {
		e.enrichExisting(ctx, show)
	}

	return OutcomeAddedEpisode, nil
}

// enrichExisting attempts the one-time catalog enrichment for a show that
// predates resolution. Best effort: every failure is logged and deferred
// to a later episode arrival.
func (e *Engine) enrichExisting(ctx context.Context, show *db.Show) {
	catalogID, err := e.catalog.Resolve(ctx, show.Title)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			e.logger.Info().Str("show", show.Title).Msg("no catalog match, enrichment deferred")
		case errors.Is(err, catalog.ErrUnavailable):
			e.logger.Warn().Err(err).Str("show", show.Title).Msg("catalog unavailable, enrichment deferred")
		default:
			e.logger.Warn().Err(err).Str("show", show.Title).Msg("catalog resolve failed, enrichment deferred")
		}
		return
	}

	enrichment, ok := e.buildEnrichment(ctx, catalogID)
	if !ok {
		return
	}

	if err := e.store.ApplyShowEnrichment(ctx, show.ID, *enrichment); err != nil {
		e.logger.Warn().Err(err).Str("show", show.Title).Int64("catalog_id", catalogID).
			Msg("failed to persist enrichment, deferred")
	}
}

// createShow resolves a brand-new title and creates the show fully
// enriched together with its first episode. Unresolvable titles are
// skipped entirely; no placeholder show rows.
func (e *Engine) createShow(ctx context.Context, record *parser.Record) (Outcome, error) {
	catalogID, err := e.catalog.Resolve(ctx, record.ShowName)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			e.logger.Info().Str("show", record.ShowName).Int64("message_id", record.MessageID).
				Msg("unresolved show, skipping message")
			return OutcomeUnresolved, nil
		case errors.Is(err, catalog.ErrUnavailable):
			e.logger.Warn().Err(err).Str("show", record.ShowName).Int64("message_id", record.MessageID).
				Msg("catalog unavailable, skipping new show")
			return OutcomeUnresolved, nil
		default:
			return "", fmt.Errorf("resolve %q: %w", record.ShowName, err)
		}
	}

	enrichment, ok := e.buildEnrichment(ctx, catalogID)
	if !ok {
		e.logger.Warn().Str("show", record.ShowName).Int64("catalog_id", catalogID).
			Msg("catalog details unavailable, skipping new show")
		return OutcomeUnresolved, nil
	}

	title := record.ShowName
	if enrichment.CanonicalTitle != "" {
		title = enrichment.CanonicalTitle
	}

	show := &db.Show{
		Title:            title,
		Overview:         enrichment.Overview,
		ReleaseYear:      enrichment.ReleaseYear,
		Genres:           db.JoinGenres(enrichment.Genres),
		PosterURL:        enrichment.PosterURL,
		TrailerURL:       enrichment.TrailerURL,
		CatalogID:        &enrichment.CatalogID,
		AvailableSeasons: enrichment.AvailableSeasons,
	}
	episode := &db.Episode{
		Season:       record.Season,
		Episode:      record.Episode,
		DownloadLink: record.DownloadLink,
		MessageID:    record.MessageID,
	}

	if err := e.store.CreateShowWithEpisode(ctx, show, episode); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			// The canonical title can collide with a show stored under a
			// different raw spelling. Retry along the existing-show path.
			existing, lookupErr := e.store.ShowByTitle(ctx, title)
			switch {
			case lookupErr == nil:
				return e.addEpisode(ctx, existing, record)
			case errors.Is(lookupErr, db.ErrNotFound):
				// Duplicate on create but nothing under the canonical title:
				// a concurrent writer removed or renamed it between the two
				// calls. Treat the message as already handled.
				e.logger.Warn().Str("show", title).Int64("message_id", record.MessageID).
					Msg("duplicate show vanished before fallback lookup")
				return OutcomeDuplicate, nil
			default:
				return "", fmt.Errorf("look up colliding show %q: %w", title, lookupErr)
			}
		}
		return "", fmt.Errorf("create show %q: %w", title, err)
	}

	e.logger.Info().Str("show", title).Int64("catalog_id", catalogID).
		Int("season", record.Season).Int("episode", record.Episode).
		Msg("created show with first episode")
	return OutcomeCreatedShow, nil
}

// buildEnrichment assembles the full enrichment payload for a catalog id.
// The trailer lookup is secondary; its absence or failure never blocks
// enrichment.
func (e *Engine) buildEnrichment(ctx context.Context, catalogID int64) (*db.ShowEnrichment, bool) {
	details, err := e.catalog.FetchDetails(ctx, catalogID)
	if err != nil {
		e.logger.Warn().Err(err).Int64("catalog_id", catalogID).Msg("catalog details fetch failed")
		return nil, false
	}

	enrichment := &db.ShowEnrichment{
		CatalogID:        catalogID,
		CanonicalTitle:   details.CanonicalTitle,
		Overview:         details.Overview,
		ReleaseYear:      details.ReleaseYear,
		Genres:           details.Genres,
		PosterURL:        details.PosterURL,
		AvailableSeasons: details.AvailableSeasons,
	}

	trailer, err := e.catalog.FetchTrailer(ctx, catalogID)
	if err != nil {
		e.logger.Warn().Err(err).Int64("catalog_id", catalogID).Msg("trailer lookup failed, omitting")
	} else if trailer != "" {
		enrichment.TrailerURL = &trailer
	}

	return enrichment, true
}
