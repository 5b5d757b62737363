package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/showpipe/internal/catalog"
	"horse.fit/showpipe/internal/db"
	"horse.fit/showpipe/internal/parser"
)

type fakeStore struct {
	shows      []*db.Show
	episodes   []*db.Episode
	nextShowID int64
	nextEpID   int64

	enrichments map[int64]db.ShowEnrichment
	lookupErrs  map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextShowID:  1,
		nextEpID:    1,
		enrichments: map[int64]db.ShowEnrichment{},
		lookupErrs:  map[string]error{},
	}
}

func (s *fakeStore) ShowByTitle(_ context.Context, title string) (*db.Show, error) {
	if err := s.lookupErrs[strings.ToLower(strings.TrimSpace(title))]; err != nil {
		return nil, err
	}
	for _, show := range s.shows {
		if strings.EqualFold(show.Title, strings.TrimSpace(title)) {
			copied := *show
			return &copied, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *fakeStore) CreateShowWithEpisode(_ context.Context, show *db.Show, episode *db.Episode) error {
	for _, existing := range s.shows {
		if strings.EqualFold(existing.Title, show.Title) {
			return db.ErrDuplicate
		}
	}
	show.ID = s.nextShowID
	s.nextShowID++
	stored := *show
	s.shows = append(s.shows, &stored)

	episode.ShowID = show.ID
	episode.ID = s.nextEpID
	s.nextEpID++
	storedEp := *episode
	s.episodes = append(s.episodes, &storedEp)
	return nil
}

func (s *fakeStore) CreateEpisode(_ context.Context, episode *db.Episode) error {
	for _, existing := range s.episodes {
		if existing.ShowID == episode.ShowID &&
			existing.Season == episode.Season &&
			existing.Episode == episode.Episode {
			return db.ErrDuplicate
		}
	}
	episode.ID = s.nextEpID
	s.nextEpID++
	stored := *episode
	s.episodes = append(s.episodes, &stored)
	return nil
}

func (s *fakeStore) EpisodeExists(_ context.Context, showID int64, season, episode int) (bool, error) {
	for _, existing := range s.episodes {
		if existing.ShowID == showID && existing.Season == season && existing.Episode == episode {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) ApplyShowEnrichment(_ context.Context, showID int64, enrichment db.ShowEnrichment) error {
	for _, show := range s.shows {
		if show.ID == showID {
			id := enrichment.CatalogID
			show.CatalogID = &id
			if enrichment.CanonicalTitle != "" {
				show.Title = enrichment.CanonicalTitle
			}
			s.enrichments[showID] = enrichment
			return nil
		}
	}
	return db.ErrNotFound
}

type fakeCatalog struct {
	ids        map[string]int64
	details    map[int64]*catalog.Details
	trailers   map[int64]string
	resolveErr error
	detailsErr error
	trailerErr error

	resolveCalls int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		ids:      map[string]int64{},
		details:  map[int64]*catalog.Details{},
		trailers: map[int64]string{},
	}
}

func (c *fakeCatalog) Resolve(_ context.Context, title string) (int64, error) {
	c.resolveCalls++
	if c.resolveErr != nil {
		return 0, c.resolveErr
	}
	id, ok := c.ids[catalog.NormalizeTitle(title)]
	if !ok {
		return 0, catalog.ErrNotFound
	}
	return id, nil
}

func (c *fakeCatalog) FetchDetails(_ context.Context, catalogID int64) (*catalog.Details, error) {
	if c.detailsErr != nil {
		return nil, c.detailsErr
	}
	details, ok := c.details[catalogID]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return details, nil
}

func (c *fakeCatalog) FetchTrailer(_ context.Context, catalogID int64) (string, error) {
	if c.trailerErr != nil {
		return "", c.trailerErr
	}
	return c.trailers[catalogID], nil
}

func ptr[T any](v T) *T { return &v }

func breakingBadCatalog() *fakeCatalog {
	cat := newFakeCatalog()
	cat.ids["breaking bad"] = 1396
	cat.details[1396] = &catalog.Details{
		CanonicalTitle:   "Breaking Bad",
		Overview:         ptr("A chemistry teacher turns to crime."),
		ReleaseYear:      ptr(2008),
		Genres:           []string{"Drama", "Crime"},
		PosterURL:        ptr("https://img.test/w500/bb.jpg"),
		AvailableSeasons: ptr(5),
	}
	cat.trailers[1396] = "https://www.youtube.com/watch?v=bb"
	return cat
}

func record(show string, season, episode int, seq int64) *parser.Record {
	return &parser.Record{
		ShowName:     show,
		Season:       season,
		Episode:      episode,
		DownloadLink: "http://x/ep",
		MessageID:    seq,
	}
}

func TestApplyCreatesEnrichedShow(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	engine := NewEngine(store, breakingBadCatalog(), zerolog.Nop())

	outcome, err := engine.Apply(context.Background(), record("breaking bad", 1, 1, 10))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if outcome != OutcomeCreatedShow {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeCreatedShow)
	}
	if len(store.shows) != 1 || len(store.episodes) != 1 {
		t.Fatalf("store has %d shows / %d episodes, want 1/1", len(store.shows), len(store.episodes))
	}

	show := store.shows[0]
	if show.Title != "Breaking Bad" {
		t.Fatalf("show stored under %q, want canonical title", show.Title)
	}
	if show.CatalogID == nil || *show.CatalogID != 1396 {
		t.Fatalf("catalog id = %v, want 1396", show.CatalogID)
	}
	if show.TrailerURL == nil || *show.TrailerURL != "https://www.youtube.com/watch?v=bb" {
		t.Fatalf("trailer url = %v", show.TrailerURL)
	}
	if store.episodes[0].ShowID != show.ID || store.episodes[0].MessageID != 10 {
		t.Fatalf("episode not linked to show: %+v", store.episodes[0])
	}
}

func TestApplyAddsEpisodeWithoutReResolving(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	cat := breakingBadCatalog()
	engine := NewEngine(store, cat, zerolog.Nop())
	ctx := context.Background()

	if _, err := engine.Apply(ctx, record("breaking bad", 1, 1, 10)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	callsAfterCreate := cat.resolveCalls

	outcome, err := engine.Apply(ctx, record("Breaking Bad", 1, 2, 11))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if outcome != OutcomeAddedEpisode {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeAddedEpisode)
	}
	if len(store.episodes) != 2 {
		t.Fatalf("store has %d episodes, want 2", len(store.episodes))
	}
	if cat.resolveCalls != callsAfterCreate {
		t.Fatal("enriched show triggered another catalog resolve")
	}
}

func TestApplyDuplicateEpisodeIsNoOp(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	engine := NewEngine(store, breakingBadCatalog(), zerolog.Nop())
	ctx := context.Background()

	if _, err := engine.Apply(ctx, record("breaking bad", 1, 1, 10)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	outcome, err := engine.Apply(ctx, record("breaking bad", 1, 1, 10))
	if err != nil {
		t.Fatalf("Apply failed on redelivery: %v", err)
	}
	if outcome != OutcomeDuplicate {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeDuplicate)
	}
	if len(store.episodes) != 1 {
		t.Fatalf("store has %d episodes after redelivery, want 1", len(store.episodes))
	}
}

func TestApplySkipsUnresolvedNewShow(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	engine := NewEngine(store, newFakeCatalog(), zerolog.Nop())

	outcome, err := engine.Apply(context.Background(), record("Totally Unknown Show", 1, 1, 10))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if outcome != OutcomeUnresolved {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeUnresolved)
	}
	if len(store.shows) != 0 || len(store.episodes) != 0 {
		t.Fatal("unresolved show left placeholder rows in the store")
	}
}

func TestApplyCatalogOutageSkipsNewShowButKeepsExistingEpisode(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	cat := breakingBadCatalog()
	engine := NewEngine(store, cat, zerolog.Nop())
	ctx := context.Background()

	if _, err := engine.Apply(ctx, record("breaking bad", 1, 1, 10)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	cat.resolveErr = catalog.ErrUnavailable

	// New show during an outage: skipped, nothing persisted.
	outcome, err := engine.Apply(ctx, record("Dark", 1, 1, 11))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if outcome != OutcomeUnresolved {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeUnresolved)
	}

	// Existing show during an outage: the episode still lands.
	outcome, err = engine.Apply(ctx, record("Breaking Bad", 2, 1, 12))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if outcome != OutcomeAddedEpisode {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeAddedEpisode)
	}
	if len(store.episodes) != 2 {
		t.Fatalf("store has %d episodes, want 2", len(store.episodes))
	}
}

func TestApplyEnrichesUnenrichedShowOnNextEpisode(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.shows = append(store.shows, &db.Show{ID: 50, Title: "Breaking Bad"})
	store.nextShowID = 51
	cat := breakingBadCatalog()
	engine := NewEngine(store, cat, zerolog.Nop())

	outcome, err := engine.Apply(context.Background(), record("breaking bad", 3, 4, 20))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if outcome != OutcomeAddedEpisode {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeAddedEpisode)
	}

	enrichment, ok := store.enrichments[50]
	if !ok {
		t.Fatal("pre-catalog show was not enriched on episode arrival")
	}
	if enrichment.CatalogID != 1396 {
		t.Fatalf("enrichment catalog id = %d, want 1396", enrichment.CatalogID)
	}
}

func TestApplyEnrichmentFailureDoesNotBlockEpisode(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.shows = append(store.shows, &db.Show{ID: 50, Title: "Breaking Bad"})
	store.nextShowID = 51
	cat := breakingBadCatalog()
	cat.detailsErr = catalog.ErrUnavailable
	engine := NewEngine(store, cat, zerolog.Nop())

	outcome, err := engine.Apply(context.Background(), record("breaking bad", 3, 4, 20))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if outcome != OutcomeAddedEpisode {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeAddedEpisode)
	}
	if len(store.episodes) != 1 {
		t.Fatalf("store has %d episodes, want 1", len(store.episodes))
	}
	if _, ok := store.enrichments[50]; ok {
		t.Fatal("enrichment recorded despite details failure")
	}
}

func TestApplyCanonicalTitleCollisionFallsBackToExistingShow(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	cat := breakingBadCatalog()
	cat.ids["brkng bad"] = 1396
	engine := NewEngine(store, cat, zerolog.Nop())
	ctx := context.Background()

	if _, err := engine.Apply(ctx, record("breaking bad", 1, 1, 10)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	// A differently spelled title resolves to the same catalog entry whose
	// canonical title already exists in the store.
	outcome, err := engine.Apply(ctx, record("brkng bad", 1, 2, 11))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if outcome != OutcomeAddedEpisode {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeAddedEpisode)
	}
	if len(store.shows) != 1 {
		t.Fatalf("store has %d shows, want 1", len(store.shows))
	}
	if len(store.episodes) != 2 {
		t.Fatalf("store has %d episodes, want 2", len(store.episodes))
	}
}

func TestApplyCollisionFallbackLookupFailureSurfaces(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	cat := breakingBadCatalog()
	cat.ids["brkng bad"] = 1396
	engine := NewEngine(store, cat, zerolog.Nop())
	ctx := context.Background()

	if _, err := engine.Apply(ctx, record("breaking bad", 1, 1, 10)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	// The create collides on the canonical title, then the fallback lookup
	// hits a store failure. The caller must see the error so the run can
	// retry the message instead of dropping it as a duplicate.
	lookupFailure := errors.New("connection reset by peer")
	store.lookupErrs["breaking bad"] = lookupFailure

	outcome, err := engine.Apply(ctx, record("brkng bad", 1, 2, 11))
	if !errors.Is(err, lookupFailure) {
		t.Fatalf("Apply error = %v, want wrapped lookup failure", err)
	}
	if outcome != "" {
		t.Fatalf("outcome = %q, want empty on error", outcome)
	}
	if len(store.episodes) != 1 {
		t.Fatalf("store has %d episodes, want 1", len(store.episodes))
	}
}
