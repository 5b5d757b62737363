package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"horse.fit/showpipe/internal/globaltime"
)

var (
	ErrNotFound  = errors.New("row not found")
	ErrDuplicate = errors.New("duplicate row")
)

// Store is the pipeline- and API-facing persistence layer over the pool.
type Store struct {
	pool *Pool
}

func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) gorm(ctx context.Context) (*gorm.DB, error) {
	if s == nil || s.pool == nil || s.pool.gdb == nil {
		return nil, fmt.Errorf("store is not initialized")
	}
	return s.pool.gdb.WithContext(ctx), nil
}

// ShowByTitle finds a show by exact case-insensitive title match.
func (s *Store) ShowByTitle(ctx context.Context, title string) (*Show, error) {
	gdb, err := s.gorm(ctx)
	if err != nil {
		return nil, err
	}

	var show Show
	err = gdb.Where("lower(title) = lower(?)", strings.TrimSpace(title)).First(&show).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query show by title: %w", err)
	}
	return &show, nil
}

func (s *Store) ShowByID(ctx context.Context, id int64) (*Show, error) {
	gdb, err := s.gorm(ctx)
	if err != nil {
		return nil, err
	}

	var show Show
	err = gdb.First(&show, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query show by id: %w", err)
	}
	return &show, nil
}

// CreateShowWithEpisode inserts a show and its first episode in one
// transaction; either both rows land or neither does.
func (s *Store) CreateShowWithEpisode(ctx context.Context, show *Show, episode *Episode) error {
	gdb, err := s.gorm(ctx)
	if err != nil {
		return err
	}

	err = gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(show).Error; err != nil {
			return fmt.Errorf("insert show: %w", err)
		}
		episode.ShowID = show.ID
		if err := tx.Create(episode).Error; err != nil {
			return fmt.Errorf("insert episode: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// ShowEnrichment carries the one-time catalog metadata applied to a show.
type ShowEnrichment struct {
	CatalogID        int64
	CanonicalTitle   string
	Overview         *string
	ReleaseYear      *int
	Genres           []string
	PosterURL        *string
	TrailerURL       *string
	AvailableSeasons *int
}

// ApplyShowEnrichment updates a show in place with catalog metadata.
// Only called while catalog_id is still absent; the pipeline is the sole
// writer of these fields.
func (s *Store) ApplyShowEnrichment(ctx context.Context, showID int64, enrichment ShowEnrichment) error {
	gdb, err := s.gorm(ctx)
	if err != nil {
		return err
	}

	updates := map[string]any{
		"catalog_id": enrichment.CatalogID,
		"genres":     JoinGenres(enrichment.Genres),
		"updated_at": globaltime.UTC(),
	}
	if title := strings.TrimSpace(enrichment.CanonicalTitle); title != "" {
		updates["title"] = title
	}
	if enrichment.Overview != nil {
		updates["overview"] = *enrichment.Overview
	}
	if enrichment.ReleaseYear != nil {
		updates["release_year"] = *enrichment.ReleaseYear
	}
	if enrichment.PosterURL != nil {
		updates["poster_url"] = *enrichment.PosterURL
	}
	if enrichment.TrailerURL != nil {
		updates["trailer_url"] = *enrichment.TrailerURL
	}
	if enrichment.AvailableSeasons != nil {
		updates["available_seasons"] = *enrichment.AvailableSeasons
	}

	res := gdb.Model(&Show{}).Where("id = ?", showID).Updates(updates)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("apply show enrichment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementShowClicks bumps the read-side popularity counter. This is the
// only show field the front end is allowed to mutate.
func (s *Store) IncrementShowClicks(ctx context.Context, showID int64) error {
	gdb, err := s.gorm(ctx)
	if err != nil {
		return err
	}

	res := gdb.Model(&Show{}).Where("id = ?", showID).
		Update("clicks", gorm.Expr("clicks + 1"))
	if res.Error != nil {
		return fmt.Errorf("increment show clicks: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ShowFilter narrows and pages ListShows results.
type ShowFilter struct {
	Query    string
	Page     int
	PageSize int
}

func (s *Store) ListShows(ctx context.Context, filter ShowFilter) ([]Show, int64, error) {
	gdb, err := s.gorm(ctx)
	if err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 25
	}

	query := gdb.Model(&Show{})
	if q := strings.TrimSpace(filter.Query); q != "" {
		query = query.Where("title ILIKE ?", "%"+q+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count shows: %w", err)
	}

	var shows []Show
	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&shows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list shows: %w", err)
	}
	return shows, total, nil
}

// TrendingShows returns the most-clicked shows for the landing view.
func (s *Store) TrendingShows(ctx context.Context, limit int) ([]Show, error) {
	gdb, err := s.gorm(ctx)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 5
	}

	var shows []Show
	err = gdb.Order("clicks DESC, title ASC").Limit(limit).Find(&shows).Error
	if err != nil {
		return nil, fmt.Errorf("trending shows: %w", err)
	}
	return shows, nil
}

// Stats summarizes store contents for the stats endpoint.
type Stats struct {
	Shows         int64      `json:"shows"`
	EnrichedShows int64      `json:"enriched_shows"`
	Episodes      int64      `json:"episodes"`
	LastEpisodeAt *time.Time `json:"last_episode_at,omitempty"`
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	gdb, err := s.gorm(ctx)
	if err != nil {
		return nil, err
	}

	var stats Stats
	if err := gdb.Model(&Show{}).Count(&stats.Shows).Error; err != nil {
		return nil, fmt.Errorf("count shows: %w", err)
	}
	if err := gdb.Model(&Show{}).Where("catalog_id IS NOT NULL").Count(&stats.EnrichedShows).Error; err != nil {
		return nil, fmt.Errorf("count enriched shows: %w", err)
	}
	if err := gdb.Model(&Episode{}).Count(&stats.Episodes).Error; err != nil {
		return nil, fmt.Errorf("count episodes: %w", err)
	}

	var last Episode
	err = gdb.Order("created_at DESC").First(&last).Error
	switch {
	case err == nil:
		stats.LastEpisodeAt = &last.CreatedAt
	case errors.Is(err, gorm.ErrRecordNotFound):
		// empty store
	default:
		return nil, fmt.Errorf("latest episode: %w", err)
	}

	return &stats, nil
}
