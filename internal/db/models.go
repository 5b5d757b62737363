package db

import (
	"strings"
	"time"
)

// Show maps public.shows. One row per catalog-normalized title; the
// functional unique index on lower(title) lives in post_automigrate.sql.
type Show struct {
	ID               int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Title            string    `gorm:"column:title;type:text;not null"`
	Overview         *string   `gorm:"column:overview;type:text"`
	ReleaseYear      *int      `gorm:"column:release_year;type:integer"`
	Genres           string    `gorm:"column:genres;type:text;not null;default:''"`
	PosterURL        *string   `gorm:"column:poster_url;type:text"`
	TrailerURL       *string   `gorm:"column:trailer_url;type:text"`
	CatalogID        *int64    `gorm:"column:catalog_id;type:bigint;uniqueIndex:idx_shows_catalog_id"`
	AvailableSeasons *int      `gorm:"column:available_seasons;type:integer"`
	Clicks           int64     `gorm:"column:clicks;type:bigint;not null;default:0"`
	CreatedAt        time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt        time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Show) TableName() string { return "shows" }

// Enriched reports whether the one-time catalog enrichment already ran.
func (s *Show) Enriched() bool {
	return s != nil && s.CatalogID != nil
}

// GenreList splits the comma-joined genres column.
func (s *Show) GenreList() []string {
	if s == nil || strings.TrimSpace(s.Genres) == "" {
		return nil
	}
	parts := strings.Split(s.Genres, ",")
	genres := make([]string, 0, len(parts))
	for _, part := range parts {
		genre := strings.TrimSpace(part)
		if genre == "" {
			continue
		}
		genres = append(genres, genre)
	}
	return genres
}

// JoinGenres is the inverse of GenreList.
func JoinGenres(genres []string) string {
	cleaned := make([]string, 0, len(genres))
	for _, genre := range genres {
		trimmed := strings.TrimSpace(genre)
		if trimmed == "" {
			continue
		}
		cleaned = append(cleaned, trimmed)
	}
	return strings.Join(cleaned, ", ")
}

// Episode maps public.episodes. Uniqueness on (show_id, season, episode)
// is what makes redelivered channel messages a no-op.
type Episode struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ShowID       int64     `gorm:"column:show_id;type:bigint;not null;uniqueIndex:idx_episodes_show_season_episode,priority:1"`
	Season       int       `gorm:"column:season;type:integer;not null;uniqueIndex:idx_episodes_show_season_episode,priority:2"`
	Episode      int       `gorm:"column:episode;type:integer;not null;uniqueIndex:idx_episodes_show_season_episode,priority:3"`
	Title        *string   `gorm:"column:title;type:text"`
	Overview     *string   `gorm:"column:overview;type:text"`
	DownloadLink string    `gorm:"column:download_link;type:text;not null"`
	MessageID    int64     `gorm:"column:message_id;type:bigint;not null;index:idx_episodes_message_id"`
	CreatedAt    time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Episode) TableName() string { return "episodes" }

func autoMigrateModels() []any {
	return []any{
		&Show{},
		&Episode{},
	}
}
