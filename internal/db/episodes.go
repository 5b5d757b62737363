package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// EpisodeExists reports whether (show, season, episode) is already stored.
func (s *Store) EpisodeExists(ctx context.Context, showID int64, season, episode int) (bool, error) {
	gdb, err := s.gorm(ctx)
	if err != nil {
		return false, err
	}

	var count int64
	err = gdb.Model(&Episode{}).
		Where("show_id = ? AND season = ? AND episode = ?", showID, season, episode).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check episode existence: %w", err)
	}
	return count > 0, nil
}

// CreateEpisode inserts one episode. A unique-constraint violation from a
// redelivered message surfaces as ErrDuplicate so callers can treat it as
// a no-op.
func (s *Store) CreateEpisode(ctx context.Context, episode *Episode) error {
	gdb, err := s.gorm(ctx)
	if err != nil {
		return err
	}

	if err := gdb.Create(episode).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert episode: %w", err)
	}
	return nil
}

// EpisodesByShow returns a show's episodes in (season, episode) order.
func (s *Store) EpisodesByShow(ctx context.Context, showID int64) ([]Episode, error) {
	gdb, err := s.gorm(ctx)
	if err != nil {
		return nil, err
	}

	var episodes []Episode
	err = gdb.Where("show_id = ?", showID).
		Order("season ASC, episode ASC").
		Find(&episodes).Error
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	return episodes, nil
}
