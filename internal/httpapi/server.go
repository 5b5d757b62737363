package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/showpipe/internal/db"
	"horse.fit/showpipe/internal/globaltime"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
	trendingLimit   = 10
)

// ShowStore is the read-mostly slice of the store the API needs.
type ShowStore interface {
	ListShows(ctx context.Context, filter db.ShowFilter) ([]db.Show, int64, error)
	TrendingShows(ctx context.Context, limit int) ([]db.Show, error)
	ShowByID(ctx context.Context, id int64) (*db.Show, error)
	EpisodesByShow(ctx context.Context, showID int64) ([]db.Episode, error)
	IncrementShowClicks(ctx context.Context, showID int64) error
	Stats(ctx context.Context) (*db.Stats, error)
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	store  ShowStore
	logger zerolog.Logger
	opts   Options
}

type showListItem struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title"`
	Overview         *string   `json:"overview,omitempty"`
	ReleaseYear      *int      `json:"release_year,omitempty"`
	Genres           []string  `json:"genres,omitempty"`
	PosterURL        *string   `json:"poster_url,omitempty"`
	TrailerURL       *string   `json:"trailer_url,omitempty"`
	CatalogID        *int64    `json:"catalog_id,omitempty"`
	AvailableSeasons *int      `json:"available_seasons,omitempty"`
	Clicks           int64     `json:"clicks"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type episodeItem struct {
	ID           int64     `json:"id"`
	Season       int       `json:"season"`
	Episode      int       `json:"episode"`
	Title        *string   `json:"title,omitempty"`
	Overview     *string   `json:"overview,omitempty"`
	DownloadLink string    `json:"download_link"`
	CreatedAt    time.Time `json:"created_at"`
}

type showDetail struct {
	Show     showListItem  `json:"show"`
	Episodes []episodeItem `json:"episodes"`
}

func NewServer(store ShowStore, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		store:  store,
		logger: logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.buildEcho()

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("showpipe web server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("showpipe web server stopped")
	return nil
}

func (s *Server) buildEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.GET("/shows", s.handleShows)
	api.GET("/shows/trending", s.handleTrending)
	api.GET("/shows/:id", s.handleShowDetail)

	return e
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "showpipe",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.store.Stats(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}

func (s *Server) handleShows(c echo.Context) error {
	page, err := parsePositiveInt(c.QueryParam("page"), 1, 1, 1_000_000)
	if err != nil {
		return failValidation(c, map[string]string{"page": err.Error()})
	}

	pageSize, err := parsePositiveInt(c.QueryParam("page_size"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"page_size": err.Error()})
	}

	filter := db.ShowFilter{
		Query:    strings.TrimSpace(c.QueryParam("q")),
		Page:     page,
		PageSize: pageSize,
	}

	shows, total, err := s.store.ListShows(c.Request().Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("query shows failed")
		return internalError(c, "Failed to load shows")
	}

	items := make([]showListItem, 0, len(shows))
	for i := range shows {
		items = append(items, toShowItem(&shows[i]))
	}

	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}

	return success(c, map[string]any{
		"items": items,
		"pagination": map[string]any{
			"page":        page,
			"page_size":   pageSize,
			"total_items": total,
			"total_pages": totalPages,
		},
		"filters": map[string]any{
			"q": filter.Query,
		},
	})
}

func (s *Server) handleTrending(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), trendingLimit, 1, 50)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	shows, err := s.store.TrendingShows(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("query trending shows failed")
		return internalError(c, "Failed to load trending shows")
	}

	items := make([]showListItem, 0, len(shows))
	for i := range shows {
		items = append(items, toShowItem(&shows[i]))
	}
	return success(c, map[string]any{
		"items": items,
		"limit": limit,
	})
}

func (s *Server) handleShowDetail(c echo.Context) error {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id < 1 {
		return failValidation(c, map[string]string{"id": "must be a positive integer"})
	}

	ctx := c.Request().Context()
	show, err := s.store.ShowByID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return failNotFound(c, "Show not found")
		}
		s.logger.Error().Err(err).Int64("show_id", id).Msg("query show failed")
		return internalError(c, "Failed to load show")
	}

	episodes, err := s.store.EpisodesByShow(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Int64("show_id", id).Msg("query episodes failed")
		return internalError(c, "Failed to load episodes")
	}

	if err := s.store.IncrementShowClicks(ctx, id); err != nil {
		s.logger.Warn().Err(err).Int64("show_id", id).Msg("click increment failed")
	} else {
		show.Clicks++
	}

	items := make([]episodeItem, 0, len(episodes))
	for i := range episodes {
		ep := &episodes[i]
		items = append(items, episodeItem{
			ID:           ep.ID,
			Season:       ep.Season,
			Episode:      ep.Episode,
			Title:        ep.Title,
			Overview:     ep.Overview,
			DownloadLink: ep.DownloadLink,
			CreatedAt:    ep.CreatedAt,
		})
	}

	return success(c, showDetail{
		Show:     toShowItem(show),
		Episodes: items,
	})
}

func toShowItem(show *db.Show) showListItem {
	return showListItem{
		ID:               show.ID,
		Title:            show.Title,
		Overview:         show.Overview,
		ReleaseYear:      show.ReleaseYear,
		Genres:           show.GenreList(),
		PosterURL:        show.PosterURL,
		TrailerURL:       show.TrailerURL,
		CatalogID:        show.CatalogID,
		AvailableSeasons: show.AvailableSeasons,
		Clicks:           show.Clicks,
		CreatedAt:        show.CreatedAt,
		UpdatedAt:        show.UpdatedAt,
	}
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}
