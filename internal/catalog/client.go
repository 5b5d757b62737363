// Package catalog resolves show titles against a TMDB-shaped metadata
// service and fetches enrichment details. It owns credential-key
// rotation, outbound rate limiting, and resolve-result caching.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	// ErrNotFound means no confident catalog match exists for a title or id.
	ErrNotFound = errors.New("catalog: not found")
	// ErrUnavailable is transient: network failure, upstream 5xx, or all
	// credential keys rejected. Callers defer enrichment and move on.
	ErrUnavailable = errors.New("catalog: transiently unavailable")

	errMalformedPayload = errors.New("catalog: malformed payload")
)

// Cache stores resolve results keyed by (locale, normalized title).
// Absence is always safe; a miss costs exactly one remote lookup.
type Cache interface {
	GetResolve(ctx context.Context, locale, normalizedTitle string) (int64, bool, error)
	SetResolve(ctx context.Context, locale, normalizedTitle string, catalogID int64, ttl time.Duration) error
}

type Options struct {
	BaseURL        string
	ImageBaseURL   string
	APIKeys        []string
	Language       string
	RatePerSecond  float64
	MatchThreshold int
	CacheTTL       time.Duration
	HTTPTimeout    time.Duration
}

type Client struct {
	opts       Options
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      Cache
	logger     zerolog.Logger

	// keyCursor is the explicit rotation cursor over opts.APIKeys.
	mu        sync.Mutex
	keyCursor int
}

func New(opts Options, cache Cache, logger zerolog.Logger) (*Client, error) {
	if len(opts.APIKeys) == 0 {
		return nil, fmt.Errorf("catalog client needs at least one API key")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.themoviedb.org/3"
	}
	if opts.ImageBaseURL == "" {
		opts.ImageBaseURL = "https://image.tmdb.org/t/p/w500"
	}
	if opts.Language == "" {
		opts.Language = "en-US"
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 4
	}
	if opts.MatchThreshold <= 0 {
		opts.MatchThreshold = 80
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 7 * 24 * time.Hour
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 10 * time.Second
	}

	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.HTTPTimeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1),
		cache:      cache,
		logger:     logger,
	}, nil
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type detailsResponse struct {
	Name            string `json:"name"`
	Overview        string `json:"overview"`
	FirstAirDate    string `json:"first_air_date"`
	PosterPath      string `json:"poster_path"`
	NumberOfSeasons int    `json:"number_of_seasons"`
	Genres          []struct {
		Name string `json:"name"`
	} `json:"genres"`
}

type videosResponse struct {
	Results []videoResult `json:"results"`
}

type videoResult struct {
	Type string `json:"type"`
	Site string `json:"site"`
	Key  string `json:"key"`
}

// Details is the enrichment payload attached to a show on first sighting.
type Details struct {
	CanonicalTitle   string
	Overview         *string
	ReleaseYear      *int
	Genres           []string
	PosterURL        *string
	AvailableSeasons *int
}

// Resolve maps a free-text show title to a catalog id. Exact
// case-insensitive match wins over fuzzy; fuzzy matches below the
// threshold return ErrNotFound.
func (c *Client) Resolve(ctx context.Context, title string) (int64, error) {
	normalized := NormalizeTitle(title)

	if c.cache != nil {
		id, found, err := c.cache.GetResolve(ctx, c.opts.Language, normalized)
		if err != nil {
			c.logger.Warn().Err(err).Str("title", title).Msg("resolve cache read failed")
		} else if found {
			return id, nil
		}
	}

	query := url.Values{}
	query.Set("query", CleanSearchTitle(title))
	query.Set("language", c.opts.Language)
	query.Set("include_adult", "false")
	query.Set("page", "1")

	var payload searchResponse
	if err := c.getJSON(ctx, "/search/tv", query, &payload); err != nil {
		if errors.Is(err, errMalformedPayload) {
			c.logger.Warn().Err(err).Str("title", title).Msg("malformed search payload, treating as not found")
			return 0, ErrNotFound
		}
		return 0, err
	}

	id, ok := bestMatch(title, payload.Results, c.opts.MatchThreshold)
	if !ok {
		c.logger.Info().Str("title", title).Int("candidates", len(payload.Results)).Msg("no confident catalog match")
		return 0, ErrNotFound
	}

	if c.cache != nil {
		if err := c.cache.SetResolve(ctx, c.opts.Language, normalized, id, c.opts.CacheTTL); err != nil {
			c.logger.Warn().Err(err).Str("title", title).Msg("resolve cache write failed")
		}
	}
	return id, nil
}

// FetchDetails loads the descriptive metadata for a resolved show.
func (c *Client) FetchDetails(ctx context.Context, catalogID int64) (*Details, error) {
	query := url.Values{}
	query.Set("language", c.opts.Language)

	var payload detailsResponse
	path := "/tv/" + strconv.FormatInt(catalogID, 10)
	if err := c.getJSON(ctx, path, query, &payload); err != nil {
		if errors.Is(err, errMalformedPayload) {
			c.logger.Warn().Err(err).Int64("catalog_id", catalogID).Msg("malformed details payload, treating as not found")
			return nil, ErrNotFound
		}
		return nil, err
	}

	details := &Details{CanonicalTitle: payload.Name}
	if payload.Overview != "" {
		overview := payload.Overview
		details.Overview = &overview
	}
	if year := parseAirYear(payload.FirstAirDate); year != nil {
		details.ReleaseYear = year
	}
	for _, genre := range payload.Genres {
		if genre.Name != "" {
			details.Genres = append(details.Genres, genre.Name)
		}
	}
	if payload.PosterPath != "" {
		poster := c.opts.ImageBaseURL + payload.PosterPath
		details.PosterURL = &poster
	}
	if payload.NumberOfSeasons > 0 {
		seasons := payload.NumberOfSeasons
		details.AvailableSeasons = &seasons
	}
	return details, nil
}

// FetchTrailer returns a watchable trailer URL, or "" when the catalog
// lists no matching video. A missing trailer is never an error.
func (c *Client) FetchTrailer(ctx context.Context, catalogID int64) (string, error) {
	query := url.Values{}
	query.Set("language", c.opts.Language)

	var payload videosResponse
	path := "/tv/" + strconv.FormatInt(catalogID, 10) + "/videos"
	if err := c.getJSON(ctx, path, query, &payload); err != nil {
		if errors.Is(err, errMalformedPayload) || errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}

	for _, video := range payload.Results {
		if video.Type == "Trailer" && video.Site == "YouTube" && video.Key != "" {
			return "https://www.youtube.com/watch?v=" + video.Key, nil
		}
	}
	return "", nil
}

// getJSON performs one rate-limited GET, rotating the credential key on
// auth-rejection or rate-limit responses. Each configured key gets at most
// one attempt per request; exhausting all keys yields ErrUnavailable.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	attempts := len(c.opts.APIKeys)

	for attempt := 0; attempt < attempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}

		requestURL, key := c.buildURL(path, query)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return fmt.Errorf("build catalog request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("catalog request %s: %v: %w", path, err, ErrUnavailable)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			decodeErr := json.NewDecoder(resp.Body).Decode(out)
			_ = resp.Body.Close()
			if decodeErr != nil {
				return fmt.Errorf("decode %s response: %v: %w", path, decodeErr, errMalformedPayload)
			}
			return nil
		case http.StatusUnauthorized, http.StatusTooManyRequests:
			_ = resp.Body.Close()
			c.logger.Warn().Str("path", path).Int("status", resp.StatusCode).
				Str("key_suffix", keySuffix(key)).Msg("catalog key rejected, rotating")
			c.advanceKey()
		case http.StatusNotFound:
			_ = resp.Body.Close()
			return ErrNotFound
		default:
			_ = resp.Body.Close()
			return fmt.Errorf("catalog %s returned status %d: %w", path, resp.StatusCode, ErrUnavailable)
		}
	}

	return fmt.Errorf("all %d catalog keys exhausted: %w", attempts, ErrUnavailable)
}

func (c *Client) buildURL(path string, query url.Values) (string, string) {
	key := c.currentKey()
	values := url.Values{}
	for name, vals := range query {
		for _, val := range vals {
			values.Add(name, val)
		}
	}
	values.Set("api_key", key)
	return c.opts.BaseURL + path + "?" + values.Encode(), key
}

func (c *Client) currentKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.APIKeys[c.keyCursor]
}

// advanceKey moves the rotation cursor to the next key, wrapping. The
// cursor persists across requests so a known-bad key is not retried first.
func (c *Client) advanceKey() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keyCursor = (c.keyCursor + 1) % len(c.opts.APIKeys)
}

func keySuffix(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "…" + key[len(key)-4:]
}

func parseAirYear(firstAirDate string) *int {
	if firstAirDate == "" {
		return nil
	}
	ts, err := time.Parse("2006-01-02", firstAirDate)
	if err != nil {
		return nil
	}
	year := ts.Year()
	return &year
}
