// Package source polls a Telegram-bot-shaped HTTP API for new channel
// posts. It is the pipeline's only view of the messaging service.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/showpipe/internal/parser"
)

type Client struct {
	baseURL     string
	token       string
	pollTimeout time.Duration
	httpClient  *http.Client
	logger      zerolog.Logger
}

func NewClient(baseURL, token string, pollTimeout time.Duration, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	return &Client{
		baseURL:     baseURL,
		token:       token,
		pollTimeout: pollTimeout,
		httpClient: &http.Client{
			// Long poll plus headroom.
			Timeout: pollTimeout + 15*time.Second,
		},
		logger: logger,
	}
}

type updatesResponse struct {
	OK     bool     `json:"ok"`
	Result []update `json:"result"`
}

type update struct {
	UpdateID    int64        `json:"update_id"`
	ChannelPost *channelPost `json:"channel_post"`
}

type channelPost struct {
	MessageID       int64           `json:"message_id"`
	Caption         string          `json:"caption"`
	CaptionEntities []captionEntity `json:"caption_entities"`
	SenderChat      *chat           `json:"sender_chat"`
}

type chat struct {
	ID int64 `json:"id"`
}

type captionEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	URL    string `json:"url"`
}

// ListNewMessages fetches captioned channel posts with sequence numbers
// greater than afterSequence, ascending, at most limit of them. Transport
// failures are returned (retryable); a malformed body is logged and
// treated as an empty page.
func (c *Client) ListNewMessages(ctx context.Context, channelID string, afterSequence int64, limit int) ([]parser.Message, error) {
	query := url.Values{}
	query.Set("offset", strconv.FormatInt(afterSequence+1, 10))
	query.Set("limit", strconv.Itoa(limit))
	query.Set("timeout", strconv.Itoa(int(c.pollTimeout/time.Second)))
	query.Set("allowed_updates", `["channel_post"]`)

	requestURL := c.baseURL + "/bot" + c.token + "/getUpdates?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build getUpdates request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch channel updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("messaging source returned status %d", resp.StatusCode)
	}

	var payload updatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.logger.Warn().Err(err).Msg("malformed updates payload, treating as empty page")
		return nil, nil
	}
	if !payload.OK {
		c.logger.Warn().Msg("updates response not ok, treating as empty page")
		return nil, nil
	}

	messages := make([]parser.Message, 0, len(payload.Result))
	for _, upd := range payload.Result {
		post := upd.ChannelPost
		if post == nil || post.Caption == "" {
			continue
		}
		if !chatMatches(post.SenderChat, channelID) {
			continue
		}

		msg := parser.Message{
			Sequence: upd.UpdateID,
			Caption:  post.Caption,
		}
		for _, entity := range post.CaptionEntities {
			msg.Entities = append(msg.Entities, parser.LinkEntity{
				Type:   entity.Type,
				Offset: entity.Offset,
				Length: entity.Length,
				URL:    entity.URL,
			})
		}
		messages = append(messages, msg)
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Sequence < messages[j].Sequence
	})
	return messages, nil
}

func chatMatches(senderChat *chat, channelID string) bool {
	if senderChat == nil {
		return false
	}
	return strconv.FormatInt(senderChat.ID, 10) == channelID
}
