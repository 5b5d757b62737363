// Package parser extracts structured episode records from channel post
// captions. Parsing is pure: no I/O, and the same input always yields the
// same record or the same rejection.
package parser

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// CommentMarker prefixes posts that are channel chatter, not episode
// announcements.
const CommentMarker = "#_"

var (
	ErrEmptyCaption   = errors.New("empty caption")
	ErrCommentPost    = errors.New("caption starts with comment marker")
	ErrNoSeasonToken  = errors.New("no SxxEyy token in caption")
	ErrNoDownloadLink = errors.New("no download link after season token")
	ErrNoShowName     = errors.New("no show name before season token")
)

var (
	seasonTokenRx  = regexp.MustCompile(`(?i)S(\d{2})E(\d{2})`)
	downloadURLRx  = regexp.MustCompile(`https?://\S+`)
	hereMarkerRx   = regexp.MustCompile(`(?i)\bHERE\b`)
	trailingJunkRx = regexp.MustCompile(`[\s\-|:·•]+$`)
)

// LinkEntity is a rich-text hyperlink attached to a caption. Offsets are
// rune positions into the caption.
type LinkEntity struct {
	Type   string
	Offset int
	Length int
	URL    string
}

// Message is the parser's view of one channel post.
type Message struct {
	Sequence int64
	Caption  string
	Entities []LinkEntity
}

// Record is a successfully extracted episode announcement.
type Record struct {
	ShowName     string
	Season       int
	Episode      int
	DownloadLink string
	MessageID    int64
}

type strategy func(Message) (*Record, error)

// strategies are tried in priority order; the first success wins. The
// bare-URL caption format is the common case, the HERE-marker format with
// an inline hyperlink entity is the fallback.
var strategies = []strategy{
	parseBareURLCaption,
	parseHereLinkCaption,
}

// Parse extracts an episode record from a channel message, or reports why
// the message is not one. Rejections are expected outcomes, not failures.
func Parse(msg Message) (*Record, error) {
	caption := strings.TrimSpace(msg.Caption)
	if caption == "" {
		return nil, ErrEmptyCaption
	}
	if strings.HasPrefix(caption, CommentMarker) {
		return nil, ErrCommentPost
	}

	var firstRejection error
	for _, parse := range strategies {
		record, err := parse(msg)
		if err == nil {
			record.MessageID = msg.Sequence
			return record, nil
		}
		if firstRejection == nil {
			firstRejection = err
		}
	}
	return nil, firstRejection
}

// parseBareURLCaption handles the common format: show name, an SxxEyy
// token, and a plain download URL somewhere after the token.
//
//	Breaking Bad S01E01 - http://host/ep1
func parseBareURLCaption(msg Message) (*Record, error) {
	caption := msg.Caption

	loc := seasonTokenRx.FindStringSubmatchIndex(caption)
	if loc == nil {
		return nil, ErrNoSeasonToken
	}

	link := downloadURLRx.FindString(caption[loc[1]:])
	if link == "" {
		return nil, ErrNoDownloadLink
	}

	showName := cleanShowName(caption[:loc[0]])
	if showName == "" {
		return nil, ErrNoShowName
	}

	season, episode := parseTokenNumbers(caption, loc)
	return &Record{
		ShowName:     showName,
		Season:       season,
		Episode:      episode,
		DownloadLink: strings.TrimRight(link, ".,;)"),
	}, nil
}

// parseHereLinkCaption handles the alternate format where the download
// link rides on a text_link entity under a HERE marker instead of a bare
// URL.
//
//	Breaking Bad S01E01
//	Download HERE        (HERE carries a text_link entity)
func parseHereLinkCaption(msg Message) (*Record, error) {
	caption := msg.Caption

	loc := seasonTokenRx.FindStringSubmatchIndex(caption)
	if loc == nil {
		return nil, ErrNoSeasonToken
	}

	link := hereEntityURL(caption, msg.Entities)
	if link == "" {
		return nil, ErrNoDownloadLink
	}

	showName := cleanShowName(caption[:loc[0]])
	if showName == "" {
		return nil, ErrNoShowName
	}

	season, episode := parseTokenNumbers(caption, loc)
	return &Record{
		ShowName:     showName,
		Season:       season,
		Episode:      episode,
		DownloadLink: link,
	}, nil
}

// hereEntityURL finds a HERE marker covered by a text_link entity and
// returns that entity's URL.
func hereEntityURL(caption string, entities []LinkEntity) string {
	markers := hereMarkerRx.FindAllStringIndex(caption, -1)
	if len(markers) == 0 {
		return ""
	}

	for _, marker := range markers {
		markerStart := runeOffset(caption, marker[0])
		markerEnd := runeOffset(caption, marker[1])
		for _, entity := range entities {
			if entity.Type != "text_link" || entity.URL == "" {
				continue
			}
			if entity.Offset <= markerStart && markerEnd <= entity.Offset+entity.Length {
				return entity.URL
			}
		}
	}
	return ""
}

func parseTokenNumbers(caption string, loc []int) (season, episode int) {
	// The regex guarantees two two-digit groups; Atoi cannot fail here.
	season, _ = strconv.Atoi(caption[loc[2]:loc[3]])
	episode, _ = strconv.Atoi(caption[loc[4]:loc[5]])
	return season, episode
}

// cleanShowName trims whitespace and trailing separator noise left over
// when the token is cut off.
func cleanShowName(raw string) string {
	name := strings.TrimSpace(raw)
	name = trailingJunkRx.ReplaceAllString(name, "")
	return strings.TrimSpace(name)
}

// runeOffset converts a byte index into a rune index, matching how rich
// text entity offsets address the caption.
func runeOffset(s string, byteIndex int) int {
	if byteIndex > len(s) {
		byteIndex = len(s)
	}
	return len([]rune(s[:byteIndex]))
}
