package parser

import (
	"errors"
	"testing"
)

func TestParseBareURLCaption(t *testing.T) {
	t.Parallel()

	record, err := Parse(Message{
		Sequence: 42,
		Caption:  "Breaking Bad S01E01 - http://x/ep1",
	})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if record.ShowName != "Breaking Bad" {
		t.Fatalf("show name = %q, want %q", record.ShowName, "Breaking Bad")
	}
	if record.Season != 1 || record.Episode != 1 {
		t.Fatalf("season/episode = %d/%d, want 1/1", record.Season, record.Episode)
	}
	if record.DownloadLink != "http://x/ep1" {
		t.Fatalf("download link = %q", record.DownloadLink)
	}
	if record.MessageID != 42 {
		t.Fatalf("message id = %d, want 42", record.MessageID)
	}
}

func TestParseStripsTrailingSeparators(t *testing.T) {
	t.Parallel()

	record, err := Parse(Message{
		Sequence: 1,
		Caption:  "The Wire - | S03E07 https://host/file.mkv,",
	})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if record.ShowName != "The Wire" {
		t.Fatalf("show name = %q, want %q", record.ShowName, "The Wire")
	}
	if record.DownloadLink != "https://host/file.mkv" {
		t.Fatalf("download link = %q, trailing punctuation not trimmed", record.DownloadLink)
	}
}

func TestParseLowercaseToken(t *testing.T) {
	t.Parallel()

	record, err := Parse(Message{Sequence: 2, Caption: "Dark s02e05 http://h/e"})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if record.Season != 2 || record.Episode != 5 {
		t.Fatalf("season/episode = %d/%d, want 2/5", record.Season, record.Episode)
	}
}

func TestParseHereLinkCaption(t *testing.T) {
	t.Parallel()

	caption := "Breaking Bad S01E02\nDownload HERE"
	record, err := Parse(Message{
		Sequence: 7,
		Caption:  caption,
		Entities: []LinkEntity{
			{Type: "text_link", Offset: 29, Length: 4, URL: "https://host/ep2"},
		},
	})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if record.DownloadLink != "https://host/ep2" {
		t.Fatalf("download link = %q, want entity URL", record.DownloadLink)
	}
	if record.Season != 1 || record.Episode != 2 {
		t.Fatalf("season/episode = %d/%d, want 1/2", record.Season, record.Episode)
	}
}

func TestParseHereLinkWithMultibyteCaption(t *testing.T) {
	t.Parallel()

	// Entity offsets are rune positions; the emoji is one rune but four
	// bytes, so byte addressing would miss the marker.
	caption := "📺 Dark S01E01\nGrab it HERE"
	record, err := Parse(Message{
		Sequence: 8,
		Caption:  caption,
		Entities: []LinkEntity{
			{Type: "text_link", Offset: 22, Length: 4, URL: "https://host/dark1"},
		},
	})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if record.DownloadLink != "https://host/dark1" {
		t.Fatalf("download link = %q", record.DownloadLink)
	}
}

func TestParseBareURLWinsOverHereEntity(t *testing.T) {
	t.Parallel()

	record, err := Parse(Message{
		Sequence: 9,
		Caption:  "Fargo S02E03 http://plain/link or HERE",
		Entities: []LinkEntity{
			{Type: "text_link", Offset: 34, Length: 4, URL: "https://entity/link"},
		},
	})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if record.DownloadLink != "http://plain/link" {
		t.Fatalf("download link = %q, bare URL strategy should win", record.DownloadLink)
	}
}

func TestParseRejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		msg     Message
		wantErr error
	}{
		{
			name:    "empty caption",
			msg:     Message{Caption: "   "},
			wantErr: ErrEmptyCaption,
		},
		{
			name:    "comment post",
			msg:     Message{Caption: "#_ admin notice: uploads paused S01E01 http://x"},
			wantErr: ErrCommentPost,
		},
		{
			name:    "no season token",
			msg:     Message{Caption: "Breaking Bad complete pack http://x/pack"},
			wantErr: ErrNoSeasonToken,
		},
		{
			name:    "no download link",
			msg:     Message{Caption: "Breaking Bad S01E01"},
			wantErr: ErrNoDownloadLink,
		},
		{
			name:    "link before token only",
			msg:     Message{Caption: "http://x/ep1 Breaking Bad S01E01"},
			wantErr: ErrNoDownloadLink,
		},
		{
			name:    "no show name",
			msg:     Message{Caption: "S01E01 http://x/ep1"},
			wantErr: ErrNoShowName,
		},
		{
			name: "here marker without entity",
			msg: Message{
				Caption: "Dark S01E01\nDownload HERE",
			},
			wantErr: ErrNoDownloadLink,
		},
		{
			name: "entity not covering marker",
			msg: Message{
				Caption: "Dark S01E01\nDownload HERE",
				Entities: []LinkEntity{
					{Type: "text_link", Offset: 0, Length: 4, URL: "https://host/x"},
				},
			},
			wantErr: ErrNoDownloadLink,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			record, err := Parse(tc.msg)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Parse error = %v, want %v", err, tc.wantErr)
			}
			if record != nil {
				t.Fatalf("Parse returned a record alongside rejection %v", err)
			}
		})
	}
}

func TestParseDeterministic(t *testing.T) {
	t.Parallel()

	msg := Message{Sequence: 5, Caption: "True Detective S01E04 - http://h/td4"}
	first, err := Parse(msg)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	second, err := Parse(msg)
	if err != nil {
		t.Fatalf("Parse failed on repeat: %v", err)
	}
	if *first != *second {
		t.Fatalf("Parse is not deterministic: %+v vs %+v", first, second)
	}
}
