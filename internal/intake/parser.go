package intake

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/tcollier/threatgate/internal/model"
	"github.com/tcollier/threatgate/internal/normalization"
)

// ParseJSON reads a JSON array of entries, the format custom feeds and
// fixtures use.
func ParseJSON(_ model.FeedSource, body []byte) ([]normalization.RawEntry, error) {
	var entries []normalization.RawEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decoding JSON feed: %w", err)
	}
	return entries, nil
}

// rssDocument covers the subset of RSS 2.0 the advisory feeds emit.
type rssDocument struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
	Link        string `xml:"link"`
	PubDate     string `xml:"pubDate"`
}

// ParseRSS reads an RSS 2.0 document. Unparseable pubDates leave the
// timestamp zero; normalization treats that as unknown, not future.
func ParseRSS(_ model.FeedSource, body []byte) ([]normalization.RawEntry, error) {
	var doc rssDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decoding RSS feed: %w", err)
	}
	entries := make([]normalization.RawEntry, 0, len(doc.Channel.Items))
	for _, item := range doc.Channel.Items {
		entries = append(entries, normalization.RawEntry{
			Title:        strings.TrimSpace(item.Title),
			Summary:      strings.TrimSpace(item.Description),
			Link:         strings.TrimSpace(item.Link),
			PublishedUTC: parsePubDate(item.PubDate),
		})
	}
	return entries, nil
}

// ParserFor picks the parser matching the feed's source type. RSS is
// the default; custom feeds carry JSON.
func ParserFor(feed model.FeedSource) ParseFunc {
	if feed.SourceType == model.SourceTypeCustom {
		return ParseJSON
	}
	return ParseRSS
}

var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
}

func parsePubDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
