package intake

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tcollier/threatgate/internal/config"
	"github.com/tcollier/threatgate/internal/model"
)

func testIntakeConfig() config.IntakeConfig {
	return config.IntakeConfig{
		FetchTimeout: 5 * time.Second,
		MaxBodyBytes: 1 << 20,
	}
}

const rssBody = `<?xml version="1.0"?>
<rss version="2.0"><channel>
  <item>
    <title>CVE-2024-12345: Critical RCE in Apache Struts</title>
    <description>A remote code execution vulnerability allows attackers to run arbitrary code.</description>
    <link>https://example.com/advisory/1</link>
    <pubDate>Mon, 10 Aug 2026 09:00:00 +0000</pubDate>
  </item>
  <item>
    <title>Quarterly newsletter roundup</title>
    <description>Conference recap and community news.</description>
    <link>https://example.com/news/2</link>
    <pubDate>Mon, 10 Aug 2026 10:00:00 +0000</pubDate>
  </item>
</channel></rss>`

func TestFetchRecordsHealthSample(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rssBody))
	}))
	defer srv.Close()

	feed := model.FeedSource{Name: "vendor-a", URL: srv.URL, SourceType: model.SourceTypeRSS}
	f := NewFetcher(testIntakeConfig(), ParserFor(feed), zap.NewNop())

	entries, sample, err := f.Fetch(context.Background(), feed)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Title != "CVE-2024-12345: Critical RCE in Apache Struts" {
		t.Errorf("title = %q", entries[0].Title)
	}
	if entries[0].PublishedUTC.IsZero() {
		t.Error("pubDate not parsed")
	}

	if sample.HTTPStatus != 200 || !sample.ParseOK || sample.ItemCount != 2 {
		t.Errorf("sample = %+v", sample)
	}
	// One of two entries is security relevant and carries one CVE.
	if sample.KeywordDensity != 0.5 {
		t.Errorf("keyword density = %v, want 0.5", sample.KeywordDensity)
	}
	if sample.CVEYield != 0.5 {
		t.Errorf("cve yield = %v, want 0.5", sample.CVEYield)
	}
}

func TestFetchHTTPErrorStillSamples(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	feed := model.FeedSource{Name: "vendor-a", URL: srv.URL}
	f := NewFetcher(testIntakeConfig(), ParseRSS, zap.NewNop())

	entries, sample, err := f.Fetch(context.Background(), feed)
	if err == nil {
		t.Fatal("want error for 503")
	}
	if entries != nil {
		t.Error("entries must be nil on failure")
	}
	if sample.HTTPStatus != 503 || sample.ParseOK {
		t.Errorf("sample = %+v", sample)
	}
	if !sample.Failed() {
		t.Error("sample must count as failed")
	}
}

func TestFetchParseErrorMarksSample(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not xml at all <<<"))
	}))
	defer srv.Close()

	feed := model.FeedSource{Name: "vendor-a", URL: srv.URL}
	f := NewFetcher(testIntakeConfig(), ParseRSS, zap.NewNop())

	_, sample, err := f.Fetch(context.Background(), feed)
	if err == nil {
		t.Fatal("want parse error")
	}
	if sample.HTTPStatus != 200 || sample.ParseOK {
		t.Errorf("sample = %+v", sample)
	}
}

func TestParseJSONFeed(t *testing.T) {
	body := `[{"title":"Advisory one","summary":"details","link":"https://example.com/1","published_utc":"2026-08-10T09:00:00Z"}]`
	entries, err := ParseJSON(model.FeedSource{}, []byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Link != "https://example.com/1" {
		t.Errorf("entries = %+v", entries)
	}
}
