package feedparse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/feedsync/internal/model"
)

// --- モック ---

// passThroughGuard は検証を素通しし、通常のHTTPクライアントを返すSSRFValidator。
// httptestサーバーはループバックで動くため、実際のガードは使えない。
type passThroughGuard struct{}

func (passThroughGuard) ValidateURL(rawURL string) error { return nil }
func (passThroughGuard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

// blockingGuard は全URLを拒否するSSRFValidator。
type blockingGuard struct{}

func (blockingGuard) ValidateURL(rawURL string) error {
	return model.NewSSRFBlockedError()
}
func (blockingGuard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

const rssBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Blog</title>
    <link>https://example.com/</link>
    <item>
      <title>First Post</title>
      <link>https://example.com/posts/1</link>
      <guid>https://example.com/posts/1</guid>
      <description>Hello world</description>
      <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
    </item>
  </channel>
</rss>`

const atomBody = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Example</title>
  <entry>
    <title>Entry One</title>
    <id>urn:uuid:entry-1</id>
    <link href="https://example.com/entries/1"/>
    <updated>2006-01-02T15:04:05Z</updated>
  </entry>
</feed>`

// --- テスト ---

func TestParseFeed_RSS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(rssBody))
	}))
	defer srv.Close()

	p := NewHTTPParser(passThroughGuard{}, 5*time.Second, 1<<20)
	feed, err := p.ParseFeed(context.Background(), srv.URL+"/feed.xml")
	if err != nil {
		t.Fatalf("ParseFeed returned error: %v", err)
	}

	if feed.Title != "Example Blog" {
		t.Errorf("Title = %q, want %q", feed.Title, "Example Blog")
	}
	if feed.Type != model.ChannelTypeRSS {
		t.Errorf("Type = %q, want %q", feed.Type, model.ChannelTypeRSS)
	}
	if feed.Domain == "" {
		t.Error("expected non-empty domain")
	}
	if len(feed.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(feed.Items))
	}
	if feed.Items[0].GUID != "https://example.com/posts/1" {
		t.Errorf("GUID = %q, want %q", feed.Items[0].GUID, "https://example.com/posts/1")
	}
	if feed.Items[0].PublishedAt == nil {
		t.Error("expected parsed publish time")
	}
}

func TestParseFeed_Atom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(atomBody))
	}))
	defer srv.Close()

	p := NewHTTPParser(passThroughGuard{}, 5*time.Second, 1<<20)
	feed, err := p.ParseFeed(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("ParseFeed returned error: %v", err)
	}
	if feed.Type != model.ChannelTypeAtom {
		t.Errorf("Type = %q, want %q", feed.Type, model.ChannelTypeAtom)
	}
}

func TestParseFeed_HTMLAutodiscovery(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head>
			<link rel="alternate" type="application/rss+xml" href="/feed.xml">
		</head><body>blog</body></html>`))
	})
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(rssBody))
	})

	p := NewHTTPParser(passThroughGuard{}, 5*time.Second, 1<<20)
	feed, err := p.ParseFeed(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("ParseFeed returned error: %v", err)
	}
	if feed.Title != "Example Blog" {
		t.Errorf("Title = %q, want %q", feed.Title, "Example Blog")
	}
}

func TestParseFeed_InvalidDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`just plain text, no feed here`))
	}))
	defer srv.Close()

	p := NewHTTPParser(passThroughGuard{}, 5*time.Second, 1<<20)
	_, err := p.ParseFeed(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for non-feed document")
	}
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeFeedInvalid {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeFeedInvalid)
	}
}

func TestParseFeed_HTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewHTTPParser(passThroughGuard{}, 5*time.Second, 1<<20)
	_, err := p.ParseFeed(context.Background(), srv.URL)
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeFeedUnreachable {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeFeedUnreachable)
	}
}

func TestParseFeed_BlockedURL(t *testing.T) {
	p := NewHTTPParser(blockingGuard{}, 5*time.Second, 1<<20)
	_, err := p.ParseFeed(context.Background(), "http://10.0.0.1/feed")
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeSSRFBlocked {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeSSRFBlocked)
	}
}

func TestParseFeed_MissingGUIDFallsBackToLink(t *testing.T) {
	body := `<?xml version="1.0"?><rss version="2.0"><channel><title>T</title>
		<item><title>no guid</title><link>https://example.com/a</link></item>
		<item><title>nothing</title></item>
	</channel></rss>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(body))
	}))
	defer srv.Close()

	p := NewHTTPParser(passThroughGuard{}, 5*time.Second, 1<<20)
	feed, err := p.ParseFeed(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("ParseFeed returned error: %v", err)
	}
	// GUIDなしはリンクで代替し、両方ない記事は除外される
	if len(feed.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(feed.Items))
	}
	if feed.Items[0].GUID != "https://example.com/a" {
		t.Errorf("GUID = %q, want link fallback", feed.Items[0].GUID)
	}
}
