// Package feedparse はフィードの取得と解析を提供する。
// 購読ワークフローとクロールの両方から使われる外部コラボレーター。
package feedparse

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/feedsync/internal/model"
)

// ParsedFeed はフィード文書の解析結果を表す。
type ParsedFeed struct {
	Title  string
	Type   model.ChannelType
	URL    string
	Domain string
	Items  []ParsedItem
}

// ParsedItem はフィードから解析された未保存の記事を表す。
type ParsedItem struct {
	GUID        string
	Title       string
	Link        string
	Content     string // 未サニタイズのHTML
	PublishedAt *time.Time
}

// Parser はフィード取得・解析のインターフェース。
type Parser interface {
	// ParseFeed はURLからフィードを取得して解析する。
	// 取得失敗はFeedUnreachable、解析失敗はFeedInvalidを返す。
	ParseFeed(ctx context.Context, rawURL string) (*ParsedFeed, error)
}

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// HTTPParser はSSRF防止付きHTTPクライアントとgofeedによるParserの実装。
type HTTPParser struct {
	ssrfGuard   SSRFValidator
	timeout     time.Duration
	maxBodySize int64
}

// NewHTTPParser はHTTPParserの新しいインスタンスを生成する。
func NewHTTPParser(ssrfGuard SSRFValidator, timeout time.Duration, maxBodySize int64) *HTTPParser {
	return &HTTPParser{
		ssrfGuard:   ssrfGuard,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// ParseFeed はURLからフィードを取得して解析する。
// 取得先がHTMLページだった場合は<link rel="alternate">による
// フィード自動検出を1回だけ試みる。
func (p *HTTPParser) ParseFeed(ctx context.Context, rawURL string) (*ParsedFeed, error) {
	body, err := p.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	feed, parseErr := parseBody(rawURL, body)
	if parseErr == nil {
		return feed, nil
	}

	// フィードとして解析できなかった場合のみ自動検出に進む
	discovered := discoverFeedURL(rawURL, body)
	if discovered == "" || discovered == rawURL {
		return nil, parseErr
	}

	body, err = p.fetch(ctx, discovered)
	if err != nil {
		return nil, err
	}
	return parseBody(discovered, body)
}

// fetch はSSRF検証済みの安全なクライアントでURLの本文を取得する。
func (p *HTTPParser) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := p.ssrfGuard.ValidateURL(rawURL); err != nil {
		return nil, model.NewSSRFBlockedError()
	}

	client := p.ssrfGuard.NewSafeClient(p.timeout, p.maxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, model.NewFeedUnreachableError(rawURL, err.Error())
	}
	req.Header.Set("User-Agent", "Feedsync/1.0 Feed Reader")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := client.Do(req)
	if err != nil {
		return nil, model.NewFeedUnreachableError(rawURL, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.NewFeedUnreachableError(rawURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBodySize))
	if err != nil {
		return nil, model.NewFeedUnreachableError(rawURL, err.Error())
	}
	return body, nil
}

// parseBody はフィード文書のバイト列を解析してParsedFeedを構築する。
func parseBody(rawURL string, body []byte) (*ParsedFeed, error) {
	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, model.NewFeedInvalidError(rawURL)
	}

	feed := &ParsedFeed{
		Title:  strings.TrimSpace(parsed.Title),
		Type:   channelTypeOf(parsed.FeedType),
		URL:    rawURL,
		Domain: domainOf(rawURL),
	}
	if feed.Title == "" {
		feed.Title = rawURL
	}

	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		guid := item.GUID
		if guid == "" {
			guid = item.Link
		}
		if guid == "" {
			// GUIDもリンクもない記事は同一性判定ができないためスキップ
			continue
		}
		content := item.Content
		if content == "" {
			content = item.Description
		}
		feed.Items = append(feed.Items, ParsedItem{
			GUID:        guid,
			Title:       strings.TrimSpace(item.Title),
			Link:        item.Link,
			Content:     content,
			PublishedAt: item.PublishedParsed,
		})
	}

	return feed, nil
}

// channelTypeOf はgofeedのフィード種別をChannelTypeに写像する。
// 不明な種別はRSSとして扱う。
func channelTypeOf(feedType string) model.ChannelType {
	switch strings.ToLower(feedType) {
	case "atom":
		return model.ChannelTypeAtom
	default:
		return model.ChannelTypeRSS
	}
}

// domainOf はURLからホスト名を抽出する。解析できない場合は空文字を返す。
func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// compile-time interface check
var _ Parser = (*HTTPParser)(nil)
