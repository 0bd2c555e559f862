package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/feedsync/internal/feedparse"
	"github.com/hitoshi/feedsync/internal/model"
)

// --- モック ---

type mockChannelRepo struct {
	findByIDFn         func(ctx context.Context, id string) (*model.Channel, error)
	createIfAbsentFn   func(ctx context.Context, ch *model.Channel) (*model.Channel, error)
	updateCrawlStateFn func(ctx context.Context, id string, title string, itemsAddedAt *time.Time, crawledAt time.Time) error
	incrementFn        func(ctx context.Context, id string) error
	decrementFn        func(ctx context.Context, id string) error
}

func (m *mockChannelRepo) FindByID(ctx context.Context, id string) (*model.Channel, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockChannelRepo) FindByURL(ctx context.Context, url string) (*model.Channel, error) {
	return nil, nil
}
func (m *mockChannelRepo) CreateIfAbsent(ctx context.Context, ch *model.Channel) (*model.Channel, error) {
	return m.createIfAbsentFn(ctx, ch)
}
func (m *mockChannelRepo) IncrementSubscribers(ctx context.Context, id string) error {
	if m.incrementFn != nil {
		return m.incrementFn(ctx, id)
	}
	return nil
}
func (m *mockChannelRepo) DecrementSubscribers(ctx context.Context, id string) error {
	if m.decrementFn != nil {
		return m.decrementFn(ctx, id)
	}
	return nil
}
func (m *mockChannelRepo) ListByIDs(ctx context.Context, ids []string) ([]*model.Channel, error) {
	return nil, nil
}
func (m *mockChannelRepo) ListWithSubscribers(ctx context.Context) ([]*model.Channel, error) {
	return nil, nil
}
func (m *mockChannelRepo) UpdateCrawlState(ctx context.Context, id string, title string, itemsAddedAt *time.Time, crawledAt time.Time) error {
	if m.updateCrawlStateFn != nil {
		return m.updateCrawlStateFn(ctx, id, title, itemsAddedAt, crawledAt)
	}
	return nil
}

type mockItemRepo struct {
	insertFn func(ctx context.Context, item *model.Item) (bool, error)
}

func (m *mockItemRepo) Insert(ctx context.Context, item *model.Item) (bool, error) {
	return m.insertFn(ctx, item)
}
func (m *mockItemRepo) ListByChannel(ctx context.Context, channelID string, limit int) ([]model.Item, error) {
	return nil, nil
}

type mockParser struct {
	parseFeedFn func(ctx context.Context, rawURL string) (*feedparse.ParsedFeed, error)
}

func (m *mockParser) ParseFeed(ctx context.Context, rawURL string) (*feedparse.ParsedFeed, error) {
	return m.parseFeedFn(ctx, rawURL)
}

// --- テスト ---

// TestRegistry_FindOrCreate はupsert経由のチャンネル解決を検証する。
func TestRegistry_FindOrCreate(t *testing.T) {
	existing := &model.Channel{ID: "ch-1", URL: "https://example.com/feed.xml"}
	repo := &mockChannelRepo{
		createIfAbsentFn: func(ctx context.Context, ch *model.Channel) (*model.Channel, error) {
			if ch.URL != "https://example.com/feed.xml" {
				t.Errorf("URL = %q, want %q", ch.URL, "https://example.com/feed.xml")
			}
			if ch.ID == "" {
				t.Error("expected generated candidate ID")
			}
			return existing, nil
		},
	}

	reg := NewRegistry(repo, &mockItemRepo{}, &mockParser{}, nil)

	ch, err := reg.FindOrCreate(context.Background(), &feedparse.ParsedFeed{
		Title:  "Example",
		Type:   model.ChannelTypeRSS,
		URL:    "https://example.com/feed.xml",
		Domain: "example.com",
	})
	if err != nil {
		t.Fatalf("FindOrCreate returned error: %v", err)
	}
	if ch.ID != "ch-1" {
		t.Errorf("ID = %q, want %q (existing row wins)", ch.ID, "ch-1")
	}
}

// TestRegistry_Crawl_NewItemsAdvanceWatermark は新規記事追加時のみ
// items_added_atが進むことを検証する。
func TestRegistry_Crawl_NewItemsAdvanceWatermark(t *testing.T) {
	published := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	parser := &mockParser{
		parseFeedFn: func(ctx context.Context, rawURL string) (*feedparse.ParsedFeed, error) {
			return &feedparse.ParsedFeed{
				Title: "Example Blog",
				Items: []feedparse.ParsedItem{
					{GUID: "g-1", Title: "one", PublishedAt: &published},
					{GUID: "g-2", Title: "two"},
				},
			}, nil
		},
	}

	var recordedWatermark *time.Time
	repo := &mockChannelRepo{
		updateCrawlStateFn: func(ctx context.Context, id string, title string, itemsAddedAt *time.Time, crawledAt time.Time) error {
			recordedWatermark = itemsAddedAt
			if title != "Example Blog" {
				t.Errorf("title = %q, want %q", title, "Example Blog")
			}
			return nil
		},
	}
	items := &mockItemRepo{
		insertFn: func(ctx context.Context, item *model.Item) (bool, error) {
			return true, nil
		},
	}

	reg := NewRegistry(repo, items, parser, nil)
	ch := &model.Channel{ID: "ch-1", URL: "https://example.com/feed.xml"}

	if err := reg.Crawl(context.Background(), ch); err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}
	if recordedWatermark == nil {
		t.Fatal("expected items_added_at to advance when items were added")
	}
	if ch.ItemsAddedAt == nil {
		t.Error("expected in-memory channel to reflect the new watermark")
	}
}

// TestRegistry_Crawl_NoNewItemsKeepsWatermark は全記事が既知の場合に
// items_added_atが進まないことを検証する。
func TestRegistry_Crawl_NoNewItemsKeepsWatermark(t *testing.T) {
	parser := &mockParser{
		parseFeedFn: func(ctx context.Context, rawURL string) (*feedparse.ParsedFeed, error) {
			return &feedparse.ParsedFeed{
				Title: "Example Blog",
				Items: []feedparse.ParsedItem{{GUID: "g-1"}},
			}, nil
		},
	}

	var recordedWatermark *time.Time
	watermarkUpdated := false
	repo := &mockChannelRepo{
		updateCrawlStateFn: func(ctx context.Context, id string, title string, itemsAddedAt *time.Time, crawledAt time.Time) error {
			recordedWatermark = itemsAddedAt
			watermarkUpdated = true
			return nil
		},
	}
	items := &mockItemRepo{
		insertFn: func(ctx context.Context, item *model.Item) (bool, error) {
			return false, nil // 既知の記事
		},
	}

	reg := NewRegistry(repo, items, parser, nil)
	before := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	ch := &model.Channel{ID: "ch-1", URL: "https://example.com/feed.xml", ItemsAddedAt: &before}

	if err := reg.Crawl(context.Background(), ch); err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}
	if !watermarkUpdated {
		t.Fatal("expected crawl state update")
	}
	if recordedWatermark != nil {
		t.Error("expected nil items_added_at when no new items were added")
	}
	if !ch.ItemsAddedAt.Equal(before) {
		t.Errorf("in-memory watermark changed: %v, want %v", ch.ItemsAddedAt, before)
	}
}

// TestRegistry_Crawl_ParseFailure はパース失敗がエラーとして返ることを検証する。
func TestRegistry_Crawl_ParseFailure(t *testing.T) {
	parser := &mockParser{
		parseFeedFn: func(ctx context.Context, rawURL string) (*feedparse.ParsedFeed, error) {
			return nil, model.NewFeedUnreachableError(rawURL, "connection refused")
		},
	}

	reg := NewRegistry(&mockChannelRepo{}, &mockItemRepo{}, parser, nil)
	err := reg.Crawl(context.Background(), &model.Channel{ID: "ch-1", URL: "https://example.com/feed.xml"})
	if err == nil {
		t.Fatal("expected error from failed crawl")
	}
}

// TestRegistry_Crawl_ItemInsertFailureAborts は記事保存失敗で
// クロール状態が更新されないことを検証する。
func TestRegistry_Crawl_ItemInsertFailureAborts(t *testing.T) {
	parser := &mockParser{
		parseFeedFn: func(ctx context.Context, rawURL string) (*feedparse.ParsedFeed, error) {
			return &feedparse.ParsedFeed{Items: []feedparse.ParsedItem{{GUID: "g-1"}}}, nil
		},
	}
	stateUpdated := false
	repo := &mockChannelRepo{
		updateCrawlStateFn: func(ctx context.Context, id string, title string, itemsAddedAt *time.Time, crawledAt time.Time) error {
			stateUpdated = true
			return nil
		},
	}
	items := &mockItemRepo{
		insertFn: func(ctx context.Context, item *model.Item) (bool, error) {
			return false, errors.New("insert failed")
		},
	}

	reg := NewRegistry(repo, items, parser, nil)
	err := reg.Crawl(context.Background(), &model.Channel{ID: "ch-1", URL: "https://example.com/feed.xml"})
	if err == nil {
		t.Fatal("expected error from failed insert")
	}
	if stateUpdated {
		t.Error("crawl state must not be updated after an insert failure")
	}
}

// TestRegistry_Crawl_SanitizesContent は記事本文がサニタイズされることを検証する。
func TestRegistry_Crawl_SanitizesContent(t *testing.T) {
	parser := &mockParser{
		parseFeedFn: func(ctx context.Context, rawURL string) (*feedparse.ParsedFeed, error) {
			return &feedparse.ParsedFeed{
				Items: []feedparse.ParsedItem{
					{GUID: "g-1", Content: `<p>ok</p><script>alert("x")</script>`},
				},
			}, nil
		},
	}
	var saved *model.Item
	items := &mockItemRepo{
		insertFn: func(ctx context.Context, item *model.Item) (bool, error) {
			saved = item
			return true, nil
		},
	}

	reg := NewRegistry(&mockChannelRepo{}, items, parser, nil)
	if err := reg.Crawl(context.Background(), &model.Channel{ID: "ch-1", URL: "https://example.com/feed.xml"}); err != nil {
		t.Fatalf("Crawl returned error: %v", err)
	}
	if saved == nil {
		t.Fatal("expected item to be saved")
	}
	if saved.Content != "<p>ok</p>" {
		t.Errorf("Content = %q, want script stripped", saved.Content)
	}
}
