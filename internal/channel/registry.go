// Package channel はチャンネルの解決・クロール・購読者数管理を提供する。
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/feedsync/internal/feedparse"
	"github.com/hitoshi/feedsync/internal/model"
	"github.com/hitoshi/feedsync/internal/repository"
)

// CrawlRecorder はクロール結果のメトリクス記録インターフェース。
type CrawlRecorder interface {
	RecordCrawlSuccess()
	RecordCrawlFailure()
	RecordItemsAdded(count int)
	RecordCrawlLatency(duration time.Duration)
}

// Registry はチャンネルの正規レコードを管理するサービス層。
// URLによる解決（upsert）、クロールによる記事取り込み、
// 購読者カウンタの相対更新を提供する。
type Registry struct {
	channelRepo repository.ChannelRepository
	itemRepo    repository.ItemRepository
	parser      feedparse.Parser
	sanitizer   *bluemonday.Policy
	recorder    CrawlRecorder
}

// NewRegistry はRegistryの新しいインスタンスを生成する。
// recorderはnilでもよい（メトリクス記録をスキップする）。
func NewRegistry(
	channelRepo repository.ChannelRepository,
	itemRepo repository.ItemRepository,
	parser feedparse.Parser,
	recorder CrawlRecorder,
) *Registry {
	return &Registry{
		channelRepo: channelRepo,
		itemRepo:    itemRepo,
		parser:      parser,
		sanitizer:   bluemonday.UGCPolicy(),
		recorder:    recorder,
	}
}

// FindByID は指定IDのチャンネルを取得する。見つからない場合はnilを返す。
func (r *Registry) FindByID(ctx context.Context, id string) (*model.Channel, error) {
	return r.channelRepo.FindByID(ctx, id)
}

// FindOrCreate はフィードの正規URLでチャンネルを解決する。
// 存在しなければ新規作成する。ストア側のupsertにより、
// 同一URLへの並行呼び出しでも必ず単一のチャンネルに収束する。
func (r *Registry) FindOrCreate(ctx context.Context, feed *feedparse.ParsedFeed) (*model.Channel, error) {
	now := time.Now()
	candidate := &model.Channel{
		ID:        uuid.New().String(),
		Type:      feed.Type,
		URL:       feed.URL,
		Domain:    feed.Domain,
		Title:     feed.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	ch, err := r.channelRepo.CreateIfAbsent(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("チャンネルの解決に失敗しました: %w", err)
	}
	return ch, nil
}

// Crawl はチャンネルのフィードを取得し、新規記事を取り込む。
// 新規記事が1件以上追加された場合のみitems_added_atを進める（単調非減少）。
// 既知の記事は冪等にスキップされる。
func (r *Registry) Crawl(ctx context.Context, ch *model.Channel) error {
	start := time.Now()

	feed, err := r.parser.ParseFeed(ctx, ch.URL)
	if err != nil {
		if r.recorder != nil {
			r.recorder.RecordCrawlFailure()
		}
		return fmt.Errorf("チャンネルのクロールに失敗しました: %w", err)
	}

	added, err := r.ingestItems(ctx, ch.ID, feed.Items)
	if err != nil {
		if r.recorder != nil {
			r.recorder.RecordCrawlFailure()
		}
		return err
	}

	crawledAt := time.Now()
	var itemsAddedAt *time.Time
	if added > 0 {
		itemsAddedAt = &crawledAt
	}

	if err := r.channelRepo.UpdateCrawlState(ctx, ch.ID, feed.Title, itemsAddedAt, crawledAt); err != nil {
		return err
	}

	// 呼び出し元が同じChannel値を使い続けるため、取り込み結果をメモリ側にも反映する
	ch.Title = feed.Title
	ch.CrawledAt = &crawledAt
	if itemsAddedAt != nil {
		ch.ItemsAddedAt = itemsAddedAt
	}

	slog.Info("チャンネルをクロールしました",
		slog.String("channel_id", ch.ID),
		slog.String("url", ch.URL),
		slog.Int("items_added", added),
	)

	if r.recorder != nil {
		r.recorder.RecordCrawlSuccess()
		r.recorder.RecordItemsAdded(added)
		r.recorder.RecordCrawlLatency(time.Since(start))
	}

	return nil
}

// ingestItems は解析済み記事をサニタイズして保存し、新規追加件数を返す。
func (r *Registry) ingestItems(ctx context.Context, channelID string, items []feedparse.ParsedItem) (int, error) {
	now := time.Now()
	added := 0

	for _, parsed := range items {
		createdAt := now
		if parsed.PublishedAt != nil {
			createdAt = *parsed.PublishedAt
		}

		item := &model.Item{
			ID:        uuid.New().String(),
			ChannelID: channelID,
			GUID:      parsed.GUID,
			Title:     parsed.Title,
			Link:      parsed.Link,
			Content:   r.sanitizer.Sanitize(parsed.Content),
			CreatedAt: createdAt,
			FetchedAt: now,
		}

		inserted, err := r.itemRepo.Insert(ctx, item)
		if err != nil {
			return added, fmt.Errorf("記事の保存に失敗しました: %w", err)
		}
		if inserted {
			added++
		}
	}

	return added, nil
}

// IncrementSubscribers はチャンネルの購読者数を+1する。
func (r *Registry) IncrementSubscribers(ctx context.Context, id string) error {
	return r.channelRepo.IncrementSubscribers(ctx, id)
}

// DecrementSubscribers はチャンネルの購読者数を-1する（0未満にはならない）。
// チャンネルが既に削除されている場合はrepository.ErrChannelGoneを返す。
func (r *Registry) DecrementSubscribers(ctx context.Context, id string) error {
	return r.channelRepo.DecrementSubscribers(ctx, id)
}
