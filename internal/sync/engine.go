package sync

import (
	"context"
	"fmt"

	"github.com/hitoshi/feedsync/internal/model"
)

// ChannelLister は差分判定に必要なチャンネルの鮮度情報を提供する。
type ChannelLister interface {
	ListByIDs(ctx context.Context, ids []string) ([]*model.Channel, error)
}

// ItemLister はチャンネル単位の記事一覧を提供する。
type ItemLister interface {
	ListByChannel(ctx context.Context, channelID string, limit int) ([]model.Item, error)
}

// ChannelUpdate は1チャンネル分の差分結果を表す。
type ChannelUpdate struct {
	ChannelID    string       `json:"channelId"`
	ItemsAddedAt int64        `json:"itemsAddedAt"`
	Items        []ItemUpdate `json:"items"`
}

// ItemUpdate はクライアントへ返す記事1件を表す。
type ItemUpdate struct {
	ID        string `json:"id"`
	GUID      string `json:"guid"`
	Title     string `json:"title"`
	Link      string `json:"link"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
}

// Engine はクライアントのウォーターマークとサーバ側の鮮度を比較し、
// 変化のあったチャンネルだけを返す差分同期エンジン。サーバ側に
// クライアントごとの状態は持たない。
type Engine struct {
	channels  ChannelLister
	items     ItemLister
	itemLimit int
}

// NewEngine はEngineを生成する。itemLimitが0以下の場合は全件返す。
func NewEngine(channels ChannelLister, items ItemLister, itemLimit int) *Engine {
	return &Engine{
		channels:  channels,
		items:     items,
		itemLimit: itemLimit,
	}
}

// GetChannelUpdates は購読中チャンネルのうち、クライアントの
// ウォーターマークより新しい記事追加があったものを返す。
//
// watermarksはチャンネルID→最終同期時刻(エポックミリ秒)のマップ。
// 空のマップなら比較対象がないため空の結果を返す。購読していない
// チャンネルのウォーターマークは無視する。
func (e *Engine) GetChannelUpdates(ctx context.Context, subscribedIDs []string, watermarks map[string]int64) ([]ChannelUpdate, error) {
	if len(watermarks) == 0 {
		return nil, nil
	}

	subscribed := make(map[string]struct{}, len(subscribedIDs))
	for _, id := range subscribedIDs {
		subscribed[id] = struct{}{}
	}

	candidateIDs := make([]string, 0, len(watermarks))
	for id := range watermarks {
		if _, ok := subscribed[id]; ok {
			candidateIDs = append(candidateIDs, id)
		}
	}
	if len(candidateIDs) == 0 {
		return nil, nil
	}

	channels, err := e.channels.ListByIDs(ctx, candidateIDs)
	if err != nil {
		return nil, fmt.Errorf("チャンネル一覧の取得に失敗しました: %w", err)
	}

	var updates []ChannelUpdate
	for _, ch := range channels {
		serverTime := ch.ItemsAddedAtOrZero()
		if serverTime <= watermarks[ch.ID] {
			continue
		}

		items, err := e.items.ListByChannel(ctx, ch.ID, e.itemLimit)
		if err != nil {
			return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
		}

		update := ChannelUpdate{
			ChannelID:    ch.ID,
			ItemsAddedAt: serverTime,
			Items:        make([]ItemUpdate, 0, len(items)),
		}
		for _, item := range items {
			update.Items = append(update.Items, ItemUpdate{
				ID:        item.ID,
				GUID:      item.GUID,
				Title:     item.Title,
				Link:      item.Link,
				Content:   item.Content,
				CreatedAt: item.CreatedAt.UnixMilli(),
			})
		}
		updates = append(updates, update)
	}
	return updates, nil
}
