// Package model はドメインモデルを定義する。
package model

import "time"

// Channel はクロール対象のコンテンツソース（フィードまたはサイト）を表す。
type Channel struct {
	ID              string
	Type            ChannelType
	URL             string
	Domain          string
	Title           string
	SubscriberCount int
	// ItemsAddedAt は最後に新規記事が追加されたクロールの時刻。
	// 単調非減少。未クロールの場合はnil。
	ItemsAddedAt *time.Time
	CrawledAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ChannelType はチャンネルの種類（RSS/Atom）を表す。
type ChannelType string

const (
	// ChannelTypeRSS はRSSフィードのチャンネル。
	ChannelTypeRSS ChannelType = "rss"
	// ChannelTypeAtom はAtomフィードのチャンネル。
	ChannelTypeAtom ChannelType = "atom"
)

// ItemsAddedAtOrZero はitems_added_atをepochミリ秒で返す。
// 未クロールのチャンネルは0として扱う。
func (c *Channel) ItemsAddedAtOrZero() int64 {
	if c.ItemsAddedAt == nil {
		return 0
	}
	return c.ItemsAddedAt.UnixMilli()
}

// Item はチャンネルから取得した記事を表す。
// このコアの視点では追記専用で、クロール時にのみ追加される。
type Item struct {
	ID        string
	ChannelID string
	GUID      string
	Title     string
	Link      string
	Content   string // サニタイズ済みHTML
	CreatedAt time.Time
	FetchedAt time.Time
}

// Subscription はユーザーとチャンネルの購読関係を表す。
// (user_id, channel_id) の組はアクティブなレコードが高々1件という
// 一意性不変条件を持ち、ストアのUNIQUE制約で強制される。
type Subscription struct {
	ID          string
	UserID      string
	ChannelID   string
	Type        SubscriptionType
	DisplayName string
	Weight      *int
	CreatedAt   time.Time
}

// SubscriptionType は購読の作成経路を表す。
type SubscriptionType string

const (
	// SubscriptionTypeFeed はURL経由（フィード解決）で作成された購読。
	SubscriptionTypeFeed SubscriptionType = "feed"
	// SubscriptionTypeChannel はチャンネルID直指定で作成された購読。
	SubscriptionTypeChannel SubscriptionType = "channel"
)
