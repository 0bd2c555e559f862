// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/feedsync/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレス（小文字正規化済み）でユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindVerifiedByEmail はメールアドレスと verified=true の両方に一致する
	// ユーザーを検索する。見つからない場合はnilを返す。
	FindVerifiedByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByVerificationToken は本人確認トークンでユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByVerificationToken(ctx context.Context, token string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレスの一意制約違反は
	// そのままエラーとして返す（呼び出し側で事前チェック済みの想定）。
	Create(ctx context.Context, user *model.User) error

	// Activate は verified=true を設定し、verification トークンを
	// 同一UPDATEでNULLにクリアする。
	Activate(ctx context.Context, id string) error

	// DeleteByID は指定IDのユーザーを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ChannelRepository はチャンネルデータの永続化インターフェース。
type ChannelRepository interface {
	// FindByID は指定IDのチャンネルを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Channel, error)

	// FindByURL は正規URLでチャンネルを検索する。見つからない場合はnilを返す。
	FindByURL(ctx context.Context, url string) (*model.Channel, error)

	// CreateIfAbsent はURL一意制約に対するupsert。
	// INSERT ... ON CONFLICT (url) DO NOTHING の後に再SELECTするため、
	// 同一URLへの並行呼び出しでも必ず単一の行に収束する。
	// 返り値は確定したチャンネル行（既存または新規）。
	CreateIfAbsent(ctx context.Context, channel *model.Channel) (*model.Channel, error)

	// IncrementSubscribers は購読者数を相対加算で+1する。
	IncrementSubscribers(ctx context.Context, id string) error

	// DecrementSubscribers は購読者数を相対減算で-1する。0未満にはならない。
	// チャンネルが存在しない場合はErrChannelGoneを返す。
	DecrementSubscribers(ctx context.Context, id string) error

	// ListByIDs は指定IDのチャンネルを取得する。
	// 存在しないIDは結果から黙って除外される。
	ListByIDs(ctx context.Context, ids []string) ([]*model.Channel, error)

	// ListWithSubscribers は購読者が1人以上いるチャンネルを取得する。
	// クロールワーカーの巡回対象を決める。
	ListWithSubscribers(ctx context.Context) ([]*model.Channel, error)

	// UpdateCrawlState はクロール結果を反映する。
	// itemsAddedAtは新規記事が追加された場合のみ進める（単調非減少）。
	UpdateCrawlState(ctx context.Context, id string, title string, itemsAddedAt *time.Time, crawledAt time.Time) error
}

// ItemRepository はチャンネル記事の永続化インターフェース。
// 記事はこのコアの視点では追記専用。
type ItemRepository interface {
	// Insert は記事を作成する。(channel_id, guid) が重複する場合は
	// 何もせずfalseを返す（冪等なクロールのため）。
	Insert(ctx context.Context, item *model.Item) (bool, error)

	// ListByChannel はチャンネルの記事をcreated_at降順で取得する。
	ListByChannel(ctx context.Context, channelID string, limit int) ([]model.Item, error)
}

// SubscriptionRepository は購読データの永続化インターフェース。
type SubscriptionRepository interface {
	// FindByUserAndChannel はユーザーIDとチャンネルIDで購読を検索する。
	// 見つからない場合はnilを返す。
	FindByUserAndChannel(ctx context.Context, userID, channelID string) (*model.Subscription, error)

	// Create は購読を作成する。(user_id, channel_id) のUNIQUE制約違反は
	// そのままエラーとして返す。
	Create(ctx context.Context, subscription *model.Subscription) error

	// DeleteByUserAndChannel は購読を削除する。
	// 削除対象が存在しなかった場合はfalseを返す（エラーではない）。
	DeleteByUserAndChannel(ctx context.Context, userID, channelID string) (bool, error)

	// ListByUserID はユーザーの購読一覧をweight昇順（NULLは末尾）、
	// 次いで作成順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Subscription, error)

	// DeleteByUserID はユーザーの全購読を削除する。
	DeleteByUserID(ctx context.Context, userID string) error

	// CountByChannelID はチャンネルのアクティブな購読数を返す。
	// subscriber_countカウンタの整合性検証用で、ホットパスでは使わない。
	CountByChannelID(ctx context.Context, channelID string) (int, error)
}
