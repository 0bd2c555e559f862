package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/feedsync/internal/feedparse"
	"github.com/hitoshi/feedsync/internal/model"
	"github.com/hitoshi/feedsync/internal/notify"
	"github.com/hitoshi/feedsync/internal/repository"
)

// ChannelRegistry は購読ワークフローが依存するチャンネル側の操作。
type ChannelRegistry interface {
	FindByID(ctx context.Context, id string) (*model.Channel, error)
	FindOrCreate(ctx context.Context, feed *feedparse.ParsedFeed) (*model.Channel, error)
	Crawl(ctx context.Context, ch *model.Channel) error
	IncrementSubscribers(ctx context.Context, id string) error
	DecrementSubscribers(ctx context.Context, id string) error
}

// Manager は購読・購読解除の複数ステップからなるワークフローを統括する。
// 各ステップは直前のステップの成功に依存して順番に実行され、途中で
// 失敗した場合は残りを中断する。完了済みのステップは巻き戻さない
// （購読者0のチャンネルが残るのは許容される。URLで再解決できるため
// リトライで収束する）。
type Manager struct {
	parser           feedparse.Parser
	registry         ChannelRegistry
	subscriptionRepo repository.SubscriptionRepository
	notifier         notify.Notifier
	logger           *slog.Logger
}

// NewManager はManagerを生成する。
func NewManager(
	parser feedparse.Parser,
	registry ChannelRegistry,
	subscriptionRepo repository.SubscriptionRepository,
	notifier notify.Notifier,
	logger *slog.Logger,
) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		parser:           parser,
		registry:         registry,
		subscriptionRepo: subscriptionRepo,
		notifier:         notifier,
		logger:           logger,
	}
}

// SubscribeByURL はフィードURLから購読を作成する。
//
// フィード取得→チャンネル解決→クロール→購読作成→購読者数加算の順に
// 実行し、全ステップ成功時のみ購読通知を発火する。
func (m *Manager) SubscribeByURL(ctx context.Context, userID, rawURL string) (*model.Channel, error) {
	feed, err := m.parser.ParseFeed(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	ch, err := m.registry.FindOrCreate(ctx, feed)
	if err != nil {
		return nil, fmt.Errorf("チャンネルの解決に失敗しました: %w", err)
	}

	existing, err := m.subscriptionRepo.FindByUserAndChannel(ctx, userID, ch.ID)
	if err != nil {
		return nil, fmt.Errorf("購読の確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewAlreadySubscribedError(ch.ID)
	}

	// 最初の同期で記事が見えるよう、購読を公開する前にクロールしておく
	if err := m.registry.Crawl(ctx, ch); err != nil {
		return nil, err
	}

	if err := m.createSubscription(ctx, userID, ch.ID, model.SubscriptionTypeFeed, feed.Title); err != nil {
		return nil, err
	}

	if err := m.registry.IncrementSubscribers(ctx, ch.ID); err != nil {
		return nil, fmt.Errorf("購読者数の加算に失敗しました: %w", err)
	}

	if m.notifier != nil {
		m.notifier.OnSubscribe(ctx, userID, ch.ID)
	}
	return ch, nil
}

// SubscribeByChannelID は既知のチャンネルIDから購読を作成する。
// 既に購読済みの場合はAlreadySubscribedを返し、購読者数は変化しない。
func (m *Manager) SubscribeByChannelID(ctx context.Context, userID, channelID string) (*model.Channel, error) {
	ch, err := m.registry.FindByID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("チャンネルの検索に失敗しました: %w", err)
	}
	if ch == nil {
		return nil, model.NewChannelNotFoundError(channelID)
	}

	existing, err := m.subscriptionRepo.FindByUserAndChannel(ctx, userID, channelID)
	if err != nil {
		return nil, fmt.Errorf("購読の確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewAlreadySubscribedError(channelID)
	}

	if err := m.createSubscription(ctx, userID, channelID, model.SubscriptionTypeChannel, ch.Title); err != nil {
		return nil, err
	}

	if err := m.registry.IncrementSubscribers(ctx, channelID); err != nil {
		return nil, fmt.Errorf("購読者数の加算に失敗しました: %w", err)
	}

	if m.notifier != nil {
		m.notifier.OnSubscribe(ctx, userID, channelID)
	}
	return ch, nil
}

// Unsubscribe は購読を解除する。購読が存在しない場合もエラーにしない
// （冪等）。チャンネルが既に消えていて購読者数を減算できなかった場合は
// ログに残すだけで呼び出し元には伝えない。
func (m *Manager) Unsubscribe(ctx context.Context, userID, channelID string) error {
	removed, err := m.subscriptionRepo.DeleteByUserAndChannel(ctx, userID, channelID)
	if err != nil {
		return fmt.Errorf("購読の削除に失敗しました: %w", err)
	}

	if removed {
		if err := m.registry.DecrementSubscribers(ctx, channelID); err != nil {
			if errors.Is(err, repository.ErrChannelGone) {
				m.logger.WarnContext(ctx, "channel gone before subscriber decrement",
					slog.String("channel_id", channelID),
				)
			} else {
				return fmt.Errorf("購読者数の減算に失敗しました: %w", err)
			}
		}
	}

	if m.notifier != nil {
		m.notifier.OnUnsubscribe(ctx, userID, channelID)
	}
	return nil
}

// ListByUserID はユーザーの購読一覧を返す。
func (m *Manager) ListByUserID(ctx context.Context, userID string) ([]*model.Subscription, error) {
	subs, err := m.subscriptionRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("購読一覧の取得に失敗しました: %w", err)
	}
	return subs, nil
}

func (m *Manager) createSubscription(ctx context.Context, userID, channelID string, subType model.SubscriptionType, displayName string) error {
	sub := &model.Subscription{
		ID:          uuid.New().String(),
		UserID:      userID,
		ChannelID:   channelID,
		Type:        subType,
		DisplayName: displayName,
		CreatedAt:   time.Now(),
	}
	if err := m.subscriptionRepo.Create(ctx, sub); err != nil {
		return fmt.Errorf("購読の作成に失敗しました: %w", err)
	}
	return nil
}
