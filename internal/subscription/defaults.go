package subscription

import (
	"context"
	"log/slog"

	"github.com/hitoshi/feedsync/internal/model"
)

// URLSubscriber はフィードURLからの購読作成インターフェース。
type URLSubscriber interface {
	SubscribeByURL(ctx context.Context, userID, rawURL string) (*model.Channel, error)
}

// compile-time interface check
var _ URLSubscriber = (*Manager)(nil)

// DefaultSet は新規ユーザーへ付与する初期購読セット。
// 個々のフィードの失敗はログに残して続行し、サインアップ自体を
// 失敗させない。
type DefaultSet struct {
	subscriber URLSubscriber
	urls       []string
	logger     *slog.Logger
}

// NewDefaultSet はDefaultSetを生成する。urlsが空でも有効（何もしない）。
func NewDefaultSet(subscriber URLSubscriber, urls []string, logger *slog.Logger) *DefaultSet {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultSet{subscriber: subscriber, urls: urls, logger: logger}
}

// CreateDefaults は設定済みの各フィードへユーザーを購読させる。
func (d *DefaultSet) CreateDefaults(ctx context.Context, userID string) error {
	for _, url := range d.urls {
		if _, err := d.subscriber.SubscribeByURL(ctx, userID, url); err != nil {
			d.logger.WarnContext(ctx, "default subscription failed",
				slog.String("user_id", userID),
				slog.String("url", url),
				slog.Any("error", err),
			)
		}
	}
	return nil
}
