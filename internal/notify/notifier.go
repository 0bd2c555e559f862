package notify

import (
	"context"
	"log/slog"
)

// Notifier はライフサイクルイベントの通知先。通知は各ワークフローが
// 完全に成功した後にのみ呼ばれる。
type Notifier interface {
	OnSubscribe(ctx context.Context, userID, channelID string)
	OnUnsubscribe(ctx context.Context, userID, channelID string)
	OnSignup(ctx context.Context, userID, email string)
	OnActivate(ctx context.Context, userID string)
	OnAccountDelete(ctx context.Context, userID string)
}

// compile-time interface check
var _ Notifier = (*LogNotifier)(nil)

// LogNotifier は構造化ログへイベントを記録するNotifier実装。
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier はLogNotifierを生成する。
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) OnSubscribe(ctx context.Context, userID, channelID string) {
	n.logger.InfoContext(ctx, "subscription created",
		slog.String("user_id", userID),
		slog.String("channel_id", channelID),
	)
}

func (n *LogNotifier) OnUnsubscribe(ctx context.Context, userID, channelID string) {
	n.logger.InfoContext(ctx, "subscription removed",
		slog.String("user_id", userID),
		slog.String("channel_id", channelID),
	)
}

func (n *LogNotifier) OnSignup(ctx context.Context, userID, email string) {
	n.logger.InfoContext(ctx, "user signed up",
		slog.String("user_id", userID),
		slog.String("email", email),
	)
}

func (n *LogNotifier) OnActivate(ctx context.Context, userID string) {
	n.logger.InfoContext(ctx, "user activated",
		slog.String("user_id", userID),
	)
}

func (n *LogNotifier) OnAccountDelete(ctx context.Context, userID string) {
	n.logger.InfoContext(ctx, "account deleted",
		slog.String("user_id", userID),
	)
}
