// Package crawl は購読中チャンネルのバックグラウンドクロールを提供する。
package crawl

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/feedsync/internal/model"
)

// ChannelCrawler はチャンネルクロールの実行インターフェース。
type ChannelCrawler interface {
	// Crawl は指定チャンネルをクロールし、新規記事を保存する。
	Crawl(ctx context.Context, ch *model.Channel) error
}

// ChannelSource はクロール対象チャンネルの取得インターフェース。
type ChannelSource interface {
	// ListWithSubscribers は購読者が1人以上いるチャンネルを返す。
	ListWithSubscribers(ctx context.Context) ([]*model.Channel, error)
}

// Scheduler はチャンネルクロールのスケジューリングと並列制御を行う。
// 一定間隔のティッカーで購読者のいるチャンネルを取得し、
// semaphoreパターンで最大並列数を制御しながらクロールを実行する。
type Scheduler struct {
	channels       ChannelSource
	crawler        ChannelCrawler
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewScheduler(
	channels ChannelSource,
	crawler ChannelCrawler,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		channels:       channels,
		crawler:        crawler,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("クロールスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("クロールサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("クロールスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("クロールサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce はクロール対象チャンネルを1回取得し、並列でクロールを実行する。
// semaphoreパターンで最大並列数を制御する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	channels, err := s.channels.ListWithSubscribers(ctx)
	if err != nil {
		return err
	}

	if len(channels) == 0 {
		s.logger.Info("クロール対象のチャンネルはありません")
		return nil
	}

	s.logger.Info("クロールサイクルを開始します",
		slog.Int("channel_count", len(channels)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, ch := range channels {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(c *model.Channel) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := s.crawler.Crawl(ctx, c); err != nil {
				s.logger.Error("チャンネルクロールに失敗しました",
					slog.String("channel_id", c.ID),
					slog.String("channel_url", c.URL),
					slog.String("error", err.Error()),
				)
			}
		}(ch)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("クロールサイクルが完了しました",
		slog.Int("channel_count", len(channels)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
