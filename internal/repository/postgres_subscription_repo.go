package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/feedsync/internal/model"
)

// PostgresSubscriptionRepo はPostgreSQLを使用した購読リポジトリ。
type PostgresSubscriptionRepo struct {
	db *sql.DB
}

// NewPostgresSubscriptionRepo はPostgresSubscriptionRepoを生成する。
func NewPostgresSubscriptionRepo(db *sql.DB) *PostgresSubscriptionRepo {
	return &PostgresSubscriptionRepo{db: db}
}

// FindByUserAndChannel はユーザーIDとチャンネルIDで購読を検索する。見つからない場合はnilを返す。
func (r *PostgresSubscriptionRepo) FindByUserAndChannel(ctx context.Context, userID, channelID string) (*model.Subscription, error) {
	sub := &model.Subscription{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, channel_id, type, display_name, weight, created_at
		 FROM subscriptions WHERE user_id = $1 AND channel_id = $2`,
		userID, channelID,
	).Scan(&sub.ID, &sub.UserID, &sub.ChannelID, &sub.Type, &sub.DisplayName, &sub.Weight, &sub.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーとチャンネルによる購読の検索に失敗しました: %w", err)
	}

	return sub, nil
}

// Create は購読を作成する。
// (user_id, channel_id) のUNIQUE制約が一意性不変条件の最終防壁になる。
func (r *PostgresSubscriptionRepo) Create(ctx context.Context, sub *model.Subscription) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, user_id, channel_id, type, display_name, weight, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sub.ID, sub.UserID, sub.ChannelID, sub.Type, sub.DisplayName, sub.Weight, sub.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("購読の作成に失敗しました: %w", err)
	}
	return nil
}

// DeleteByUserAndChannel は購読を削除する。
// 削除対象が存在しなかった場合はfalseを返す（冪等な購読解除のため、エラーにしない）。
func (r *PostgresSubscriptionRepo) DeleteByUserAndChannel(ctx context.Context, userID, channelID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE user_id = $1 AND channel_id = $2`,
		userID, channelID,
	)
	if err != nil {
		return false, fmt.Errorf("購読の削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}

// ListByUserID はユーザーの購読一覧をweight昇順（NULLは末尾）、次いで作成順で返す。
func (r *PostgresSubscriptionRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Subscription, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, channel_id, type, display_name, weight, created_at
		 FROM subscriptions WHERE user_id = $1
		 ORDER BY weight ASC NULLS LAST, created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("購読一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var subs []*model.Subscription
	for rows.Next() {
		sub := &model.Subscription{}
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.ChannelID, &sub.Type, &sub.DisplayName, &sub.Weight, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("購読行の読み取りに失敗しました: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("購読一覧の走査に失敗しました: %w", err)
	}
	return subs, nil
}

// DeleteByUserID はユーザーの全購読を削除する。
func (r *PostgresSubscriptionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("ユーザーの全購読の削除に失敗しました: %w", err)
	}
	return nil
}

// CountByChannelID はチャンネルのアクティブな購読数を返す。
func (r *PostgresSubscriptionRepo) CountByChannelID(ctx context.Context, channelID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE channel_id = $1`,
		channelID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("購読数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ SubscriptionRepository = (*PostgresSubscriptionRepo)(nil)
