package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/feedsync/internal/model"
)

// PostgresItemRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresItemRepo struct {
	db *sql.DB
}

// NewPostgresItemRepo はPostgresItemRepoを生成する。
func NewPostgresItemRepo(db *sql.DB) *PostgresItemRepo {
	return &PostgresItemRepo{db: db}
}

// Insert は記事を作成する。(channel_id, guid) が重複する場合は
// 何もせずfalseを返す。クロールは同じフィードを繰り返し読むため、
// ここの冪等性がitems_added_atの正しさを支える。
func (r *PostgresItemRepo) Insert(ctx context.Context, item *model.Item) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO channel_items (id, channel_id, guid, title, link, content, created_at, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (channel_id, guid) DO NOTHING`,
		item.ID, item.ChannelID, item.GUID, item.Title, item.Link, item.Content, item.CreatedAt, item.FetchedAt,
	)
	if err != nil {
		return false, fmt.Errorf("記事の作成に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("作成結果の取得に失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}

// ListByChannel はチャンネルの記事をcreated_at降順で取得する。
// limitが0以下の場合は全件を返す。
func (r *PostgresItemRepo) ListByChannel(ctx context.Context, channelID string, limit int) ([]model.Item, error) {
	query := `SELECT id, channel_id, guid, title, link, content, created_at, fetched_at
	          FROM channel_items WHERE channel_id = $1 ORDER BY created_at DESC`
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+` LIMIT $2`, channelID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, channelID)
	}
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var item model.Item
		if err := rows.Scan(&item.ID, &item.ChannelID, &item.GUID, &item.Title, &item.Link, &item.Content, &item.CreatedAt, &item.FetchedAt); err != nil {
			return nil, fmt.Errorf("記事行の読み取りに失敗しました: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事一覧の走査に失敗しました: %w", err)
	}
	return items, nil
}

// compile-time interface check
var _ ItemRepository = (*PostgresItemRepo)(nil)
