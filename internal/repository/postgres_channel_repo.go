package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/feedsync/internal/model"
)

// ErrChannelGone はカウンタ操作の対象チャンネルが既に削除されていたことを表す。
// 購読解除フローはこのエラーを致命的でない不整合としてログのみで握りつぶす。
var ErrChannelGone = errors.New("channel no longer exists")

// PostgresChannelRepo はPostgreSQLを使用したチャンネルリポジトリ。
type PostgresChannelRepo struct {
	db *sql.DB
}

// NewPostgresChannelRepo はPostgresChannelRepoを生成する。
func NewPostgresChannelRepo(db *sql.DB) *PostgresChannelRepo {
	return &PostgresChannelRepo{db: db}
}

const channelColumns = `id, type, url, domain, title, subscriber_count,
	items_added_at, crawled_at, created_at, updated_at`

func scanChannelRow(scan func(dest ...any) error) (*model.Channel, error) {
	ch := &model.Channel{}
	err := scan(
		&ch.ID, &ch.Type, &ch.URL, &ch.Domain, &ch.Title, &ch.SubscriberCount,
		&ch.ItemsAddedAt, &ch.CrawledAt, &ch.CreatedAt, &ch.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// FindByID は指定IDのチャンネルを取得する。見つからない場合はnilを返す。
func (r *PostgresChannelRepo) FindByID(ctx context.Context, id string) (*model.Channel, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE id = $1`, id,
	)
	ch, err := scanChannelRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("チャンネルの取得に失敗しました: %w", err)
	}
	return ch, nil
}

// FindByURL は正規URLでチャンネルを検索する。見つからない場合はnilを返す。
func (r *PostgresChannelRepo) FindByURL(ctx context.Context, url string) (*model.Channel, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE url = $1`, url,
	)
	ch, err := scanChannelRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("URLによるチャンネルの検索に失敗しました: %w", err)
	}
	return ch, nil
}

// CreateIfAbsent はURL一意制約に対するupsert。
// INSERT ... ON CONFLICT (url) DO NOTHING の後に再SELECTするため、
// 同一URLへの並行呼び出しでも単一の行に収束する。
func (r *PostgresChannelRepo) CreateIfAbsent(ctx context.Context, channel *model.Channel) (*model.Channel, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO channels (id, type, url, domain, title, subscriber_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
		 ON CONFLICT (url) DO NOTHING`,
		channel.ID, channel.Type, channel.URL, channel.Domain, channel.Title,
		channel.CreatedAt, channel.UpdatedAt,
	)
	if err != nil {
		// upsertでも直列化エラー等で一意制約違反が漏れることがあるため、
		// 既存行の再SELECTに進めるのは一意制約違反の場合のみ。
		var pqErr *pq.Error
		if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
			return nil, fmt.Errorf("チャンネルの作成に失敗しました: %w", err)
		}
	}

	ch, err := r.FindByURL(ctx, channel.URL)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, fmt.Errorf("チャンネルのupsert後の再取得に失敗しました: %s", channel.URL)
	}
	return ch, nil
}

// IncrementSubscribers は購読者数を相対加算で+1する。
// 読み取り済みの値を書き戻すのではなくSQLの相対更新を使うため、
// 同一チャンネルへの並行購読でもカウンタが失われない。
func (r *PostgresChannelRepo) IncrementSubscribers(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE channels SET subscriber_count = subscriber_count + 1, updated_at = NOW() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("購読者数の加算に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return ErrChannelGone
	}
	return nil
}

// DecrementSubscribers は購読者数を相対減算で-1する。0未満にはならない。
func (r *PostgresChannelRepo) DecrementSubscribers(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE channels SET subscriber_count = GREATEST(subscriber_count - 1, 0), updated_at = NOW() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("購読者数の減算に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return ErrChannelGone
	}
	return nil
}

// ListByIDs は指定IDのチャンネルを記事付きで取得する。
// 存在しないIDは結果から黙って除外される。
func (r *PostgresChannelRepo) ListByIDs(ctx context.Context, ids []string) ([]*model.Channel, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("チャンネル一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var channels []*model.Channel
	for rows.Next() {
		ch, err := scanChannelRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("チャンネル行の読み取りに失敗しました: %w", err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("チャンネル一覧の走査に失敗しました: %w", err)
	}
	return channels, nil
}

// ListWithSubscribers は購読者が1人以上いるチャンネルを取得する。
func (r *PostgresChannelRepo) ListWithSubscribers(ctx context.Context) ([]*model.Channel, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE subscriber_count > 0 ORDER BY crawled_at ASC NULLS FIRST`,
	)
	if err != nil {
		return nil, fmt.Errorf("クロール対象チャンネルの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var channels []*model.Channel
	for rows.Next() {
		ch, err := scanChannelRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("チャンネル行の読み取りに失敗しました: %w", err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("クロール対象チャンネルの走査に失敗しました: %w", err)
	}
	return channels, nil
}

// UpdateCrawlState はクロール結果を反映する。
// items_added_atはGREATESTで更新するため後退しない（単調非減少の保証）。
func (r *PostgresChannelRepo) UpdateCrawlState(ctx context.Context, id string, title string, itemsAddedAt *time.Time, crawledAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE channels
		 SET title = COALESCE(NULLIF($2, ''), title),
		     items_added_at = CASE WHEN $3::timestamptz IS NULL THEN items_added_at
		                           ELSE GREATEST(COALESCE(items_added_at, $3), $3) END,
		     crawled_at = $4,
		     updated_at = NOW()
		 WHERE id = $1`,
		id, title, itemsAddedAt, crawledAt,
	)
	if err != nil {
		return fmt.Errorf("クロール状態の更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ChannelRepository = (*PostgresChannelRepo)(nil)
