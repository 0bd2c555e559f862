package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/feedsync/internal/middleware"
	"github.com/hitoshi/feedsync/internal/model"
	"github.com/hitoshi/feedsync/internal/sync"
)

// SyncServiceInterface は同期ハンドラーが必要とするサービスインターフェース。
type SyncServiceInterface interface {
	// GetChannelUpdates はウォーターマークより新しいチャンネルの差分を返す。
	GetChannelUpdates(ctx context.Context, subscribedIDs []string, watermarks map[string]int64) ([]sync.ChannelUpdate, error)
}

// SubscribedChannelLister は認証済みユーザーの購読チャンネルID集合を提供する。
type SubscribedChannelLister interface {
	ListByUserID(ctx context.Context, userID string) ([]*model.Subscription, error)
}

// SyncHandler は差分同期のHTTPハンドラー。
type SyncHandler struct {
	engine        SyncServiceInterface
	subscriptions SubscribedChannelLister
	recorder      UsageRecorder
}

// NewSyncHandler はSyncHandlerを生成する。recorderはnil可。
func NewSyncHandler(engine SyncServiceInterface, subscriptions SubscribedChannelLister, recorder UsageRecorder) *SyncHandler {
	return &SyncHandler{
		engine:        engine,
		subscriptions: subscriptions,
		recorder:      recorder,
	}
}

// syncRequest は差分同期リクエストのボディ。
// watermarksはチャンネルID→最終同期時刻(エポックミリ秒)のマップ。
type syncRequest struct {
	Watermarks map[string]int64 `json:"watermarks"`
}

// syncResponse は差分同期のレスポンス。変化のあったチャンネルだけを含む。
type syncResponse struct {
	Channels []sync.ChannelUpdate `json:"channels"`
}

// Sync はクライアントのウォーターマークに対する差分を返す。
// POST /api/sync
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	subs, err := h.subscriptions.ListByUserID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	subscribedIDs := make([]string, 0, len(subs))
	for _, sub := range subs {
		subscribedIDs = append(subscribedIDs, sub.ChannelID)
	}

	updates, err := h.engine.GetChannelUpdates(r.Context(), subscribedIDs, req.Watermarks)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.recorder != nil {
		h.recorder.RecordSyncRequest(len(updates))
	}

	if updates == nil {
		updates = []sync.ChannelUpdate{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(syncResponse{Channels: updates})
}
