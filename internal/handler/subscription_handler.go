package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/feedsync/internal/middleware"
	"github.com/hitoshi/feedsync/internal/model"
)

// SubscriptionServiceInterface は購読ハンドラーが必要とするサービスインターフェース。
type SubscriptionServiceInterface interface {
	// SubscribeByURL はフィードURLから購読を作成する。
	SubscribeByURL(ctx context.Context, userID, url string) (*model.Channel, error)
	// SubscribeByChannelID は既知のチャンネルIDから購読を作成する。
	SubscribeByChannelID(ctx context.Context, userID, channelID string) (*model.Channel, error)
	// Unsubscribe は購読を解除する（冪等）。
	Unsubscribe(ctx context.Context, userID, channelID string) error
	// ListByUserID はユーザーの購読一覧を返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Subscription, error)
}

// UsageRecorder は購読・同期APIの利用メトリクスを記録する。
type UsageRecorder interface {
	RecordSubscribe()
	RecordUnsubscribe()
	RecordSyncRequest(dirtyChannels int)
}

// SubscriptionHandler は購読管理のHTTPハンドラー。
type SubscriptionHandler struct {
	service  SubscriptionServiceInterface
	recorder UsageRecorder
}

// NewSubscriptionHandler はSubscriptionHandlerを生成する。recorderはnil可。
func NewSubscriptionHandler(service SubscriptionServiceInterface, recorder UsageRecorder) *SubscriptionHandler {
	return &SubscriptionHandler{
		service:  service,
		recorder: recorder,
	}
}

// subscribeRequest は購読作成リクエストのボディ。
// urlとchannel_idのどちらか一方を指定する。
type subscribeRequest struct {
	URL       string `json:"url"`
	ChannelID string `json:"channel_id"`
}

// channelResponse はチャンネル情報のAPIレスポンス。
type channelResponse struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	URL             string `json:"url"`
	Domain          string `json:"domain"`
	Title           string `json:"title"`
	SubscriberCount int    `json:"subscriber_count"`
	ItemsAddedAt    int64  `json:"items_added_at"`
}

func toChannelResponse(ch *model.Channel) channelResponse {
	return channelResponse{
		ID:              ch.ID,
		Type:            string(ch.Type),
		URL:             ch.URL,
		Domain:          ch.Domain,
		Title:           ch.Title,
		SubscriberCount: ch.SubscriberCount,
		ItemsAddedAt:    ch.ItemsAddedAtOrZero(),
	}
}

// subscriptionResponse は購読情報のAPIレスポンス。
type subscriptionResponse struct {
	ID          string    `json:"id"`
	ChannelID   string    `json:"channel_id"`
	Type        string    `json:"type"`
	DisplayName string    `json:"display_name"`
	Weight      *int      `json:"weight,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Subscribe は購読を作成する。ボディのurlまたはchannel_idで経路が決まる。
// POST /api/subscriptions
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	var ch *model.Channel
	switch {
	case req.URL != "":
		ch, err = h.service.SubscribeByURL(r.Context(), userID, req.URL)
	case req.ChannelID != "":
		ch, err = h.service.SubscribeByChannelID(r.Context(), userID, req.ChannelID)
	default:
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Either url or channel_id is required."))
		return
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.recorder != nil {
		h.recorder.RecordSubscribe()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toChannelResponse(ch))
}

// Unsubscribe は購読を解除する。対象が存在しなくても204を返す。
// DELETE /api/subscriptions/{channelID}
func (h *SubscriptionHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	channelID := chi.URLParam(r, "channelID")

	if err := h.service.Unsubscribe(r.Context(), userID, channelID); err != nil {
		handleServiceError(w, err)
		return
	}

	if h.recorder != nil {
		h.recorder.RecordUnsubscribe()
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions はユーザーの購読一覧を取得する。
// GET /api/subscriptions
func (h *SubscriptionHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	subs, err := h.service.ListByUserID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]subscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		resp = append(resp, subscriptionResponse{
			ID:          sub.ID,
			ChannelID:   sub.ChannelID,
			Type:        string(sub.Type),
			DisplayName: sub.DisplayName,
			Weight:      sub.Weight,
			CreatedAt:   sub.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
