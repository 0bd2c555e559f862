package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/feedsync/internal/model"
	"github.com/hitoshi/feedsync/internal/sync"
)

type mockSyncService struct {
	getChannelUpdatesFn func(ctx context.Context, subscribedIDs []string, watermarks map[string]int64) ([]sync.ChannelUpdate, error)
}

func (m *mockSyncService) GetChannelUpdates(ctx context.Context, subscribedIDs []string, watermarks map[string]int64) ([]sync.ChannelUpdate, error) {
	return m.getChannelUpdatesFn(ctx, subscribedIDs, watermarks)
}

type mockSubscribedLister struct {
	listByUserIDFn func(ctx context.Context, userID string) ([]*model.Subscription, error)
}

func (m *mockSubscribedLister) ListByUserID(ctx context.Context, userID string) ([]*model.Subscription, error) {
	return m.listByUserIDFn(ctx, userID)
}

// TestSyncHandler_Sync は購読チャンネル集合とウォーターマークがエンジンへ
// 渡り、差分がJSONで返ることを検証する。
func TestSyncHandler_Sync(t *testing.T) {
	lister := &mockSubscribedLister{
		listByUserIDFn: func(ctx context.Context, userID string) ([]*model.Subscription, error) {
			return []*model.Subscription{
				{ChannelID: "ch-1"},
				{ChannelID: "ch-2"},
			}, nil
		},
	}
	engine := &mockSyncService{
		getChannelUpdatesFn: func(ctx context.Context, subscribedIDs []string, watermarks map[string]int64) ([]sync.ChannelUpdate, error) {
			if len(subscribedIDs) != 2 {
				t.Errorf("subscribedIDs = %v, want 2 entries", subscribedIDs)
			}
			if watermarks["ch-1"] != 1000 {
				t.Errorf("watermarks[ch-1] = %d, want 1000", watermarks["ch-1"])
			}
			return []sync.ChannelUpdate{
				{ChannelID: "ch-1", ItemsAddedAt: 2000, Items: []sync.ItemUpdate{{ID: "item-1", GUID: "g-1", CreatedAt: 1500}}},
			}, nil
		},
	}
	recorder := &countingRecorder{}
	h := NewSyncHandler(engine, lister, recorder)

	req := authedRequest(http.MethodPost, "/api/sync", `{"watermarks":{"ch-1":1000,"ch-2":3000}}`)
	w := httptest.NewRecorder()

	h.Sync(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp struct {
		Channels []sync.ChannelUpdate `json:"channels"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Channels) != 1 {
		t.Fatalf("channels = %d, want 1", len(resp.Channels))
	}
	if resp.Channels[0].ChannelID != "ch-1" || resp.Channels[0].ItemsAddedAt != 2000 {
		t.Errorf("unexpected update: %+v", resp.Channels[0])
	}
	if recorder.syncs != 1 || recorder.dirty != 1 {
		t.Errorf("recorded syncs = %d dirty = %d, want 1 and 1", recorder.syncs, recorder.dirty)
	}
}

// TestSyncHandler_Sync_EmptyWatermarks は空のウォーターマークで空の
// チャンネル配列が返ることを検証する。
func TestSyncHandler_Sync_EmptyWatermarks(t *testing.T) {
	lister := &mockSubscribedLister{
		listByUserIDFn: func(ctx context.Context, userID string) ([]*model.Subscription, error) {
			return []*model.Subscription{{ChannelID: "ch-1"}}, nil
		},
	}
	engine := &mockSyncService{
		getChannelUpdatesFn: func(ctx context.Context, subscribedIDs []string, watermarks map[string]int64) ([]sync.ChannelUpdate, error) {
			return nil, nil
		},
	}
	h := NewSyncHandler(engine, lister, nil)

	req := authedRequest(http.MethodPost, "/api/sync", `{"watermarks":{}}`)
	w := httptest.NewRecorder()

	h.Sync(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if body != "{\"channels\":[]}\n" {
		t.Errorf("body = %q, want empty channels array", body)
	}
}

// TestSyncHandler_Sync_Unauthenticated は未認証で401が返ることを検証する。
func TestSyncHandler_Sync_Unauthenticated(t *testing.T) {
	h := NewSyncHandler(&mockSyncService{}, &mockSubscribedLister{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
	w := httptest.NewRecorder()

	h.Sync(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
