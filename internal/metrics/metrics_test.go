package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/feedsync/internal/channel"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("%s metric not found", name)
	return 0
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordCrawlSuccess_IncrementsCounter はクロール成功カウンタが増加することを検証する。
func TestRecordCrawlSuccess_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCrawlSuccess()
	c.RecordCrawlSuccess()

	if val := counterValue(t, reg, "feedsync_crawl_success_total"); val != 2 {
		t.Errorf("crawl_success_total = %v, want 2", val)
	}
}

// TestRecordCrawlFailure_IncrementsCounter はクロール失敗カウンタが増加することを検証する。
func TestRecordCrawlFailure_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCrawlFailure()

	if val := counterValue(t, reg, "feedsync_crawl_fail_total"); val != 1 {
		t.Errorf("crawl_fail_total = %v, want 1", val)
	}
}

// TestRecordItemsAdded_AddsCount は記事追加カウンタが加算されることを検証する。
func TestRecordItemsAdded_AddsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordItemsAdded(10)
	c.RecordItemsAdded(5)

	if val := counterValue(t, reg, "feedsync_items_added_total"); val != 15 {
		t.Errorf("items_added_total = %v, want 15", val)
	}
}

// TestRecordSubscribeUnsubscribe は購読・解除カウンタを検証する。
func TestRecordSubscribeUnsubscribe(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSubscribe()
	c.RecordSubscribe()
	c.RecordUnsubscribe()

	if val := counterValue(t, reg, "feedsync_subscribe_total"); val != 2 {
		t.Errorf("subscribe_total = %v, want 2", val)
	}
	if val := counterValue(t, reg, "feedsync_unsubscribe_total"); val != 1 {
		t.Errorf("unsubscribe_total = %v, want 1", val)
	}
}

// TestRecordSyncRequest は同期リクエストと返却チャンネル数の記録を検証する。
func TestRecordSyncRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSyncRequest(3)
	c.RecordSyncRequest(0)

	if val := counterValue(t, reg, "feedsync_sync_requests_total"); val != 2 {
		t.Errorf("sync_requests_total = %v, want 2", val)
	}
	if val := counterValue(t, reg, "feedsync_sync_dirty_channels_total"); val != 3 {
		t.Errorf("sync_dirty_channels_total = %v, want 3", val)
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はHTTPステータスカウンタがラベル付きで増加することを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "feedsync_http_status_total" {
			found = true
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
			}
			for _, m := range mf.GetMetric() {
				label := m.GetLabel()[0].GetValue()
				val := m.GetCounter().GetValue()
				switch label {
				case "200":
					if val != 2 {
						t.Errorf("http_status_total{status_code=200} = %v, want 2", val)
					}
				case "404":
					if val != 1 {
						t.Errorf("http_status_total{status_code=404} = %v, want 1", val)
					}
				default:
					t.Errorf("unexpected label value: %s", label)
				}
			}
		}
	}
	if !found {
		t.Error("feedsync_http_status_total metric not found")
	}
}

// TestRecordCrawlLatency_ObservesHistogram はクロールレイテンシのヒストグラムに値が記録されることを検証する。
func TestRecordCrawlLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCrawlLatency(100 * time.Millisecond)
	c.RecordCrawlLatency(2 * time.Second)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "feedsync_crawl_latency_seconds" {
			found = true
			h := mf.GetMetric()[0].GetHistogram()
			if h.GetSampleCount() != 2 {
				t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
			}
			// 合計は0.1 + 2.0 = 2.1秒
			if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
				t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
			}
		}
	}
	if !found {
		t.Error("feedsync_crawl_latency_seconds metric not found")
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	// いくつかのメトリクスを記録
	c.RecordCrawlSuccess()
	c.RecordCrawlFailure()
	c.RecordHTTPStatus(200)
	c.RecordCrawlLatency(500 * time.Millisecond)
	c.RecordItemsAdded(3)

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	// Prometheus形式のメトリクスが含まれていることを確認
	expectedMetrics := []string{
		"feedsync_crawl_success_total",
		"feedsync_crawl_fail_total",
		"feedsync_http_status_total",
		"feedsync_crawl_latency_seconds",
		"feedsync_items_added_total",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestCollector_ImplementsCrawlRecorderInterface はCollectorがCrawlRecorderインターフェースを実装することを検証する。
func TestCollector_ImplementsCrawlRecorderInterface(t *testing.T) {
	reg := prometheus.NewRegistry()
	var _ channel.CrawlRecorder = NewCollector(reg)
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordCrawlSuccess()
	c2.RecordCrawlSuccess()
	c2.RecordCrawlSuccess()

	if val := counterValue(t, reg1, "feedsync_crawl_success_total"); val != 1 {
		t.Errorf("reg1 crawl_success = %v, want 1", val)
	}
	if val := counterValue(t, reg2, "feedsync_crawl_success_total"); val != 2 {
		t.Errorf("reg2 crawl_success = %v, want 2", val)
	}
}
