package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testOptions(url string) ClientOptions {
	return ClientOptions{
		BaseURL:            url,
		Timeout:            time.Second,
		MinRequestInterval: time.Millisecond,
		MaxRetries:         2,
		BackoffBase:        time.Millisecond,
	}
}

func TestClientMissingConfig(t *testing.T) {
	c := NewClient(ClientOptions{}, noopLogger())
	if _, err := c.Transfers(context.Background(), "addr1", 10); err == nil {
		t.Fatal("未配置 base url 时应返回错误")
	}

	c = NewClient(testOptions("http://localhost"), noopLogger())
	if _, err := c.Transfers(context.Background(), "", 10); err == nil {
		t.Fatal("缺少地址应报错")
	}
}

func TestClientFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "2" {
			t.Errorf("unexpected limit: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"transfers": []map[string]any{
				{"signature": "sig1", "from": "a", "to": "b", "amount": "5", "token": "SOL", "timestamp": 1700000000, "txType": "transfer"},
				{"signature": "sig2", "from": "b", "to": "a", "amount": "7.25", "token": "SOL", "timestamp": 1700000100, "txType": "transfer"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(testOptions(srv.URL), noopLogger())
	records, err := c.Transfers(context.Background(), "a", 2)
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("期望 2 条记录, 实际 %d", len(records))
	}
	if records[0].Signature != "sig1" || records[1].Amount.String() != "7.25" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestClientRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"transfers": []map[string]any{}})
	}))
	defer srv.Close()

	c := NewClient(testOptions(srv.URL), noopLogger())
	if _, err := c.Transfers(context.Background(), "a", 10); err != nil {
		t.Fatalf("429 后重试应成功: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("期望 2 次请求, 实际 %d", calls.Load())
	}
}

func TestClientRateLimitExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(testOptions(srv.URL), noopLogger())
	_, err := c.Transfers(context.Background(), "a", 10)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("重试耗尽应返回 ErrRateLimited, 实际 %v", err)
	}
}

func TestClientOtherErrorsNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "boom"})
	}))
	defer srv.Close()

	c := NewClient(testOptions(srv.URL), noopLogger())
	if _, err := c.Transfers(context.Background(), "a", 10); err == nil {
		t.Fatal("HTTP 500 应立即返回错误")
	}
	if calls.Load() != 1 {
		t.Fatalf("非限流错误不应重试, 请求数 %d", calls.Load())
	}
}
