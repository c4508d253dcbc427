package httpclient

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
)

// memberList はテスト用のレスポンスペイロード。
type memberList struct {
	// GroupID はグループID。
	GroupID string `json:"group_id"`
	// Members はメンバーのユーザーID一覧。
	Members []string `json:"members"`
}

// fastRetry はテストを速く終わらせるためのリトライ設定。
func fastRetry(n int) Option {
	return WithRetry(n, time.Millisecond, 5*time.Millisecond)
}

// TestNew はNew関数でクライアントが正しく生成されることを検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("デフォルト設定でクライアントが生成されること", func(t *testing.T) {
		t.Parallel()

		client := New("http://groups:8090")
		if client.baseURL != "http://groups:8090" {
			t.Errorf("baseURL = %q, want %q", client.baseURL, "http://groups:8090")
		}
		if client.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want 30s", client.httpClient.Timeout)
		}
		if client.executor == nil {
			t.Fatal("executorがnil")
		}
	})

	t.Run("WithTimeoutでタイムアウトを変更できること", func(t *testing.T) {
		t.Parallel()

		client := New("http://groups:8090", WithTimeout(2*time.Second))
		if client.httpClient.Timeout != 2*time.Second {
			t.Errorf("Timeout = %v, want 2s", client.httpClient.Timeout)
		}
	})
}

// TestPostJSON はPostJSON関数を検証する。
func TestPostJSON(t *testing.T) {
	t.Parallel()

	t.Run("JSONボディを送信してレスポンスを取得できること", func(t *testing.T) {
		t.Parallel()

		var gotMethod, gotPath, gotContentType string
		var gotBody []byte
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotPath = r.URL.Path
			gotContentType = r.Header.Get("Content-Type")
			gotBody, _ = io.ReadAll(r.Body)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(memberList{GroupID: "g-1", Members: []string{"u-1", "u-2"}})
		}))
		defer ts.Close()

		client := New(ts.URL)
		var result memberList
		err := client.PostJSON(context.Background(), "/internal/groups/g-1/members", map[string]string{"role": "all"}, &result)
		if err != nil {
			t.Fatalf("PostJSON()でエラーが発生: %v", err)
		}

		if gotMethod != http.MethodPost {
			t.Errorf("Method = %q, want POST", gotMethod)
		}
		if gotPath != "/internal/groups/g-1/members" {
			t.Errorf("Path = %q", gotPath)
		}
		if gotContentType != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", gotContentType)
		}
		if string(gotBody) != `{"role":"all"}` {
			t.Errorf("body = %s", gotBody)
		}
		if result.GroupID != "g-1" || len(result.Members) != 2 {
			t.Errorf("result = %+v", result)
		}
	})

	t.Run("resultがnilの場合でもエラーにならないこと", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"status":"created"}`))
		}))
		defer ts.Close()

		if err := New(ts.URL).PostJSON(context.Background(), "/x", map[string]int{"a": 1}, nil); err != nil {
			t.Fatalf("PostJSON()でエラーが発生: %v", err)
		}
	})

	t.Run("シリアライズできないボディでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		client := New("http://127.0.0.1:1", fastRetry(0))
		if err := client.PostJSON(context.Background(), "/x", make(chan int), nil); err == nil {
			t.Fatal("PostJSON()がエラーを返すべきだが、nilが返った")
		}
	})

	t.Run("リトライ時にも同じボディが送られること", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		var lastBody atomic.Value
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			lastBody.Store(string(b))
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{}`))
		}))
		defer ts.Close()

		client := New(ts.URL, fastRetry(2))
		if err := client.PostJSON(context.Background(), "/x", map[string]string{"k": "v"}, nil); err != nil {
			t.Fatalf("PostJSON()でエラーが発生: %v", err)
		}
		if calls.Load() != 2 {
			t.Errorf("呼び出し回数 = %d, want 2", calls.Load())
		}
		if got := lastBody.Load().(string); got != `{"k":"v"}` {
			t.Errorf("リトライ時のbody = %q", got)
		}
	})
}

// TestGetJSON はGetJSON関数を検証する。
func TestGetJSON(t *testing.T) {
	t.Parallel()

	t.Run("ボディなしでGETできること", func(t *testing.T) {
		t.Parallel()

		var gotBody []byte
		var gotMethod string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotBody, _ = io.ReadAll(r.Body)
			json.NewEncoder(w).Encode(memberList{GroupID: "g-2"})
		}))
		defer ts.Close()

		var result memberList
		if err := New(ts.URL).GetJSON(context.Background(), "/groups/g-2", &result); err != nil {
			t.Fatalf("GetJSON()でエラーが発生: %v", err)
		}
		if gotMethod != http.MethodGet {
			t.Errorf("Method = %q, want GET", gotMethod)
		}
		if len(gotBody) != 0 {
			t.Errorf("GETリクエストにボディが含まれている: %q", gotBody)
		}
		if result.GroupID != "g-2" {
			t.Errorf("GroupID = %q, want g-2", result.GroupID)
		}
	})

	t.Run("不正なJSONレスポンスでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{invalid json}`))
		}))
		defer ts.Close()

		var result memberList
		if err := New(ts.URL).GetJSON(context.Background(), "/x", &result); err == nil {
			t.Fatal("GetJSON()がエラーを返すべきだが、nilが返った")
		}
	})

	t.Run("接続できないサーバーに対してエラーが返ること", func(t *testing.T) {
		t.Parallel()

		var result memberList
		err := New("http://127.0.0.1:1", fastRetry(1)).GetJSON(context.Background(), "/x", &result)
		if err == nil {
			t.Fatal("GetJSON()がエラーを返すべきだが、nilが返った")
		}
	})

	t.Run("キャンセル済みのコンテキストでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{}`))
		}))
		defer ts.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var result memberList
		if err := New(ts.URL).GetJSON(ctx, "/x", &result); err == nil {
			t.Fatal("GetJSON()がエラーを返すべきだが、nilが返った")
		}
	})
}

// TestRetryPolicy はステータスコードごとのリトライ可否を検証する。
func TestRetryPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		wantCalls int32
	}{
		{name: "500はリトライされること", status: http.StatusInternalServerError, wantCalls: 3},
		{name: "503はリトライされること", status: http.StatusServiceUnavailable, wantCalls: 3},
		{name: "429はリトライされること", status: http.StatusTooManyRequests, wantCalls: 3},
		{name: "400はリトライされないこと", status: http.StatusBadRequest, wantCalls: 1},
		{name: "404はリトライされないこと", status: http.StatusNotFound, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":"x"}`))
			}))
			defer ts.Close()

			err := New(ts.URL, fastRetry(2)).GetJSON(context.Background(), "/x", nil)
			if err == nil {
				t.Fatal("エラーが返るべき")
			}
			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("StatusErrorでラップされていない: %v", err)
			}
			if statusErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", statusErr.StatusCode, tt.status)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("呼び出し回数 = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

// TestShouldRetry はリトライ判定関数を検証する。
func TestShouldRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "成功", err: nil, want: false},
		{name: "キャンセル", err: context.Canceled, want: false},
		{name: "期限切れ", err: context.DeadlineExceeded, want: false},
		{name: "ネットワークエラー", err: errors.New("connection refused"), want: true},
		{name: "502", err: &StatusError{StatusCode: http.StatusBadGateway}, want: true},
		{name: "422", err: &StatusError{StatusCode: http.StatusUnprocessableEntity}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := shouldRetry(nil, tt.err); got != tt.want {
				t.Errorf("shouldRetry(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// TestWithUserID はユーザーIDがヘッダーとして伝播されることを検証する。
func TestWithUserID(t *testing.T) {
	t.Parallel()

	t.Run("コンテキストのユーザーIDがX-User-IDヘッダーになること", func(t *testing.T) {
		t.Parallel()

		var got string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Get("X-User-ID")
			w.Write([]byte(`{}`))
		}))
		defer ts.Close()

		ctx := WithUserID(context.Background(), "user-42")
		if err := New(ts.URL).GetJSON(ctx, "/x", nil); err != nil {
			t.Fatalf("GetJSON()でエラーが発生: %v", err)
		}
		if got != "user-42" {
			t.Errorf("X-User-ID = %q, want user-42", got)
		}
	})

	t.Run("ユーザーIDがない場合はヘッダーが付かないこと", func(t *testing.T) {
		t.Parallel()

		var has bool
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, has = r.Header["X-User-Id"]
			w.Write([]byte(`{}`))
		}))
		defer ts.Close()

		if err := New(ts.URL).GetJSON(context.Background(), "/x", nil); err != nil {
			t.Fatalf("GetJSON()でエラーが発生: %v", err)
		}
		if has {
			t.Error("X-User-IDヘッダーが設定されるべきではない")
		}
	})
}
