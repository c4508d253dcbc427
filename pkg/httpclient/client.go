package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// Client はサービス間通信用のHTTPクライアント。
// タイムアウトとリトライの設定を持つ。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先サービスのベースURL。
	baseURL string
	// executor はリトライポリシーを適用する実行器。
	executor failsafe.Executor[*http.Response]
}

// Option はClientの設定を変更する関数。
type Option func(*clientOptions)

type clientOptions struct {
	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// WithTimeout は1リクエストあたりのタイムアウトを設定する。
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithRetry はリトライ回数とバックオフ間隔を設定する。maxRetriesが0の場合リトライしない。
func WithRetry(maxRetries int, baseDelay, maxDelay time.Duration) Option {
	return func(o *clientOptions) {
		o.maxRetries = maxRetries
		o.baseDelay = baseDelay
		o.maxDelay = maxDelay
	}
}

// New は新しいサービス間通信用HTTPクライアントを生成する。
// baseURLには接続先サービスのベースURL（例: "http://groups:8090"）を指定する。
// デフォルトではネットワークエラーと5xx/429を最大2回リトライする。
func New(baseURL string, opts ...Option) *Client {
	o := clientOptions{
		timeout:    30 * time.Second,
		maxRetries: 2,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxRetries < 0 {
		o.maxRetries = 0
	}
	if o.baseDelay <= 0 {
		o.baseDelay = 100 * time.Millisecond
	}
	if o.maxDelay < o.baseDelay {
		o.maxDelay = o.baseDelay
	}

	policy := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(shouldRetry).
		WithBackoff(o.baseDelay, o.maxDelay).
		WithMaxRetries(o.maxRetries).
		Build()

	return &Client{
		httpClient: &http.Client{
			Timeout: o.timeout,
		},
		baseURL:  baseURL,
		executor: failsafe.With[*http.Response](policy),
	}
}

// StatusError は2xx以外のレスポンスを表すエラー。
type StatusError struct {
	// StatusCode はレスポンスのステータスコード。
	StatusCode int
	// Body はレスポンスボディ。
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTPエラー: status=%d, body=%s", e.StatusCode, e.Body)
}

// shouldRetry はネットワークエラー、5xx、429をリトライ対象とする。
// コンテキストのキャンセルと4xxはリトライしない。
func shouldRetry(_ *http.Response, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError ||
			statusErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// PostJSON は指定パスにJSONボディでPOSTリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) PostJSON(ctx context.Context, path string, body any, result any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, result)
}

// GetJSON は指定パスにGETリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) GetJSON(ctx context.Context, path string, result any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, result)
}

// doJSON はJSON形式のHTTPリクエストを実行する共通処理。
func (c *Client) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var payload []byte
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
		}
		payload = jsonBody
	}

	url := c.baseURL + path
	resp, err := c.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		// リトライのたびにボディを読み直せるよう毎回Readerを作る
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		// コンテキストからユーザーIDを伝播する
		if userID, ok := ctx.Value(contextKeyUserID).(string); ok {
			req.Header.Set("X-User-ID", userID)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			respBody, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}
		return resp, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
		}
	}
	return nil
}

// contextKey はコンテキストキーの型。
type contextKey string

// contextKeyUserID はコンテキストにユーザーIDを格納するためのキー。
const contextKeyUserID contextKey = "user_id"

// WithUserID はコンテキストにユーザーIDを設定する。
// サービス間通信時にユーザーIDを伝播するために使用する。
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKeyUserID, userID)
}
