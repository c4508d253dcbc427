package refresh

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nao1215/neighborly/pkg/logging"
)

// writeWait はWebSocketへの1回の書き込みに許す時間。
const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// SnapshotFunc は画面に表示する内容を取得する。
type SnapshotFunc func(ctx context.Context) (any, error)

// Frame はサーバーからクライアントへ送るメッセージ。
type Frame struct {
	// Type は常に "snapshot"。
	Type string `json:"type"`
	// Data はSnapshotFuncの結果。
	Data any `json:"data"`
	// SentAt は送信日時。
	SentAt time.Time `json:"sent_at"`
}

// clientFrame はクライアントから届くメッセージ。
type clientFrame struct {
	// Action が "refresh" の場合、再取得を予約する。
	Action string `json:"action"`
}

// ServeStream はWebSocket接続ごとにSubscriberを作り、再取得のたびにスナップショットを送る。
// 接続が閉じられるまで戻らない。
func ServeStream(w http.ResponseWriter, r *http.Request, bus *Bus, cfg SubscriberConfig, snapshot SnapshotFunc, logger logging.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Warn("WebSocketへのアップグレードに失敗しました")
		return
	}
	defer conn.Close()

	logger = logger.WithFields(logging.Fields{
		"user_id":         cfg.UserID,
		"neighborhood_id": cfg.NeighborhoodID,
	})

	var writeMu sync.Mutex
	fetch := func(ctx context.Context) error {
		data, err := snapshot(ctx)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(Frame{Type: "snapshot", Data: data, SentAt: time.Now().UTC()})
	}

	sub := NewSubscriber(bus, cfg, fetch, logger)
	sub.Start(context.WithoutCancel(r.Context()))
	defer sub.Close()

	logger.Info("リフレッシュストリームに接続しました")
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithError(err).Debug("リフレッシュストリームが予期せず切断されました")
			}
			break
		}
		var msg clientFrame
		if err := json.Unmarshal(payload, &msg); err != nil {
			logger.WithError(err).Debug("クライアントからのメッセージを読み取れません")
			continue
		}
		if msg.Action == "refresh" {
			sub.Push()
		}
	}
	logger.Info("リフレッシュストリームを切断しました")
}
