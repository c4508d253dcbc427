// Package refresh は画面ごとの再取得をまとめて行うためのリフレッシュバスを提供する。
//
// ドメインの変更を行う側は Bus にイベントを発行し、画面側は Subscriber で
// 関心のあるイベントを購読する。Subscriber はバスのイベント・プッシュ通知・定期ポーリングを
// デバウンスした上で1回の再取得にまとめる。RedisBridge はプロセス間でイベントを中継し、
// ServeStream は再取得結果をWebSocketでクライアントに送る。
package refresh
