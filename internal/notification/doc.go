// Package notification は通知サービスを提供する。
//
// テンプレートIDと変数から通知を作成するDispatcher、既読・アーカイブ状態を
// 管理するStateManager、SQLiteへの永続化を行うStore、およびHTTPサーバーを含む。
// 状態が変わるたびにリフレッシュバスへイベントを発行し、購読中の画面が再取得する。
package notification
