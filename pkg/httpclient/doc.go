// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// 通知サービスがグループサービスへメンバー一覧を問い合わせる際などに使用する。
// 一時的な障害（ネットワークエラー、5xx、429）はfailsafe-goのリトライポリシーで再試行する。
package httpclient
