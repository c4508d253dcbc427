// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// 外部からアクセス可能な唯一のサービスで、JWTを検証したうえで
// 通知サービスとフィードサービスへリクエストを転送する。
// 内部API（/internal 配下）は外部に公開しない。
package gateway
