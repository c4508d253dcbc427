// Package activity は種類の異なるドメインレコード（イベント、スキル交換、物品、安全情報など）を
// 共通のActivityモデルに正規化し、フィード表示用にまとめる。
//
// 正規化はレコードの種類（SourceKind）ごとに1つのswitchで振り分ける。
// メタデータはカテゴリごとに決まった型（Payload）として検証される。
package activity
