// Package template は通知テンプレートのカタログと、テンプレートから通知タイトルを組み立てるエンジンを提供する。
//
// カタログは templates.yaml としてバイナリに埋め込まれ、プロセス起動時に一度だけ読み込まれる。
// 各テンプレートは通知の振り分けに使うメタデータ（種別、アクション、関連度）を持つ。
package template
