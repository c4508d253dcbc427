// Package feed はアクティビティフィードサービスを提供する。
//
// 各ドメインの行をそのまま取り込んで保存し、読み出し時にActivityへ正規化して
// 公開範囲の絞り込みと時間枠によるグループ化を行う。
// 取り込みのたびにドメインごとのリフレッシュイベントとactivities-updatedを発行する。
package feed
