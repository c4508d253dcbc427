// Package database はSQLiteデータベースへの接続を提供する。
package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Open はSQLiteデータベースを開き、WALモードとビジータイムアウトを設定する。
// ":memory:" の場合は接続を1本に制限し、全クエリが同じデータベースを見るようにする。
func Open(ctx context.Context, path string) (*sqlx.DB, error) {
	dsn := path
	memory := path == ":memory:"
	if !memory {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		dsn = path + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if memory {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}
	return db, nil
}
