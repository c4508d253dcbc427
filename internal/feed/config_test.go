package feed

import (
	"testing"
	"time"
)

// TestLoadConfig は環境変数からの設定読み込みを検証する。
// t.Setenvを使うため並列実行しない。
func TestLoadConfig(t *testing.T) {
	t.Run("未設定の場合はデフォルト値になること", func(t *testing.T) {
		for _, key := range []string{"PORT", "FEED_GROUP_WINDOW", "FEED_TIMEZONE", "FEED_DEFAULT_LIMIT"} {
			t.Setenv(key, "")
		}

		cfg := LoadConfig()
		if cfg.Port != "8087" {
			t.Errorf("Port = %q, want 8087", cfg.Port)
		}
		if cfg.GroupWindow != "day" || cfg.Timezone != "UTC" {
			t.Errorf("GroupWindow = %q, Timezone = %q", cfg.GroupWindow, cfg.Timezone)
		}
		if cfg.DefaultLimit != 50 {
			t.Errorf("DefaultLimit = %d, want 50", cfg.DefaultLimit)
		}
	})

	t.Run("環境変数の値が反映されること", func(t *testing.T) {
		t.Setenv("FEED_GROUP_WINDOW", "hour")
		t.Setenv("FEED_TIMEZONE", "Asia/Tokyo")
		t.Setenv("FEED_DEFAULT_LIMIT", "20")

		cfg := LoadConfig()
		if cfg.GroupWindow != "hour" || cfg.Timezone != "Asia/Tokyo" || cfg.DefaultLimit != 20 {
			t.Errorf("cfg = %+v", cfg)
		}
	})
}

// TestConfigBucketer は時間枠とタイムゾーンの組み合わせを検証する。
func TestConfigBucketer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		at      time.Time
		want    string
		wantErr bool
	}{
		{
			name: "東京の暦日で区切られること",
			cfg:  Config{GroupWindow: "day", Timezone: "Asia/Tokyo"},
			at:   time.Date(2026, 5, 1, 16, 0, 0, 0, time.UTC),
			want: "2026-05-02",
		},
		{
			name: "UTCの時間単位で区切られること",
			cfg:  Config{GroupWindow: "hour", Timezone: "UTC"},
			at:   time.Date(2026, 5, 1, 16, 30, 0, 0, time.UTC),
			want: "2026-05-01T16",
		},
		{
			name:    "不明な時間枠はエラーになること",
			cfg:     Config{GroupWindow: "week", Timezone: "UTC"},
			wantErr: true,
		},
		{
			name:    "不明なタイムゾーンはエラーになること",
			cfg:     Config{GroupWindow: "day", Timezone: "Mars/Olympus"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			bucket, err := tt.cfg.Bucketer()
			if tt.wantErr {
				if err == nil {
					t.Fatal("エラーが返るべきだが、nilが返った")
				}
				return
			}
			if err != nil {
				t.Fatalf("Bucketer()でエラーが発生: %v", err)
			}
			if got := bucket(tt.at); got != tt.want {
				t.Errorf("bucket(%v) = %q, want %q", tt.at, got, tt.want)
			}
		})
	}
}
