package template

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var catalogYAML []byte

// placeholderPattern は {{key}} 形式のプレースホルダーに一致する。
var placeholderPattern = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Template は通知テンプレートの定義。読み込み後は変更しない。
type Template struct {
	// ID はテンプレートの一意識別子（例: "event_rsvp"）。
	ID string `yaml:"id" json:"id"`
	// Template は {{key}} 形式のプレースホルダーを含むタイトルの雛形。
	Template string `yaml:"template" json:"template"`
	// ContentType は通知が指すコンテンツの種類。
	ContentType string `yaml:"content_type" json:"content_type"`
	// NotificationType は通知のカテゴリ（event, skills, goods など）。
	NotificationType string `yaml:"notification_type" json:"notification_type"`
	// ActionType は通知から誘導する操作の種類。
	ActionType string `yaml:"action_type" json:"action_type"`
	// ActionLabel は操作ボタンの表示文言。
	ActionLabel string `yaml:"action_label" json:"action_label"`
	// RelevanceScore は受信者にとっての関連度（1〜3）。
	RelevanceScore int `yaml:"relevance_score" json:"relevance_score"`
	// Description はテンプレートの用途の説明。
	Description string `yaml:"description" json:"description"`
}

// Registry はIDで引ける通知テンプレートの集合。
type Registry struct {
	byID map[string]Template
	ids  []string
}

// Load はYAML形式のカタログを読み込んで検証する。
// IDの重複・空のID・空のテンプレート・解釈できないプレースホルダー・範囲外の関連度はエラーになる。
func Load(data []byte) (*Registry, error) {
	var doc struct {
		Templates []Template `yaml:"templates"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("テンプレートカタログのパースに失敗: %w", err)
	}
	if len(doc.Templates) == 0 {
		return nil, errors.New("テンプレートが1件も定義されていません")
	}

	r := &Registry{byID: make(map[string]Template, len(doc.Templates))}
	for i, t := range doc.Templates {
		if t.ID == "" {
			return nil, fmt.Errorf("%d番目のテンプレートにIDがありません", i)
		}
		if _, dup := r.byID[t.ID]; dup {
			return nil, fmt.Errorf("テンプレートIDが重複しています: %s", t.ID)
		}
		if t.Template == "" {
			return nil, fmt.Errorf("テンプレート %s の本文が空です", t.ID)
		}
		if rest := placeholderPattern.ReplaceAllString(t.Template, ""); strings.Contains(rest, "{{") || strings.Contains(rest, "}}") {
			return nil, fmt.Errorf("テンプレート %s に解釈できないプレースホルダーがあります: %q", t.ID, t.Template)
		}
		if t.RelevanceScore < 1 || t.RelevanceScore > 3 {
			return nil, fmt.Errorf("テンプレート %s の関連度が範囲外です: %d", t.ID, t.RelevanceScore)
		}
		r.byID[t.ID] = t
		r.ids = append(r.ids, t.ID)
	}
	slices.Sort(r.ids)
	return r, nil
}

// defaultRegistry は埋め込みカタログを一度だけ読み込む。
var defaultRegistry = sync.OnceValue(func() *Registry {
	r, err := Load(catalogYAML)
	if err != nil {
		panic(fmt.Sprintf("埋め込みテンプレートカタログが不正です: %v", err))
	}
	return r
})

// Default は埋め込まれた標準カタログを返す。
func Default() *Registry {
	return defaultRegistry()
}

// Lookup はIDに対応するテンプレートを返す。
func (r *Registry) Lookup(id string) (Template, bool) {
	t, ok := r.byID[id]
	return t, ok
}

// IDs は全テンプレートIDを昇順で返す。
func (r *Registry) IDs() []string {
	return slices.Clone(r.ids)
}

// Templates は全テンプレートをID昇順で返す。
func (r *Registry) Templates() []Template {
	out := make([]Template, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.byID[id])
	}
	return out
}

// Placeholders はテンプレートに含まれるプレースホルダー名を出現順に重複なく返す。
// 未知のIDの場合はnilを返す。
func (r *Registry) Placeholders(id string) []string {
	t, ok := r.byID[id]
	if !ok {
		return nil
	}
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(t.Template, -1) {
		if !slices.Contains(names, m[1]) {
			names = append(names, m[1])
		}
	}
	return names
}
