package template

import (
	"github.com/nao1215/neighborly/pkg/logging"
)

// unknownValue は変数が無いか空の場合に埋める値。
const unknownValue = "Unknown"

// Result はテンプレート処理の結果。
type Result struct {
	// Title はプレースホルダーを解決した通知タイトル。
	Title string
	// Template は振り分けに使うテンプレート定義。
	Template Template
}

// Engine はテンプレートIDと変数から通知タイトルを組み立てる。
type Engine struct {
	registry *Registry
	logger   logging.Logger
}

// NewEngine は新しいEngineを生成する。registryがnilの場合は標準カタログを使う。
func NewEngine(registry *Registry, logger logging.Logger) *Engine {
	if registry == nil {
		registry = Default()
	}
	return &Engine{registry: registry, logger: logger}
}

// Registry はエンジンが参照するカタログを返す。
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Process はテンプレートの全プレースホルダーを変数で置き換える。
// 未知のIDの場合は警告ログを出してnilを返す。
func (e *Engine) Process(templateID string, vars map[string]string) *Result {
	t, ok := e.registry.Lookup(templateID)
	if !ok {
		e.logger.WithField("template_id", templateID).Warn("通知テンプレートが見つかりません")
		return nil
	}

	title := placeholderPattern.ReplaceAllStringFunc(t.Template, func(m string) string {
		key := placeholderPattern.FindStringSubmatch(m)[1]
		if v := vars[key]; v != "" {
			return v
		}
		return unknownValue
	})
	return &Result{Title: title, Template: t}
}
