// Package i18n translates user-facing notices and container labels.
package i18n

import (
	"inline-media-backend/internal/markup"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	Generating        = "Generating image..."
	GeneratingFailed  = "Generating image failed"
	RegenerateFailed  = "Image regeneration failed"
	ReconcileFailed   = "Generated image could not be placed"
	CopyPromptSuccess = "Prompt copied"
	CopyPromptFailed  = "Failed to copy prompt"
)

var zh = map[string]string{
	Generating:        "正在生成图片...",
	GeneratingFailed:  "图片生成失败",
	RegenerateFailed:  "图片重新生成失败",
	ReconcileFailed:   "生成的图片无法插入消息",
	CopyPromptSuccess: "提示词已复制",
	CopyPromptFailed:  "复制提示词失败",

	markup.DefaultLabels.Regenerate:  "重新生成图片",
	markup.DefaultLabels.Fullscreen:  "全屏查看",
	markup.DefaultLabels.Hide:        "隐藏图片",
	markup.DefaultLabels.CopyPrompt:  "点击复制提示词",
	markup.DefaultLabels.HiddenImage: "已隐藏的图片",
	markup.DefaultLabels.Video:       "生成的视频",
	markup.DefaultLabels.Image:       "生成的图片",
}

func init() {
	for k, v := range zh {
		_ = message.SetString(language.Chinese, k, v)
	}
}

var matcher = language.NewMatcher([]language.Tag{language.English, language.Chinese})

// Translator renders catalog strings for a locale such as "en" or "zh-CN".
type Translator struct{}

func (Translator) printer(locale string) *message.Printer {
	tag, _ := language.MatchStrings(matcher, locale)
	base, _ := tag.Base()
	return message.NewPrinter(language.Make(base.String()))
}

// T translates key. Unknown keys come back unchanged.
func (t Translator) T(locale, key string) string {
	return t.printer(locale).Sprintf(key)
}

// Labels returns the container labels for locale.
func (t Translator) Labels(locale string) markup.Labels {
	p := t.printer(locale)
	d := markup.DefaultLabels
	return markup.Labels{
		Regenerate:  p.Sprintf(d.Regenerate),
		Fullscreen:  p.Sprintf(d.Fullscreen),
		Hide:        p.Sprintf(d.Hide),
		CopyPrompt:  p.Sprintf(d.CopyPrompt),
		HiddenImage: p.Sprintf(d.HiddenImage),
		Video:       p.Sprintf(d.Video),
		Image:       p.Sprintf(d.Image),
	}
}
