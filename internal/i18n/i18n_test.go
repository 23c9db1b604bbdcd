package i18n

import (
	"testing"

	"inline-media-backend/internal/markup"

	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	var tr Translator
	assert.Equal(t, "Generating image...", tr.T("en", Generating))
	assert.Equal(t, "正在生成图片...", tr.T("zh-CN", Generating))
	assert.Equal(t, "图片重新生成失败", tr.T("zh", RegenerateFailed))
	assert.Equal(t, "Generating image...", tr.T("", Generating))
	assert.Equal(t, "Generating image...", tr.T("fr", Generating))
}

func TestLabels(t *testing.T) {
	var tr Translator
	assert.Equal(t, markup.DefaultLabels, tr.Labels("en"))
	assert.Equal(t, "全屏查看", tr.Labels("zh-CN").Fullscreen)
}
