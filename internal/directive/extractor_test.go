package directive

import (
	"errors"
	"testing"

	"inline-media-backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	legacyPattern  = `<span\s+data-prompt="([^"]+)"[^>]*>.*?</span>`
	chainedPattern = `<span\s+data-prompt="([^"]+)"\s+data-img-gen="([^"]+)"[^>]*>(.*?)</span>`
)

func TestExtractLegacy(t *testing.T) {
	markup := `Hello <span data-prompt=" a red fox ">x</span> world`

	m, err := New(legacyPattern, Legacy).Extract(markup)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, model.GenSingle, m.GenType)
	assert.Equal(t, "a red fox", m.Prompt)
	assert.Equal(t, `<span data-prompt=" a red fox ">x</span>`, m.FullMatch)
}

func TestExtractChained(t *testing.T) {
	markup := `<span data-prompt="girl in rain" data-img-gen="chained">"Hi there"</span>`

	m, err := New(chainedPattern, Chained).Extract(markup)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, model.GenChained, m.GenType)
	assert.Equal(t, "girl in rain", m.Prompt)
	assert.Equal(t, `"Hi there"`, m.Dialogue)
	assert.Equal(t, markup, m.FullMatch)
}

func TestExtractChainedAliasesAndUnknownTypes(t *testing.T) {
	m, err := New(chainedPattern, Chained).Extract(`<span data-prompt="p" data-img-gen="IMG2IMG">d</span>`)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, model.GenChained, m.GenType)

	m, err = New(chainedPattern, Chained).Extract(`<span data-prompt="p" data-img-gen="panorama">d</span>`)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, model.GenType("panorama"), m.GenType)
}

func TestExtractChainedRequiresAllGroups(t *testing.T) {
	m, err := New(chainedPattern, Chained).Extract(`<span data-prompt="p" data-img-gen="single">   </span>`)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestExtractNoMatch(t *testing.T) {
	m, err := New(legacyPattern, Legacy).Extract(`<p>nothing here</p>`)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestExtractSpansLinesAndIgnoresCase(t *testing.T) {
	markup := "<SPAN data-prompt=\"a cat\">line one\nline two</SPAN>"
	m, err := New(legacyPattern, Legacy).Extract(markup)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, markup, m.FullMatch)
}

func TestExtractInvalidPattern(t *testing.T) {
	m, err := New(`<span data-prompt="(`, Legacy).Extract(`anything`)
	assert.Nil(t, m)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, `<span data-prompt="(`, cfgErr.Pattern)
}

func TestExtractIsIdempotent(t *testing.T) {
	markup := `<span data-prompt="x" data-img-gen="single">y</span>`
	e := New(chainedPattern, Chained)
	a, err := e.Extract(markup)
	require.NoError(t, err)
	b, err := e.Extract(markup)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
