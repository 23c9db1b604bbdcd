package model

import "strings"

// GenType selects the generation pathway for a directive.
type GenType string

const (
	GenSingle  GenType = "single"
	GenChained GenType = "chained"
)

// ParseGenType normalizes a directive token. The txt2img/img2img spellings are
// accepted for directives written against older prompt presets; anything else is
// returned lowercased so the dispatcher can reject it.
func ParseGenType(token string) GenType {
	switch t := strings.ToLower(strings.TrimSpace(token)); t {
	case "single", "txt2img":
		return GenSingle
	case "chained", "img2img":
		return GenChained
	default:
		return GenType(t)
	}
}

const (
	SourceLegacy  = "legacy"
	SourceChained = "chained"
)

// MediaRecord is the persisted metadata of one generated artifact.
type MediaRecord struct {
	ID             string        `json:"id"`
	URL            string        `json:"url"`
	Prompt         string        `json:"prompt"`
	OriginalPrompt string        `json:"originalPrompt"`
	GenType        GenType       `json:"genType"`
	Timestamp      int64         `json:"timestamp"`
	Settings       MediaSettings `json:"settings"`
	Hidden         bool          `json:"hidden"`
}

// MediaSettings snapshots the settings in effect when the record was generated.
type MediaSettings struct {
	AspectRatio string `json:"aspectRatio"`
	BaseSize    int    `json:"baseSize"`
	Style       string `json:"style"`
	Source      string `json:"source"`
}
