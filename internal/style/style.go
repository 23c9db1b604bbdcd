// Package style merges a style's keyword sets into a user prompt and derives image
// dimensions from an aspect ratio.
package style

import (
	"regexp"
	"sort"
	"strings"
)

const (
	PhotoRealistic = "photo_realistic"
	Stylized       = "stylized"
)

// Style is one catalog entry. Keyword lists are comma separated.
type Style struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Positive string `json:"positive"`
	Negative string `json:"negative"`
}

var catalog = map[string]Style{
	PhotoRealistic: {
		Key:      PhotoRealistic,
		Name:     "Photorealistic",
		Positive: "masterpiece, highly detailed, photorealistic, 4K resolution, absurdres",
		Negative: "manga, anime, cartoon, illustration",
	},
	Stylized: {
		Key:      Stylized,
		Name:     "Stylized",
		Positive: "anime, manga",
		Negative: "masterpiece, highly detailed, photorealistic, 4K resolution, absurdres",
	},
}

// Lookup returns the catalog entry for key.
func Lookup(key string) (Style, bool) {
	s, ok := catalog[key]
	return s, ok
}

// All returns the catalog ordered by key.
func All() []Style {
	out := make([]Style, 0, len(catalog))
	for _, s := range catalog {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

var separator = regexp.MustCompile(`[,，]`)

type keyword struct {
	text string
	norm string
}

func keywords(list string) []keyword {
	parts := separator.Split(list, -1)
	out := make([]keyword, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, keyword{text: p, norm: strings.ToLower(p)})
	}
	return out
}

func normSet(kws []keyword) map[string]struct{} {
	set := make(map[string]struct{}, len(kws))
	for _, k := range kws {
		set[k.norm] = struct{}{}
	}
	return set
}

// Apply merges the style's positive keywords into prompt and strips negative keywords
// from it. The result lists the style keywords first, then the user's, joined by ", ".
// ok is false when styleKey is not in the catalog; prompt is then returned unchanged.
func Apply(prompt, styleKey, negative string) (string, bool) {
	st, found := Lookup(styleKey)
	if !found {
		return prompt, false
	}

	negatives := normSet(keywords(negative))
	var cleaned []keyword
	for _, k := range keywords(prompt) {
		if _, drop := negatives[k.norm]; drop {
			continue
		}
		cleaned = append(cleaned, k)
	}

	present := normSet(cleaned)
	out := make([]string, 0, len(cleaned)+8)
	for _, k := range keywords(st.Positive) {
		if _, dup := present[k.norm]; dup {
			continue
		}
		out = append(out, k.text)
	}
	for _, k := range cleaned {
		out = append(out, k.text)
	}
	return strings.Join(out, ", "), true
}
