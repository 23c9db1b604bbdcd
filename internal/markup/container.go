// Package markup renders media containers and edits rendered message markup.
package markup

import (
	"bytes"
	"html/template"
	"strings"

	"inline-media-backend/internal/model"
	"inline-media-backend/internal/style"
)

const (
	ContainerClass = "custom-image-container"
	PendingClass   = "custom-image-pending"
	HiddenClass    = "hidden"
	IDAttr         = "data-image-id"
)

// Labels are the user-visible strings of a container.
type Labels struct {
	Regenerate  string
	Fullscreen  string
	Hide        string
	CopyPrompt  string
	HiddenImage string
	Video       string
	Image       string
}

var DefaultLabels = Labels{
	Regenerate:  "Regenerate image",
	Fullscreen:  "View fullscreen",
	Hide:        "Hide image",
	CopyPrompt:  "Click to copy prompt",
	HiddenImage: "Hidden Image",
	Video:       "Generated video",
	Image:       "Generated image",
}

type containerView struct {
	ID          string
	URL         template.URL
	Prompt      string
	IsVideo     bool
	Hidden      bool
	AspectClass string
	AspectRatio string
	BaseSize    int
	Labels      Labels
}

const mediaTemplate = `{{define "media"}}{{if .IsVideo}}<video class="custom-image" src="{{.URL}}" autoplay loop muted playsinline aria-label="{{.Labels.Video}}"></video>{{else}}<img class="custom-image" src="{{.URL}}" alt="{{.Labels.Image}}"/>{{end}}{{end}}`

const containerTemplate = `<div class="custom-image-container{{if .Hidden}} hidden{{end}}" data-image-id="{{.ID}}">` +
	`<div class="custom-image-wrapper {{.AspectClass}}">{{template "media" .}}` +
	`<div class="image-controls">` +
	`<button class="image-control-btn regenerate-btn" title="{{.Labels.Regenerate}}" data-action="regenerate">↻</button>` +
	`<button class="image-control-btn fullscreen-btn" title="{{.Labels.Fullscreen}}" data-action="fullscreen">⛶</button>` +
	`<button class="image-control-btn hide-btn" title="{{.Labels.Hide}}" data-action="hide">✕</button>` +
	`</div>` +
	`<div class="image-info"><div class="image-prompt" title="{{.Labels.CopyPrompt}}" data-action="copy-prompt"><span class="prompt-text">{{.Prompt}}</span></div>` +
	`<div class="image-meta">{{.AspectRatio}} • {{.BaseSize}}px</div></div>` +
	`</div>` +
	`<div class="image-placeholder" data-action="show"><div class="image-placeholder-text">{{.Labels.HiddenImage}}</div></div>` +
	`</div>`

var tmpl = template.Must(template.Must(template.New("markup").Parse(mediaTemplate)).New("container").Parse(containerTemplate))

// IsVideo reports whether url points at a video by extension.
func IsVideo(url string) bool {
	u := strings.ToLower(url)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.HasSuffix(u, ".mp4") || strings.HasSuffix(u, ".webm")
}

// safeMediaURL admits http(s), relative paths and image/video data urls.
func safeMediaURL(raw string) template.URL {
	u := strings.TrimSpace(raw)
	lower := strings.ToLower(u)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"),
		strings.HasPrefix(lower, "data:image/"), strings.HasPrefix(lower, "data:video/"):
		return template.URL(u)
	case strings.HasPrefix(u, "/"), strings.HasPrefix(u, "./"):
		return template.URL(u)
	case !strings.Contains(u, ":"):
		return template.URL(u)
	default:
		return "#"
	}
}

func view(rec model.MediaRecord, labels Labels) containerView {
	return containerView{
		ID:          rec.ID,
		URL:         safeMediaURL(rec.URL),
		Prompt:      rec.Prompt,
		IsVideo:     IsVideo(rec.URL),
		Hidden:      rec.Hidden,
		AspectClass: style.AspectClass(rec.Settings.AspectRatio),
		AspectRatio: rec.Settings.AspectRatio,
		BaseSize:    rec.Settings.BaseSize,
		Labels:      labels,
	}
}

// RenderContainer renders the container for rec.
func RenderContainer(rec model.MediaRecord, labels Labels) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "container", view(rec, labels)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderMedia(rec model.MediaRecord, labels Labels) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "media", view(rec, labels)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// PendingPlaceholder is the marker shown while a generation is in flight.
func PendingPlaceholder(messageID, text string) string {
	return `<div class="` + PendingClass + `" data-pending-for="` + template.HTMLEscapeString(messageID) + `">` +
		template.HTMLEscapeString(text) + `</div>`
}

const inlineTemplate = `<div class="mes_img_container"><img class="mes_img" src="{{.URL}}" alt="{{.Title}}" title="{{.Title}}"/></div>`

var inlineTmpl = template.Must(template.New("inline").Parse(inlineTemplate))

// AppendInlineMedia replaces the message's inline image block, as the host does for
// extra.image when containers are disabled.
func AppendInlineMedia(html, mediaURL, title string) (string, error) {
	var buf bytes.Buffer
	err := inlineTmpl.Execute(&buf, struct {
		URL   template.URL
		Title string
	}{safeMediaURL(mediaURL), title})
	if err != nil {
		return "", err
	}

	if strings.Contains(html, "mes_img_container") {
		spans, err := elementSpans(html, func(attrs map[string]string) bool {
			return hasClass(attrs, "mes_img_container")
		})
		if err != nil {
			return "", err
		}
		html = cut(html, spans)
	}
	return Append(html, buf.String()), nil
}
