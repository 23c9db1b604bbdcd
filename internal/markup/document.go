package markup

import (
	"errors"
	"io"
	"slices"
	"strings"

	"inline-media-backend/internal/model"

	"github.com/PuerkitoBio/goquery"
	nethtml "golang.org/x/net/html"
)

// span is the byte range [start, end) of one element in the raw markup.
type span struct {
	start, end int
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true,
	"img": true, "input": true, "link": true, "meta": true, "param": true,
	"source": true, "track": true, "wbr": true,
}

func tagAttrs(z *nethtml.Tokenizer, more bool) map[string]string {
	attrs := map[string]string{}
	for more {
		var k, v []byte
		k, v, more = z.TagAttr()
		attrs[string(k)] = string(v)
	}
	return attrs
}

func hasClass(attrs map[string]string, class string) bool {
	return slices.Contains(strings.Fields(attrs["class"]), class)
}

// elementSpans locates the outermost elements accepted by match. Only byte offsets are
// taken from the tokenizer, so callers can splice the raw string and leave everything
// outside the spans untouched.
func elementSpans(html string, match func(attrs map[string]string) bool) ([]span, error) {
	z := nethtml.NewTokenizer(strings.NewReader(html))
	var spans []span
	offset, depth, start := 0, 0, 0

	for {
		tt := z.Next()
		if tt == nethtml.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, err
			}
			break
		}
		n := len(z.Raw())

		switch tt {
		case nethtml.StartTagToken, nethtml.SelfClosingTagToken:
			name, more := z.TagName()
			void := tt == nethtml.SelfClosingTagToken || voidElements[string(name)]
			if depth > 0 {
				if !void {
					depth++
				}
				break
			}
			if !match(tagAttrs(z, more)) {
				break
			}
			if void {
				spans = append(spans, span{offset, offset + n})
			} else {
				start, depth = offset, 1
			}
		case nethtml.EndTagToken:
			if depth > 0 {
				depth--
				if depth == 0 {
					spans = append(spans, span{start, offset + n})
				}
			}
		}
		offset += n
	}

	// 未闭合的元素延伸到末尾
	if depth > 0 {
		spans = append(spans, span{start, len(html)})
	}
	return spans, nil
}

// cut removes spans from html; spans are in document order and do not overlap.
func cut(html string, spans []span) string {
	var b strings.Builder
	b.Grow(len(html))
	last := 0
	for _, s := range spans {
		b.WriteString(html[last:s.start])
		last = s.end
	}
	b.WriteString(html[last:])
	return b.String()
}

func isContainer(id string) func(map[string]string) bool {
	return func(attrs map[string]string) bool {
		return hasClass(attrs, ContainerClass) && attrs[IDAttr] == id
	}
}

func containerSpan(html, id string) (span, bool, error) {
	spans, err := elementSpans(html, isContainer(id))
	if err != nil || len(spans) == 0 {
		return span{}, false, err
	}
	return spans[0], true, nil
}

// editContainer rewrites only the container with id and splices it back.
func editContainer(html, id string, edit func(sel *goquery.Selection) error) (string, bool, error) {
	s, found, err := containerSpan(html, id)
	if err != nil || !found {
		return html, false, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html[s.start:s.end]))
	if err != nil {
		return "", true, err
	}
	sel := doc.Find("." + ContainerClass).First()
	if sel.Length() == 0 {
		return html, false, nil
	}
	if err := edit(sel); err != nil {
		return "", true, err
	}
	fragment, err := goquery.OuterHtml(sel)
	if err != nil {
		return "", true, err
	}
	return html[:s.start] + fragment + html[s.end:], true, nil
}

func setClass(sel *goquery.Selection, class string, on bool) {
	v, _ := sel.Attr("class")
	classes := slices.DeleteFunc(strings.Fields(v), func(c string) bool { return c == class })
	if on {
		classes = append(classes, class)
	}
	sel.SetAttr("class", strings.Join(classes, " "))
}

// InsertBefore splices fragment immediately before the first occurrence of anchor.
func InsertBefore(html, anchor, fragment string) (string, bool) {
	if anchor == "" || !strings.Contains(html, anchor) {
		return html, false
	}
	return strings.Replace(html, anchor, fragment+anchor, 1), true
}

// Append adds fragment at the end of the markup.
func Append(html, fragment string) string {
	return html + fragment
}

// RemovePending removes the placeholder inserted for messageID. The exact placeholder
// string is removed when still intact, otherwise the element is located by its marker.
func RemovePending(html, messageID, placeholder string) (string, error) {
	if placeholder != "" && strings.Contains(html, placeholder) {
		return strings.Replace(html, placeholder, "", 1), nil
	}
	if !strings.Contains(html, PendingClass) {
		return html, nil
	}

	spans, err := elementSpans(html, func(attrs map[string]string) bool {
		return hasClass(attrs, PendingClass) && attrs["data-pending-for"] == messageID
	})
	if err != nil {
		return "", err
	}
	return cut(html, spans), nil
}

// RemoveContainers strips every media container and pending placeholder. It returns
// the markup unchanged when there is nothing to remove.
func RemoveContainers(html string) (string, int, error) {
	if !strings.Contains(html, ContainerClass) && !strings.Contains(html, PendingClass) {
		return html, 0, nil
	}
	spans, err := elementSpans(html, func(attrs map[string]string) bool {
		return hasClass(attrs, ContainerClass) || hasClass(attrs, PendingClass)
	})
	if err != nil {
		return "", 0, err
	}
	return cut(html, spans), len(spans), nil
}

// ContainerHTML returns the outer markup of the container with id, or "".
func ContainerHTML(html, id string) (string, error) {
	s, found, err := containerSpan(html, id)
	if err != nil || !found {
		return "", err
	}
	return html[s.start:s.end], nil
}

// SetHidden toggles the hidden class on the container with id. found is false when
// the container is not in the markup.
func SetHidden(html, id string, hidden bool) (out string, found bool, err error) {
	return editContainer(html, id, func(sel *goquery.Selection) error {
		setClass(sel, HiddenClass, hidden)
		return nil
	})
}

// ReplaceMedia swaps the media element and prompt text of rec's container in place,
// switching between img and video when the url kind changes.
func ReplaceMedia(html string, rec model.MediaRecord, labels Labels) (out string, found bool, err error) {
	media, err := renderMedia(rec, labels)
	if err != nil {
		return "", false, err
	}
	return editContainer(html, rec.ID, func(sel *goquery.Selection) error {
		sel.Find(".custom-image").ReplaceWithHtml(media)
		sel.Find(".prompt-text").SetText(rec.Prompt)
		setClass(sel, "loading", false)
		return nil
	})
}
