// Package selector computes stable locators and human-readable labels for
// document elements. Everything here is pure; the recorder engine calls it
// from listener callbacks.
package selector

import (
	"fmt"
	"strings"

	"github.com/probelight/qa-recorder/internal/dom"
)

// MaxLabelLen caps element labels before they leave the process.
const MaxLabelLen = 160

// attrPriority is checked in order; the first attribute present on the
// element wins. Test ids beat everything so selectors survive re-renders.
var attrPriority = []string{"data-testid", "data-purpose", "id", "name", "aria-label", "role"}

// maxPathDepth bounds the positional fallback walk.
const maxPathDepth = 4

// Build returns a locator string for el, or nil when no stable locator could
// be derived (the element is the document body itself).
func Build(el *dom.Element) *string {
	if el == nil {
		return nil
	}
	for _, attr := range attrPriority {
		v := el.Attr(attr)
		if v == "" {
			continue
		}
		var s string
		if attr == "id" {
			s = "#" + escape(v)
		} else {
			s = fmt.Sprintf(`%s[%s="%s"]`, el.TagName, attr, escape(v))
		}
		return &s
	}
	return positionalPath(el)
}

// positionalPath builds tag:nth-of-type(n) segments from el up toward (but
// excluding) the body, capped at maxPathDepth levels.
func positionalPath(el *dom.Element) *string {
	var segments []string
	cur := el
	for depth := 0; depth < maxPathDepth && cur != nil && cur.TagName != "body"; depth++ {
		segments = append([]string{fmt.Sprintf("%s:nth-of-type(%d)", cur.TagName, cur.NthOfType())}, segments...)
		cur = cur.Parent()
	}
	if len(segments) == 0 {
		return nil
	}
	s := strings.Join(segments, " > ")
	return &s
}

// escape backslash-escapes the characters CSS attribute values and id
// selectors cannot carry verbatim.
func escape(v string) string {
	var b strings.Builder
	for _, r := range v {
		switch r {
		case '"', '\'', '\\', '[', ']', '#', '.', ':', '(', ')', '>', '~', '+', '*':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Label extracts a human-readable label for el, truncated to MaxLabelLen.
// Returns nil when nothing meaningful was found.
func Label(el *dom.Element) *string {
	if el == nil {
		return nil
	}
	var raw string
	switch el.TagName {
	case "input", "textarea":
		raw = firstNonEmpty(el.Attr("aria-label"), el.Attr("placeholder"), el.Attr("name"))
	case "select":
		raw = firstNonEmpty(el.SelectedOptionText(), el.Attr("aria-label"), el.Attr("name"))
	default:
		raw = el.Text
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	raw = Truncate(raw, MaxLabelLen)
	return &raw
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
