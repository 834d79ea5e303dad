// Package mask decides whether a captured value must be redacted before it
// leaves the process.
package mask

import (
	"strings"

	"github.com/probelight/qa-recorder/internal/dom"
)

// Masked is the literal stored in place of a sensitive value.
const Masked = "[masked]"

// Value applies the masking policy to a raw captured value. Password-type
// inputs always mask; so does any element whose name/id/aria-label mentions
// "password". Empty and whitespace-only values are dropped (nil) rather than
// recorded.
func Value(el *dom.Element, raw string) *string {
	if el != nil {
		if el.InputType() == "password" {
			m := Masked
			return &m
		}
		hint := strings.ToLower(el.Attr("name") + el.Attr("id") + el.Attr("aria-label"))
		if strings.Contains(hint, "password") {
			m := Masked
			return &m
		}
	}
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return &raw
}
