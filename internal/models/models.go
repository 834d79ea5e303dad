package models

import (
	"encoding/json"
	"sort"
	"strings"
)

// Event types this recorder emits. The sink schema rejects anything else.
const (
	TypeClick      = "click"
	TypeInput      = "input"
	TypeSubmit     = "submit"
	TypeNavigation = "navigation"
)

// Recording modes.
const (
	ModeAuto   = "auto"
	ModeManual = "manual"
)

// OriginUser marks events captured from live user interaction.
const OriginUser = "user"

// RecordedEvent is the unit handed to the event sink.
type RecordedEvent struct {
	TSUTC         int64   `json:"ts_utc"`
	TSISO         string  `json:"ts_iso"`
	EventType     string  `json:"eventType"` // click|input|submit|navigation
	Selector      *string `json:"selector,omitempty"`
	ElementText   *string `json:"elementText,omitempty"`
	Value         *string `json:"value,omitempty"`
	URL           string  `json:"url"`
	MetaJSON      *string `json:"metaJson,omitempty"`
	RunID         *string `json:"runId,omitempty"`
	Origin        string  `json:"origin"`
	RecordingMode string  `json:"recordingMode"`
}

// Batch is the wire shape accepted by the relay endpoint.
type Batch struct {
	SessionID string          `json:"sessionId"`
	Events    []RecordedEvent `json:"events"`
}

// ValidTypes reports the event types the store accepts.
var ValidTypes = map[string]bool{
	TypeClick:      true,
	TypeInput:      true,
	TypeSubmit:     true,
	TypeNavigation: true,
}

// EncodeMeta serializes a metadata side channel, dropping keys whose values
// are empty or whitespace-only. Returns nil when nothing survives, so callers
// can omit the field entirely.
func EncodeMeta(meta map[string]string) *string {
	if len(meta) == 0 {
		return nil
	}
	clean := make(map[string]string, len(meta))
	for k, v := range meta {
		if strings.TrimSpace(v) == "" {
			continue
		}
		clean[k] = v
	}
	if len(clean) == 0 {
		return nil
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}

// DecodeMeta parses a metaJson field back into a map. Malformed input yields
// an empty map rather than an error; the metadata is advisory.
func DecodeMeta(metaJSON *string) map[string]string {
	if metaJSON == nil || *metaJSON == "" {
		return map[string]string{}
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(*metaJSON), &meta); err != nil {
		return map[string]string{}
	}
	return meta
}

// MetaKeys returns the sorted keys of a decoded metadata map.
func MetaKeys(meta map[string]string) []string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StringPtr returns a pointer to s, or nil when s trims to empty. Mirrors the
// "omit empty optional fields" rule applied across the event shape.
func StringPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
