package events

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/SebastienMelki/causality-media/media"
)

// Envelope kinds.
const (
	KindMedia  = "media"
	KindCustom = "custom"
)

// Envelope is the delivery unit shared by every sink. It carries either a
// typed media event or a custom event, flattened to attributes.
type Envelope struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Name       string         `json:"name"`
	Category   string         `json:"category"`
	AppID      string         `json:"app_id,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	SDKVersion string         `json:"sdk_version"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// FromMediaEvent wraps a typed media event.
func FromMediaEvent(appID string, e *media.Event) Envelope {
	return Envelope{
		ID:         e.ID,
		Kind:       KindMedia,
		Name:       e.Name,
		Category:   Category(e.Name),
		AppID:      appID,
		SessionID:  e.SessionID,
		Timestamp:  e.Timestamp.UTC(),
		SDKVersion: media.SDKVersion,
		Attributes: e.Attributes(),
	}
}

// FromCustomEvent wraps a custom event. The session id is taken from its
// attributes when present.
func FromCustomEvent(appID string, e *media.CustomEvent) Envelope {
	attrs := make(map[string]any, len(e.Attributes))
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	return Envelope{
		ID:         e.ID,
		Kind:       KindCustom,
		Name:       e.Name,
		Category:   Category(e.Name),
		AppID:      appID,
		SessionID:  e.Attributes[media.KeyMediaSessionID],
		Timestamp:  e.Timestamp.UTC(),
		SDKVersion: media.SDKVersion,
		Attributes: attrs,
	}
}

// Key identifies the envelope for deduplication. A media event and its
// custom translation share an event id, so the kind is part of the key.
func (e Envelope) Key() string {
	return e.Kind + ":" + e.ID
}

// Marshal encodes the envelope as JSON.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes a JSON envelope.
func Unmarshal(data []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(data, &e)
	return e, err
}

// Clone returns a copy with its own attribute map.
func (e Envelope) Clone() Envelope {
	e.Attributes = maps.Clone(e.Attributes)
	return e
}
