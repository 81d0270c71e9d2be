package media

import "time"

// CustomEventTypeMedia is the event type of every CustomEvent built here.
const CustomEventTypeMedia = "media"

// Host is the analytics SDK a Session forwards to.
//
// Implementations must not retain the Event for mutation; Events are shared
// with the Listener.
type Host interface {
	// LogMediaEvent receives the typed media event.
	LogMediaEvent(event *Event)

	// LogCustomEvent receives a generic event with flat string attributes.
	LogCustomEvent(event *CustomEvent)
}

// CustomEvent is the host's generic event: a name, a type and a flat
// string-keyed attribute map.
type CustomEvent struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Timestamp  time.Time         `json:"timestamp"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Listener is called synchronously with every Event before it is forwarded.
type Listener func(event *Event)

// HostFunc adapts two functions to the Host interface. Either may be nil.
type HostFunc struct {
	Media  func(*Event)
	Custom func(*CustomEvent)
}

// LogMediaEvent implements Host.
func (h HostFunc) LogMediaEvent(event *Event) {
	if h.Media != nil {
		h.Media(event)
	}
}

// LogCustomEvent implements Host.
func (h HostFunc) LogCustomEvent(event *CustomEvent) {
	if h.Custom != nil {
		h.Custom(event)
	}
}
