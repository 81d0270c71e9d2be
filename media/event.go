package media

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Event is one occurrence emitted by a Session. It is a snapshot: later
// changes to the session are not reflected in it.
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
	Content   Content   `json:"media_content"`

	PlayheadPosition *int64 `json:"playhead_position,omitempty"`

	QoS     *QoS     `json:"qos,omitempty"`
	Ad      *Ad      `json:"media_ad,omitempty"`
	Segment *Segment `json:"segment,omitempty"`
	AdBreak *AdBreak `json:"ad_break,omitempty"`
	Error   *Error   `json:"error,omitempty"`

	SeekPosition   *int64   `json:"seek_position,omitempty"`
	BufferDuration *int64   `json:"buffer_duration,omitempty"`
	BufferPercent  *float64 `json:"buffer_percent,omitempty"`
	BufferPosition *int64   `json:"buffer_position,omitempty"`

	CustomAttributes map[string]string `json:"custom_attributes,omitempty"`
}

// newEvent snapshots the session into a new Event. A playhead override in
// opts is written back to the session first so it persists.
func newEvent(s *Session, name string, opts *Options) *Event {
	if opts != nil && opts.PlayheadPosition != nil {
		s.playhead = Int64(*opts.PlayheadPosition)
	}

	e := &Event{
		ID:        uuid.New().String(),
		Name:      name,
		Timestamp: s.clock(),
		SessionID: s.sessionID,
		Content:   s.content(),
	}
	if s.playhead != nil {
		e.PlayheadPosition = Int64(*s.playhead)
	}
	if opts != nil && len(opts.CustomAttributes) > 0 {
		e.CustomAttributes = maps.Clone(opts.CustomAttributes)
	}
	return e
}

// SessionAttributes returns the session-level attributes carried by the
// event: session id, playhead and the content description.
func (e *Event) SessionAttributes() map[string]any {
	attrs := make(map[string]any, 7)
	putString(attrs, KeyMediaSessionID, e.SessionID)
	putInt64(attrs, KeyPlayheadPosition, e.PlayheadPosition)
	putString(attrs, KeyTitle, e.Content.Title)
	putString(attrs, KeyContentID, e.Content.ContentID)
	putInt64(attrs, KeyDuration, e.Content.Duration)
	putString(attrs, KeyStreamType, e.Content.StreamType)
	putString(attrs, KeyContentType, e.Content.ContentType)
	return attrs
}

// EventAttributes returns the event-specific attributes. Unset fields are
// omitted.
func (e *Event) EventAttributes() map[string]any {
	attrs := make(map[string]any)

	putInt64(attrs, KeySeekPosition, e.SeekPosition)
	putInt64(attrs, KeyBufferDuration, e.BufferDuration)
	putFloat64(attrs, KeyBufferPercent, e.BufferPercent)
	putInt64(attrs, KeyBufferPosition, e.BufferPosition)

	if q := e.QoS; q != nil {
		putInt(attrs, KeyQoSBitRate, q.BitRate)
		putInt(attrs, KeyQoSDroppedFrames, q.DroppedFrames)
		putInt(attrs, KeyQoSFPS, q.FPS)
		putInt64(attrs, KeyQoSStartupTime, q.StartupTime)
	}
	if ad := e.Ad; ad != nil {
		putString(attrs, KeyAdTitle, ad.Title)
		putString(attrs, KeyAdID, ad.ID)
		putString(attrs, KeyAdAdvertiser, ad.Advertiser)
		putString(attrs, KeyAdCampaign, ad.Campaign)
		putString(attrs, KeyAdCreative, ad.Creative)
		putString(attrs, KeyAdSiteID, ad.SiteID)
		putInt64(attrs, KeyAdDuration, ad.Duration)
		putString(attrs, KeyAdPlacement, ad.Placement)
		putInt(attrs, KeyAdPosition, ad.Position)
	}
	if seg := e.Segment; seg != nil {
		putString(attrs, KeySegmentTitle, seg.Title)
		putInt(attrs, KeySegmentIndex, seg.Index)
		putInt64(attrs, KeySegmentDuration, seg.Duration)
	}
	if ab := e.AdBreak; ab != nil {
		putString(attrs, KeyAdBreakTitle, ab.Title)
		putInt64(attrs, KeyAdBreakDuration, ab.Duration)
		putString(attrs, KeyAdBreakID, ab.ID)
	}
	if er := e.Error; er != nil {
		putString(attrs, KeyErrorMessage, er.Message)
		if len(er.Attributes) > 0 {
			attrs[KeyErrorAttributes] = maps.Clone(er.Attributes)
		}
	}
	return attrs
}

// Attributes returns session, event and custom attributes merged in that
// order, later sources winning on key collisions.
func (e *Event) Attributes() map[string]any {
	attrs := e.SessionAttributes()
	maps.Copy(attrs, e.EventAttributes())
	for k, v := range e.CustomAttributes {
		attrs[k] = v
	}
	return attrs
}

// ToCustomEvent translates the event into the host's generic event format.
// Every attribute value is rendered as a string.
func (e *Event) ToCustomEvent() *CustomEvent {
	return &CustomEvent{
		ID:         e.ID,
		Name:       e.Name,
		Type:       CustomEventTypeMedia,
		Timestamp:  e.Timestamp,
		Attributes: stringifyAttributes(e.Attributes()),
	}
}

// String renders the event as JSON for logs.
func (e *Event) String() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf("media.Event{id=%s type=%s}", e.ID, e.Name)
	}
	return string(data)
}

func putString(attrs map[string]any, key, value string) {
	if value != "" {
		attrs[key] = value
	}
}

func putInt(attrs map[string]any, key string, value *int) {
	if value != nil {
		attrs[key] = *value
	}
}

func putInt64(attrs map[string]any, key string, value *int64) {
	if value != nil {
		attrs[key] = *value
	}
}

func putFloat64(attrs map[string]any, key string, value *float64) {
	if value != nil {
		attrs[key] = *value
	}
}

// stringifyAttributes renders typed attribute values as strings. Nested
// values (error attributes) are JSON encoded.
func stringifyAttributes(attrs map[string]any) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = stringify(v)
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}
