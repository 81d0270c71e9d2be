package media

import "time"

// Content types.
const (
	ContentTypeVideo = "Video"
	ContentTypeAudio = "Audio"
)

// Stream types.
const (
	StreamTypeLiveStream = "LiveStream"
	StreamTypeOnDemand   = "OnDemand"
	StreamTypeLinear     = "Linear"
	StreamTypePodcast    = "Podcast"
	StreamTypeAudiobook  = "Audiobook"
)

// Content is the descriptive part of a Session copied onto every Event.
type Content struct {
	Title       string `json:"name"`
	ContentID   string `json:"id"`
	Duration    *int64 `json:"duration,omitempty"`
	ContentType string `json:"content_type"`
	StreamType  string `json:"stream_type"`
}

// Ad describes a single advertisement. Empty strings and nil pointers are
// treated as unset.
type Ad struct {
	Title      string `json:"title,omitempty"`
	Duration   *int64 `json:"duration,omitempty"`
	ID         string `json:"id,omitempty"`
	Advertiser string `json:"advertiser,omitempty"`
	Campaign   string `json:"campaign,omitempty"`
	Creative   string `json:"creative,omitempty"`
	Placement  string `json:"placement,omitempty"`
	Position   *int   `json:"position,omitempty"`
	SiteID     string `json:"site_id,omitempty"`
}

// AdBreak describes a group of ads played back to back.
type AdBreak struct {
	Title    string `json:"title,omitempty"`
	Duration *int64 `json:"duration,omitempty"`
	ID       string `json:"id,omitempty"`
}

// Segment describes a chapter or other sub-interval of the content.
type Segment struct {
	Title    string `json:"title,omitempty"`
	Index    *int   `json:"index,omitempty"`
	Duration *int64 `json:"duration,omitempty"`
}

// QoS is a quality-of-service snapshot. Updates may be partial: a nil field
// means "unchanged" when merged into the session.
type QoS struct {
	StartupTime   *int64 `json:"startup_time,omitempty"`
	BitRate       *int   `json:"bit_rate,omitempty"`
	FPS           *int   `json:"fps,omitempty"`
	DroppedFrames *int   `json:"dropped_frames,omitempty"`
}

// merge returns q with every nil field filled from prev.
func (q QoS) merge(prev QoS) QoS {
	if q.StartupTime == nil {
		q.StartupTime = prev.StartupTime
	}
	if q.BitRate == nil {
		q.BitRate = prev.BitRate
	}
	if q.FPS == nil {
		q.FPS = prev.FPS
	}
	if q.DroppedFrames == nil {
		q.DroppedFrames = prev.DroppedFrames
	}
	return q
}

// clone returns a copy of q that shares no pointers with it.
func (q QoS) clone() QoS {
	var c QoS
	if q.StartupTime != nil {
		c.StartupTime = Int64(*q.StartupTime)
	}
	if q.BitRate != nil {
		c.BitRate = Int(*q.BitRate)
	}
	if q.FPS != nil {
		c.FPS = Int(*q.FPS)
	}
	if q.DroppedFrames != nil {
		c.DroppedFrames = Int(*q.DroppedFrames)
	}
	return c
}

// Error is the payload of a Media Error event.
type Error struct {
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Options are per-call overrides consumed by a single Log* call.
type Options struct {
	// PlayheadPosition, when set, becomes the session's playhead before the
	// event is built.
	PlayheadPosition *int64

	// CustomAttributes are copied onto the generated Event and win over
	// media attributes when the event is flattened.
	CustomAttributes map[string]string
}

// adTracker is the in-flight ad and its lifecycle markers.
type adTracker struct {
	ad        Ad
	startedAt time.Time
	endedAt   time.Time
	skipped   bool
	completed bool
}

// segmentTracker is the in-flight segment and its lifecycle markers.
type segmentTracker struct {
	segment   Segment
	startedAt time.Time
	endedAt   time.Time
	skipped   bool
	completed bool
}
