package media

import (
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
)

// clockFunc returns the current time. Replaced in tests.
type clockFunc func() time.Time

// Session tracks one playback of a piece of content and emits its events.
//
// The descriptive fields (title, content id, duration, content and stream
// type) are fixed at construction and copied onto every Event.
type Session struct {
	title       string
	contentID   string
	duration    *int64
	contentType string
	streamType  string

	host                 Host
	logMediaEvents       bool
	logCustomEvents      bool
	contentCompleteLimit int
	listener             Listener

	logger    *slog.Logger
	metrics   *instruments
	lifecycle *fsm.FSM
	clock     clockFunc

	sessionID string
	playhead  *int64
	qos       QoS

	sessionStart time.Time
	sessionEnd   time.Time

	// playStart is zero while playback is not running.
	playStart      time.Time
	storedPlayback time.Duration

	ad           *adTracker
	segment      *segmentTracker
	adTotal      int
	adIDs        []string
	adTime       time.Duration
	segmentTotal int

	contentComplete bool
	summarySent     bool
	warnedNoHost    bool
}

// NewSession builds a Session from cfg.
//
// It returns an error wrapping ErrMissingField when a required field is
// empty, unless cfg.AllowMissing is set, in which case the problem is logged
// and the session is built with the empty values.
func NewSession(cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	logger := cfg.Logger.With("component", "media")

	if err := cfg.validate(); err != nil {
		if !cfg.AllowMissing {
			return nil, err
		}
		logger.Error("building media session with missing fields", "error", err)
	}

	metrics, err := newInstruments(cfg.Meter)
	if err != nil {
		return nil, fmt.Errorf("create media metrics: %w", err)
	}

	if cfg.Host == nil {
		logger.Warn("media session has no host, events will only reach the listener")
	}

	return &Session{
		title:                cfg.Title,
		contentID:            cfg.ContentID,
		duration:             cfg.Duration,
		contentType:          cfg.ContentType,
		streamType:           cfg.StreamType,
		host:                 cfg.Host,
		logMediaEvents:       *cfg.LogMediaEvents,
		logCustomEvents:      cfg.LogCustomEvents,
		contentCompleteLimit: cfg.ContentCompleteLimit,
		logger:               logger,
		metrics:              metrics,
		lifecycle:            newLifecycle(logger),
		clock:                time.Now,
	}, nil
}

// SetListener registers l to receive every Event before it is forwarded.
// A nil l removes the listener.
func (s *Session) SetListener(l Listener) {
	s.listener = l
}

// LogMediaSessionStart starts the session: a new session id is generated and
// the session start time is recorded.
func (s *Session) LogMediaSessionStart(opts ...Options) {
	s.sessionID = uuid.New().String()
	s.sessionStart = s.clock()
	s.transition(transitionStart)
	s.logEvent(newEvent(s, EventSessionStart, firstOptions(opts)))
}

// LogMediaSessionEnd ends the session. Summaries of an in-flight ad or
// segment are emitted, followed by the session summary.
func (s *Session) LogMediaSessionEnd(opts ...Options) {
	s.transition(transitionEnd)
	s.logEvent(newEvent(s, EventSessionEnd, firstOptions(opts)))

	now := s.clock()
	s.closeAd(now)
	s.logAdSummary()
	s.closeSegment(now)
	s.logSegmentSummary()
	s.logSessionSummary()
}

// LogMediaContentEnd marks the content as complete.
func (s *Session) LogMediaContentEnd(opts ...Options) {
	s.contentComplete = true
	s.logEvent(newEvent(s, EventContentEnd, firstOptions(opts)))
}

// LogPlay starts the playback timer if it is not already running.
func (s *Session) LogPlay(opts ...Options) {
	if s.playStart.IsZero() {
		s.playStart = s.clock()
	}
	s.transition(transitionPlay)
	s.logEvent(newEvent(s, EventPlay, firstOptions(opts)))
}

// LogPause stops the playback timer and accumulates the elapsed time.
func (s *Session) LogPause(opts ...Options) {
	if !s.playStart.IsZero() {
		s.storedPlayback += s.clock().Sub(s.playStart)
		s.playStart = time.Time{}
	}
	s.transition(transitionPause)
	s.logEvent(newEvent(s, EventPause, firstOptions(opts)))
}

// LogSeekStart records the start of a seek to position (milliseconds).
func (s *Session) LogSeekStart(position int64, opts ...Options) {
	e := newEvent(s, EventSeekStart, firstOptions(opts))
	e.SeekPosition = Int64(position)
	s.logEvent(e)
}

// LogSeekEnd records the end of a seek to position (milliseconds).
func (s *Session) LogSeekEnd(position int64, opts ...Options) {
	e := newEvent(s, EventSeekEnd, firstOptions(opts))
	e.SeekPosition = Int64(position)
	s.logEvent(e)
}

// LogBufferStart records the start of buffering.
func (s *Session) LogBufferStart(duration int64, percent float64, position int64, opts ...Options) {
	s.logEvent(s.bufferEvent(EventBufferStart, duration, percent, position, firstOptions(opts)))
}

// LogBufferEnd records the end of buffering.
func (s *Session) LogBufferEnd(duration int64, percent float64, position int64, opts ...Options) {
	s.logEvent(s.bufferEvent(EventBufferEnd, duration, percent, position, firstOptions(opts)))
}

func (s *Session) bufferEvent(name string, duration int64, percent float64, position int64, opts *Options) *Event {
	e := newEvent(s, name, opts)
	e.BufferDuration = Int64(duration)
	e.BufferPercent = Float64(percent)
	e.BufferPosition = Int64(position)
	return e
}

// LogAdBreakStart records the start of an ad break.
func (s *Session) LogAdBreakStart(adBreak AdBreak, opts ...Options) {
	e := newEvent(s, EventAdBreakStart, firstOptions(opts))
	e.AdBreak = &adBreak
	s.logEvent(e)
}

// LogAdBreakEnd records the end of the current ad break.
func (s *Session) LogAdBreakEnd(opts ...Options) {
	s.logEvent(newEvent(s, EventAdBreakEnd, firstOptions(opts)))
}

// LogAdStart makes ad the in-flight ad. An ad still in flight is closed
// and summarized first.
func (s *Session) LogAdStart(ad Ad, opts ...Options) {
	now := s.clock()
	if s.ad != nil {
		s.closeAd(now)
		s.logAdSummary()
	}

	s.ad = &adTracker{ad: ad, startedAt: now}
	s.adTotal++
	if ad.ID != "" {
		s.adIDs = append(s.adIDs, ad.ID)
	}

	e := newEvent(s, EventAdStart, firstOptions(opts))
	e.Ad = &ad
	s.logEvent(e)
}

// LogAdClick records a click on the in-flight ad.
func (s *Session) LogAdClick(opts ...Options) {
	e := newEvent(s, EventAdClick, firstOptions(opts))
	e.Ad = s.currentAd()
	s.logEvent(e)
}

// LogAdEnd marks the in-flight ad completed and emits its summary.
func (s *Session) LogAdEnd(opts ...Options) {
	s.finishAd(EventAdEnd, false, firstOptions(opts))
}

// LogAdSkip marks the in-flight ad skipped and emits its summary.
func (s *Session) LogAdSkip(opts ...Options) {
	s.finishAd(EventAdSkip, true, firstOptions(opts))
}

func (s *Session) finishAd(name string, skipped bool, opts *Options) {
	now := s.clock()
	if t := s.ad; t != nil && t.endedAt.IsZero() {
		s.closeAd(now)
		t.skipped = skipped
		t.completed = !skipped
	}

	e := newEvent(s, name, opts)
	e.Ad = s.currentAd()
	s.logEvent(e)
	s.logAdSummary()
}

// closeAd stamps the end of the in-flight ad and accumulates its time. It
// has no effect on an ad that is already closed.
func (s *Session) closeAd(now time.Time) {
	t := s.ad
	if t == nil || !t.endedAt.IsZero() {
		return
	}
	t.endedAt = now
	s.adTime += now.Sub(t.startedAt)
}

func (s *Session) currentAd() *Ad {
	if s.ad == nil {
		return nil
	}
	ad := s.ad.ad
	return &ad
}

// LogSegmentStart makes segment the in-flight segment. A segment still in
// flight is closed and summarized first.
func (s *Session) LogSegmentStart(segment Segment, opts ...Options) {
	now := s.clock()
	if s.segment != nil {
		s.closeSegment(now)
		s.logSegmentSummary()
	}

	s.segment = &segmentTracker{segment: segment, startedAt: now}
	s.segmentTotal++

	e := newEvent(s, EventSegmentStart, firstOptions(opts))
	e.Segment = &segment
	s.logEvent(e)
}

// LogSegmentEnd marks the in-flight segment completed and emits its summary.
func (s *Session) LogSegmentEnd(opts ...Options) {
	s.finishSegment(EventSegmentEnd, false, firstOptions(opts))
}

// LogSegmentSkip marks the in-flight segment skipped and emits its summary.
func (s *Session) LogSegmentSkip(opts ...Options) {
	s.finishSegment(EventSegmentSkip, true, firstOptions(opts))
}

func (s *Session) finishSegment(name string, skipped bool, opts *Options) {
	now := s.clock()
	if t := s.segment; t != nil && t.endedAt.IsZero() {
		s.closeSegment(now)
		t.skipped = skipped
		t.completed = !skipped
	}

	e := newEvent(s, name, opts)
	if s.segment != nil {
		segment := s.segment.segment
		e.Segment = &segment
	}
	s.logEvent(e)
	s.logSegmentSummary()
}

func (s *Session) closeSegment(now time.Time) {
	t := s.segment
	if t == nil || !t.endedAt.IsZero() {
		return
	}
	t.endedAt = now
}

// LogPlayheadPosition stores the playhead (milliseconds). The resulting
// event is never translated into a custom event.
func (s *Session) LogPlayheadPosition(position int64) {
	s.playhead = Int64(position)
	s.logEvent(newEvent(s, EventUpdatePlayheadPosition, nil))
}

// LogQoS merges q into the session's QoS. Nil fields of q keep their
// previous value.
func (s *Session) LogQoS(q QoS, opts ...Options) {
	s.qos = q.merge(s.qos).clone()
	e := newEvent(s, EventUpdateQoS, firstOptions(opts))
	qos := s.qos.clone()
	e.QoS = &qos
	s.logEvent(e)
}

// LogError records a playback error.
func (s *Session) LogError(message string, attributes map[string]any, opts ...Options) {
	e := newEvent(s, EventError, firstOptions(opts))
	e.Error = &Error{Message: message, Attributes: maps.Clone(attributes)}
	s.logEvent(e)
}

// BuildCustomEvent returns a media-typed CustomEvent named name carrying the
// session attributes merged with attributes.
func (s *Session) BuildCustomEvent(name string, attributes map[string]string) *CustomEvent {
	e := newEvent(s, name, nil)
	attrs := stringifyAttributes(e.SessionAttributes())
	for k, v := range attributes {
		attrs[k] = v
	}
	return &CustomEvent{
		ID:         e.ID,
		Name:       name,
		Type:       CustomEventTypeMedia,
		Timestamp:  e.Timestamp,
		Attributes: attrs,
	}
}

// Attributes returns the session attributes: session id, playhead and the
// content description.
func (s *Session) Attributes() map[string]any {
	return newEvent(s, "", nil).SessionAttributes()
}

// logEvent updates the end-of-session bookkeeping, then hands e to the
// listener and the host.
func (s *Session) logEvent(e *Event) {
	s.sessionEnd = e.Timestamp
	s.checkContentComplete()
	s.metrics.add(s.metrics.eventsLogged, e.Name)

	if s.listener != nil {
		s.listener(e)
	}

	if s.logMediaEvents {
		if s.hostAvailable(e.Name) {
			s.host.LogMediaEvent(e)
		}
	}

	if s.logCustomEvents && e.Name != EventUpdatePlayheadPosition {
		if s.hostAvailable(e.Name) {
			s.host.LogCustomEvent(e.ToCustomEvent())
			s.metrics.add(s.metrics.customEvents, e.Name)
		}
	}
}

// logCustomEvent sends a custom event to the host regardless of the
// forwarding flags.
func (s *Session) logCustomEvent(e *CustomEvent) {
	if s.hostAvailable(e.Name) {
		s.host.LogCustomEvent(e)
	}
}

func (s *Session) hostAvailable(name string) bool {
	if s.host != nil {
		return true
	}
	s.metrics.add(s.metrics.eventsDropped, name)
	if !s.warnedNoHost {
		s.warnedNoHost = true
		s.logger.Warn("dropping media event", "event", name, "error", ErrNoHost)
	}
	return false
}

// checkContentComplete marks the content complete once the playhead reaches
// the configured percentage of the duration.
func (s *Session) checkContentComplete() {
	if s.contentComplete || s.contentCompleteLimit >= 100 {
		return
	}
	if s.duration == nil || *s.duration <= 0 || s.playhead == nil {
		return
	}
	if float64(*s.playhead)*100 >= float64(s.contentCompleteLimit)*float64(*s.duration) {
		s.contentComplete = true
	}
}

// content returns a copy of the descriptive fields.
func (s *Session) content() Content {
	c := Content{
		Title:       s.title,
		ContentID:   s.contentID,
		ContentType: s.contentType,
		StreamType:  s.streamType,
	}
	if s.duration != nil {
		c.Duration = Int64(*s.duration)
	}
	return c
}

// SessionID returns the current session id, empty before the session starts.
func (s *Session) SessionID() string { return s.sessionID }

// Title returns the content title.
func (s *Session) Title() string { return s.title }

// ContentID returns the content id.
func (s *Session) ContentID() string { return s.contentID }

// Duration returns the content duration in milliseconds, or nil if unknown.
func (s *Session) Duration() *int64 {
	if s.duration == nil {
		return nil
	}
	return Int64(*s.duration)
}

// ContentType returns the content type.
func (s *Session) ContentType() string { return s.contentType }

// StreamType returns the stream type.
func (s *Session) StreamType() string { return s.streamType }

// PlayheadPosition returns the last known playhead in milliseconds, or nil.
func (s *Session) PlayheadPosition() *int64 {
	if s.playhead == nil {
		return nil
	}
	return Int64(*s.playhead)
}

// QoS returns the merged QoS snapshot.
func (s *Session) QoS() QoS { return s.qos.clone() }

// ContentTimeSpent returns the accumulated playback time, including the
// running interval while playing.
func (s *Session) ContentTimeSpent() time.Duration {
	return s.contentTimeSpent(s.clock())
}

func (s *Session) contentTimeSpent(now time.Time) time.Duration {
	spent := s.storedPlayback
	if !s.playStart.IsZero() {
		spent += now.Sub(s.playStart)
	}
	return spent
}

// AdTimeSpent returns the accumulated time of finished ads.
func (s *Session) AdTimeSpent() time.Duration { return s.adTime }

// ContentComplete reports whether the content has been marked complete.
func (s *Session) ContentComplete() bool { return s.contentComplete }

// setClockForTesting replaces the session clock.
func (s *Session) setClockForTesting(clock clockFunc) {
	s.clock = clock
}

func firstOptions(opts []Options) *Options {
	if len(opts) == 0 {
		return nil
	}
	return &opts[0]
}
