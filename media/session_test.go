package media

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// testClock provides a controllable clock for deterministic tests.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// recordingHost captures forwarded events in order.
type recordingHost struct {
	media  []*Event
	custom []*CustomEvent
}

func (h *recordingHost) LogMediaEvent(e *Event) { h.media = append(h.media, e) }

func (h *recordingHost) LogCustomEvent(e *CustomEvent) { h.custom = append(h.custom, e) }

func (h *recordingHost) customNamed(name string) []*CustomEvent {
	var out []*CustomEvent
	for _, e := range h.custom {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func testConfig(host Host) Config {
	return Config{
		Title:       "Big Buck Bunny",
		ContentID:   "bbb-001",
		Duration:    Int64(120000),
		ContentType: ContentTypeVideo,
		StreamType:  StreamTypeOnDemand,
		Host:        host,
		Logger:      slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	}
}

func newTestSession(t *testing.T, cfg Config) (*Session, *testClock) {
	t.Helper()

	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	clock := newTestClock()
	s.setClockForTesting(clock.Now)
	return s, clock
}

func TestNewSession_MissingFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		missing string
	}{
		{"title", func(c *Config) { c.Title = "" }, "title"},
		{"content id", func(c *Config) { c.ContentID = "" }, "content_id"},
		{"content type", func(c *Config) { c.ContentType = "" }, "content_type"},
		{"stream type", func(c *Config) { c.StreamType = " " }, "stream_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(&recordingHost{})
			tt.mutate(&cfg)

			_, err := NewSession(cfg)
			if !errors.Is(err, ErrMissingField) {
				t.Fatalf("expected ErrMissingField, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.missing) {
				t.Errorf("error %q does not name %q", err, tt.missing)
			}
		})
	}
}

func TestNewSession_AllowMissing(t *testing.T) {
	var logs bytes.Buffer
	cfg := testConfig(&recordingHost{})
	cfg.Title = ""
	cfg.AllowMissing = true
	cfg.Logger = slog.New(slog.NewTextHandler(&logs, nil))

	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if s.Title() != "" {
		t.Errorf("Title() = %q, want empty", s.Title())
	}
	if !strings.Contains(logs.String(), "level=ERROR") {
		t.Errorf("expected an error level log, got %q", logs.String())
	}
}

func TestNewSession_DurationOptional(t *testing.T) {
	cfg := testConfig(&recordingHost{})
	cfg.Duration = nil

	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if s.Duration() != nil {
		t.Errorf("Duration() = %v, want nil", *s.Duration())
	}
}

func TestSession_DefaultForwarding(t *testing.T) {
	host := &recordingHost{}
	s, _ := newTestSession(t, testConfig(host))

	s.LogMediaSessionStart()
	s.LogPlay()
	s.LogPause()

	if len(host.media) != 3 {
		t.Fatalf("expected 3 media events, got %d", len(host.media))
	}
	if len(host.custom) != 0 {
		t.Errorf("expected no custom events by default, got %d", len(host.custom))
	}

	want := []string{EventSessionStart, EventPlay, EventPause}
	for i, name := range want {
		if host.media[i].Name != name {
			t.Errorf("event %d = %q, want %q", i, host.media[i].Name, name)
		}
	}
}

func TestSession_ForwardingFlags(t *testing.T) {
	tests := []struct {
		name       string
		media      bool
		custom     bool
		wantMedia  int
		wantCustom int
	}{
		{"media only", true, false, 2, 0},
		{"custom only", false, true, 0, 2},
		{"both", true, true, 2, 2},
		{"neither", false, false, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := &recordingHost{}
			cfg := testConfig(host)
			cfg.LogMediaEvents = &tt.media
			cfg.LogCustomEvents = tt.custom

			var heard int
			s, _ := newTestSession(t, cfg)
			s.SetListener(func(*Event) { heard++ })

			s.LogMediaSessionStart()
			s.LogPlay()

			if heard != 2 {
				t.Errorf("listener called %d times, want 2", heard)
			}
			if len(host.media) != tt.wantMedia {
				t.Errorf("media events = %d, want %d", len(host.media), tt.wantMedia)
			}
			if len(host.custom) != tt.wantCustom {
				t.Errorf("custom events = %d, want %d", len(host.custom), tt.wantCustom)
			}
			for _, e := range host.custom {
				if e.Type != CustomEventTypeMedia {
					t.Errorf("custom event type = %q, want %q", e.Type, CustomEventTypeMedia)
				}
			}
		})
	}
}

func TestSession_ListenerRunsBeforeHost(t *testing.T) {
	var order []string
	host := HostFunc{Media: func(*Event) { order = append(order, "host") }}
	s, _ := newTestSession(t, testConfig(host))
	s.SetListener(func(*Event) { order = append(order, "listener") })

	s.LogPlay()

	if strings.Join(order, ",") != "listener,host" {
		t.Errorf("order = %v", order)
	}
}

func TestSession_NoHost(t *testing.T) {
	var logs bytes.Buffer
	cfg := testConfig(nil)
	cfg.Logger = slog.New(slog.NewTextHandler(&logs, nil))

	var heard []*Event
	s, _ := newTestSession(t, cfg)
	s.SetListener(func(e *Event) { heard = append(heard, e) })

	s.LogMediaSessionStart()
	s.LogPlay()
	s.LogMediaSessionEnd()

	if len(heard) != 3 {
		t.Errorf("listener heard %d events, want 3", len(heard))
	}
	if !strings.Contains(logs.String(), ErrNoHost.Error()) {
		t.Errorf("expected a no-host warning, got %q", logs.String())
	}
}

func TestSession_PlayheadNeverTranslated(t *testing.T) {
	host := &recordingHost{}
	cfg := testConfig(host)
	cfg.LogCustomEvents = true
	s, _ := newTestSession(t, cfg)

	s.LogPlayheadPosition(5000)

	if len(host.media) != 1 || host.media[0].Name != EventUpdatePlayheadPosition {
		t.Fatalf("expected one playhead media event, got %d", len(host.media))
	}
	if len(host.custom) != 0 {
		t.Errorf("playhead update must not be sent as a custom event, got %v", host.custom[0].Name)
	}
}

func TestSession_PlayheadPersists(t *testing.T) {
	host := &recordingHost{}
	s, _ := newTestSession(t, testConfig(host))

	s.LogPlayheadPosition(1500)
	s.LogPlay()
	s.LogPause(Options{PlayheadPosition: Int64(3000)})
	s.LogSeekStart(9000)

	got := []int64{}
	for _, e := range host.media {
		got = append(got, *e.PlayheadPosition)
	}
	want := []int64{1500, 1500, 3000, 3000}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d playhead = %d, want %d", i, got[i], want[i])
		}
	}
	if p := s.PlayheadPosition(); p == nil || *p != 3000 {
		t.Errorf("PlayheadPosition() = %v, want 3000", p)
	}
}

func TestSession_ContentFieldsOnEveryEvent(t *testing.T) {
	host := &recordingHost{}
	s, _ := newTestSession(t, testConfig(host))

	s.LogMediaSessionStart()
	s.LogPlay()
	s.LogAdBreakStart(AdBreak{ID: "break-1"})
	s.LogAdStart(Ad{ID: "ad-1"})
	s.LogAdClick()
	s.LogAdEnd()
	s.LogAdBreakEnd()
	s.LogSegmentStart(Segment{Title: "Intro", Index: Int(1)})
	s.LogSegmentSkip()
	s.LogSeekStart(100)
	s.LogSeekEnd(200)
	s.LogBufferStart(10, 0.5, 200)
	s.LogBufferEnd(10, 1, 200)
	s.LogQoS(QoS{BitRate: Int(3000)})
	s.LogError("decoder failed", nil)
	s.LogPause()
	s.LogMediaContentEnd()
	s.LogMediaSessionEnd()

	if len(host.media) != 18 {
		t.Fatalf("expected 18 media events, got %d", len(host.media))
	}
	for _, e := range host.media {
		c := e.Content
		if c.Title != "Big Buck Bunny" || c.ContentID != "bbb-001" ||
			c.ContentType != ContentTypeVideo || c.StreamType != StreamTypeOnDemand ||
			c.Duration == nil || *c.Duration != 120000 {
			t.Errorf("%s: unexpected content %+v", e.Name, c)
		}
		if e.SessionID != s.SessionID() {
			t.Errorf("%s: session id = %q, want %q", e.Name, e.SessionID, s.SessionID())
		}
	}
}

func TestSession_QoSMerge(t *testing.T) {
	host := &recordingHost{}
	s, _ := newTestSession(t, testConfig(host))

	s.LogQoS(QoS{BitRate: Int(1000), FPS: Int(30)})
	s.LogQoS(QoS{BitRate: Int(2000), DroppedFrames: Int(4)})

	last := host.media[len(host.media)-1].QoS
	if last == nil {
		t.Fatal("expected QoS on the event")
	}
	if *last.BitRate != 2000 {
		t.Errorf("bit rate = %d, want 2000", *last.BitRate)
	}
	if last.FPS == nil || *last.FPS != 30 {
		t.Errorf("fps = %v, want 30 carried over", last.FPS)
	}
	if last.DroppedFrames == nil || *last.DroppedFrames != 4 {
		t.Errorf("dropped frames = %v, want 4", last.DroppedFrames)
	}
	if last.StartupTime != nil {
		t.Errorf("startup time = %d, want unset", *last.StartupTime)
	}

	first := host.media[0].QoS
	if *first.BitRate != 1000 || first.DroppedFrames != nil {
		t.Errorf("first snapshot changed after merge: %+v", first)
	}
}

func TestSession_PlaybackTime(t *testing.T) {
	s, clock := newTestSession(t, testConfig(&recordingHost{}))

	s.LogMediaSessionStart()
	s.LogPlay()
	clock.Advance(5 * time.Second)
	s.LogPause()

	if got := s.ContentTimeSpent(); got != 5*time.Second {
		t.Errorf("ContentTimeSpent() = %v, want 5s", got)
	}

	clock.Advance(10 * time.Second)
	if got := s.ContentTimeSpent(); got != 5*time.Second {
		t.Errorf("paused time counted: ContentTimeSpent() = %v", got)
	}

	s.LogPlay()
	clock.Advance(2 * time.Second)
	s.LogPlay()
	clock.Advance(time.Second)
	if got := s.ContentTimeSpent(); got != 8*time.Second {
		t.Errorf("ContentTimeSpent() while playing = %v, want 8s", got)
	}
}

func TestSession_AdSummary(t *testing.T) {
	tests := []struct {
		name          string
		finish        func(*Session)
		wantEvent     string
		wantSkipped   string
		wantCompleted string
	}{
		{"end", func(s *Session) { s.LogAdEnd() }, EventAdEnd, "false", "true"},
		{"skip", func(s *Session) { s.LogAdSkip() }, EventAdSkip, "true", "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := &recordingHost{}
			s, clock := newTestSession(t, testConfig(host))
			s.LogMediaSessionStart()

			start := clock.Now()
			s.LogAdStart(Ad{ID: "ad-1", Title: "Spot"})
			clock.Advance(15 * time.Second)
			tt.finish(s)
			tt.finish(s)

			summaries := host.customNamed(SummaryAd)
			if len(summaries) != 1 {
				t.Fatalf("expected exactly one ad summary, got %d", len(summaries))
			}
			attrs := summaries[0].Attributes
			checks := map[string]string{
				KeyMediaSessionID: s.SessionID(),
				KeyAdID:           "ad-1",
				KeyAdTitle:        "Spot",
				KeyAdStartTime:    formatMillis(start),
				KeyAdEndTime:      formatMillis(clock.Now()),
				KeyAdSkipped:      tt.wantSkipped,
				KeyAdCompleted:    tt.wantCompleted,
			}
			for k, want := range checks {
				if attrs[k] != want {
					t.Errorf("%s = %q, want %q", k, attrs[k], want)
				}
			}

			if host.media[2].Name != tt.wantEvent || host.media[2].Ad == nil || host.media[2].Ad.ID != "ad-1" {
				t.Errorf("unexpected finish event %+v", host.media[2])
			}
			if got := s.AdTimeSpent(); got != 15*time.Second {
				t.Errorf("AdTimeSpent() = %v, want 15s", got)
			}
		})
	}
}

func TestSession_SegmentSummary(t *testing.T) {
	host := &recordingHost{}
	s, clock := newTestSession(t, testConfig(host))
	s.LogMediaSessionStart()

	s.LogSegmentStart(Segment{Title: "Chapter 1", Index: Int(0), Duration: Int64(30000)})
	clock.Advance(30 * time.Second)
	s.LogSegmentEnd()
	s.LogSegmentSkip()

	summaries := host.customNamed(SummarySegment)
	if len(summaries) != 1 {
		t.Fatalf("expected exactly one segment summary, got %d", len(summaries))
	}
	attrs := summaries[0].Attributes
	checks := map[string]string{
		KeyContentID:        "bbb-001",
		KeySegmentTitle:     "Chapter 1",
		KeySegmentIndex:     "0",
		KeySegmentTimeSpent: "30",
		KeySegmentSkipped:   "false",
		KeySegmentCompleted: "true",
	}
	for k, want := range checks {
		if attrs[k] != want {
			t.Errorf("%s = %q, want %q", k, attrs[k], want)
		}
	}
}

func TestSession_SessionSummary(t *testing.T) {
	host := &recordingHost{}
	s, clock := newTestSession(t, testConfig(host))

	s.LogMediaSessionStart()
	s.LogPlay()
	s.LogAdStart(Ad{ID: "ad-1"})
	clock.Advance(10 * time.Second)
	s.LogAdEnd()
	s.LogSegmentStart(Segment{Title: "Main"})
	clock.Advance(30 * time.Second)
	s.LogPause()
	s.LogMediaContentEnd()
	s.LogMediaSessionEnd()
	s.LogMediaSessionEnd()

	summaries := host.customNamed(SummarySession)
	if len(summaries) != 1 {
		t.Fatalf("expected exactly one session summary, got %d", len(summaries))
	}
	attrs := summaries[0].Attributes
	checks := map[string]string{
		KeyMediaSessionID:   s.SessionID(),
		KeyTitle:            "Big Buck Bunny",
		KeyContentID:        "bbb-001",
		KeyMediaTimeSpent:   "40",
		KeyContentTimeSpent: "40",
		KeyContentComplete:  "true",
		KeySegmentTotal:     "1",
		KeyTotalAdTimeSpent: "10",
		KeyAdTimeSpentRate:  "25",
		KeyAdTotal:          "1",
		KeyAdObjects:        `["ad-1"]`,
	}
	for k, want := range checks {
		if attrs[k] != want {
			t.Errorf("%s = %q, want %q", k, attrs[k], want)
		}
	}

	// The in-flight segment is summarized before the session summary.
	segments := host.customNamed(SummarySegment)
	if len(segments) != 1 {
		t.Fatalf("expected in-flight segment summary, got %d", len(segments))
	}
	if segments[0].Attributes[KeySegmentSkipped] != "false" || segments[0].Attributes[KeySegmentCompleted] != "false" {
		t.Errorf("in-flight segment summary = %v", segments[0].Attributes)
	}
	last := host.custom[len(host.custom)-1]
	if last.Name != SummarySession {
		t.Errorf("last custom event = %q, want the session summary", last.Name)
	}
}

func TestSession_SummariesIgnoreFlags(t *testing.T) {
	host := &recordingHost{}
	cfg := testConfig(host)
	disabled := false
	cfg.LogMediaEvents = &disabled
	s, _ := newTestSession(t, cfg)

	s.LogMediaSessionStart()
	s.LogMediaSessionEnd()

	if len(host.media) != 0 {
		t.Errorf("media events = %d, want 0", len(host.media))
	}
	if len(host.customNamed(SummarySession)) != 1 {
		t.Errorf("session summary should be sent regardless of flags")
	}
}

func TestSession_InFlightAdReplaced(t *testing.T) {
	host := &recordingHost{}
	s, clock := newTestSession(t, testConfig(host))

	s.LogAdStart(Ad{ID: "ad-1"})
	clock.Advance(5 * time.Second)
	s.LogAdStart(Ad{ID: "ad-2"})
	clock.Advance(5 * time.Second)
	s.LogAdEnd()

	summaries := host.customNamed(SummaryAd)
	if len(summaries) != 2 {
		t.Fatalf("expected 2 ad summaries, got %d", len(summaries))
	}
	if summaries[0].Attributes[KeyAdID] != "ad-1" || summaries[0].Attributes[KeyAdCompleted] != "false" {
		t.Errorf("replaced ad summary = %v", summaries[0].Attributes)
	}
	if got := s.AdTimeSpent(); got != 10*time.Second {
		t.Errorf("AdTimeSpent() = %v, want 10s", got)
	}
}

func TestSession_ContentCompleteLimit(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		playhead int64
		want     bool
	}{
		{"default never completes by playhead", 0, 120000, false},
		{"below limit", 90, 100000, false},
		{"at limit", 90, 108000, true},
		{"out of range uses default", 150, 120000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(&recordingHost{})
			cfg.ContentCompleteLimit = tt.limit
			s, _ := newTestSession(t, cfg)

			s.LogPlayheadPosition(tt.playhead)

			if s.ContentComplete() != tt.want {
				t.Errorf("ContentComplete() = %v, want %v", s.ContentComplete(), tt.want)
			}
		})
	}
}

func TestSession_Options(t *testing.T) {
	host := &recordingHost{}
	cfg := testConfig(host)
	cfg.LogCustomEvents = true
	s, _ := newTestSession(t, cfg)

	s.LogPlay(Options{
		PlayheadPosition: Int64(42),
		CustomAttributes: map[string]string{"player": "exo", KeyTitle: "Override"},
	})

	e := host.media[0]
	if e.CustomAttributes["player"] != "exo" {
		t.Errorf("custom attribute missing: %v", e.CustomAttributes)
	}
	if e.Content.Title != "Big Buck Bunny" {
		t.Errorf("custom attributes must not change content, got %q", e.Content.Title)
	}

	attrs := host.custom[0].Attributes
	if attrs["player"] != "exo" || attrs[KeyTitle] != "Override" {
		t.Errorf("custom attributes should win when flattened: %v", attrs)
	}
	if attrs[KeyPlayheadPosition] != "42" {
		t.Errorf("playhead = %q, want 42", attrs[KeyPlayheadPosition])
	}
}

func TestSession_BuildCustomEvent(t *testing.T) {
	s, _ := newTestSession(t, testConfig(&recordingHost{}))
	s.LogMediaSessionStart()
	s.LogPlayheadPosition(700)

	e := s.BuildCustomEvent("Chapter Viewed", map[string]string{"chapter": "3"})

	if e.Name != "Chapter Viewed" || e.Type != CustomEventTypeMedia {
		t.Errorf("unexpected event %+v", e)
	}
	want := map[string]string{
		"chapter":           "3",
		KeyMediaSessionID:   s.SessionID(),
		KeyPlayheadPosition: "700",
		KeyTitle:            "Big Buck Bunny",
		KeyContentID:        "bbb-001",
		KeyDuration:         "120000",
		KeyContentType:      ContentTypeVideo,
		KeyStreamType:       StreamTypeOnDemand,
	}
	for k, v := range want {
		if e.Attributes[k] != v {
			t.Errorf("%s = %q, want %q", k, e.Attributes[k], v)
		}
	}
}

func TestSession_AttributesBeforeStart(t *testing.T) {
	s, _ := newTestSession(t, testConfig(&recordingHost{}))

	attrs := s.Attributes()
	if _, ok := attrs[KeyMediaSessionID]; ok {
		t.Errorf("session id should be absent before start: %v", attrs)
	}
	if _, ok := attrs[KeyPlayheadPosition]; ok {
		t.Errorf("playhead should be absent before it is known: %v", attrs)
	}
	if attrs[KeyTitle] != "Big Buck Bunny" {
		t.Errorf("title = %v", attrs[KeyTitle])
	}
}

func TestSession_EventPayloads(t *testing.T) {
	host := &recordingHost{}
	s, _ := newTestSession(t, testConfig(host))

	s.LogMediaSessionStart()
	s.LogSeekStart(1000)
	s.LogSeekEnd(5000)
	s.LogBufferStart(200, 12.5, 5000)
	s.LogBufferEnd(400, 100, 5000)
	s.LogAdBreakStart(AdBreak{ID: "break-1", Title: "Pre-roll", Duration: Int64(30000)})
	s.LogAdStart(Ad{ID: "ad-1", Advertiser: "Acme", Position: Int(1)})
	s.LogAdClick()
	s.LogAdSkip()
	s.LogAdBreakEnd()
	s.LogError("decoder failure", map[string]any{"code": 42})

	byName := make(map[string]*Event)
	for _, e := range host.media {
		byName[e.Name] = e
	}

	if e := byName[EventSeekEnd]; e == nil || e.SeekPosition == nil || *e.SeekPosition != 5000 {
		t.Errorf("seek end payload = %+v", e)
	}
	if e := byName[EventBufferStart]; e == nil || *e.BufferDuration != 200 || *e.BufferPercent != 12.5 || *e.BufferPosition != 5000 {
		t.Errorf("buffer start payload = %+v", e)
	}
	if e := byName[EventAdBreakStart]; e == nil || e.AdBreak == nil || e.AdBreak.ID != "break-1" {
		t.Errorf("ad break payload = %+v", e)
	}
	if e := byName[EventAdClick]; e == nil || e.Ad == nil || e.Ad.Advertiser != "Acme" {
		t.Errorf("ad click should carry the in-flight ad, got %+v", e)
	}
	if e := byName[EventAdSkip]; e == nil || e.Ad == nil || e.Ad.ID != "ad-1" {
		t.Errorf("ad skip payload = %+v", e)
	}
	if e := byName[EventAdBreakEnd]; e == nil || e.Ad != nil {
		t.Errorf("ad break end should carry no ad after the skip, got %+v", e)
	}

	e := byName[EventError]
	if e == nil || e.Error == nil || e.Error.Message != "decoder failure" {
		t.Fatalf("error payload = %+v", e)
	}
	custom := e.ToCustomEvent()
	if custom.Attributes[KeyErrorAttributes] != `{"code":42}` {
		t.Errorf("error attributes = %q", custom.Attributes[KeyErrorAttributes])
	}

	summaries := host.customNamed(SummaryAd)
	if len(summaries) != 1 || summaries[0].Attributes[KeyAdSkipped] != "true" || summaries[0].Attributes[KeyAdCompleted] != "false" {
		t.Errorf("ad summary = %+v", summaries)
	}
}

func TestSession_LogErrorCopiesAttributes(t *testing.T) {
	host := &recordingHost{}
	s, _ := newTestSession(t, testConfig(host))

	attrs := map[string]any{"code": 42}
	s.LogError("decoder failure", attrs)
	attrs["code"] = 7
	attrs["extra"] = true

	e := host.media[len(host.media)-1]
	if got := e.Error.Attributes["code"]; got != 42 {
		t.Errorf("error attribute code = %v, want 42", got)
	}
	if _, ok := e.Error.Attributes["extra"]; ok {
		t.Error("attributes added after the call leaked into the event")
	}
}
