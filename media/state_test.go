package media

import "testing"

func TestSession_Lifecycle(t *testing.T) {
	host := &recordingHost{}
	s, _ := newTestSession(t, testConfig(host))

	steps := []struct {
		log  func()
		want State
	}{
		{func() {}, StateBuilt},
		{func() { s.LogMediaSessionStart() }, StateStarted},
		{func() { s.LogPlay() }, StatePlaying},
		{func() { s.LogPlay() }, StatePlaying},
		{func() { s.LogPause() }, StatePaused},
		{func() { s.LogPlay() }, StatePlaying},
		{func() { s.LogMediaSessionEnd() }, StateEnded},
	}

	for i, step := range steps {
		step.log()
		if got := s.State(); got != step.want {
			t.Errorf("step %d: State() = %q, want %q", i, got, step.want)
		}
	}
}

func TestSession_OutOfOrderStillEmits(t *testing.T) {
	host := &recordingHost{}
	s, _ := newTestSession(t, testConfig(host))

	s.LogPause()
	s.LogMediaSessionEnd()
	s.LogPlay()

	if len(host.media) != 3 {
		t.Fatalf("expected every call to emit, got %d events", len(host.media))
	}
	if s.State() != StateEnded {
		t.Errorf("State() = %q, want %q", s.State(), StateEnded)
	}
}
