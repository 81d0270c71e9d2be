package main

import (
	"context"
	"time"

	"github.com/SebastienMelki/causality-media/media"
)

// script drives a Session through a fixed viewing: a pre-roll ad, two
// chapters with a seek and a rebuffer, a skipped mid-roll, a player error and
// playback to the end.
type script struct {
	duration int64
	step     time.Duration
}

func newScript(durationMS int64, step time.Duration) *script {
	if durationMS <= 0 {
		durationMS = 600_000
	}
	return &script{duration: durationMS, step: step}
}

// run plays the script. It stops early with ctx.Err() when ctx is done,
// ending the session first so its summary is still emitted.
func (sc *script) run(ctx context.Context, s *media.Session) error {
	half := sc.duration / 2

	steps := []func(){
		func() { s.LogMediaSessionStart() },
		func() {
			s.LogQoS(media.QoS{StartupTime: media.Int64(820), BitRate: media.Int(4_500_000), FPS: media.Int(30)})
		},

		// Pre-roll
		func() {
			s.LogAdBreakStart(media.AdBreak{ID: "preroll", Title: "Pre-roll", Duration: media.Int64(15_000)})
		},
		func() {
			s.LogAdStart(media.Ad{
				ID:         "ad-101",
				Title:      "Spring Sale",
				Advertiser: "Acme",
				Campaign:   "spring",
				Duration:   media.Int64(15_000),
				Placement:  "preroll",
				Position:   media.Int(1),
			})
		},
		func() { s.LogAdClick() },
		func() { s.LogAdEnd() },
		func() { s.LogAdBreakEnd() },

		// First chapter
		func() { s.LogSegmentStart(media.Segment{Title: "Chapter 1", Index: media.Int(1), Duration: media.Int64(half)}) },
		func() { s.LogPlay(media.Options{PlayheadPosition: media.Int64(0)}) },
		func() { s.LogPlayheadPosition(half / 4) },
		func() { s.LogSeekStart(half / 4) },
		func() { s.LogSeekEnd(half / 2) },
		func() { s.LogBufferStart(1_200, 35, half/2) },
		func() { s.LogBufferEnd(1_200, 100, half/2) },
		func() { s.LogQoS(media.QoS{DroppedFrames: media.Int(3)}) },
		func() { s.LogPlayheadPosition(half) },
		func() { s.LogSegmentEnd() },

		// Mid-roll, skipped
		func() { s.LogPause() },
		func() { s.LogAdBreakStart(media.AdBreak{ID: "midroll", Title: "Mid-roll"}) },
		func() { s.LogAdStart(media.Ad{ID: "ad-202", Title: "Streaming Plus", Advertiser: "Globex", Position: media.Int(1)}) },
		func() { s.LogAdSkip() },
		func() { s.LogAdBreakEnd() },

		// Second chapter
		func() { s.LogSegmentStart(media.Segment{Title: "Chapter 2", Index: media.Int(2), Duration: media.Int64(sc.duration - half)}) },
		func() { s.LogPlay() },
		func() {
			s.LogError("decoder stall", map[string]any{"code": 3, "recoverable": true})
		},
		func() { s.LogPlayheadPosition(sc.duration * 95 / 100) },
		func() { s.LogPlayheadPosition(sc.duration) },
		func() { s.LogSegmentEnd() },
		func() { s.LogMediaContentEnd() },
		func() { s.LogPause() },
	}

	for _, step := range steps {
		if err := sc.wait(ctx); err != nil {
			s.LogMediaSessionEnd()
			return err
		}
		step()
	}

	s.LogMediaSessionEnd()
	return nil
}

// wait sleeps one step, or returns early when ctx is done.
func (sc *script) wait(ctx context.Context) error {
	if sc.step <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(sc.step)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
