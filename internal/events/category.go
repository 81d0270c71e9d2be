// Package events defines the envelope the sinks deliver and the shared
// categorization of media event names.
package events

import (
	"strings"

	"github.com/SebastienMelki/causality-media/media"
)

// Event category constants.
const (
	CategorySession  = "session"
	CategoryPlayback = "playback"
	CategoryAd       = "ad"
	CategorySegment  = "segment"
	CategoryQuality  = "quality"
	CategoryError    = "error"
	CategorySummary  = "summary"
	CategoryCustom   = "custom"
)

// Category returns the category of a media event name. Names that are not
// part of the media vocabulary are CategoryCustom.
func Category(name string) string {
	switch name {
	case media.EventSessionStart, media.EventSessionEnd, media.EventContentEnd:
		return CategorySession

	case media.EventPlay, media.EventPause,
		media.EventSeekStart, media.EventSeekEnd,
		media.EventBufferStart, media.EventBufferEnd,
		media.EventUpdatePlayheadPosition:
		return CategoryPlayback

	case media.EventAdBreakStart, media.EventAdBreakEnd,
		media.EventAdStart, media.EventAdEnd, media.EventAdSkip, media.EventAdClick:
		return CategoryAd

	case media.EventSegmentStart, media.EventSegmentEnd, media.EventSegmentSkip:
		return CategorySegment

	case media.EventUpdateQoS:
		return CategoryQuality

	case media.EventError:
		return CategoryError

	case media.SummarySession, media.SummaryAd, media.SummarySegment:
		return CategorySummary

	default:
		return CategoryCustom
	}
}

// SanitizeSubjectName makes name usable as a single NATS subject token.
func SanitizeSubjectName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.NewReplacer(" ", "_", ".", "_", "*", "_", ">", "_").Replace(name)
	if name == "" {
		return "unknown"
	}
	return name
}
