package media

// Event names emitted by a Session.
const (
	EventSessionStart           = "Media Session Start"
	EventSessionEnd             = "Media Session End"
	EventContentEnd             = "Media Content End"
	EventPlay                   = "Play"
	EventPause                  = "Pause"
	EventSeekStart              = "Seek Start"
	EventSeekEnd                = "Seek End"
	EventBufferStart            = "Buffer Start"
	EventBufferEnd              = "Buffer End"
	EventUpdatePlayheadPosition = "Update Playhead Position"
	EventAdClick                = "Ad Click"
	EventAdBreakStart           = "Ad Break Start"
	EventAdBreakEnd             = "Ad Break End"
	EventAdStart                = "Ad Start"
	EventAdEnd                  = "Ad End"
	EventAdSkip                 = "Ad Skip"
	EventSegmentStart           = "Segment Start"
	EventSegmentEnd             = "Segment End"
	EventSegmentSkip            = "Segment Skip"
	EventUpdateQoS              = "Update QoS"
	EventError                  = "Media Error"
)

// Summary event names. Summaries are always sent to the Host as custom events.
const (
	SummarySession = "Media Session Summary"
	SummarySegment = "Media Segment Summary"
	SummaryAd      = "Media Ad Summary"
)

// Attribute keys used when flattening an Event.
const (
	KeyMediaSessionID   = "media_session_id"
	KeyPlayheadPosition = "playhead_position"
	KeyTitle            = "content_title"
	KeyContentID        = "content_id"
	KeyDuration         = "content_duration"
	KeyStreamType       = "stream_type"
	KeyContentType      = "content_type"

	KeySeekPosition   = "seek_position"
	KeyBufferDuration = "buffer_duration"
	KeyBufferPercent  = "buffer_percent"
	KeyBufferPosition = "buffer_position"

	KeyQoSBitRate       = "qos_bitrate"
	KeyQoSFPS           = "qos_fps"
	KeyQoSStartupTime   = "qos_startup_time"
	KeyQoSDroppedFrames = "qos_dropped_frames"

	KeyAdTitle      = "ad_content_title"
	KeyAdDuration   = "ad_content_duration"
	KeyAdID         = "ad_content_id"
	KeyAdAdvertiser = "ad_content_advertiser"
	KeyAdCampaign   = "ad_content_campaign"
	KeyAdCreative   = "ad_content_creative"
	KeyAdPlacement  = "ad_content_placement"
	KeyAdPosition   = "ad_content_position"
	KeyAdSiteID     = "ad_content_site_id"

	KeyAdBreakTitle    = "ad_break_title"
	KeyAdBreakDuration = "ad_break_duration"
	KeyAdBreakID       = "ad_break_id"

	KeySegmentTitle    = "segment_title"
	KeySegmentIndex    = "segment_index"
	KeySegmentDuration = "segment_duration"

	KeyErrorMessage    = "media_error_message"
	KeyErrorAttributes = "media_error_attributes"
)

// Session summary attribute keys.
const (
	KeySessionStartTime = "media_session_start_time"
	KeySessionEndTime   = "media_session_end_time"
	KeyMediaTimeSpent   = "media_time_spent"
	KeyContentTimeSpent = "media_content_time_spent"
	KeyContentComplete  = "media_content_complete"
	KeySegmentTotal     = "media_session_segment_total"
	KeyTotalAdTimeSpent = "media_total_ad_time_spent"
	KeyAdTimeSpentRate  = "media_ad_time_spent_rate"
	KeyAdTotal          = "media_session_ad_total"
	KeyAdObjects        = "media_session_ad_objects"
	KeyAdStartTime      = "ad_content_start_time"
	KeyAdEndTime        = "ad_content_end_time"
	KeyAdSkipped        = "ad_skipped"
	KeyAdCompleted      = "ad_completed"
	KeySegmentStartTime = "segment_start_time"
	KeySegmentEndTime   = "segment_end_time"
	KeySegmentTimeSpent = "media_segment_time_spent"
	KeySegmentSkipped   = "segment_skipped"
	KeySegmentCompleted = "segment_completed"
)

// AttributeKeys lists every key an Event can produce when flattened.
var AttributeKeys = []string{
	KeyMediaSessionID, KeyPlayheadPosition, KeyTitle, KeyContentID, KeyDuration,
	KeyStreamType, KeyContentType,
	KeySeekPosition, KeyBufferDuration, KeyBufferPercent, KeyBufferPosition,
	KeyQoSBitRate, KeyQoSFPS, KeyQoSStartupTime, KeyQoSDroppedFrames,
	KeyAdTitle, KeyAdDuration, KeyAdID, KeyAdAdvertiser, KeyAdCampaign,
	KeyAdCreative, KeyAdPlacement, KeyAdPosition, KeyAdSiteID,
	KeyAdBreakTitle, KeyAdBreakDuration, KeyAdBreakID,
	KeySegmentTitle, KeySegmentIndex, KeySegmentDuration,
	KeyErrorMessage, KeyErrorAttributes,
}
