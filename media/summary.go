package media

import (
	"encoding/json"
	"strconv"
	"time"
)

// logAdSummary emits the summary of the in-flight ad and clears it.
func (s *Session) logAdSummary() {
	t := s.ad
	if t == nil {
		return
	}
	s.ad = nil

	attrs := map[string]string{
		KeyMediaSessionID: s.sessionID,
		KeyAdID:           t.ad.ID,
		KeyAdStartTime:    formatMillis(t.startedAt),
		KeyAdEndTime:      formatMillis(t.endedAt),
		KeyAdTitle:        t.ad.Title,
		KeyAdSkipped:      strconv.FormatBool(t.skipped),
		KeyAdCompleted:    strconv.FormatBool(t.completed),
	}
	s.emitSummary(SummaryAd, attrs)
}

// logSegmentSummary emits the summary of the in-flight segment and clears it.
func (s *Session) logSegmentSummary() {
	t := s.segment
	if t == nil {
		return
	}
	s.segment = nil

	attrs := map[string]string{
		KeyMediaSessionID:   s.sessionID,
		KeyContentID:        s.contentID,
		KeySegmentTitle:     t.segment.Title,
		KeySegmentStartTime: formatMillis(t.startedAt),
		KeySegmentEndTime:   formatMillis(t.endedAt),
		KeySegmentTimeSpent: formatSeconds(t.endedAt.Sub(t.startedAt)),
		KeySegmentSkipped:   strconv.FormatBool(t.skipped),
		KeySegmentCompleted: strconv.FormatBool(t.completed),
	}
	if t.segment.Index != nil {
		attrs[KeySegmentIndex] = strconv.Itoa(*t.segment.Index)
	}
	s.emitSummary(SummarySegment, attrs)
}

// logSessionSummary emits the session summary. It fires at most once per
// Session.
func (s *Session) logSessionSummary() {
	if s.summarySent {
		return
	}
	s.summarySent = true

	contentTime := s.contentTimeSpent(s.sessionEnd)
	adRate := 0.0
	if contentTime > 0 {
		adRate = s.adTime.Seconds() / contentTime.Seconds() * 100
	}

	adIDs := s.adIDs
	if adIDs == nil {
		adIDs = []string{}
	}
	encodedIDs, err := json.Marshal(adIDs)
	if err != nil {
		s.logger.Warn("failed to encode ad ids", "error", err)
		encodedIDs = []byte("[]")
	}

	attrs := map[string]string{
		KeyMediaSessionID:   s.sessionID,
		KeySessionStartTime: formatMillis(s.sessionStart),
		KeySessionEndTime:   formatMillis(s.sessionEnd),
		KeyContentID:        s.contentID,
		KeyTitle:            s.title,
		KeyMediaTimeSpent:   formatSeconds(s.sessionEnd.Sub(s.sessionStart)),
		KeyContentTimeSpent: formatSeconds(contentTime),
		KeyContentComplete:  strconv.FormatBool(s.contentComplete),
		KeySegmentTotal:     strconv.Itoa(s.segmentTotal),
		KeyTotalAdTimeSpent: formatSeconds(s.adTime),
		KeyAdTimeSpentRate:  strconv.FormatFloat(adRate, 'f', -1, 64),
		KeyAdTotal:          strconv.Itoa(s.adTotal),
		KeyAdObjects:        string(encodedIDs),
	}
	s.emitSummary(SummarySession, attrs)
}

func (s *Session) emitSummary(name string, attrs map[string]string) {
	s.metrics.add(s.metrics.summaries, name)
	s.logCustomEvent(s.BuildCustomEvent(name, attrs))
}

// formatMillis renders t as unix milliseconds, or "0" when t is unset.
func formatMillis(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
