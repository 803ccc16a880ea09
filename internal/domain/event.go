package domain

import (
	"fmt"
	"strings"
	"time"
)

// SourceType identifies the kind of raw signal a bill was extracted from.
type SourceType string

const (
	// SourceNotification is a push notification captured from another app.
	SourceNotification SourceType = "notification"
	// SourceSMS is a text message, typically from a bank short number.
	SourceSMS SourceType = "sms"
	// SourceOCR is text recognized from a captured screen region.
	SourceOCR SourceType = "ocr"
	// SourceAppHook is a structured payload delivered by an in-app hook.
	SourceAppHook SourceType = "apphook"
	// SourceData is raw data handed over directly (imports, replays).
	SourceData SourceType = "data"
)

// ParseSourceType converts a wire string into a SourceType.
// Unknown values are an InvalidSource error; the event must be dropped.
func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(strings.ToLower(strings.TrimSpace(s))) {
	case SourceNotification:
		return SourceNotification, nil
	case SourceSMS:
		return SourceSMS, nil
	case SourceOCR:
		return SourceOCR, nil
	case SourceAppHook:
		return SourceAppHook, nil
	case SourceData:
		return SourceData, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSource, s)
}

// RawEvent is a uniform wrapper around a source-specific payload.
// It is immutable once created and consumed exactly once by the
// classifier chain. The payload is opaque at this stage; semantic
// validation belongs to the per-source rule scripts.
type RawEvent struct {
	EventID    string     `json:"event_id"`
	SourceApp  string     `json:"source_app"`
	SourceType SourceType `json:"source_type"`
	Payload    string     `json:"payload"`
	ReceivedAt time.Time  `json:"received_at"`
}
