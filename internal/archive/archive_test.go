package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dvloznov/billfeed/internal/domain"
)

func TestObjectName(t *testing.T) {
	event := domain.RawEvent{
		EventID:    "ev-123",
		SourceType: domain.SourceSMS,
		ReceivedAt: time.Date(2025, 6, 1, 23, 59, 0, 0, time.FixedZone("CST", 8*3600)),
	}

	// The day component is normalized to UTC.
	assert.Equal(t, "events/sms/2025-06-01/ev-123.json", objectName(event))
}
