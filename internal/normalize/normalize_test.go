package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/billfeed/internal/domain"
)

func TestNormalize(t *testing.T) {
	n := New()
	captured := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name       string
		sourceApp  string
		sourceType string
		wantType   domain.SourceType
		wantErr    bool
	}{
		{
			name:       "sms event",
			sourceApp:  "com.android.mms",
			sourceType: "sms",
			wantType:   domain.SourceSMS,
		},
		{
			name:       "notification event",
			sourceApp:  "com.tencent.mm",
			sourceType: "notification",
			wantType:   domain.SourceNotification,
		},
		{
			name:       "case and whitespace tolerated",
			sourceApp:  "com.tencent.mm",
			sourceType: " Notification ",
			wantType:   domain.SourceNotification,
		},
		{
			name:       "unknown source type",
			sourceApp:  "com.tencent.mm",
			sourceType: "carrier-pigeon",
			wantErr:    true,
		},
		{
			name:       "empty source app",
			sourceApp:  "",
			sourceType: "sms",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := n.Normalize(tt.sourceApp, tt.sourceType, "payload", captured)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidSource) {
					t.Fatalf("expected ErrInvalidSource, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			if ev.SourceType != tt.wantType {
				t.Errorf("source type = %q, want %q", ev.SourceType, tt.wantType)
			}
			if ev.EventID == "" {
				t.Error("expected a generated event id")
			}
			if !ev.ReceivedAt.Equal(captured) {
				t.Errorf("receivedAt = %v, want %v", ev.ReceivedAt, captured)
			}
		})
	}
}

func TestNormalize_ZeroTimestampDefaultsToNow(t *testing.T) {
	n := New()
	before := time.Now()

	ev, err := n.Normalize("com.android.mms", "sms", "payload", time.Time{})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if ev.ReceivedAt.Before(before) {
		t.Errorf("expected receivedAt to default to now, got %v", ev.ReceivedAt)
	}
}
