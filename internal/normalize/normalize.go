// Package normalize wraps source-specific payloads into uniform raw
// events. It does no semantic validation of the payload; that belongs
// to the per-source rule scripts downstream.
package normalize

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/billfeed/internal/domain"
)

// Normalizer converts ingress submissions into RawEvents.
type Normalizer struct{}

// New creates a Normalizer.
func New() *Normalizer {
	return &Normalizer{}
}

// Normalize builds a RawEvent from an ingress submission. A malformed
// source type is an InvalidSource error and the event must be dropped;
// the pipeline itself keeps running.
func (n *Normalizer) Normalize(sourceApp, sourceType, payload string, receivedAt time.Time) (domain.RawEvent, error) {
	st, err := domain.ParseSourceType(sourceType)
	if err != nil {
		return domain.RawEvent{}, fmt.Errorf("normalize: %w", err)
	}

	if sourceApp == "" {
		return domain.RawEvent{}, fmt.Errorf("normalize: %w: empty source app", domain.ErrInvalidSource)
	}

	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	return domain.RawEvent{
		EventID:    uuid.NewString(),
		SourceApp:  sourceApp,
		SourceType: st,
		Payload:    payload,
		ReceivedAt: receivedAt,
	}, nil
}
