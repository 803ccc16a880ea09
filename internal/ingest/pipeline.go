// Package ingest wires the capture-to-bill pipeline: normalization,
// rule/AI classification, name resolution, deduplication and lifecycle
// settlement, with best-effort payload archival on the side.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/billfeed/internal/archive"
	"github.com/dvloznov/billfeed/internal/classify"
	"github.com/dvloznov/billfeed/internal/dedup"
	"github.com/dvloznov/billfeed/internal/domain"
	"github.com/dvloznov/billfeed/internal/jobs"
	"github.com/dvloznov/billfeed/internal/lifecycle"
	"github.com/dvloznov/billfeed/internal/logger"
	"github.com/dvloznov/billfeed/internal/normalize"
	"github.com/dvloznov/billfeed/internal/resolve"
)

// Submission is one raw capture handed to the pipeline.
type Submission struct {
	SourceApp  string    `json:"source_app"`
	SourceType string    `json:"source_type"`
	Payload    string    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
	FromReplay bool      `json:"from_replay,omitempty"`
}

// Pipeline runs submissions end to end. All stages are synchronous
// except archival and decision dispatch, which never block the caller.
type Pipeline struct {
	normalizer *normalize.Normalizer
	chain      *classify.Chain
	resolver   *resolve.Resolver
	engine     *dedup.Engine
	control    *lifecycle.Controller
	archiver   archive.Archiver
}

// New assembles a pipeline. A nil archiver disables archival.
func New(chain *classify.Chain, resolver *resolve.Resolver, engine *dedup.Engine, control *lifecycle.Controller, archiver archive.Archiver) *Pipeline {
	if archiver == nil {
		archiver = archive.Noop{}
	}
	return &Pipeline{
		normalizer: normalize.New(),
		chain:      chain,
		resolver:   resolver,
		engine:     engine,
		control:    control,
		archiver:   archiver,
	}
}

// NormalizeSubmission converts a submission into a raw event without
// running the pipeline, for async enqueueing.
func NormalizeSubmission(sub Submission) (domain.RawEvent, error) {
	return normalize.New().Normalize(sub.SourceApp, sub.SourceType, sub.Payload, sub.ReceivedAt)
}

// Submit pushes one capture through the pipeline and returns the
// persisted record with its dedup verdict. A nil record with a nil
// error never happens; unclassifiable events return ErrNoMatch.
func (p *Pipeline) Submit(ctx context.Context, sub Submission) (*domain.BillRecord, domain.DedupResult, error) {
	event, err := p.normalizer.Normalize(sub.SourceApp, sub.SourceType, sub.Payload, sub.ReceivedAt)
	if err != nil {
		return nil, domain.DedupResult{}, err
	}
	return p.Process(ctx, event, sub.FromReplay)
}

// Process runs an already normalized event. Replay submissions keep
// their original event id so the dedup engine can recognize them.
func (p *Pipeline) Process(ctx context.Context, event domain.RawEvent, fromReplay bool) (*domain.BillRecord, domain.DedupResult, error) {
	log := logger.Component(ctx, "ingest")

	if !fromReplay {
		p.archiveAsync(ctx, event)
	}

	cand, matchedBy, err := p.chain.Classify(ctx, event, fromReplay)
	if err != nil {
		if errors.Is(err, domain.ErrNoMatch) {
			log.Info().
				Str("event_id", event.EventID).
				Str("source_app", event.SourceApp).
				Msg("event did not classify")
		}
		return nil, domain.DedupResult{}, err
	}

	cand = p.resolver.Resolve(ctx, cand)

	rec, res, err := p.engine.Process(ctx, cand, event.EventID)
	if err != nil {
		return nil, domain.DedupResult{}, err
	}

	rec, err = p.control.Settle(ctx, rec, res, matchedBy)
	if err != nil {
		return nil, domain.DedupResult{}, err
	}

	log.Info().
		Str("event_id", event.EventID).
		Int64("bill_id", rec.ID).
		Str("status", string(res.Status)).
		Str("matched_by", string(matchedBy)).
		Str("state", string(rec.State)).
		Msg("event ingested")

	return &rec, res, nil
}

// archiveAsync stores the raw payload without blocking ingestion. The
// archive is an audit trail; losing an entry costs a replay, not a bill.
func (p *Pipeline) archiveAsync(ctx context.Context, event domain.RawEvent) {
	log := logger.FromContext(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := p.archiver.Archive(ctx, event); err != nil {
			log.Warn().Err(err).Str("event_id", event.EventID).Msg("payload archival failed")
		}
	}()
}

// HandleJob adapts the pipeline to the queue consumer contract.
// Classification misses are terminal, not retryable.
func (p *Pipeline) HandleJob(ctx context.Context, job jobs.Job) error {
	ingestJob, ok := job.(*jobs.IngestEventJob)
	if !ok {
		return fmt.Errorf("unexpected job type %s", job.GetType())
	}

	rec, _, err := p.Process(ctx, ingestJob.Event, ingestJob.FromReplay)
	if err != nil {
		if errors.Is(err, domain.ErrNoMatch) || errors.Is(err, domain.ErrInvalidSource) {
			return nil
		}
		return err
	}

	ingestJob.BillID = rec.ID
	return nil
}
