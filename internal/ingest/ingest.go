// Package ingest accepts sensor batches and processes them off the
// request path: feature extraction, scoring, persistence, cache
// invalidation and alerting all happen on worker goroutines fed by
// bounded per-partition queues.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/goodroad-data/roadscan/internal/config"
	"github.com/goodroad-data/roadscan/internal/monitoring"
	"github.com/goodroad-data/roadscan/internal/score"
	"github.com/goodroad-data/roadscan/internal/signal"
	"github.com/goodroad-data/roadscan/internal/store"
)

var (
	// ErrOverloaded is returned when the batch's queue partition is
	// full. Callers are expected to retry with backoff.
	ErrOverloaded = errors.New("ingest: queue full, retry later")
	// ErrStopped is returned for submissions after Stop.
	ErrStopped = errors.New("ingest: pipeline stopped")

	ErrMissingSession   = errors.New("ingest: batch has no session id")
	ErrEmptyBatch       = errors.New("ingest: batch has no samples")
	ErrBatchTooLarge    = errors.New("ingest: batch exceeds maximum size")
	ErrUnorderedSamples = errors.New("ingest: sample timestamps not monotonic")
)

// RecordStore is the slice of the store the pipeline writes to.
type RecordStore interface {
	InsertRecord(ctx context.Context, rec *store.ConditionRecord) error
}

// Invalidator drops cache entries covering a written record's location.
// Satisfied by the query cache; a nil Invalidator is allowed.
type Invalidator interface {
	InvalidatePoint(lat, lon float64) int
}

// Notifier receives an alert for every poor or severe record.
type Notifier interface {
	Notify(ctx context.Context, w store.Warning) error
}

// NopNotifier discards alerts. Used when no alerting sink is configured.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, store.Warning) error { return nil }

// Stats are cumulative pipeline counters.
type Stats struct {
	Submitted         uint64 `json:"submitted"`
	Processed         uint64 `json:"processed"`
	Dropped           uint64 `json:"dropped"`
	Overloads         uint64 `json:"overloads"`
	PersistenceErrors uint64 `json:"persistence_errors"`
}

// Pipeline routes batches to worker partitions. Batches from the same
// session always land on the same partition, so one session's batches
// process in submission order while sessions interleave freely.
type Pipeline struct {
	extractor       *signal.Extractor
	scorer          *score.Scorer
	records         RecordStore
	cache           Invalidator
	notifier        Notifier
	maxBatch        int
	confidenceFloor float64

	queues []chan signal.Batch
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	submitted         atomic.Uint64
	processed         atomic.Uint64
	dropped           atomic.Uint64
	overloads         atomic.Uint64
	persistenceErrors atomic.Uint64

	// onBatchDone, when set before Start, is called after each batch
	// finishes processing regardless of outcome. Test instrumentation.
	onBatchDone func()
}

// New builds a pipeline from its injected dependencies. cache and
// notifier may be nil.
func New(cfg *config.TuningConfig, scorer *score.Scorer, records RecordStore, cache Invalidator, notifier Notifier) *Pipeline {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	workers := cfg.GetWorkerCount()
	queues := make([]chan signal.Batch, workers)
	for i := range queues {
		queues[i] = make(chan signal.Batch, cfg.GetQueueCapacity())
	}
	return &Pipeline{
		extractor: &signal.Extractor{
			MinWindow:  cfg.GetMinWindowSamples(),
			SpikeSigma: cfg.GetSpikeSigma(),
		},
		scorer:          scorer,
		records:         records,
		cache:           cache,
		notifier:        notifier,
		maxBatch:        cfg.GetMaxBatchSize(),
		confidenceFloor: cfg.GetConfidenceFloor(),
		queues:          queues,
	}
}

// SetBatchDoneHook installs a callback invoked after every processed or
// dropped batch. Must be called before Start.
func (p *Pipeline) SetBatchDoneHook(fn func()) { p.onBatchDone = fn }

// Start launches one worker per queue partition.
func (p *Pipeline) Start() {
	for i := range p.queues {
		p.wg.Add(1)
		go func(queue chan signal.Batch) {
			defer p.wg.Done()
			for batch := range queue {
				p.process(batch)
				if p.onBatchDone != nil {
					p.onBatchDone()
				}
			}
		}(p.queues[i])
	}
}

// Stop closes the queues and waits for in-flight work to drain.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	for _, q := range p.queues {
		close(q)
	}
	p.wg.Wait()
}

// Submit validates the batch's shape and enqueues it. It returns before
// any extraction or scoring happens; ErrOverloaded means the session's
// partition is full and nothing was enqueued.
func (p *Pipeline) Submit(batch signal.Batch) error {
	if batch.SessionID == "" {
		return ErrMissingSession
	}
	if len(batch.Samples) == 0 {
		return ErrEmptyBatch
	}
	if len(batch.Samples) > p.maxBatch {
		return fmt.Errorf("%w: %d samples (max %d)", ErrBatchTooLarge, len(batch.Samples), p.maxBatch)
	}
	for i := 1; i < len(batch.Samples); i++ {
		if batch.Samples[i].TimestampMs < batch.Samples[i-1].TimestampMs {
			return fmt.Errorf("%w: sample %d precedes sample %d", ErrUnorderedSamples, i, i-1)
		}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}

	queue := p.queues[p.partition(batch.SessionID)]
	select {
	case queue <- batch:
		p.submitted.Add(1)
		return nil
	default:
		p.overloads.Add(1)
		return ErrOverloaded
	}
}

// partition maps a session id to a stable queue index.
func (p *Pipeline) partition(sessionID string) int {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(len(p.queues)))
}

// process runs one batch to completion. Failures drop the batch and are
// logged; they never take the worker down or affect other batches.
func (p *Pipeline) process(batch signal.Batch) {
	ctx := context.Background()

	fs, err := p.extractor.Extract(batch)
	if err != nil {
		monitoring.Logf("ingest: dropping batch from %s: %v", batch.SessionID, err)
		p.dropped.Add(1)
		return
	}

	value, category, err := p.scorer.Score(fs)
	if err != nil {
		monitoring.Logf("ingest: dropping batch from %s: %v", batch.SessionID, err)
		p.dropped.Add(1)
		return
	}

	confidence := score.Confidence(fs)
	if confidence < p.confidenceFloor {
		monitoring.Logf("ingest: dropping low-confidence batch from %s (%.2f < %.2f)",
			batch.SessionID, confidence, p.confidenceFloor)
		p.dropped.Add(1)
		return
	}

	lat, lon, ok := batch.LastPosition()
	if !ok {
		monitoring.Logf("ingest: dropping batch from %s: no georeferenced samples", batch.SessionID)
		p.dropped.Add(1)
		return
	}

	rec := &store.ConditionRecord{
		ID:         uuid.NewString(),
		SessionID:  batch.SessionID,
		Lat:        lat,
		Lon:        lon,
		Score:      value,
		Category:   category,
		Confidence: confidence,
		Features:   fs,
		RecordedAt: time.Now().UTC(),
	}

	if err := p.records.InsertRecord(ctx, rec); err != nil {
		monitoring.Logf("ingest: failed to persist record for %s: %v", batch.SessionID, err)
		p.persistenceErrors.Add(1)
		p.dropped.Add(1)
		return
	}

	if p.cache != nil {
		p.cache.InvalidatePoint(lat, lon)
	}

	if category == score.CategoryPoor || category == score.CategorySevere {
		severity := "medium"
		if category == score.CategorySevere {
			severity = "high"
		}
		warning := store.Warning{
			ID:        uuid.NewString(),
			Lat:       lat,
			Lon:       lon,
			Severity:  severity,
			Score:     value,
			CreatedAt: rec.RecordedAt,
		}
		if err := p.notifier.Notify(ctx, warning); err != nil {
			monitoring.Logf("ingest: alert delivery failed for %s: %v", rec.ID, err)
		}
	}

	p.processed.Add(1)
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Submitted:         p.submitted.Load(),
		Processed:         p.processed.Load(),
		Dropped:           p.dropped.Load(),
		Overloads:         p.overloads.Load(),
		PersistenceErrors: p.persistenceErrors.Load(),
	}
}

// StoreNotifier persists alerts as road_warnings rows.
type StoreNotifier struct {
	DB *store.DB
}

func (n *StoreNotifier) Notify(ctx context.Context, w store.Warning) error {
	return n.DB.InsertWarning(ctx, &w)
}
