// Package poller implements the poll orchestrator: one PollOnce call
// discovers claimable blobs across the configured prefixes, then streams
// and marks each one through a bounded worker pool.
//
// Discovery is sequential and streaming (one listing page in flight at a
// time); processing is parallel, bounded by a semaphore — the same
// channel-semaphore worker-pool shape as the teacher's
// pkg/payload/transfer/manager.go uploadSem.
package poller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/blobtailer/blobtailer/internal/logger"
	"github.com/blobtailer/blobtailer/internal/telemetry"
	"github.com/blobtailer/blobtailer/pkg/objectstore"
	"github.com/blobtailer/blobtailer/pkg/stream"
	"github.com/blobtailer/blobtailer/pkg/tracker"
)

const defaultPageSize = 5000

// Config configures one Orchestrator.
type Config struct {
	Container   string
	Prefixes    []string // empty means the whole container
	BatchSize   int
	Concurrency int
	PageSize    int32 // defaults to 5000 when zero

	// Processor and Strategy are carried only for span/log correlation —
	// the orchestrator itself is tracker-strategy-agnostic.
	Processor string
	Strategy  string
}

// Summary is the result of one poll cycle.
type Summary struct {
	BlobsProcessed int
	BlobsFailed    int
	BlobsSkipped   int
	EventsProduced int
	Duration       time.Duration
}

// Orchestrator executes poll cycles against one object-store container
// using one tracker and one line streamer.
type Orchestrator struct {
	store    objectstore.Client
	track    tracker.Tracker
	streamer *stream.Streamer
	sink     stream.Sink
	cfg      Config

	stopped      atomic.Bool
	everFinished atomic.Bool
}

// New constructs an Orchestrator. sink is invoked once per emitted line
// and must be safe for concurrent use by multiple worker goroutines.
func New(store objectstore.Client, track tracker.Tracker, streamer *stream.Streamer, sink stream.Sink, cfg Config) *Orchestrator {
	if cfg.PageSize == 0 {
		cfg.PageSize = defaultPageSize
	}
	if len(cfg.Prefixes) == 0 {
		cfg.Prefixes = []string{""}
	}
	return &Orchestrator{store: store, track: track, streamer: streamer, sink: sink, cfg: cfg}
}

// Stop requests that the current and all future cycles stop claiming new
// work and drain in-flight processing. Safe to call concurrently and more
// than once.
func (o *Orchestrator) Stop() {
	o.stopped.Store(true)
}

// Healthy reports whether at least one cycle has completed and Stop has
// not been called.
func (o *Orchestrator) Healthy() bool {
	return o.everFinished.Load() && !o.stopped.Load()
}

// PollOnce runs one full discovery+processing cycle and returns its
// summary. Safe to call repeatedly from an external loop. Each call gets
// its own cycle ID, used to correlate every span and log line emitted
// while the cycle runs.
func (o *Orchestrator) PollOnce(ctx context.Context) (Summary, error) {
	cycleID := uuid.NewString()
	ctx, span := telemetry.StartPollSpan(ctx, cycleID, o.cfg.Processor, o.cfg.Strategy,
		telemetry.Container(o.cfg.Container))
	defer span.End()

	start := time.Now()
	summary := Summary{}

	claimed, skipped, err := o.discover(ctx)
	summary.BlobsSkipped += skipped
	if err != nil {
		summary.Duration = time.Since(start)
		telemetry.RecordError(ctx, err)
		return summary, err
	}

	processed, failed, events := o.process(ctx, claimed)
	summary.BlobsProcessed = processed
	summary.BlobsFailed = failed
	summary.EventsProduced = events
	summary.Duration = time.Since(start)

	span.SetAttributes(telemetry.EventCount(events))
	o.everFinished.Store(true)
	return summary, nil
}

type claim struct {
	name         string
	container    string
	lastModified time.Time
}

// discover runs Phase 1: sequential, streaming listing + filter + claim,
// stopping once batch_size claims are accumulated, cancellation is
// observed, or every prefix's listing is exhausted.
func (o *Orchestrator) discover(ctx context.Context) ([]claim, int, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanPollDiscover,
		trace.WithAttributes(telemetry.Container(o.cfg.Container), telemetry.Strategy(o.cfg.Strategy)))
	defer span.End()

	var claimed []claim
	skipped := 0

	for _, prefix := range o.cfg.Prefixes {
		marker := ""
		for {
			if o.stopped.Load() || len(claimed) >= o.cfg.BatchSize {
				return claimed, skipped, nil
			}
			if err := ctx.Err(); err != nil {
				return claimed, skipped, err
			}

			page, err := o.store.ListPage(ctx, objectstore.ListOptions{
				Container:   o.cfg.Container,
				Prefix:      prefix,
				PageSize:    o.cfg.PageSize,
				IncludeTags: true,
				Marker:      marker,
			})
			if err != nil {
				return claimed, skipped, err
			}

			candidates, err := o.track.FilterCandidates(ctx, toTrackerBlobInfo(page.Blobs))
			if err != nil {
				return claimed, skipped, err
			}

			for _, c := range candidates {
				if o.stopped.Load() || len(claimed) >= o.cfg.BatchSize {
					return claimed, skipped, nil
				}
				ok, err := o.track.Claim(ctx, c.Name)
				if err != nil {
					logger.Warn("poller: claim error", "blob", c.Name, "error", err)
					skipped++
					continue
				}
				if !ok {
					skipped++
					continue
				}
				claimed = append(claimed, claim{name: c.Name, container: o.cfg.Container, lastModified: c.LastModified})
			}

			if !page.HasNextMarker {
				break
			}
			marker = page.NextMarker
		}
	}

	return claimed, skipped, nil
}

func toTrackerBlobInfo(blobs []objectstore.BlobInfo) []tracker.BlobInfo {
	out := make([]tracker.BlobInfo, len(blobs))
	for i, b := range blobs {
		out[i] = tracker.BlobInfo{
			Name:         b.Name,
			Container:    b.Container,
			Size:         b.Size,
			LastModified: b.LastModified,
			Tags:         b.Tags,
		}
	}
	return out
}

// process runs Phase 2: one task per claimed blob, submitted to a
// semaphore-bounded pool of cfg.Concurrency workers.
func (o *Orchestrator) process(ctx context.Context, claimed []claim) (processed, failed, events int) {
	sem := make(chan struct{}, o.cfg.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, c := range claimed {
		c := c
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			ok, n := o.processOne(ctx, c)
			mu.Lock()
			defer mu.Unlock()
			events += n
			if ok {
				processed++
			} else {
				failed++
			}
		}()
	}

	wg.Wait()
	return processed, failed, events
}

// processOne streams one claimed blob and terminally marks it. release is
// deferred unconditionally: a terminal mark (tags.MarkCompleted/MarkFailed)
// only records the outcome, it does not itself stop the lease's renewal
// goroutine or drop it from the active-lease map, so every path — success
// included — must still call Release.
func (o *Orchestrator) processOne(ctx context.Context, c claim) (ok bool, events int) {
	ctx, span := telemetry.StartBlobSpan(ctx, telemetry.SpanPollProcess, c.container, c.name, telemetry.Strategy(o.cfg.Strategy))
	defer span.End()

	defer func() {
		if err := o.track.Release(ctx, c.name); err != nil {
			logger.Warn("poller: release error", "blob", c.name, "error", err)
		}
	}()

	// A panic anywhere below is turned into a failed mark; the deferred
	// Release above still runs afterwards.
	defer func() {
		if r := recover(); r != nil {
			o.markFailed(ctx, c.name, fmt.Sprintf("panic: %v", r))
			ok = false
		}
	}()

	reader, err := o.store.OpenReader(ctx, c.container, c.name)
	if err != nil {
		telemetry.RecordError(ctx, err)
		o.markFailed(ctx, c.name, "open: "+err.Error())
		return false, 0
	}
	defer reader.Close()

	meta := stream.Metadata{
		BlobName:     c.name,
		Container:    c.container,
		LastModified: c.lastModified,
	}

	cancelled := func() bool { return o.stopped.Load() }
	result, err := o.streamer.Stream(ctx, reader, meta, o.sink, cancelled)
	if err != nil {
		telemetry.RecordError(ctx, err)
		o.markFailed(ctx, c.name, "stream: "+err.Error())
		return false, result.EventCount
	}

	if !result.Completed {
		o.markFailed(ctx, c.name, "interrupted")
		return false, result.EventCount
	}

	if o.track.WasLeaseRenewalCompromised(c.name) {
		o.markFailed(ctx, c.name, "lease renewal failed during processing")
		return false, result.EventCount
	}

	if err := o.track.MarkCompleted(ctx, c.name); err != nil {
		telemetry.RecordError(ctx, err)
		logger.Warn("poller: mark completed error", "blob", c.name, "error", err)
		return false, result.EventCount
	}

	span.SetAttributes(telemetry.EventCount(result.EventCount))
	return true, result.EventCount
}

func (o *Orchestrator) markFailed(ctx context.Context, name, reason string) {
	logger.Warn("poller: blob processing failed", "blob", name, "status", "failed", "reason", reason)
	if err := o.track.MarkFailed(ctx, name, reason); err != nil {
		logger.Warn("poller: mark failed error", "blob", name, "error", err)
	}
}
