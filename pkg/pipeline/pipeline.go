// Package pipeline wires per-volume capture workers, the bounded event
// queue, and the single ordered consumer that feeds the in-memory activity
// collection and the attached recorder.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/filetrail/filetrail/pkg/activity"
	"github.com/filetrail/filetrail/pkg/classify"
	"github.com/filetrail/filetrail/pkg/config"
	"github.com/filetrail/filetrail/pkg/journal"
	"github.com/filetrail/filetrail/pkg/metrics"
	"github.com/filetrail/filetrail/pkg/resolver"
)

// Recorder receives every consumed record when attached. The pipeline
// passes records by value; the recorder copies what it needs and never
// mutates the collection.
type Recorder interface {
	Store(rec activity.Record) (string, error)
}

// pollSource is the common surface of a journal session and the inotify
// adapter.
type pollSource interface {
	Poll() ([]journal.RawRecord, error)
	Close() error
}

// Session lifecycle states.
const (
	stateIdle int32 = iota
	stateStarting
	stateActive
	stateStopping
)

// consecutive poll failures before a volume degrades to fallback mode.
const maxPollFailures = 5

// Pipeline owns the full capture topology for one collector instance.
// Construct with New, then Start/Stop; both are idempotent.
type Pipeline struct {
	cfg *config.Config
	res *resolver.Resolver
	rec Recorder // optional

	queue *Queue
	state atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.RWMutex
	activities []activity.Record
}

// New creates a Pipeline. rec may be nil when no durable store is
// attached; captured activity then lives only in the in-memory collection.
func New(cfg *config.Config, res *resolver.Resolver, rec Recorder) *Pipeline {
	if res == nil {
		res = resolver.New(nil)
	}
	return &Pipeline{
		cfg:   cfg,
		res:   res,
		rec:   rec,
		queue: NewQueue(cfg.Pipeline.QueueSize, cfg.Pipeline.Overflow),
	}
}

// Start spawns the consumer and one capture worker per configured volume.
// Calling Start while already active is a no-op. A volume whose
// configuration is malformed is skipped — fatal for that volume only —
// and a volume whose journal cannot be opened degrades to fallback
// generation rather than failing the pipeline.
func (p *Pipeline) Start() error {
	if !p.state.CompareAndSwap(stateIdle, stateStarting) {
		return nil
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.wg.Add(1)
	go p.consume()

	for _, vol := range p.cfg.Volumes {
		norm, err := journal.NormalizeVolume(vol)
		if err != nil {
			slog.Error("invalid volume configuration, skipping volume", "volume", vol, "error", err)
			continue
		}

		volName := norm
		if p.cfg.Capture.StablePaths() {
			volName = p.res.StableVolumePath(norm)
		}

		src, degraded := p.openSource(norm, volName)
		p.wg.Add(1)
		if degraded {
			go p.runFallback(volName)
		} else {
			go p.runVolume(src, volName)
		}
	}

	p.state.Store(stateActive)
	slog.Info("pipeline started", "volumes", len(p.cfg.Volumes),
		"queue_size", p.queue.Cap(), "overflow", p.cfg.Pipeline.Overflow)
	return nil
}

// openSource picks the capture source for one volume: the real journal
// when available, the inotify adapter on journal-less hosts with a
// directory volume, otherwise synthetic fallback. The error kind returned
// by Open drives the choice explicitly.
func (p *Pipeline) openSource(norm, volName string) (pollSource, bool) {
	if p.cfg.Capture.ForceFallback {
		slog.Info("volume forced to fallback generation", "volume", volName)
		return nil, true
	}

	src, err := journal.Open(norm)
	if err == nil {
		slog.Info("volume journal opened", "volume", volName,
			"journal_id", src.JournalID, "next_usn", src.NextUSN)
		return src, false
	}

	switch {
	case errors.Is(err, journal.ErrUnsupported):
		if p.cfg.Capture.UseInotify && strings.HasPrefix(norm, "/") {
			is, ierr := journal.OpenInotify(volName, norm)
			if ierr == nil {
				slog.Info("volume using native notification adapter", "volume", volName, "root", norm)
				return is, false
			}
			slog.Warn("notification adapter failed, falling back", "volume", volName, "error", ierr)
		}
		slog.Warn("change journal unsupported on this host, volume degraded to fallback", "volume", volName)
	case errors.Is(err, journal.ErrVolumeOpen),
		errors.Is(err, journal.ErrQuery),
		errors.Is(err, journal.ErrCreate):
		slog.Warn("volume degraded to fallback", "volume", volName, "error", err)
	default:
		slog.Warn("volume open failed, degraded to fallback", "volume", volName, "error", err)
	}
	return nil, true
}

// runVolume polls one capture source, classifies its records, and feeds
// the queue in journal-cursor order. Transient read errors back off and
// retry; after too many consecutive failures the volume degrades to
// fallback generation without disturbing other volumes.
func (p *Pipeline) runVolume(src pollSource, volName string) {
	defer p.wg.Done()
	defer src.Close()

	cls := classify.New(classify.Config{
		IncludeCloseEvents: p.cfg.Capture.IncludeCloseEvents,
		ExcludedPrefixes:   p.cfg.Capture.ExcludedPrefixes,
		ExcludedExtensions: p.cfg.Capture.ExcludedExtensions,
	})

	interval := p.cfg.Capture.PollInterval
	failures := 0

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-time.After(interval + backoff(interval, failures)):
		}

		raws, err := src.Poll()
		if err != nil {
			if errors.Is(err, journal.ErrClosed) {
				return
			}
			failures++
			metrics.JournalReadErrors.WithLabelValues(volName).Inc()
			slog.Warn("journal read error", "volume", volName, "failures", failures, "error", err)
			if failures >= maxPollFailures {
				slog.Warn("too many journal read failures, volume degraded to fallback", "volume", volName)
				src.Close()
				p.wg.Add(1)
				go p.runFallback(volName)
				return
			}
			continue
		}
		failures = 0

		for _, raw := range raws {
			metrics.RecordsCaptured.WithLabelValues(volName).Inc()
			p.processRaw(cls, raw, volName)
		}
	}
}

// processRaw classifies, filters, resolves, and enqueues one raw record.
// Per-record problems drop that record only; the worker keeps going.
func (p *Pipeline) processRaw(cls *classify.Classifier, raw journal.RawRecord, volName string) {
	rec, keep := cls.Process(raw, volName, p.cfg.ProviderID)
	if !keep {
		metrics.RecordsFiltered.WithLabelValues(volName).Inc()
		slog.Debug("record filtered", "volume", volName, "file", raw.FileName,
			"reason", journal.FormatReason(raw.Reason))
		return
	}

	switch rec.Type {
	case activity.TypeRename:
		// The old resolution is stale once the rename lands.
		p.res.Invalidate(volName, raw.FileReferenceNumber)
		rec.FilePath = p.res.ResolvePath(volName, raw.FileReferenceNumber,
			raw.ParentReferenceNumber, raw.FileName)
		if rec.PreviousFileName != "" {
			rec.PreviousFilePath = resolver.Join(volName, rec.PreviousFileName)
		}
	case activity.TypeDelete:
		rec.FilePath = p.res.ResolvePath(volName, raw.FileReferenceNumber,
			raw.ParentReferenceNumber, raw.FileName)
		p.res.Invalidate(volName, raw.FileReferenceNumber)
	default:
		rec.FilePath = p.res.ResolvePath(volName, raw.FileReferenceNumber,
			raw.ParentReferenceNumber, raw.FileName)
	}

	if err := rec.Validate(); err != nil {
		metrics.RecordErrors.WithLabelValues(volName).Inc()
		slog.Error("record failed validation, dropped", "volume", volName,
			"file", raw.FileName, "reason", journal.FormatReason(raw.Reason), "error", err)
		return
	}

	p.queue.Enqueue(p.ctx, rec)
}

// runFallback generates synthetic activity for a degraded volume at the
// configured poll interval.
func (p *Pipeline) runFallback(volName string) {
	defer p.wg.Done()

	metrics.VolumesDegraded.Inc()
	defer metrics.VolumesDegraded.Dec()

	gen := journal.NewGenerator(volName, p.cfg.ProviderID)
	ticker := time.NewTicker(p.cfg.Capture.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			rec := gen.Next()
			metrics.FallbackRecords.WithLabelValues(volName).Inc()
			p.queue.Enqueue(p.ctx, rec)
		}
	}
}

// consume is the single ordered consumer: it appends each record to the
// in-memory collection (append is the only mutation) and forwards it to
// the recorder when one is attached. On stop it drains whatever is already
// queued, bounded by the drain interval, so Stop leaves no record half-way.
func (p *Pipeline) consume() {
	defer p.wg.Done()

	for {
		select {
		case rec := <-p.queue.C():
			p.deliver(rec)
		case <-p.ctx.Done():
			deadline := time.After(p.cfg.Pipeline.DrainInterval)
			for {
				select {
				case rec := <-p.queue.C():
					p.deliver(rec)
				case <-deadline:
					return
				default:
					return
				}
			}
		}
	}
}

func (p *Pipeline) deliver(rec activity.Record) {
	p.mu.Lock()
	p.activities = append(p.activities, rec)
	p.mu.Unlock()

	metrics.EventsConsumed.Inc()
	metrics.QueueDepth.Set(float64(p.queue.Depth()))

	if p.rec != nil {
		if _, err := p.rec.Store(rec); err != nil {
			slog.Error("recorder store failed", "activity_id", rec.ActivityID,
				"volume", rec.VolumeName, "error", err)
		}
	}
}

// Stop raises the cooperative stop signal and waits for workers to exit,
// bounded by the configured grace period. Unresponsive workers are not
// force-killed; Stop returns after the grace elapses and logs the
// stragglers. Idempotent.
func (p *Pipeline) Stop() error {
	if !p.state.CompareAndSwap(stateActive, stateStopping) {
		return nil
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	grace := p.cfg.Pipeline.StopGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	select {
	case <-done:
	case <-time.After(grace):
		slog.Warn("workers did not exit within grace period", "grace", grace)
	}

	p.state.Store(stateIdle)
	slog.Info("pipeline stopped", "captured", p.Count())
	return nil
}

// Active reports whether the pipeline is running.
func (p *Pipeline) Active() bool { return p.state.Load() == stateActive }

// Count returns the number of records in the in-memory collection.
func (p *Pipeline) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.activities)
}

// GetActivities returns a copy of the in-memory activity collection.
func (p *Pipeline) GetActivities() []activity.Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]activity.Record, len(p.activities))
	copy(out, p.activities)
	return out
}

// GetActivitiesByType returns captured records with the given type.
func (p *Pipeline) GetActivitiesByType(typ activity.Type) []activity.Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []activity.Record
	for _, rec := range p.activities {
		if rec.Type == typ {
			out = append(out, rec)
		}
	}
	return out
}

// GetActivitiesByTimeRange returns captured records with timestamps in
// [from, to).
func (p *Pipeline) GetActivitiesByTimeRange(from, to time.Time) []activity.Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []activity.Record
	for _, rec := range p.activities {
		if !rec.Timestamp.Before(from) && rec.Timestamp.Before(to) {
			out = append(out, rec)
		}
	}
	return out
}

// GetActivityByID returns one captured record by activity id.
func (p *Pipeline) GetActivityByID(id string) (activity.Record, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, rec := range p.activities {
		if rec.ActivityID == id {
			return rec, true
		}
	}
	return activity.Record{}, false
}

// ClearActivities empties the in-memory collection. The durable store is
// unaffected.
func (p *Pipeline) ClearActivities() {
	p.mu.Lock()
	p.activities = nil
	p.mu.Unlock()
}

// backoff grows linearly with consecutive failures, capped at ten
// intervals.
func backoff(interval time.Duration, failures int) time.Duration {
	if failures == 0 {
		return 0
	}
	if failures > 10 {
		failures = 10
	}
	return interval * time.Duration(failures)
}
