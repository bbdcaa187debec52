// Package recorder persists activity records into a badger-backed tiered
// store. Every stored record gets an importance score and a TTL; low-value
// records age out while high-value ones stay the full retention window.
// The recorder exclusively owns the identity caches that deduplicate
// entities across events.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/filetrail/filetrail/pkg/activity"
	"github.com/filetrail/filetrail/pkg/config"
	"github.com/filetrail/filetrail/pkg/metrics"
)

// Source identity attached to every stored document.
const (
	SourceName    = "filetrail-local-activity"
	SourceVersion = "1.0.0"
)

// ActivityTag marks every document from this recorder family.
const ActivityTag = "local-filesystem-activity"

const recordPrefix = "act:"

// SourceInfo identifies the recorder that produced a document.
type SourceInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Document is the self-contained unit written to the durable store: source
// identity, timestamps, the serialized record, and semantic tags. The
// physical encoding here is JSON in badger; consumers only rely on the
// logical content.
type Document struct {
	Source     SourceInfo      `json:"source"`
	RecordedAt time.Time       `json:"recorded_at"`
	Record     activity.Record `json:"record"`
	EntityRef  string          `json:"entity_ref"`
	Importance float64         `json:"importance_score"`
	ExpiresAt  time.Time       `json:"expires_at"`
	Tags       []string        `json:"tags"`
}

// Stats holds counts over the live store.
type Stats struct {
	Total      int            `json:"total"`
	ByType     map[string]int `json:"by_type"`
	ByVolume   map[string]int `json:"by_volume"`
	ByItemType map[string]int `json:"by_item_type"`
}

// Recorder is the tiered retention store. Safe for concurrent use; the
// identity caches are never touched by anything else.
type Recorder struct {
	db  *badger.DB
	cfg config.RecorderConfig
	id  string

	mu           sync.Mutex
	refEntities  map[string]string // volume-qualified FRN -> entity reference
	pathEntities map[string]string // volume-qualified path -> entity reference

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open creates or reopens the store. providerID identifies this collector
// instance in every document's source block.
func Open(cfg config.RecorderConfig, providerID string) (*Recorder, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = 96 * time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 10 * time.Minute
	}

	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("recorder.Open: %s: %w", cfg.Path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Recorder{
		db:           db,
		cfg:          cfg,
		id:           providerID,
		refEntities:  make(map[string]string),
		pathEntities: make(map[string]string),
		ctx:          ctx,
		cancel:       cancel,
	}
	r.wg.Add(1)
	go r.sweepLoop()
	return r, nil
}

// Close stops the sweep loop and closes the store. Idempotent.
func (r *Recorder) Close() error {
	r.cancel()
	r.wg.Wait()
	return r.db.Close()
}

// TTL returns the configured retention window.
func (r *Recorder) TTL() time.Duration { return r.cfg.TTL }

// Store persists one record: identity-cache lookup, importance scoring,
// expiry stamping, document write. Returns the record id.
func (r *Recorder) Store(rec activity.Record) (string, error) {
	if err := rec.Validate(); err != nil {
		metrics.StoreErrors.Inc()
		return "", fmt.Errorf("recorder.Store: %w", err)
	}

	doc := Document{
		Source:     SourceInfo{ID: r.id, Name: SourceName, Version: SourceVersion},
		RecordedAt: time.Now().UTC(),
		Record:     rec,
		EntityRef:  r.entityFor(rec),
		Importance: Importance(rec),
		ExpiresAt:  time.Now().UTC().Add(r.cfg.TTL),
		Tags:       []string{ActivityTag, "activity:" + string(rec.Type)},
	}

	data, err := json.Marshal(doc)
	if err != nil {
		metrics.StoreErrors.Inc()
		return "", fmt.Errorf("recorder.Store: marshal: %w", err)
	}

	key := []byte(recordPrefix + rec.ActivityID)
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, data).WithTTL(r.cfg.TTL))
	})
	if err != nil {
		metrics.StoreErrors.Inc()
		return "", fmt.Errorf("recorder.Store: write %s: %w", rec.ActivityID, err)
	}

	metrics.RecordsStored.Inc()
	metrics.ImportanceScore.Observe(doc.Importance)
	return rec.ActivityID, nil
}

// StoreMany applies Store to each record. Failures are isolated: errs[i]
// reports record i's outcome and never aborts the rest of the batch.
func (r *Recorder) StoreMany(recs []activity.Record) (ids []string, errs []error) {
	ids = make([]string, len(recs))
	errs = make([]error, len(recs))
	for i, rec := range recs {
		id, err := r.Store(rec)
		if err != nil {
			errs[i] = err
			continue
		}
		ids[i] = id
	}
	return ids, errs
}

// entityFor resolves the stable entity reference for a record. First
// sighting of a (volume, FRN) or (volume, path) pair creates the entity;
// later events referencing either key reuse it, so a renamed file stays one
// entity. Keys are volume-qualified, never shared across volumes.
func (r *Recorder) entityFor(rec activity.Record) string {
	refKey := ""
	if rec.FileReferenceNumber != 0 {
		refKey = fmt.Sprintf("%s|%d", rec.VolumeName, rec.FileReferenceNumber)
	}
	pathKey := ""
	if rec.FilePath != "" {
		pathKey = rec.VolumeName + "|" + rec.FilePath
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if refKey != "" {
		if e, ok := r.refEntities[refKey]; ok {
			if pathKey != "" {
				r.pathEntities[pathKey] = e
			}
			return e
		}
	}
	if pathKey != "" {
		if e, ok := r.pathEntities[pathKey]; ok {
			if refKey != "" {
				r.refEntities[refKey] = e
			}
			return e
		}
	}

	e := uuid.NewString()
	if refKey != "" {
		r.refEntities[refKey] = e
	}
	if pathKey != "" {
		r.pathEntities[pathKey] = e
	}
	return e
}

// Entity returns the cached entity reference for a volume-qualified file
// reference number, if one exists.
func (r *Recorder) Entity(volume string, fileRef uint64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.refEntities[fmt.Sprintf("%s|%d", volume, fileRef)]
	return e, ok
}

// GetDocument fetches a stored document by activity id.
func (r *Recorder) GetDocument(activityID string) (Document, error) {
	var doc Document
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(recordPrefix + activityID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	})
	if err != nil {
		return Document{}, fmt.Errorf("recorder.GetDocument: %s: %w", activityID, err)
	}
	return doc, nil
}

// scan iterates every live document, invoking fn; fn returning false stops
// the scan early.
func (r *Recorder) scan(fn func(Document) bool) error {
	return r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var stop bool
			err := it.Item().Value(func(val []byte) error {
				var doc Document
				if err := json.Unmarshal(val, &doc); err != nil {
					return nil // skip corrupt entries
				}
				if !fn(doc) {
					stop = true
				}
				return nil
			})
			if err != nil {
				continue
			}
			if stop {
				return nil
			}
		}
		return nil
	})
}

// QueryByType returns live documents with the given activity type.
func (r *Recorder) QueryByType(typ activity.Type) ([]Document, error) {
	var out []Document
	err := r.scan(func(d Document) bool {
		if d.Record.Type == typ {
			out = append(out, d)
		}
		return true
	})
	return out, err
}

// QueryByTimeRange returns live documents whose record timestamp falls in
// [from, to).
func (r *Recorder) QueryByTimeRange(from, to time.Time) ([]Document, error) {
	var out []Document
	err := r.scan(func(d Document) bool {
		ts := d.Record.Timestamp
		if !ts.Before(from) && ts.Before(to) {
			out = append(out, d)
		}
		return true
	})
	return out, err
}

// QueryByVolume returns live documents captured on the given volume.
func (r *Recorder) QueryByVolume(volume string) ([]Document, error) {
	var out []Document
	err := r.scan(func(d Document) bool {
		if d.Record.VolumeName == volume {
			out = append(out, d)
		}
		return true
	})
	return out, err
}

// QueryByReferenceNumber returns live documents for one file reference
// number on one volume.
func (r *Recorder) QueryByReferenceNumber(volume string, fileRef uint64) ([]Document, error) {
	var out []Document
	err := r.scan(func(d Document) bool {
		if d.Record.VolumeName == volume && d.Record.FileReferenceNumber == fileRef {
			out = append(out, d)
		}
		return true
	})
	return out, err
}

// All returns every live document; used by export tooling.
func (r *Recorder) All() ([]Document, error) {
	var out []Document
	err := r.scan(func(d Document) bool {
		out = append(out, d)
		return true
	})
	return out, err
}

// Statistics counts live documents by type, volume, and item type.
func (r *Recorder) Statistics() (Stats, error) {
	s := Stats{
		ByType:     make(map[string]int),
		ByVolume:   make(map[string]int),
		ByItemType: make(map[string]int),
	}
	err := r.scan(func(d Document) bool {
		s.Total++
		s.ByType[string(d.Record.Type)]++
		s.ByVolume[d.Record.VolumeName]++
		s.ByItemType[string(d.Record.ItemType)]++
		return true
	})
	return s, err
}

func (r *Recorder) sweepLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.runSweep()
		}
	}
}

// runSweep reconciles the live-record gauge and nudges badger's value-log
// GC. Expired records are dropped by badger's own TTL handling; the sweep
// only observes.
func (r *Recorder) runSweep() {
	live := 0
	if err := r.scan(func(Document) bool { live++; return true }); err != nil {
		slog.Error("retention sweep failed", "error", err)
		return
	}
	metrics.RetentionLive.Set(float64(live))

	if !r.cfg.InMemory {
		// ErrNoRewrite just means nothing to reclaim.
		_ = r.db.RunValueLogGC(0.5)
	}
	slog.Debug("retention sweep completed", "live", live)
}
