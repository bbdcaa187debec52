package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/filetrail/filetrail/pkg/activity"
	"github.com/filetrail/filetrail/pkg/config"
)

func fallbackConfig(volumes ...string) *config.Config {
	cfg := &config.Config{
		ProviderID: "collector-test",
		Volumes:    volumes,
	}
	cfg.ApplyDefaults()
	cfg.Capture.PollInterval = 10 * time.Millisecond
	cfg.Capture.ForceFallback = true
	cfg.Pipeline.StopGrace = 2 * time.Second
	return cfg
}

// memRecorder captures forwarded records for assertions.
type memRecorder struct {
	mu     sync.Mutex
	stored []activity.Record
	err    error
}

func (m *memRecorder) Store(rec activity.Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.stored = append(m.stored, rec)
	return rec.ActivityID, nil
}

func (m *memRecorder) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stored)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestEndToEndFallbackForced(t *testing.T) {
	p := New(fallbackConfig("C:"), nil, nil)

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return p.Count() >= 1 })

	recs := p.GetActivities()
	for _, rec := range recs {
		if rec.VolumeName != "C:" {
			t.Errorf("volume = %q, want C:", rec.VolumeName)
		}
		if !rec.Type.Valid() {
			t.Errorf("invalid activity type %q", rec.Type)
		}
		if err := rec.Validate(); err != nil {
			t.Errorf("captured record invalid: %v", err)
		}
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	countAfterStop := p.Count()
	time.Sleep(100 * time.Millisecond)
	if got := p.Count(); got != countAfterStop {
		t.Errorf("records kept appearing after Stop: %d -> %d", countAfterStop, got)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	p := New(fallbackConfig("C:"), nil, nil)

	if err := p.Start(); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !p.Active() {
		t.Error("pipeline not active after Start")
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if p.Active() {
		t.Error("pipeline still active after Stop")
	}
}

func TestDuplicateStartKeepsCollection(t *testing.T) {
	p := New(fallbackConfig("C:"), nil, nil)

	p.Start()
	waitFor(t, time.Second, func() bool { return p.Count() >= 1 })

	before := p.Count()
	p.Start() // no-op while active
	if p.Count() < before {
		t.Error("duplicate Start reset the collection")
	}
	p.Stop()
}

func TestRecorderReceivesRecords(t *testing.T) {
	rec := &memRecorder{}
	p := New(fallbackConfig("C:"), nil, rec)

	p.Start()
	waitFor(t, 2*time.Second, func() bool { return rec.Len() >= 3 })
	p.Stop()

	if rec.Len() < 3 {
		t.Fatalf("recorder got %d records", rec.Len())
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, r := range rec.stored {
		if r.VolumeName != "C:" {
			t.Errorf("stored volume = %q", r.VolumeName)
		}
	}
}

func TestStorageErrorsDoNotStopConsumer(t *testing.T) {
	rec := &memRecorder{err: errors.New("disk full")}
	p := New(fallbackConfig("C:"), nil, rec)

	p.Start()
	waitFor(t, 2*time.Second, func() bool { return p.Count() >= 3 })
	p.Stop()

	// Every record reached the in-memory collection despite store failures.
	if p.Count() < 3 {
		t.Errorf("in-memory count = %d", p.Count())
	}
}

func TestInvalidVolumeIsFatalForThatVolumeOnly(t *testing.T) {
	p := New(fallbackConfig("not a volume!!", "C:"), nil, nil)

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return p.Count() >= 1 })
	p.Stop()

	for _, rec := range p.GetActivities() {
		if rec.VolumeName != "C:" {
			t.Errorf("unexpected volume %q", rec.VolumeName)
		}
	}
}

func TestCollectorQuerySurface(t *testing.T) {
	p := New(fallbackConfig("C:"), nil, nil)
	p.Start()
	waitFor(t, 2*time.Second, func() bool { return p.Count() >= 5 })
	p.Stop()

	all := p.GetActivities()
	if len(all) < 5 {
		t.Fatalf("captured %d records", len(all))
	}

	byID, ok := p.GetActivityByID(all[0].ActivityID)
	if !ok || byID.ActivityID != all[0].ActivityID {
		t.Error("GetActivityByID miss")
	}
	if _, ok := p.GetActivityByID("nope"); ok {
		t.Error("GetActivityByID hit on unknown id")
	}

	from := all[0].Timestamp
	to := all[len(all)-1].Timestamp.Add(time.Nanosecond)
	inRange := p.GetActivitiesByTimeRange(from, to)
	if len(inRange) == 0 {
		t.Error("GetActivitiesByTimeRange returned nothing")
	}

	counted := 0
	for _, typ := range []activity.Type{
		activity.TypeCreate, activity.TypeModify, activity.TypeDelete,
		activity.TypeAttributeChange,
	} {
		counted += len(p.GetActivitiesByType(typ))
	}
	if counted != len(all) {
		t.Errorf("by-type partition covers %d of %d records", counted, len(all))
	}

	p.ClearActivities()
	if p.Count() != 0 {
		t.Error("ClearActivities left records behind")
	}
}

func TestMutatingReturnedSliceDoesNotAffectCollection(t *testing.T) {
	p := New(fallbackConfig("C:"), nil, nil)
	p.Start()
	waitFor(t, 2*time.Second, func() bool { return p.Count() >= 1 })
	p.Stop()

	out := p.GetActivities()
	out[0].FileName = "mutated"
	if p.GetActivities()[0].FileName == "mutated" {
		t.Error("returned slice aliases the internal collection")
	}
}

func TestInotifyCapture(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("native journal path on windows")
	}

	root := t.TempDir()
	cfg := &config.Config{
		ProviderID: "collector-test",
		Volumes:    []string{root},
	}
	cfg.ApplyDefaults()
	cfg.Capture.PollInterval = 20 * time.Millisecond
	cfg.Capture.UseInotify = true
	cfg.Pipeline.StopGrace = 2 * time.Second

	p := New(cfg, nil, nil)
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	// Give the watcher a beat to attach before generating events.
	time.Sleep(100 * time.Millisecond)
	target := filepath.Join(root, "report.docx")
	if err := os.WriteFile(target, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 3*time.Second, func() bool {
		for _, rec := range p.GetActivities() {
			if rec.FileName == "report.docx" && rec.Type == activity.TypeCreate {
				return true
			}
		}
		return false
	})
}
