package resolver

import (
	"errors"
	"strings"
	"testing"
)

// countingProvider records how often the OS mapping is consulted.
type countingProvider struct {
	id    string
	err   error
	calls int
}

func (p *countingProvider) StableVolumeID(drive string) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	return p.id, nil
}

func TestStableVolumePathFallback(t *testing.T) {
	r := New(nil) // capability absent

	got := r.StableVolumePath("D:")
	if !strings.Contains(got, "D:") {
		t.Errorf("fallback path %q should derive from the raw drive letter", got)
	}
}

func TestStableVolumePathCachesSuccess(t *testing.T) {
	p := &countingProvider{id: `\\?\Volume{aaaa}`}
	r := New(p)

	first := r.StableVolumePath("C:")
	second := r.StableVolumePath("C:")
	if first != `\\?\Volume{aaaa}` || second != first {
		t.Errorf("stable path = %q / %q", first, second)
	}
	if p.calls != 1 {
		t.Errorf("provider consulted %d times, want 1", p.calls)
	}
}

func TestStableVolumePathDoesNotCacheFailure(t *testing.T) {
	p := &countingProvider{err: errors.New("enumeration failed")}
	r := New(p)

	if got := r.StableVolumePath("C:"); got != "C:" {
		t.Errorf("failed mapping = %q, want raw C:", got)
	}
	r.StableVolumePath("C:")
	if p.calls != 2 {
		t.Errorf("failed mappings should be retried, got %d calls", p.calls)
	}
}

func TestStableVolumePathPassesStableThrough(t *testing.T) {
	p := &countingProvider{id: "never"}
	r := New(p)

	stable := `\\?\Volume{bbbb}`
	if got := r.StableVolumePath(stable); got != stable {
		t.Errorf("got %q, want unchanged %q", got, stable)
	}
	if got := r.StableVolumePath("/srv/data"); got != "/srv/data" {
		t.Errorf("got %q, want unchanged /srv/data", got)
	}
	if p.calls != 0 {
		t.Errorf("provider consulted %d times for stable inputs, want 0", p.calls)
	}
}

func TestResolvePathJoinsPrefixAndName(t *testing.T) {
	p := &countingProvider{id: `\\?\Volume{cccc}`}
	r := New(p)

	got := r.ResolvePath("C:", 77, 5, "report.docx")
	if got != `\\?\Volume{cccc}\report.docx` {
		t.Errorf("resolved path = %q", got)
	}

	// Cache hit: same reference resolves identically even with another name.
	again := r.ResolvePath("C:", 77, 5, "renamed.docx")
	if again != got {
		t.Errorf("cached resolution = %q, want %q", again, got)
	}

	r.Invalidate("C:", 77)
	fresh := r.ResolvePath("C:", 77, 5, "renamed.docx")
	if fresh != `\\?\Volume{cccc}\renamed.docx` {
		t.Errorf("post-invalidate resolution = %q", fresh)
	}
}

func TestResolvePathUnixPrefix(t *testing.T) {
	r := New(nil)
	got := r.ResolvePath("/srv/data", 12, 1, "notes.txt")
	if got != "/srv/data/notes.txt" {
		t.Errorf("resolved path = %q", got)
	}
}

func TestResolvePathEmptyNameUnresolved(t *testing.T) {
	r := New(nil)
	if got := r.ResolvePath("C:", 99, 1, ""); got != "" {
		t.Errorf("resolution without a name = %q, want empty", got)
	}
}
