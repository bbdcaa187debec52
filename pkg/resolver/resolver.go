// Package resolver maps drive letters to stable volume identifiers and
// file reference numbers to best-effort paths. Drive letters are not stable
// across reboots or remounts; every downstream identity (dedup caches,
// cross-session correlation) depends on this package producing a consistent
// volume prefix.
package resolver

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ErrNoIdentityProvider is returned by the no-op provider; callers fall
// back to the raw drive-letter form.
var ErrNoIdentityProvider = errors.New("resolver: no volume identity provider")

// VolumeIdentityProvider maps a drive-letter volume ("C:") to a stable
// volume identifier. Hosts without the capability use NopProvider.
type VolumeIdentityProvider interface {
	StableVolumeID(drive string) (string, error)
}

// NopProvider is the explicit stand-in for "capability absent".
type NopProvider struct{}

func (NopProvider) StableVolumeID(string) (string, error) {
	return "", ErrNoIdentityProvider
}

// Resolver caches stable-volume mappings and reference-number paths. It is
// safe for concurrent use by volume workers.
type Resolver struct {
	provider VolumeIdentityProvider

	mu      sync.RWMutex
	letters map[string]string // drive letter -> stable volume id
	paths   map[string]string // volume-qualified FRN -> resolved path
}

// New creates a Resolver. A nil provider means the capability is absent
// and every lookup falls back to the raw drive-letter form.
func New(provider VolumeIdentityProvider) *Resolver {
	if provider == nil {
		provider = NopProvider{}
	}
	return &Resolver{
		provider: provider,
		letters:  make(map[string]string),
		paths:    make(map[string]string),
	}
}

// StableVolumePath returns a volume prefix that survives drive-letter
// reassignment. Already-stable identifiers and rooted unix paths pass
// through unchanged. Successful mappings are cached, so a drive letter hits
// the OS at most once per process lifetime; failures are logged and fall
// back to the raw form without ever raising.
func (r *Resolver) StableVolumePath(volume string) string {
	if strings.HasPrefix(volume, `\\?\`) || strings.HasPrefix(volume, "/") {
		return volume
	}

	r.mu.RLock()
	stable, ok := r.letters[volume]
	r.mu.RUnlock()
	if ok {
		return stable
	}

	stable, err := r.provider.StableVolumeID(volume)
	if err != nil {
		slog.Warn("stable volume mapping unavailable, using drive letter",
			"volume", volume, "error", err)
		return volume
	}

	r.mu.Lock()
	r.letters[volume] = stable
	r.mu.Unlock()
	return stable
}

// ResolvePath resolves a file reference number to a best-effort full path:
// the stable volume prefix joined with the file name. Full ancestor-chain
// reconstruction from parent reference numbers is a known limitation; paths
// for deeply nested files are approximations rooted at the volume.
func (r *Resolver) ResolvePath(volume string, fileRef, parentRef uint64, fileName string) string {
	key := refKey(volume, fileRef)

	r.mu.RLock()
	p, ok := r.paths[key]
	r.mu.RUnlock()
	if ok {
		return p
	}

	if fileName == "" {
		return ""
	}
	p = Join(r.StableVolumePath(volume), fileName)

	r.mu.Lock()
	r.paths[key] = p
	r.mu.Unlock()
	return p
}

// Invalidate drops the cached path for a reference number, used when a
// rename or delete makes the old resolution stale.
func (r *Resolver) Invalidate(volume string, fileRef uint64) {
	r.mu.Lock()
	delete(r.paths, refKey(volume, fileRef))
	r.mu.Unlock()
}

func refKey(volume string, ref uint64) string {
	return fmt.Sprintf("%s:%d", volume, ref)
}

// Join joins a volume prefix and a name with the separator family the
// prefix itself uses.
func Join(prefix, name string) string {
	if strings.HasPrefix(prefix, "/") {
		return strings.TrimRight(prefix, "/") + "/" + name
	}
	return strings.TrimRight(prefix, `\`) + `\` + name
}
