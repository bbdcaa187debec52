//go:build windows

package resolver

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// OSProvider resolves drive letters through the host volume enumeration
// facility.
type OSProvider struct{}

// NewOSProvider returns the platform identity provider.
func NewOSProvider() VolumeIdentityProvider { return OSProvider{} }

// StableVolumeID maps "C:" to its \\?\Volume{...} identifier.
func (OSProvider) StableVolumeID(drive string) (string, error) {
	mount, err := windows.UTF16PtrFromString(drive + `\`)
	if err != nil {
		return "", err
	}
	buf := make([]uint16, 50)
	if err := windows.GetVolumeNameForVolumeMountPoint(mount, &buf[0], uint32(len(buf))); err != nil {
		return "", fmt.Errorf("resolver: volume lookup for %s: %w", drive, err)
	}
	// The API returns a trailing backslash; the stable prefix convention
	// here is without it.
	id := windows.UTF16ToString(buf)
	if n := len(id); n > 0 && id[n-1] == '\\' {
		id = id[:n-1]
	}
	return id, nil
}
