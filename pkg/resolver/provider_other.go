//go:build !windows

package resolver

// NewOSProvider returns the platform identity provider. Hosts without a
// volume enumeration facility get the explicit no-op, so callers see the
// capability as absent rather than broken.
func NewOSProvider() VolumeIdentityProvider { return NopProvider{} }
