//go:build !windows

package journal

// openDevice on hosts without a change-journal facility reports
// ErrUnsupported; the pipeline degrades the volume to fallback generation
// (or the inotify source, when configured).
func openDevice(volume string) (Device, error) {
	return nil, ErrUnsupported
}
