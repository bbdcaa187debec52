package journal

import "errors"

// Error kinds the caller matches on to decide degradation. Open and Poll
// never panic and never hide these behind generic errors; the pipeline
// switches a volume to fallback generation only on an explicit kind.
var (
	// ErrUnsupported means this host has no change-journal facility at all.
	ErrUnsupported = errors.New("journal: change journal not supported on this platform")

	// ErrVolumeOpen means the volume handle could not be acquired.
	ErrVolumeOpen = errors.New("journal: volume open failed")

	// ErrQuery means journal metadata could not be read, even after a
	// create-then-requery attempt.
	ErrQuery = errors.New("journal: journal query failed")

	// ErrCreate means the volume has no journal and one could not be created.
	ErrCreate = errors.New("journal: journal create failed")

	// ErrClosed is returned by Poll on a closed session.
	ErrClosed = errors.New("journal: session closed")
)
