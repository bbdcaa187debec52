package journal

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
)

// Device is the OS-level journal surface for one volume. The real
// implementation lives behind build tags; tests substitute fakes.
type Device interface {
	// Query reads the journal metadata for the volume.
	Query() (JournalData, error)
	// Create creates a journal on a volume that has none.
	Create() error
	// Read fills buf with a next-USN cursor followed by records at or
	// after startUSN, returning the number of bytes written.
	Read(journalID uint64, startUSN int64, buf []byte) (int, error)
	Close() error
}

// JournalData is the volume's journal metadata.
type JournalData struct {
	JournalID uint64
	FirstUSN  int64
	NextUSN   int64
}

// readBufferSize is the per-poll read buffer. Records are variable length;
// 64 KiB holds a few hundred of them.
const readBufferSize = 64 * 1024

// Session owns one change-journal read cursor for one volume.
type Session struct {
	Volume    string // normalized volume identifier
	JournalID uint64
	FirstUSN  int64
	NextUSN   int64

	dev    Device
	buf    []byte
	mu     sync.Mutex
	closed bool
}

// NormalizeVolume canonicalizes a configured volume identifier: trailing
// separators stripped, duplicate separators collapsed, bare drive letters
// given their colon. Already-stable volume paths and rooted unix paths pass
// through. A string that fits none of these shapes is a config error for
// that volume only.
func NormalizeVolume(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("journal.NormalizeVolume: empty volume")
	}
	if strings.HasPrefix(v, `\\?\Volume{`) {
		return strings.TrimRight(v, `\`), nil
	}
	if strings.HasPrefix(v, "/") {
		return path.Clean(v), nil
	}

	v = strings.TrimRight(v, `\/`)
	// Collapse duplicate separators inside drive-relative forms.
	for strings.Contains(v, `\\`) {
		v = strings.ReplaceAll(v, `\\`, `\`)
	}
	for strings.Contains(v, "//") {
		v = strings.ReplaceAll(v, "//", "/")
	}

	switch {
	case len(v) == 1 && isDriveLetter(v[0]):
		return strings.ToUpper(v) + ":", nil
	case len(v) == 2 && isDriveLetter(v[0]) && v[1] == ':':
		return strings.ToUpper(v), nil
	}
	return "", fmt.Errorf("journal.NormalizeVolume: malformed volume %q", v)
}

func isDriveLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Open normalizes the volume, acquires its journal device, and reads the
// journal metadata, creating a journal if the volume has none. Every error
// carries a kind (ErrVolumeOpen, ErrCreate, ErrQuery, ErrUnsupported) the
// caller matches to decide degradation.
func Open(volume string) (*Session, error) {
	norm, err := NormalizeVolume(volume)
	if err != nil {
		return nil, err
	}
	dev, err := openDevice(norm)
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrVolumeOpen, norm, err)
	}
	return openSession(norm, dev)
}

func openSession(volume string, dev Device) (*Session, error) {
	jd, err := dev.Query()
	if err != nil {
		// No journal yet, or a transient query failure: create then
		// requery once before giving up.
		if cerr := dev.Create(); cerr != nil {
			dev.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrCreate, volume, cerr)
		}
		jd, err = dev.Query()
		if err != nil {
			dev.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrQuery, volume, err)
		}
		slog.Info("created change journal", "volume", volume, "journal_id", jd.JournalID)
	}

	return &Session{
		Volume:    volume,
		JournalID: jd.JournalID,
		FirstUSN:  jd.FirstUSN,
		NextUSN:   jd.NextUSN,
		dev:       dev,
		buf:       make([]byte, readBufferSize),
	}, nil
}

// Poll reads journal records since the session cursor and advances it past
// the last record read. An empty slice with a nil error means no new
// activity.
func (s *Session) Poll() ([]RawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	n, err := s.dev.Read(s.JournalID, s.NextUSN, s.buf)
	if err != nil {
		return nil, fmt.Errorf("journal: read %s from usn %d: %w", s.Volume, s.NextUSN, err)
	}
	if n == 0 {
		return nil, nil
	}

	next, recs, err := DecodeBuffer(s.buf[:n])
	if err != nil {
		// Keep what decoded cleanly; the cursor still advances so a
		// corrupt record cannot wedge the session.
		slog.Error("journal decode error", "volume", s.Volume, "error", err, "decoded", len(recs))
	}
	if next > s.NextUSN {
		s.NextUSN = next
	}
	return recs, nil
}

// Close releases the volume handle. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.dev.Close()
}
