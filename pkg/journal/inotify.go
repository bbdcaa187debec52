package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// InotifySource adapts the host's native file notification facility into
// journal-shaped records on volumes without a change journal. Inode numbers
// stand in for file reference numbers, so identity stays rename-stable the
// way real journal records are; reason flags are synthesized from the
// notification op. The sequence cursor is process-local, monotonic per
// source.
type InotifySource struct {
	volume  string
	root    string
	watcher *fsnotify.Watcher
	seq     atomic.Int64

	mu      sync.Mutex
	pending []RawRecord
	// Deletes and renames arrive after the inode is gone; remember ids
	// from earlier sightings so those records keep a stable reference.
	knownIDs map[string]uint64
	closed   bool
}

// OpenInotify starts watching the directory tree rooted at root for the
// given volume. Failure to create or attach the watcher is reported as
// ErrVolumeOpen so the caller's degradation logic treats it like any other
// open failure.
func OpenInotify(volume, root string) (*InotifySource, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrVolumeOpen, volume, err)
	}

	src := &InotifySource{
		volume:   volume,
		root:     root,
		watcher:  w,
		knownIDs: make(map[string]uint64),
	}

	// Watch the root and all existing subdirectories. New directories are
	// added as their create events arrive.
	err = filepath.WalkDir(root, func(p string, d os.DirEntry, werr error) error {
		if werr != nil {
			return nil // unreadable subtree: skip, keep walking siblings
		}
		if d.IsDir() {
			if aerr := w.Add(p); aerr != nil {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrVolumeOpen, volume, err)
	}

	go src.collect()
	return src, nil
}

func (s *InotifySource) collect() {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handle(ev)
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			// Watcher errors are transient overflow conditions; the
			// next poll simply sees fewer records.
		}
	}
}

func (s *InotifySource) handle(ev fsnotify.Event) {
	rec := RawRecord{
		USN:       s.seq.Add(1),
		Timestamp: time.Now().UTC(),
		FileName:  filepath.Base(ev.Name),
	}

	switch {
	case ev.Op.Has(fsnotify.Create):
		rec.Reason = ReasonFileCreate
	case ev.Op.Has(fsnotify.Remove):
		rec.Reason = ReasonFileDelete
	case ev.Op.Has(fsnotify.Rename):
		rec.Reason = ReasonRenameOldName
	case ev.Op.Has(fsnotify.Write):
		rec.Reason = ReasonDataOverwrite
	case ev.Op.Has(fsnotify.Chmod):
		rec.Reason = ReasonBasicInfoChange
	default:
		return
	}

	if info, err := os.Lstat(ev.Name); err == nil {
		if info.IsDir() {
			rec.FileAttributes = FileAttributeDirectory
			if ev.Op.Has(fsnotify.Create) {
				// Extend the watch into new directories.
				_ = s.watcher.Add(ev.Name)
			}
		}
		rec.FileReferenceNumber = fileID(ev.Name, info)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if rec.FileReferenceNumber != 0 {
		s.knownIDs[ev.Name] = rec.FileReferenceNumber
	} else if id, ok := s.knownIDs[ev.Name]; ok {
		rec.FileReferenceNumber = id
		if rec.Reason == ReasonFileDelete || rec.Reason == ReasonRenameOldName {
			delete(s.knownIDs, ev.Name)
		}
	}
	s.pending = append(s.pending, rec)
}

// Poll drains the records accumulated since the previous call, stamping
// each with the capture time. Ordering within the source is FIFO.
func (s *InotifySource) Poll() ([]RawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := s.pending
	s.pending = nil
	return out, nil
}

// Close stops the watcher. Idempotent.
func (s *InotifySource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.watcher.Close()
}
