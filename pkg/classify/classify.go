// Package classify maps raw journal reason bitmasks to canonical activity
// types and applies the collector's exclusion rules.
package classify

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/filetrail/filetrail/pkg/activity"
	"github.com/filetrail/filetrail/pkg/journal"
)

// Config holds the classification and filtering rules.
type Config struct {
	// IncludeCloseEvents keeps close records; when false they are dropped
	// outright, even if the bitmask also carries data-change flags.
	IncludeCloseEvents bool
	// ExcludedPrefixes drops records whose file name starts with any entry.
	ExcludedPrefixes []string
	// ExcludedExtensions drops records by extension, case-insensitive,
	// with or without the leading dot.
	ExcludedExtensions []string
}

// Classifier turns raw records into activity records. It carries the small
// amount of state needed to pair rename-old/rename-new record couples, so
// one classifier serves one volume's record stream.
type Classifier struct {
	includeClose bool
	prefixes     []string
	extensions   map[string]bool

	mu      sync.Mutex
	renames map[uint64]string // FRN -> old name awaiting its new-name record
}

// New builds a Classifier from config.
func New(cfg Config) *Classifier {
	exts := make(map[string]bool, len(cfg.ExcludedExtensions))
	for _, e := range cfg.ExcludedExtensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}
	return &Classifier{
		includeClose: cfg.IncludeCloseEvents,
		prefixes:     cfg.ExcludedPrefixes,
		extensions:   exts,
		renames:      make(map[uint64]string),
	}
}

// Classify maps a reason bitmask to exactly one activity type. The fixed
// precedence encodes real-world priority: a record signalling both creation
// and data writes is a creation, and a delete outranks everything. The
// second return is false when the record must be dropped (close events with
// close capture disabled).
func (c *Classifier) Classify(reason uint32) (activity.Type, bool) {
	switch {
	case reason&journal.ReasonFileDelete != 0:
		return activity.TypeDelete, true
	case reason&journal.ReasonFileCreate != 0:
		return activity.TypeCreate, true
	case reason&(journal.ReasonRenameOldName|journal.ReasonRenameNewName) != 0:
		return activity.TypeRename, true
	case reason&journal.ReasonSecurityChange != 0:
		return activity.TypeSecurityChange, true
	case reason&(journal.ReasonEAChange|journal.ReasonBasicInfoChange|
		journal.ReasonCompressionChange|journal.ReasonEncryptionChange) != 0:
		return activity.TypeAttributeChange, true
	case reason&journal.ReasonClose != 0:
		if !c.includeClose {
			return "", false
		}
		return activity.TypeClose, true
	case reason&(journal.ReasonDataOverwrite|journal.ReasonDataExtend|
		journal.ReasonDataTruncation) != 0:
		return activity.TypeModify, true
	default:
		return activity.TypeOther, true
	}
}

// Excluded applies the path-prefix and extension rules.
func (c *Classifier) Excluded(fileName string) bool {
	for _, p := range c.prefixes {
		if strings.HasPrefix(fileName, p) {
			return true
		}
	}
	if len(c.extensions) > 0 {
		if ext := strings.ToLower(filepath.Ext(fileName)); ext != "" && c.extensions[ext] {
			return true
		}
	}
	return false
}

// Process classifies and filters one raw record, producing a validated
// activity record tagged with the given volume and provider. The second
// return is false when the record was dropped.
func (c *Classifier) Process(raw journal.RawRecord, volume, providerID string) (activity.Record, bool) {
	typ, keep := c.Classify(raw.Reason)
	if !keep {
		return activity.Record{}, false
	}
	if c.Excluded(raw.FileName) {
		return activity.Record{}, false
	}

	item := activity.ItemFile
	if raw.IsDirectory() {
		item = activity.ItemDirectory
	}

	rec := activity.New(raw.Timestamp, typ, item, raw.FileName)
	rec.VolumeName = volume
	rec.ProviderID = providerID
	rec.FileReferenceNumber = raw.FileReferenceNumber
	rec.ParentFileReferenceNumber = raw.ParentReferenceNumber
	rec.ReasonFlags = raw.Reason
	rec.USN = raw.USN

	if typ == activity.TypeRename {
		rec.PreviousFileName = c.pairRename(raw)
	}
	return rec, true
}

// pairRename tracks rename couples. The old-name record carries the
// previous name itself; the matching new-name record inherits it by file
// reference number. A new-name record whose old half was missed (journal
// wrap, cursor start) falls back to its own name so the rename invariant
// still holds.
func (c *Classifier) pairRename(raw journal.RawRecord) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if raw.Reason&journal.ReasonRenameOldName != 0 {
		c.renames[raw.FileReferenceNumber] = raw.FileName
		return raw.FileName
	}
	if old, ok := c.renames[raw.FileReferenceNumber]; ok {
		delete(c.renames, raw.FileReferenceNumber)
		return old
	}
	return raw.FileName
}
