// Package activity defines the canonical file-system activity record that
// every capture source (journal, inotify, fallback) produces and every
// downstream consumer (pipeline, recorder, capture files) operates on.
package activity

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type classifies what happened to the item.
type Type string

const (
	TypeCreate          Type = "create"
	TypeModify          Type = "modify"
	TypeDelete          Type = "delete"
	TypeRename          Type = "rename"
	TypeMove            Type = "move"
	TypeCopy            Type = "copy"
	TypeSecurityChange  Type = "security_change"
	TypeAttributeChange Type = "attribute_change"
	TypeShare           Type = "share"
	TypeUnshare         Type = "unshare"
	TypeRead            Type = "read"
	TypeClose           Type = "close"
	TypeSync            Type = "sync"
	TypeVersion         Type = "version"
	TypeRestore         Type = "restore"
	TypeTrash           Type = "trash"
	TypeOther           Type = "other"
)

var validTypes = map[Type]bool{
	TypeCreate: true, TypeModify: true, TypeDelete: true, TypeRename: true,
	TypeMove: true, TypeCopy: true, TypeSecurityChange: true,
	TypeAttributeChange: true, TypeShare: true, TypeUnshare: true,
	TypeRead: true, TypeClose: true, TypeSync: true, TypeVersion: true,
	TypeRestore: true, TypeTrash: true, TypeOther: true,
}

// Valid reports whether t is one of the enumerated activity types.
func (t Type) Valid() bool { return validTypes[t] }

// ItemType classifies the kind of file-system object the record refers to.
type ItemType string

const (
	ItemFile      ItemType = "file"
	ItemDirectory ItemType = "directory"
	ItemSymlink   ItemType = "symlink"
	ItemOther     ItemType = "other"
)

// ProviderTypeLocal identifies the local-filesystem collector family.
const ProviderTypeLocal = "local_filesystem"

var (
	ErrInvalidType     = errors.New("activity: invalid activity type")
	ErrMissingPrevious = errors.New("activity: rename record missing previous file name")
	ErrZeroTimestamp   = errors.New("activity: zero timestamp")
)

// Record is the canonical unit of capture. Timestamps are always UTC; a
// record constructed with a non-UTC or zero-offset-unaware time is
// normalized on construction, never rejected.
type Record struct {
	ActivityID string    `json:"activity_id"`
	Timestamp  time.Time `json:"timestamp"`
	Type       Type      `json:"activity_type"`
	ItemType   ItemType  `json:"item_type"`

	FileName string `json:"file_name"`
	// FilePath may be empty when resolution failed; downstream code must
	// treat an empty path as unresolved, not as the volume root.
	FilePath         string `json:"file_path,omitempty"`
	PreviousFileName string `json:"previous_file_name,omitempty"`
	PreviousFilePath string `json:"previous_file_path,omitempty"`

	FileReferenceNumber       uint64 `json:"file_reference_number"`
	ParentFileReferenceNumber uint64 `json:"parent_file_reference_number"`
	VolumeName                string `json:"volume_name"`
	ReasonFlags               uint32 `json:"reason_flags"`
	USN                       int64  `json:"usn"`

	ProviderType string `json:"provider_type"`
	ProviderID   string `json:"provider_id"`
}

// New builds a Record with a fresh activity id and a UTC-normalized
// timestamp. A zero ts means "now".
func New(ts time.Time, typ Type, item ItemType, fileName string) Record {
	if ts.IsZero() {
		ts = time.Now()
	}
	return Record{
		ActivityID:   uuid.NewString(),
		Timestamp:    ts.UTC(),
		Type:         typ,
		ItemType:     item,
		FileName:     fileName,
		ProviderType: ProviderTypeLocal,
	}
}

// Normalize enforces the timestamp invariant in place. It is called by
// Validate so that records deserialized from capture files or built by
// hand get the same treatment as constructed ones.
func (r *Record) Normalize() {
	if r.Timestamp.IsZero() {
		return
	}
	r.Timestamp = r.Timestamp.UTC()
}

// Validate checks the record invariants: a known activity type, a non-zero
// UTC timestamp, and a previous name on every rename.
func (r *Record) Validate() error {
	r.Normalize()
	if !r.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, r.Type)
	}
	if r.Timestamp.IsZero() {
		return ErrZeroTimestamp
	}
	if r.Type == TypeRename && r.PreviousFileName == "" {
		return ErrMissingPrevious
	}
	return nil
}
