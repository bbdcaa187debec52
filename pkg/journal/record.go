package journal

import (
	"encoding/binary"
	"fmt"
	"time"
	"unicode/utf16"
)

// RawRecord is one decoded change-journal entry, before classification.
type RawRecord struct {
	FileReferenceNumber   uint64
	ParentReferenceNumber uint64
	USN                   int64
	Timestamp             time.Time
	Reason                uint32
	SourceInfo            uint32
	SecurityID            uint32
	FileAttributes        uint32
	FileName              string
}

// IsDirectory reports whether the record refers to a directory.
func (r RawRecord) IsDirectory() bool {
	return r.FileAttributes&FileAttributeDirectory != 0
}

// Version-2 record header field offsets, relative to the record start.
const (
	offRecordLength   = 0
	offMajorVersion   = 4
	offFileRef        = 8
	offParentRef      = 16
	offUSN            = 24
	offTimestamp      = 32
	offReason         = 40
	offSourceInfo     = 44
	offSecurityID     = 48
	offFileAttributes = 52
	offFileNameLength = 56
	offFileNameOffset = 58
	recordHeaderSize  = 60
)

// DecodeBuffer parses the output of a journal read: a leading 8-byte next-USN
// cursor followed by zero or more variable-length version-2 records. Records
// with a corrupt length terminate the parse with an error; the caller keeps
// whatever decoded cleanly plus the returned cursor.
func DecodeBuffer(buf []byte) (nextUSN int64, records []RawRecord, err error) {
	if len(buf) < 8 {
		return 0, nil, fmt.Errorf("journal.DecodeBuffer: short buffer (%d bytes)", len(buf))
	}
	nextUSN = int64(binary.LittleEndian.Uint64(buf[:8]))

	pos := 8
	for pos < len(buf) {
		rec, recLen, derr := decodeRecord(buf[pos:])
		if derr != nil {
			return nextUSN, records, fmt.Errorf("journal.DecodeBuffer: record at offset %d: %w", pos, derr)
		}
		if recLen == 0 {
			break // zero-padded tail of the buffer
		}
		records = append(records, rec)
		pos += recLen
	}
	return nextUSN, records, nil
}

func decodeRecord(b []byte) (RawRecord, int, error) {
	if len(b) < 4 {
		return RawRecord{}, 0, nil
	}
	recLen := int(binary.LittleEndian.Uint32(b[offRecordLength:]))
	if recLen == 0 {
		return RawRecord{}, 0, nil
	}
	if recLen < recordHeaderSize || recLen > len(b) {
		return RawRecord{}, 0, fmt.Errorf("invalid record length %d (have %d bytes)", recLen, len(b))
	}
	major := binary.LittleEndian.Uint16(b[offMajorVersion:])
	if major != 2 {
		return RawRecord{}, 0, fmt.Errorf("unsupported record version %d", major)
	}

	nameLen := int(binary.LittleEndian.Uint16(b[offFileNameLength:]))
	nameOff := int(binary.LittleEndian.Uint16(b[offFileNameOffset:]))
	if nameOff+nameLen > recLen || nameLen%2 != 0 {
		return RawRecord{}, 0, fmt.Errorf("invalid file name bounds (offset %d, length %d, record %d)", nameOff, nameLen, recLen)
	}

	rec := RawRecord{
		FileReferenceNumber:   binary.LittleEndian.Uint64(b[offFileRef:]),
		ParentReferenceNumber: binary.LittleEndian.Uint64(b[offParentRef:]),
		USN:                   int64(binary.LittleEndian.Uint64(b[offUSN:])),
		Timestamp:             filetimeToTime(int64(binary.LittleEndian.Uint64(b[offTimestamp:]))),
		Reason:                binary.LittleEndian.Uint32(b[offReason:]),
		SourceInfo:            binary.LittleEndian.Uint32(b[offSourceInfo:]),
		SecurityID:            binary.LittleEndian.Uint32(b[offSecurityID:]),
		FileAttributes:        binary.LittleEndian.Uint32(b[offFileAttributes:]),
		FileName:              decodeUTF16(b[nameOff : nameOff+nameLen]),
	}
	return rec, recLen, nil
}

func decodeUTF16(b []byte) string {
	u := make([]uint16, len(b)/2)
	for i := range u {
		u[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(u))
}

// filetimeEpochDelta is the number of 100ns intervals between the journal
// timestamp epoch (1601-01-01) and the Unix epoch.
const filetimeEpochDelta = 116444736000000000

func filetimeToTime(ft int64) time.Time {
	if ft == 0 {
		return time.Time{}
	}
	ns := (ft - filetimeEpochDelta) * 100
	return time.Unix(0, ns).UTC()
}

// timeToFiletime is the inverse of filetimeToTime, used by tests and the
// synthetic record encoder.
func timeToFiletime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()/100 + filetimeEpochDelta
}

// EncodeRecord renders a RawRecord in the version-2 wire layout. The
// monitor never writes journal records; this exists so tests and offline
// tooling can build byte-accurate fixtures.
func EncodeRecord(rec RawRecord) []byte {
	name := utf16.Encode([]rune(rec.FileName))
	recLen := recordHeaderSize + len(name)*2
	// Records are 8-byte aligned on disk.
	if pad := recLen % 8; pad != 0 {
		recLen += 8 - pad
	}

	b := make([]byte, recLen)
	binary.LittleEndian.PutUint32(b[offRecordLength:], uint32(recLen))
	binary.LittleEndian.PutUint16(b[offMajorVersion:], 2)
	binary.LittleEndian.PutUint64(b[offFileRef:], rec.FileReferenceNumber)
	binary.LittleEndian.PutUint64(b[offParentRef:], rec.ParentReferenceNumber)
	binary.LittleEndian.PutUint64(b[offUSN:], uint64(rec.USN))
	binary.LittleEndian.PutUint64(b[offTimestamp:], uint64(timeToFiletime(rec.Timestamp)))
	binary.LittleEndian.PutUint32(b[offReason:], rec.Reason)
	binary.LittleEndian.PutUint32(b[offSourceInfo:], rec.SourceInfo)
	binary.LittleEndian.PutUint32(b[offSecurityID:], rec.SecurityID)
	binary.LittleEndian.PutUint32(b[offFileAttributes:], rec.FileAttributes)
	binary.LittleEndian.PutUint16(b[offFileNameLength:], uint16(len(name)*2))
	binary.LittleEndian.PutUint16(b[offFileNameOffset:], recordHeaderSize)
	for i, u := range name {
		binary.LittleEndian.PutUint16(b[recordHeaderSize+i*2:], u)
	}
	return b
}
