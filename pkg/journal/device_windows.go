//go:build windows

package journal

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// FSCTL codes for the change-journal ioctls.
const (
	fsctlQueryUSNJournal  = 0x000900f4
	fsctlCreateUSNJournal = 0x000900e7
	fsctlReadUSNJournal   = 0x000900bb
)

// winDevice talks to one volume's journal via DeviceIoControl.
type winDevice struct {
	handle windows.Handle
}

// openDevice opens \\.\C:-style volume handles for drive-letter volumes and
// the stable form directly for \\?\Volume{...} identifiers.
func openDevice(volume string) (Device, error) {
	devPath := volume
	if len(volume) == 2 && volume[1] == ':' {
		devPath = `\\.\` + volume
	}
	p, err := windows.UTF16PtrFromString(devPath)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateFile(p,
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		0, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", devPath, err)
	}
	return &winDevice{handle: h}, nil
}

// usnJournalData mirrors USN_JOURNAL_DATA_V0.
type usnJournalData struct {
	JournalID       uint64
	FirstUSN        int64
	NextUSN         int64
	LowestValidUSN  int64
	MaxUSN          int64
	MaximumSize     uint64
	AllocationDelta uint64
}

// createUSNJournalData mirrors CREATE_USN_JOURNAL_DATA.
type createUSNJournalData struct {
	MaximumSize     uint64
	AllocationDelta uint64
}

// readUSNJournalData mirrors READ_USN_JOURNAL_DATA_V0.
type readUSNJournalData struct {
	StartUSN          int64
	ReasonMask        uint32
	ReturnOnlyOnClose uint32
	Timeout           uint64
	BytesToWaitFor    uint64
	JournalID         uint64
}

func (d *winDevice) Query() (JournalData, error) {
	var jd usnJournalData
	var bytesReturned uint32
	err := windows.DeviceIoControl(d.handle, fsctlQueryUSNJournal,
		nil, 0,
		(*byte)(unsafe.Pointer(&jd)), uint32(unsafe.Sizeof(jd)),
		&bytesReturned, nil)
	if err != nil {
		return JournalData{}, fmt.Errorf("query journal: %w", err)
	}
	return JournalData{JournalID: jd.JournalID, FirstUSN: jd.FirstUSN, NextUSN: jd.NextUSN}, nil
}

func (d *winDevice) Create() error {
	in := createUSNJournalData{
		MaximumSize:     32 * 1024 * 1024,
		AllocationDelta: 4 * 1024 * 1024,
	}
	var bytesReturned uint32
	err := windows.DeviceIoControl(d.handle, fsctlCreateUSNJournal,
		(*byte)(unsafe.Pointer(&in)), uint32(unsafe.Sizeof(in)),
		nil, 0,
		&bytesReturned, nil)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	return nil
}

func (d *winDevice) Read(journalID uint64, startUSN int64, buf []byte) (int, error) {
	in := readUSNJournalData{
		StartUSN:   startUSN,
		ReasonMask: 0xffffffff,
		JournalID:  journalID,
	}
	var bytesReturned uint32
	err := windows.DeviceIoControl(d.handle, fsctlReadUSNJournal,
		(*byte)(unsafe.Pointer(&in)), uint32(unsafe.Sizeof(in)),
		&buf[0], uint32(len(buf)),
		&bytesReturned, nil)
	if err != nil {
		// USN_JOURNAL_NOT_ACTIVE and friends surface here; the caller
		// treats read errors as transient and retries with backoff.
		return 0, err
	}
	if bytesReturned < 8 {
		return 0, nil
	}
	// Normalize an empty read (cursor only, no records) to n=0 when the
	// cursor did not move.
	next := int64(binary.LittleEndian.Uint64(buf[:8]))
	if bytesReturned == 8 && next == startUSN {
		return 0, nil
	}
	return int(bytesReturned), nil
}

func (d *winDevice) Close() error {
	return windows.CloseHandle(d.handle)
}
