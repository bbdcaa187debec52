package journal

import "strings"

// USN change-journal reason flags. Values match the on-disk record format,
// so decoded records keep the raw bitmask for audit.
const (
	ReasonDataOverwrite       uint32 = 0x00000001
	ReasonDataExtend          uint32 = 0x00000002
	ReasonDataTruncation      uint32 = 0x00000004
	ReasonNamedDataOverwrite  uint32 = 0x00000010
	ReasonNamedDataExtend     uint32 = 0x00000020
	ReasonNamedDataTruncation uint32 = 0x00000040
	ReasonFileCreate          uint32 = 0x00000100
	ReasonFileDelete          uint32 = 0x00000200
	ReasonEAChange            uint32 = 0x00000400
	ReasonSecurityChange      uint32 = 0x00000800
	ReasonRenameOldName       uint32 = 0x00001000
	ReasonRenameNewName       uint32 = 0x00002000
	ReasonIndexableChange     uint32 = 0x00004000
	ReasonBasicInfoChange     uint32 = 0x00008000
	ReasonHardLinkChange      uint32 = 0x00010000
	ReasonCompressionChange   uint32 = 0x00020000
	ReasonEncryptionChange    uint32 = 0x00040000
	ReasonObjectIDChange      uint32 = 0x00080000
	ReasonReparsePointChange  uint32 = 0x00100000
	ReasonStreamChange        uint32 = 0x00200000
	ReasonClose               uint32 = 0x80000000
)

// FileAttributeDirectory is the directory bit of the record's file
// attributes field.
const FileAttributeDirectory uint32 = 0x00000010

var reasonNames = []struct {
	flag uint32
	name string
}{
	{ReasonDataOverwrite, "DATA_OVERWRITE"},
	{ReasonDataExtend, "DATA_EXTEND"},
	{ReasonDataTruncation, "DATA_TRUNCATION"},
	{ReasonNamedDataOverwrite, "NAMED_DATA_OVERWRITE"},
	{ReasonNamedDataExtend, "NAMED_DATA_EXTEND"},
	{ReasonNamedDataTruncation, "NAMED_DATA_TRUNCATION"},
	{ReasonFileCreate, "FILE_CREATE"},
	{ReasonFileDelete, "FILE_DELETE"},
	{ReasonEAChange, "EA_CHANGE"},
	{ReasonSecurityChange, "SECURITY_CHANGE"},
	{ReasonRenameOldName, "RENAME_OLD_NAME"},
	{ReasonRenameNewName, "RENAME_NEW_NAME"},
	{ReasonIndexableChange, "INDEXABLE_CHANGE"},
	{ReasonBasicInfoChange, "BASIC_INFO_CHANGE"},
	{ReasonHardLinkChange, "HARD_LINK_CHANGE"},
	{ReasonCompressionChange, "COMPRESSION_CHANGE"},
	{ReasonEncryptionChange, "ENCRYPTION_CHANGE"},
	{ReasonObjectIDChange, "OBJECT_ID_CHANGE"},
	{ReasonReparsePointChange, "REPARSE_POINT_CHANGE"},
	{ReasonStreamChange, "STREAM_CHANGE"},
	{ReasonClose, "CLOSE"},
}

// FormatReason renders a reason bitmask as a pipe-joined flag list for
// diagnostics. Unknown bits are preserved as a hex remainder.
func FormatReason(reason uint32) string {
	if reason == 0 {
		return "NONE"
	}
	var parts []string
	rest := reason
	for _, rn := range reasonNames {
		if rest&rn.flag != 0 {
			parts = append(parts, rn.name)
			rest &^= rn.flag
		}
	}
	if rest != 0 {
		parts = append(parts, hexRemainder(rest))
	}
	return strings.Join(parts, "|")
}

func hexRemainder(v uint32) string {
	const digits = "0123456789abcdef"
	buf := []byte("0x00000000")
	for i := 9; i >= 2; i-- {
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf)
}
