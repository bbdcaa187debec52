package classify

import (
	"testing"
	"time"

	"github.com/filetrail/filetrail/pkg/activity"
	"github.com/filetrail/filetrail/pkg/journal"
)

func TestClassifyPrecedence(t *testing.T) {
	c := New(Config{IncludeCloseEvents: true})

	tests := []struct {
		name   string
		reason uint32
		want   activity.Type
	}{
		{"delete outranks create", journal.ReasonFileDelete | journal.ReasonFileCreate, activity.TypeDelete},
		{"create outranks data write", journal.ReasonFileCreate | journal.ReasonDataOverwrite, activity.TypeCreate},
		{"rename old name", journal.ReasonRenameOldName, activity.TypeRename},
		{"rename new name", journal.ReasonRenameNewName, activity.TypeRename},
		{"rename outranks security", journal.ReasonRenameNewName | journal.ReasonSecurityChange, activity.TypeRename},
		{"security change", journal.ReasonSecurityChange, activity.TypeSecurityChange},
		{"ea change", journal.ReasonEAChange, activity.TypeAttributeChange},
		{"basic info change", journal.ReasonBasicInfoChange, activity.TypeAttributeChange},
		{"compression change", journal.ReasonCompressionChange, activity.TypeAttributeChange},
		{"encryption change", journal.ReasonEncryptionChange, activity.TypeAttributeChange},
		{"close", journal.ReasonClose, activity.TypeClose},
		{"data overwrite", journal.ReasonDataOverwrite, activity.TypeModify},
		{"data extend", journal.ReasonDataExtend, activity.TypeModify},
		{"data truncation", journal.ReasonDataTruncation, activity.TypeModify},
		{"unrecognized", journal.ReasonObjectIDChange, activity.TypeOther},
		{"none", 0, activity.TypeOther},
	}
	for _, tt := range tests {
		got, keep := c.Classify(tt.reason)
		if !keep {
			t.Errorf("%s: record dropped, want %s", tt.name, tt.want)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestClassifyDropsCloseWhenDisabled(t *testing.T) {
	c := New(Config{IncludeCloseEvents: false})
	if _, keep := c.Classify(journal.ReasonClose); keep {
		t.Error("close record kept with close capture disabled")
	}
	// A close record that also carries a create flag is still a create.
	typ, keep := c.Classify(journal.ReasonClose | journal.ReasonFileCreate)
	if !keep || typ != activity.TypeCreate {
		t.Errorf("got (%s, %v), want (create, true)", typ, keep)
	}
}

func TestExcludedPrefix(t *testing.T) {
	c := New(Config{ExcludedPrefixes: []string{"~$", ".git"}})
	if !c.Excluded("~$report.docx") {
		t.Error("prefix-excluded name not dropped")
	}
	if !c.Excluded(".gitignore") {
		t.Error(".git prefix not dropped")
	}
	if c.Excluded("report.docx") {
		t.Error("ordinary name dropped")
	}
}

func TestExcludedExtensionCaseInsensitive(t *testing.T) {
	c := New(Config{ExcludedExtensions: []string{".tmp", "log"}})
	for _, name := range []string{"x.tmp", "x.TMP", "x.Tmp", "build.log", "build.LOG"} {
		if !c.Excluded(name) {
			t.Errorf("%s not dropped", name)
		}
	}
	if c.Excluded("x.txt") {
		t.Error("x.txt dropped")
	}
	if c.Excluded("noextension") {
		t.Error("extensionless name dropped")
	}
}

func TestProcessBuildsValidRecord(t *testing.T) {
	c := New(Config{})
	raw := journal.RawRecord{
		FileReferenceNumber:   123,
		ParentReferenceNumber: 9,
		USN:                   500,
		Timestamp:             time.Date(2026, 5, 5, 10, 0, 0, 0, time.FixedZone("X", 3600)),
		Reason:                journal.ReasonFileCreate,
		FileName:              "report.docx",
	}

	rec, keep := c.Process(raw, "C:", "collector-1")
	if !keep {
		t.Fatal("record dropped")
	}
	if err := rec.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if rec.Type != activity.TypeCreate {
		t.Errorf("type = %s", rec.Type)
	}
	if rec.ItemType != activity.ItemFile {
		t.Errorf("item type = %s", rec.ItemType)
	}
	if rec.VolumeName != "C:" || rec.ProviderID != "collector-1" {
		t.Errorf("tagging: volume=%q provider=%q", rec.VolumeName, rec.ProviderID)
	}
	if rec.FileReferenceNumber != 123 || rec.USN != 500 {
		t.Errorf("identity: frn=%d usn=%d", rec.FileReferenceNumber, rec.USN)
	}
	if rec.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp zone = %v, want UTC", rec.Timestamp.Location())
	}
}

func TestProcessDirectoryItemType(t *testing.T) {
	c := New(Config{})
	raw := journal.RawRecord{
		Reason:         journal.ReasonFileCreate,
		FileAttributes: journal.FileAttributeDirectory,
		FileName:       "projects",
		Timestamp:      time.Now(),
	}
	rec, keep := c.Process(raw, "C:", "p")
	if !keep || rec.ItemType != activity.ItemDirectory {
		t.Errorf("item type = %s, want directory", rec.ItemType)
	}
}

func TestProcessPairsRenameRecords(t *testing.T) {
	c := New(Config{})
	now := time.Now()

	oldRec, keep := c.Process(journal.RawRecord{
		FileReferenceNumber: 55,
		Reason:              journal.ReasonRenameOldName,
		FileName:            "draft.txt",
		Timestamp:           now,
	}, "C:", "p")
	if !keep {
		t.Fatal("old-name record dropped")
	}
	if oldRec.PreviousFileName != "draft.txt" {
		t.Errorf("old-name previous = %q", oldRec.PreviousFileName)
	}

	newRec, keep := c.Process(journal.RawRecord{
		FileReferenceNumber: 55,
		Reason:              journal.ReasonRenameNewName,
		FileName:            "final.txt",
		Timestamp:           now,
	}, "C:", "p")
	if !keep {
		t.Fatal("new-name record dropped")
	}
	if newRec.PreviousFileName != "draft.txt" {
		t.Errorf("new-name previous = %q, want draft.txt", newRec.PreviousFileName)
	}
	if err := newRec.Validate(); err != nil {
		t.Fatalf("rename record invalid: %v", err)
	}

	// An unpaired new-name record still satisfies the rename invariant.
	orphan, _ := c.Process(journal.RawRecord{
		FileReferenceNumber: 77,
		Reason:              journal.ReasonRenameNewName,
		FileName:            "orphan.txt",
		Timestamp:           now,
	}, "C:", "p")
	if err := orphan.Validate(); err != nil {
		t.Fatalf("orphan rename invalid: %v", err)
	}
}

func TestProcessDropsExcluded(t *testing.T) {
	c := New(Config{ExcludedExtensions: []string{".tmp"}})
	_, keep := c.Process(journal.RawRecord{
		Reason:    journal.ReasonFileCreate,
		FileName:  "scratch.tmp",
		Timestamp: time.Now(),
	}, "C:", "p")
	if keep {
		t.Error("excluded record reached the pipeline")
	}
}
