package activity

import (
	"testing"
	"time"
)

func TestNewNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("PST", -8*3600)
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, loc)

	rec := New(ts, TypeModify, ItemFile, "notes.txt")

	if rec.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp location = %v, want UTC", rec.Timestamp.Location())
	}
	if !rec.Timestamp.Equal(ts) {
		t.Errorf("normalization changed the instant: got %v, want %v", rec.Timestamp, ts)
	}
}

func TestNewZeroTimestampMeansNow(t *testing.T) {
	before := time.Now().UTC()
	rec := New(time.Time{}, TypeCreate, ItemFile, "a.txt")
	after := time.Now().UTC()

	if rec.Timestamp.Before(before) || rec.Timestamp.After(after) {
		t.Errorf("timestamp %v not in [%v, %v]", rec.Timestamp, before, after)
	}
}

func TestActivityIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		rec := New(time.Now(), TypeOther, ItemFile, "x")
		if rec.ActivityID == "" {
			t.Fatal("empty activity id")
		}
		if seen[rec.ActivityID] {
			t.Fatalf("duplicate activity id %s", rec.ActivityID)
		}
		seen[rec.ActivityID] = true
	}
}

func TestValidateRenameRequiresPreviousName(t *testing.T) {
	rec := New(time.Now(), TypeRename, ItemFile, "new.txt")
	if err := rec.Validate(); err == nil {
		t.Fatal("expected validation failure for rename without previous name")
	}

	rec.PreviousFileName = "old.txt"
	if err := rec.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestValidateRejectsUnknownType(t *testing.T) {
	rec := New(time.Now(), Type("explode"), ItemFile, "x")
	if err := rec.Validate(); err == nil {
		t.Fatal("expected validation failure for unknown activity type")
	}
}

func TestValidateNormalizesDeserializedTimestamp(t *testing.T) {
	// Records loaded from capture files arrive with whatever zone the
	// producer wrote; Validate must leave them UTC.
	loc := time.FixedZone("JST", 9*3600)
	rec := Record{
		ActivityID: "test",
		Timestamp:  time.Date(2026, 1, 2, 3, 4, 5, 0, loc),
		Type:       TypeDelete,
		ItemType:   ItemFile,
		FileName:   "gone.txt",
	}
	if err := rec.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if rec.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp location = %v, want UTC", rec.Timestamp.Location())
	}
}
