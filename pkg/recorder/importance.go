package recorder

import (
	"path/filepath"
	"strings"

	"github.com/filetrail/filetrail/pkg/activity"
)

// Importance scoring weights. The score is monotonic and composable: each
// signal adds or subtracts independently, clamped to [0, 1].
const (
	baseScore      = 0.3
	documentBonus  = 0.3
	directoryBonus = 0.1
	tempPenalty    = 0.2
)

// documentExtensions are common productivity-document types worth keeping
// the full retention window.
var documentExtensions = map[string]bool{
	".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true, ".pdf": true, ".odt": true,
	".ods": true, ".odp": true, ".md": true, ".txt": true,
}

// tempExtensions mark scratch files that age out first.
var tempExtensions = map[string]bool{
	".tmp": true, ".temp": true, ".log": true, ".bak": true,
	".swp": true, ".old": true, ".cache": true, ".crdownload": true,
	".partial": true,
}

// tempSegments are path components that mark low-value locations.
var tempSegments = map[string]bool{
	"tmp": true, "temp": true, "cache": true, ".cache": true,
	"logs": true, "log": true,
}

// Importance computes the retention weight for a record. Regular files
// start at the base score; productivity documents and directories gain,
// temp/log/cache locations lose.
func Importance(rec activity.Record) float64 {
	score := baseScore

	ext := strings.ToLower(filepath.Ext(rec.FileName))
	if documentExtensions[ext] {
		score += documentBonus
	}
	if rec.ItemType == activity.ItemDirectory {
		score += directoryBonus
	}
	if tempExtensions[ext] || inTempLocation(rec.FilePath) || strings.HasPrefix(rec.FileName, "~") {
		score -= tempPenalty
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func inTempLocation(path string) bool {
	if path == "" {
		return false
	}
	for _, seg := range strings.FieldsFunc(strings.ToLower(path), func(r rune) bool {
		return r == '/' || r == '\\'
	}) {
		if tempSegments[seg] {
			return true
		}
	}
	return false
}
