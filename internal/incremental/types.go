// Package incremental keeps the stored graph consistent with the files on
// disk.
//
// Each file moves through Unindexed -> Indexed -> (Stale -> Indexed |
// Removed). A transition is driven by the file's content hash: an unchanged
// hash is a no-op, a changed hash re-extracts the file and swaps its rows in
// one store transaction. Edges are owned by the file containing the call
// site, so a transition never touches rows owned by other files.
package incremental

import (
	"time"

	"isg/internal/extract"
)

// FileState is the lifecycle state of one file.
type FileState string

const (
	StateUnindexed FileState = "unindexed"
	StateIndexed   FileState = "indexed"
	StateStale     FileState = "stale"
	StateRemoved   FileState = "removed"
)

// Outcome is the result of one transition.
type Outcome string

const (
	OutcomeIndexed   Outcome = "indexed"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeRemoved   Outcome = "removed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// ReindexStats reports what one ReindexFile or RemoveFile call did.
type ReindexStats struct {
	Path            string             `json:"path" yaml:"path"`
	Outcome         Outcome            `json:"outcome" yaml:"outcome"`
	PreviousState   FileState          `json:"previousState" yaml:"previousState"`
	HashChanged     bool               `json:"hashChanged" yaml:"hashChanged"`
	ContentHash     string             `json:"contentHash,omitempty" yaml:"contentHash,omitempty"`
	EntitiesBefore  int                `json:"entitiesBefore" yaml:"entitiesBefore"`
	EntitiesAfter   int                `json:"entitiesAfter" yaml:"entitiesAfter"`
	EntitiesAdded   int                `json:"entitiesAdded" yaml:"entitiesAdded"`
	EntitiesRemoved int                `json:"entitiesRemoved" yaml:"entitiesRemoved"`
	EdgesAdded      int                `json:"edgesAdded" yaml:"edgesAdded"`
	EdgesRemoved    int                `json:"edgesRemoved" yaml:"edgesRemoved"`
	SkipReason      extract.SkipReason `json:"skipReason,omitempty" yaml:"skipReason,omitempty"`
	Warnings        []extract.Warning  `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Duration        time.Duration      `json:"durationNs" yaml:"duration"`
}

// Totals are cumulative counters kept by a Reindexer.
type Totals struct {
	Indexed   int64 `json:"indexed" yaml:"indexed"`
	Unchanged int64 `json:"unchanged" yaml:"unchanged"`
	Removed   int64 `json:"removed" yaml:"removed"`
	Skipped   int64 `json:"skipped" yaml:"skipped"`
	Failed    int64 `json:"failed" yaml:"failed"`
}

// Summary reports one bulk ingestion.
type Summary struct {
	RunID           string            `json:"runId" yaml:"runId"`
	Root            string            `json:"root" yaml:"root"`
	FilesSeen       int               `json:"filesSeen" yaml:"filesSeen"`
	FilesProcessed  int               `json:"filesProcessed" yaml:"filesProcessed"`
	FilesUnchanged  int               `json:"filesUnchanged" yaml:"filesUnchanged"`
	FilesSkipped    int               `json:"filesSkipped" yaml:"filesSkipped"`
	FilesFailed     int               `json:"filesFailed" yaml:"filesFailed"`
	FilesRemoved    int               `json:"filesRemoved" yaml:"filesRemoved"`
	SkipReasons     map[string]int    `json:"skipReasons" yaml:"skipReasons"`
	EntitiesCreated int               `json:"entitiesCreated" yaml:"entitiesCreated"`
	EdgesCreated    int               `json:"edgesCreated" yaml:"edgesCreated"`
	Warnings        []extract.Warning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	WarningsDropped int               `json:"warningsDropped,omitempty" yaml:"warningsDropped,omitempty"`
	Coverage        []FolderCoverage  `json:"coverage,omitempty" yaml:"coverage,omitempty"`
	Duration        time.Duration     `json:"durationNs" yaml:"duration"`
	StartedAt       time.Time         `json:"startedAt" yaml:"startedAt"`
}

// FolderCoverage counts one folder's files in a bulk ingestion. Eligible
// files are in a supported language; parsed files ended indexed or
// unchanged.
type FolderCoverage struct {
	Folder      string  `json:"folder" yaml:"folder"`
	Seen        int     `json:"seen" yaml:"seen"`
	Eligible    int     `json:"eligible" yaml:"eligible"`
	Parsed      int     `json:"parsed" yaml:"parsed"`
	Skipped     int     `json:"skipped" yaml:"skipped"`
	Failed      int     `json:"failed" yaml:"failed"`
	CoveragePct float64 `json:"coveragePct" yaml:"coveragePct"`
}

// Skip reasons recorded by ingestion in addition to extract.SkipReason.
const (
	SkipParseError = "parse-error"
	SkipReadError  = "read-error"
	SkipStoreError = "store-error"
)
