package backup

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"deepstore-hq/deepstore/pkg/history"
	"deepstore-hq/deepstore/pkg/retention"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Stage names used in logs, spans, metrics and StageError.
const (
	StageLock            = "lock"
	StagePrepare         = "prepare"
	StagePreflight       = "preflight"
	StageDump            = "dump"
	StageCollect         = "collect"
	StageArchive         = "archive"
	StageUpload          = "upload"
	StageRetentionLocal  = "retention_local"
	StageRetentionRemote = "retention_remote"
)

var stageMessages = map[string]string{
	StageLock:            "could not acquire run lock",
	StagePrepare:         "could not prepare backup directory",
	StagePreflight:       "database is not reachable",
	StageDump:            "database dump failed",
	StageCollect:         "could not collect files",
	StageArchive:         "could not create tar.gz archive",
	StageUpload:          "remote transfer failed",
	StageRetentionLocal:  "local retention failed",
	StageRetentionRemote: "remote retention failed",
}

// StageError reports which stage of a run failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	msg, ok := stageMessages[e.Stage]
	if !ok {
		msg = e.Stage + " failed"
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Report describes one backup run.
type Report struct {
	RunID      string        `json:"run_id"`
	Command    string        `json:"command"`
	Status     string        `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`

	Archive     string `json:"archive,omitempty"`
	ArchivePath string `json:"archive_path,omitempty"`
	ArchiveSize int64  `json:"archive_size"`
	Created     bool   `json:"created"`
	Uploaded    bool   `json:"uploaded"`

	DumpFile string `json:"dump_file,omitempty"`
	Files    int    `json:"files"`
	Bytes    int64  `json:"bytes"`

	Stages map[string]time.Duration `json:"stages"`

	LocalRetention  *retention.Result `json:"local_retention,omitempty"`
	RemoteRetention *retention.Result `json:"remote_retention,omitempty"`
	RetentionErrors []string          `json:"retention_errors,omitempty"`

	Error string `json:"error,omitempty"`

	mu sync.Mutex
}

func newReport(runID, command string, started time.Time) *Report {
	return &Report{
		RunID:     runID,
		Command:   command,
		StartedAt: started,
		Stages:    make(map[string]time.Duration),
	}
}

func (r *Report) setStage(stage string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Stages[stage] = d
}

// Succeeded reports whether the run completed without error.
func (r *Report) Succeeded() bool {
	return r.Status == StatusSuccess
}

// HistoryRun converts the report into a history ledger row.
func (r *Report) HistoryRun() history.Run {
	run := history.Run{
		ID:              r.RunID,
		Command:         r.Command,
		Status:          r.Status,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		DurationMS:      r.Duration.Milliseconds(),
		ArchiveSize:     r.ArchiveSize,
		Uploaded:        r.Uploaded,
		RetentionErrors: strings.Join(r.RetentionErrors, "; "),
		Error:           r.Error,
	}
	if r.Created {
		run.Archive = r.Archive
	}
	if r.LocalRetention != nil {
		run.LocalDeleted = len(r.LocalRetention.Deleted)
	}
	if r.RemoteRetention != nil {
		run.RemoteDeleted = len(r.RemoteRetention.Deleted)
	}
	return run
}
