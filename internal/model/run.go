package model

import "time"

// FeedFormat identifies the container format of a retailer feed.
type FeedFormat string

const (
	FeedFormatCSV  FeedFormat = "csv"
	FeedFormatXML  FeedFormat = "xml"
	FeedFormatJSON FeedFormat = "json"
	FeedFormatXLSX FeedFormat = "xlsx"
)

// ValidFormat reports whether f is a supported feed format tag.
func ValidFormat(f FeedFormat) bool {
	switch f {
	case FeedFormatCSV, FeedFormatXML, FeedFormatJSON, FeedFormatXLSX:
		return true
	}
	return false
}

// RunStatus represents the current state of a feed run.
type RunStatus string

const (
	RunStatusQueued       RunStatus = "queued"
	RunStatusClassifying  RunStatus = "classifying"
	RunStatusMatching     RunStatus = "matching"
	RunStatusBenchmarking RunStatus = "benchmarking"
	RunStatusInsights     RunStatus = "insights"
	RunStatusComplete     RunStatus = "complete"
	// RunStatusPartialFailure marks a run that failed after earlier stages or
	// matcher batches were already committed; RunResult carries the failing
	// stage and the last committed batch index.
	RunStatusPartialFailure RunStatus = "partial_failure"
	RunStatusFailed         RunStatus = "failed"
)

// Feed identifies one retailer feed source.
type Feed struct {
	ID         string     `json:"id"`
	RetailerID string     `json:"retailer_id"`
	Name       string     `json:"name"`
	Format     FeedFormat `json:"format"`
	Source     string     `json:"source,omitempty"` // file path or URL of the snapshot
}

// FeedRun represents a single ingestion of one retailer's feed snapshot.
type FeedRun struct {
	ID         string     `json:"id"`
	RetailerID string     `json:"retailer_id"`
	FeedID     string     `json:"feed_id"`
	Format     FeedFormat `json:"format"`
	Status     RunStatus  `json:"status"`
	Result     *RunResult `json:"result,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a feed run.
type RunResult struct {
	Indexable     int           `json:"indexable"`
	Quarantined   int           `json:"quarantined"`
	Rejected      int           `json:"rejected"`
	Deactivated   int           `json:"deactivated"`
	AutoCreated   int           `json:"auto_created"`
	Benchmarks    int           `json:"benchmarks"`
	Insights      int           `json:"insights"`
	BatchJobs     int           `json:"batch_jobs"`
	Stages        []StageResult `json:"stages"`
	FailedStage   string        `json:"failed_stage,omitempty"`
	LastBatchDone int           `json:"last_batch_done,omitempty"` // last committed matcher batch index on failure
	Error         string        `json:"error,omitempty"`
}

// StageStatus represents the current state of a pipeline stage.
type StageStatus string

const (
	StageStatusRunning  StageStatus = "running"
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
	StageStatusSkipped  StageStatus = "skipped"
)

// RunStage represents a stage within a feed run.
type RunStage struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	Status    StageStatus  `json:"status"`
	Result    *StageResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// StageResult holds the outcome of one pipeline stage.
type StageResult struct {
	Name     string         `json:"name"`
	Status   StageStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
