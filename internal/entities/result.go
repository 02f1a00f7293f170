package entities

type JobStatus string

const (
	StatusDone    JobStatus = "done"
	StatusFailed  JobStatus = "failed"
	StatusSkipped JobStatus = "skipped"
)

type WarningKind string

const (
	LinkWarning    WarningKind = "link_warning"
	CleanupWarning WarningKind = "cleanup_warning"
)

type Warning struct {
	Kind   WarningKind `json:"kind"`
	Detail string      `json:"detail"`
}

// JobResult is what a finished ingestion job reports to its caller.
type JobResult struct {
	JobID    string    `json:"job_id"`
	File     string    `json:"file"`
	AssetKey string    `json:"asset_key,omitempty"`
	Status   JobStatus `json:"status"`
	// State is the furthest state the job reached.
	State          string        `json:"state"`
	Detail         string        `json:"detail,omitempty"`
	URL            string        `json:"url,omitempty"`
	Encoded        *EncodedAsset `json:"encoded,omitempty"`
	SavingsPercent float64       `json:"savings_percent,omitempty"`
	Warnings       []Warning     `json:"warnings,omitempty"`

	Err error `json:"-"`
}

func (r JobResult) HasWarning(kind WarningKind) bool {
	for _, w := range r.Warnings {
		if w.Kind == kind {
			return true
		}
	}
	return false
}

// BatchSummary lists every attempted file of one webhook notification or manual batch.
type BatchSummary struct {
	Processed int         `json:"processed"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Skipped   int         `json:"skipped"`
	Results   []JobResult `json:"results"`
}

// Add appends a result and keeps the counters in sync.
func (s *BatchSummary) Add(r JobResult) {
	s.Results = append(s.Results, r)
	s.Processed++
	switch r.Status {
	case StatusDone:
		s.Succeeded++
	case StatusFailed:
		s.Failed++
	case StatusSkipped:
		s.Skipped++
	}
}
