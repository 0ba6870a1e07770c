package report

import "time"

// Format is a supported artifact output format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
)

// Template is the content blueprint a report renders.
type Template struct {
	ID               string
	OwnerID          string
	Name             string
	Content          string
	RequiredParams   []string
	SupportedFormats []Format
	Category         string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Supports reports whether the template can render the given format.
func (t Template) Supports(f Format) bool {
	if len(t.SupportedFormats) == 0 {
		return true
	}
	for _, s := range t.SupportedFormats {
		if s == f {
			return true
		}
	}
	return false
}

// Report is an owner-scoped job that produces an artifact, on a cron cadence
// when Schedule is set or on demand otherwise.
type Report struct {
	ID            string
	OwnerID       string
	TemplateID    string
	Name          string
	Params        map[string]string
	Schedule      string // cron expression; empty means on-demand only
	Timezone      string // IANA zone for the schedule; empty means UTC
	Recipients    []string
	OutputFormat  Format
	Active        bool
	LastGenerated time.Time
	NextExecution time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Scheduled reports whether the report runs on a cron cadence.
func (r Report) Scheduled() bool { return r.Schedule != "" }

// ExecutionStatus is the state machine of one report run.
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Execution records one run of a report. OutputPath is set iff completed;
// Error is non-empty iff failed.
type Execution struct {
	ID         string
	ReportID   string
	StartedAt  time.Time
	EndedAt    time.Time
	Status     ExecutionStatus
	OutputPath string
	Bytes      int64
	Error      string
}
