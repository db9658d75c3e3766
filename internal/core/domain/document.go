package domain

import "time"

type DocumentFormat string

const (
	FormatText     DocumentFormat = "text"
	FormatMarkdown DocumentFormat = "markdown"
	FormatPDF      DocumentFormat = "pdf"
)

// Document is a loaded source file. Path is its identity.
type Document struct {
	Name   string         `json:"name"`
	Path   string         `json:"path"`
	Format DocumentFormat `json:"format"`
	Text   string         `json:"-"`
}

type SkippedDocument struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// TextWindow is a chunker output; Offset counts runes from the start of the text.
type TextWindow struct {
	Offset int
	Text   string
}

// Chunk is a contiguous rune window of a document's text.
type Chunk struct {
	SourcePath string `json:"source_path"`
	SourceName string `json:"source_name"`
	Ordinal    int    `json:"ordinal"`
	Offset     int    `json:"offset"`
	Text       string `json:"text"`
}

type IndexEntry struct {
	Chunk  Chunk     `json:"chunk"`
	Vector []float32 `json:"-"`
}

// IndexSnapshot is everything needed to persist one full index generation.
type IndexSnapshot struct {
	BuildID   string       `json:"build_id"`
	Model     string       `json:"model"`
	CreatedAt time.Time    `json:"created_at"`
	Entries   []IndexEntry `json:"-"`
}

type IndexInfo struct {
	BuildID   string    `json:"build_id"`
	Model     string    `json:"model"`
	Documents int       `json:"documents"`
	Chunks    int       `json:"chunks"`
	Dimension int       `json:"dimension"`
	CreatedAt time.Time `json:"created_at"`
}

type BuildStatus string

const (
	BuildRunning   BuildStatus = "running"
	BuildSucceeded BuildStatus = "succeeded"
	BuildFailed    BuildStatus = "failed"
)

type IndexBuild struct {
	ID          string      `json:"id"`
	StagingPath string      `json:"staging_path"`
	Status      BuildStatus `json:"status"`
	Documents   int         `json:"documents"`
	Chunks      int         `json:"chunks"`
	Skipped     int         `json:"skipped"`
	Message     string      `json:"message,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
}

type BuildReport struct {
	Build   IndexBuild        `json:"build"`
	Index   IndexInfo         `json:"index"`
	Skipped []SkippedDocument `json:"skipped,omitempty"`
}
