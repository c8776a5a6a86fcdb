package models

import (
	"io"
	"time"
)

// Workspace is the studio's single-user view state. The rendered review is
// derived from Bundle and is rebuilt after loading, so it is not stored.
type Workspace struct {
	Form            FormState          `json:"form"`
	Bundle          *ContentBundle     `json:"bundle,omitempty"`
	Request         *GenerationRequest `json:"request,omitempty"`
	GeneratedAt     time.Time          `json:"generatedAt,omitempty"`
	GenerationToken uint64             `json:"generationToken"`
	UpdatedAt       time.Time          `json:"updatedAt"`

	Review *Review `json:"-"`
}

// NewWorkspace returns a workspace with a pristine form.
func NewWorkspace() *Workspace {
	return &Workspace{Form: NewFormState(), UpdatedAt: time.Now().UTC()}
}

// DownloadDescriptor is a document being downloaded; it exists for one call.
type DownloadDescriptor struct {
	RecordID    string
	Filename    string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

// DownloadResult describes a delivered document.
type DownloadResult struct {
	RecordID     string    `json:"recordId"`
	Filename     string    `json:"filename"`
	SizeBytes    int64     `json:"sizeBytes"`
	Location     string    `json:"location,omitempty"`
	DownloadedAt time.Time `json:"downloadedAt"`
}

// JournalEntry is a persisted download record.
type JournalEntry struct {
	ID           string    `db:"id" json:"id"`
	RecordID     string    `db:"record_id" json:"recordId"`
	Filename     string    `db:"filename" json:"filename"`
	SizeBytes    int64     `db:"size_bytes" json:"sizeBytes"`
	DownloadedAt time.Time `db:"downloaded_at" json:"downloadedAt"`
}

// ExportFormat enumerates local export formats.
type ExportFormat string

const (
	ExportFormatPDF ExportFormat = "pdf"
	ExportFormatCSV ExportFormat = "csv"
)

// ExportResult describes a stored export of the review.
type ExportResult struct {
	ID           string       `json:"id"`
	Format       ExportFormat `json:"format"`
	Filename     string       `json:"filename"`
	RelativePath string       `json:"-"`
	URL          string       `json:"url"`
	ExpiresAt    time.Time    `json:"expiresAt"`
}
