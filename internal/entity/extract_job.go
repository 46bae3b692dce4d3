package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/bill-extractor/constants"
)

// ExtractJob is one /extract request as tracked in extract_job.
type ExtractJob struct {
	ID             uuid.UUID           `json:"id"`
	RequestID      string              `json:"request_id"`
	Status         constants.JobStatus `json:"status"`
	FileCount      int                 `json:"file_count"`
	Companies      []constants.Company `json:"companies,omitempty"`
	OCRChars       int                 `json:"ocr_chars"`
	RowCount       int                 `json:"row_count"`
	OutputFilename *string             `json:"output_filename,omitempty"`
	DriveURL       *string             `json:"drive_url,omitempty"`
	ErrorMessage   *string             `json:"error_message,omitempty"`
	StartedAt      time.Time           `json:"started_at"`
	FinishedAt     *time.Time          `json:"finished_at,omitempty"`
}
