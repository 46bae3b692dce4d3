package entity

import (
	"time"

	"github.com/google/uuid"
)

// UploadFile is one multipart part received by /extract.
type UploadFile struct {
	ID          uuid.UUID `json:"id"`
	JobID       uuid.UUID `json:"job_id"`
	Filename    string    `json:"filename"`
	FileExt     string    `json:"file_ext"`
	FileSize    int64     `json:"file_size"`
	ContentHash string    `json:"content_hash"` // sha256 hex
	Company     string    `json:"company,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}
