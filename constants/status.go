package constants

// JobStatus is the canonical status for rows in extract_job.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusRunning  JobStatus = "RUNNING"  // files received, pipeline started
	JobStatusOCROK    JobStatus = "OCR_OK"   // text extracted
	JobStatusAnalyzed JobStatus = "ANALYZED" // rows produced by the LLM
	JobStatusUploaded JobStatus = "UPLOADED" // workbook stored on Drive
	JobStatusFailed   JobStatus = "FAILED"   // terminal failure
)
