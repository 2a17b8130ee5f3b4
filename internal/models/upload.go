package models

import "time"

// UploadStatus tracks a marksheet image through extraction.
type UploadStatus string

const (
	UploadStatusPending    UploadStatus = "pending"
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusCompleted  UploadStatus = "completed"
	UploadStatusFailed     UploadStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s UploadStatus) Terminal() bool {
	return s == UploadStatusCompleted || s == UploadStatusFailed
}

// UploadBatch is one submitted marksheet image and the outcome of processing it.
type UploadBatch struct {
	ID               string       `db:"id" json:"id"`
	ImagePath        string       `db:"image_path" json:"image_path"`
	OriginalFilename string       `db:"original_filename" json:"original_filename"`
	UploadedAt       time.Time    `db:"uploaded_at" json:"uploaded_at"`
	Status           UploadStatus `db:"status" json:"status"`
	ErrorMessage     *string      `db:"error_message" json:"error_message,omitempty"`
	StudentCount     int          `db:"student_count" json:"student_count"`
}
