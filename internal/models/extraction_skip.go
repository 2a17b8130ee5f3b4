package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ExtractionSkip records a student entry from the model response that was
// not ingested, with the raw element kept for review.
type ExtractionSkip struct {
	ID          string         `db:"id" json:"id"`
	UploadID    string         `db:"upload_id" json:"upload_id"`
	RecordIndex int            `db:"record_index" json:"record_index"`
	Reason      string         `db:"reason" json:"reason"`
	Payload     types.JSONText `db:"payload" json:"payload,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}
