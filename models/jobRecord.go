package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pawlink/petcircle_backend/utils"
	"gorm.io/gorm"
)

// JobRecord is the transactional-outbox row behind the job queue. Enqueue
// writes the row inside the caller's DB transaction but does NOT publish to
// Pub/Sub; publishing is performed asynchronously by the outbox dispatcher
// after commit.
type JobRecord struct {
	ID      int    `gorm:"primary_key;index:idx_job_dispatch,priority:3" json:"id"`
	JobId   string `gorm:"size:64;not null;uniqueIndex" json:"job_id"`
	Kind    string `gorm:"size:50;not null;index" json:"kind"`
	Payload []byte `gorm:"type:blob" json:"payload"`
	// publish metadata (dispatcher side)
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_job_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_job_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	// processing metadata (consumer/worker side)
	ProcessingStatus     string     `gorm:"size:20;index;not null;default:'PENDING'" json:"processing_status"` // PENDING|PROCESSING|SUCCEEDED|FAILED|DEAD
	ProcessAttempts      int        `gorm:"not null;default:0" json:"process_attempts"`
	NextProcessAttemptAt *time.Time `gorm:"index" json:"next_process_attempt_at"`
	LastProcessError     *string    `gorm:"type:text" json:"last_process_error"`
	ProcessedAt          *time.Time `gorm:"index" json:"processed_at"`
	IsProcessed          bool       `gorm:"index;not null" json:"is_processed"`
	CorrelationId        string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// InsertJobRecord writes the outbox row inside tx. The caller's commit makes
// the job durable; the dispatcher picks it up afterwards.
func InsertJobRecord(ctx context.Context, tx *gorm.DB, kind string, payload []byte) (*JobRecord, error) {

	record := JobRecord{
		JobId:            uuid.NewString(),
		Kind:             kind,
		Payload:          payload,
		PublishStatus:    OutboxPublishStatusPending,
		ProcessingStatus: OutboxProcessStatusPending,
		IsProcessed:      false,
		CorrelationId:    correlationIdFromContextOrNew(ctx),
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
