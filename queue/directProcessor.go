package queue

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/pawlink/petcircle_backend/config"
	"github.com/pawlink/petcircle_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DirectProcessor processes unhandled outbox records without Pub/Sub. This is
// intended for local/dev environments where Pub/Sub is not configured, and as
// a safety net when delivery is misconfigured: rows stuck in PENDING/FAILED
// still get handled eventually. Handlers are redelivery-safe so running it
// alongside the Pub/Sub worker is harmless.
type DirectProcessor struct {
	DB        *gorm.DB
	Logger    *logrus.Logger
	Worker    *Worker
	WorkerID  string
	BatchSize int
	Interval  time.Duration
	LockTTL   time.Duration
}

func NewDirectProcessor(db *gorm.DB, logger *logrus.Logger, worker *Worker) *DirectProcessor {
	return &DirectProcessor{
		DB:        db,
		Logger:    logger,
		Worker:    worker,
		WorkerID:  "direct-" + time.Now().Format("20060102-150405.000"),
		BatchSize: 50,
		Interval:  2 * time.Second,
		LockTTL:   30 * time.Second,
	}
}

// ShouldRunDirectProcessor defaults to on; set OUTBOX_DIRECT_PROCESSING=false
// to rely on Pub/Sub delivery only.
func ShouldRunDirectProcessor() bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv("OUTBOX_DIRECT_PROCESSING")))
	if val == "true" {
		return true
	}
	if val == "false" {
		return false
	}
	return true
}

func (p *DirectProcessor) Run(ctx context.Context) {
	if p == nil || p.DB == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.processOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.Interval):
		}
	}
}

func (p *DirectProcessor) processOnce(ctx context.Context) {
	now := time.Now().UTC()
	staleBefore := now.Add(-p.LockTTL)

	var claimed []models.JobRecord
	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("is_processed = 0").
			Where("processing_status IN ?", []string{models.OutboxProcessStatusPending, models.OutboxProcessStatusFailed}).
			Where("(next_process_attempt_at IS NULL OR next_process_attempt_at <= ?)", now).
			Where("(locked_at IS NULL OR locked_at <= ?)", staleBefore).
			Order("id ASC").
			Limit(p.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		for i := range claimed {
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &p.WorkerID
			if err := tx.Model(&models.JobRecord{}).
				Where("id = ?", claimed[i].ID).
				Updates(map[string]interface{}{
					"locked_at": claimed[i].LockedAt,
					"locked_by": claimed[i].LockedBy,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || len(claimed) == 0 {
		return
	}

	for _, rec := range claimed {
		msg := config.JobMessage{
			OutboxId:      rec.ID,
			JobId:         rec.JobId,
			Kind:          rec.Kind,
			Payload:       rec.Payload,
			CorrelationId: rec.CorrelationId,
		}
		if _, err := p.Worker.ProcessMessage(ctx, msg); err != nil {
			if p.Logger != nil {
				p.Logger.WithFields(logrus.Fields{
					"field":     "DirectProcessor",
					"kind":      rec.Kind,
					"job_id":    rec.JobId,
					"record_id": rec.ID,
				}).Error("direct processing failed: " + err.Error())
			}
		}
	}
}
