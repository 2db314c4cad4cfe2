package queue

import (
	"context"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/pawlink/petcircle_backend/config"
	"github.com/pawlink/petcircle_backend/models"
	"github.com/sirupsen/logrus"
)

type processRetryConfig struct {
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

func getProcessRetryConfig() processRetryConfig {
	cfg := processRetryConfig{
		maxAttempts: 10,
		baseBackoff: 5 * time.Second,
		maxBackoff:  10 * time.Minute,
	}

	if v := os.Getenv("OUTBOX_PROCESS_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.maxAttempts = n
		}
	}
	if v := os.Getenv("OUTBOX_PROCESS_BASE_BACKOFF_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.baseBackoff = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("OUTBOX_PROCESS_MAX_BACKOFF_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.maxBackoff = time.Duration(n) * time.Second
		}
	}

	return cfg
}

func processBackoff(attempt int, cfg processRetryConfig) time.Duration {
	if attempt <= 0 {
		return cfg.baseBackoff
	}
	// base * 2^(attempt-1), capped.
	exp := float64(attempt - 1)
	delay := time.Duration(float64(cfg.baseBackoff) * math.Pow(2, exp))
	if delay > cfg.maxBackoff {
		return cfg.maxBackoff
	}
	return delay
}

func markProcessing(ctx context.Context, id int) {
	if id <= 0 {
		return
	}
	db := config.GetDB()
	_ = db.WithContext(ctx).
		Model(&models.JobRecord{}).
		Where("id = ? AND processing_status <> ?", id, models.OutboxProcessStatusDead).
		Updates(map[string]interface{}{
			"processing_status": models.OutboxProcessStatusProcessing,
		}).Error
}

// markProcessFailure returns whether the record is now DEAD.
func markProcessFailure(ctx context.Context, logger *logrus.Logger, m config.JobMessage, err error) bool {
	if m.OutboxId <= 0 {
		return false
	}

	cfg := getProcessRetryConfig()
	now := time.Now().UTC()
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}

	db := config.GetDB()

	// Fetch current attempts for stable backoff and DEAD cutoff.
	var rec models.JobRecord
	if qerr := db.WithContext(ctx).
		Select("id,kind,process_attempts").
		Where("id = ?", m.OutboxId).
		First(&rec).Error; qerr != nil {
		// Still try to record the error even if we can't read attempts.
		_ = db.WithContext(ctx).Model(&models.JobRecord{}).
			Where("id = ?", m.OutboxId).
			Updates(map[string]interface{}{
				"last_process_error": &errMsg,
				"locked_at":          nil,
				"locked_by":          nil,
				"processing_status":  models.OutboxProcessStatusFailed,
			}).Error
		return false
	}

	attempts := rec.ProcessAttempts + 1
	status := models.OutboxProcessStatusFailed

	var nextAttemptAt *time.Time
	if attempts >= cfg.maxAttempts {
		status = models.OutboxProcessStatusDead
		nextAttemptAt = nil
	} else {
		t := now.Add(processBackoff(attempts, cfg))
		nextAttemptAt = &t
	}

	_ = db.WithContext(ctx).Model(&models.JobRecord{}).
		Where("id = ?", m.OutboxId).
		Updates(map[string]interface{}{
			"last_process_error":      &errMsg,
			"process_attempts":        attempts,
			"next_process_attempt_at": nextAttemptAt,
			"processing_status":       status,
			"locked_at":               nil,
			"locked_by":               nil,
		}).Error

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":             "JobProcessing",
			"kind":              rec.Kind,
			"record_id":         rec.ID,
			"processing_status": status,
			"process_attempts":  attempts,
		}).Error("job processing failed: " + errMsg)
	}

	return status == models.OutboxProcessStatusDead
}

// markProcessDead marks a job terminal immediately, bypassing retries.
// Used for payloads that can never succeed (unknown kind, corrupt JSON).
func markProcessDead(ctx context.Context, logger *logrus.Logger, m config.JobMessage, err error) {
	if m.OutboxId <= 0 {
		return
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	db := config.GetDB()
	_ = db.WithContext(ctx).Model(&models.JobRecord{}).
		Where("id = ?", m.OutboxId).
		Updates(map[string]interface{}{
			"processing_status":       models.OutboxProcessStatusDead,
			"last_process_error":      &errMsg,
			"next_process_attempt_at": nil,
			"locked_at":               nil,
			"locked_by":               nil,
		}).Error

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":     "JobProcessing",
			"kind":      m.Kind,
			"record_id": m.OutboxId,
		}).Error("job moved to DEAD: " + errMsg)
	}
}

func markProcessSuccess(ctx context.Context, logger *logrus.Logger, m config.JobMessage) {
	if m.OutboxId <= 0 {
		return
	}
	now := time.Now().UTC()
	db := config.GetDB()

	// Do not override terminal DEAD rows.
	_ = db.WithContext(ctx).Model(&models.JobRecord{}).
		Where("id = ? AND processing_status <> ?", m.OutboxId, models.OutboxProcessStatusDead).
		Updates(map[string]interface{}{
			"processing_status":       models.OutboxProcessStatusSucceeded,
			"is_processed":            true,
			"processed_at":            &now,
			"next_process_attempt_at": nil,
			"last_process_error":      nil,
			"locked_at":               nil,
			"locked_by":               nil,
		}).Error

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":             "JobProcessing",
			"kind":              m.Kind,
			"record_id":         m.OutboxId,
			"processing_status": models.OutboxProcessStatusSucceeded,
		}).Info("job processed successfully")
	}
}

// alreadyProcessed reports whether a redelivered message was handled before.
func alreadyProcessed(ctx context.Context, outboxId int) bool {
	if outboxId <= 0 {
		return false
	}
	db := config.GetDB()
	var rec models.JobRecord
	err := db.WithContext(ctx).
		Select("id,is_processed").
		Where("id = ?", outboxId).
		First(&rec).Error
	if err != nil {
		return false
	}
	return rec.IsProcessed
}
