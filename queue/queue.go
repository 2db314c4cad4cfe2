package queue

import (
	"context"

	"github.com/pawlink/petcircle_backend/models"
	"github.com/pawlink/petcircle_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// JobQueue is the request-path half of the job pipeline. Enqueue only writes
// a durable outbox row; the HTTP response never waits for Pub/Sub. The
// dispatcher publishes committed rows, the worker consumes them.
type JobQueue struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewJobQueue(db *gorm.DB, logger *logrus.Logger) *JobQueue {
	return &JobQueue{db: db, logger: logger}
}

// Enqueue writes the job's outbox row in its own short transaction.
func (q *JobQueue) Enqueue(ctx context.Context, job Job) (*models.JobRecord, error) {
	var record *models.JobRecord
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		record, err = q.EnqueueTx(ctx, tx, job)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// EnqueueTx writes the outbox row inside the caller's transaction so the job
// becomes durable exactly when the caller's mutation commits.
func (q *JobQueue) EnqueueTx(ctx context.Context, tx *gorm.DB, job Job) (*models.JobRecord, error) {
	payload, err := utils.MarshalToJSON(job)
	if err != nil {
		return nil, err
	}
	return models.InsertJobRecord(ctx, tx, string(job.Kind()), []byte(payload))
}
