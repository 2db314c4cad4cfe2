package queue

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/pawlink/petcircle_backend/config"
	"github.com/pawlink/petcircle_backend/utils"
	"github.com/sirupsen/logrus"
)

// Worker consumes job messages from Pub/Sub. Jobs sharing a serialization
// key are handled one at a time; unrelated jobs run concurrently up to
// MaxOutstandingMessages.
type Worker struct {
	Logger   *logrus.Logger
	Handlers *Handlers

	keyMutexMap map[string]*sync.Mutex
	globalMutex sync.Mutex
}

func NewWorker(logger *logrus.Logger, handlers *Handlers) *Worker {
	return &Worker{
		Logger:      logger,
		Handlers:    handlers,
		keyMutexMap: make(map[string]*sync.Mutex),
	}
}

func (w *Worker) keyMutex(key string) *sync.Mutex {
	w.globalMutex.Lock()
	defer w.globalMutex.Unlock()
	mutex, exists := w.keyMutexMap[key]
	if !exists {
		mutex = &sync.Mutex{}
		w.keyMutexMap[key] = mutex
	}
	return mutex
}

// Run subscribes and starts receiving on a background goroutine.
func (w *Worker) Run(ctx context.Context) error {
	logger := w.Logger

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(client, os.Getenv("PUBSUB_TOPIC"))
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(client, os.Getenv("PUBSUB_SUBSCRIPTION"), topic)
	if err != nil {
		return err
	}
	sub.ReceiveSettings.MaxOutstandingMessages = 10

	callback := func(ctx context.Context, msg *pubsub.Message) {
		m := config.JobMessage{}
		err := json.Unmarshal(msg.Data, &m)
		if err != nil {
			config.LogError(logger, "worker.go", "Run", "Unmarshaling pubsub message", msg.Data, err)
			// corrupt payload can never succeed
			msg.Ack()
			return
		}

		terminal, err := w.ProcessMessage(ctx, m)
		if err != nil && !terminal {
			logger.WithFields(logrus.Fields{
				"field":      "JobWorker",
				"kind":       m.Kind,
				"job_id":     m.JobId,
				"record_id":  m.OutboxId,
				"message_id": msg.ID,
			}).Error("pubsub processing failed: " + err.Error())
			msg.Nack()
			return
		}
		msg.Ack()
	}

	go func() {
		err := sub.Receive(ctx, callback)
		if err != nil {
			config.LogError(logger, "worker.go", "Run", "Failed to receive messages", nil, err)
		}
	}()

	return nil
}

// ProcessMessage decodes and runs one job. The returned terminal flag tells
// the transport to stop redelivering (success, duplicate, or DEAD).
func (w *Worker) ProcessMessage(ctx context.Context, m config.JobMessage) (bool, error) {
	job, err := DecodeJob(m.Kind, m.Payload)
	if err != nil {
		// Unknown kind or corrupt payload: no retry will ever fix it.
		markProcessDead(ctx, w.Logger, m, err)
		return true, err
	}

	// Serialize jobs that touch the same entity.
	mutex := w.keyMutex(job.SerializationKey())
	mutex.Lock()
	defer mutex.Unlock()

	if alreadyProcessed(ctx, m.OutboxId) {
		return true, nil
	}
	markProcessing(ctx, m.OutboxId)

	ctx = utils.SetUserIdInContext(ctx, 0)
	ctx = utils.SetUserNameInContext(ctx, "System")
	ctx = utils.SetCorrelationIdInContext(ctx, m.CorrelationId)

	if err := w.Handlers.Handle(ctx, job); err != nil {
		dead := markProcessFailure(ctx, w.Logger, m, err)
		return dead, err
	}
	markProcessSuccess(ctx, w.Logger, m)
	return true, nil
}
