// order-status-sweep enqueues an UPDATE_STATUS job for every order that has
// sat in delivered state past the promotion age. Meant to run on a schedule
// (cron / Cloud Scheduler); the promotion itself is guarded, so overlapping
// sweeps are harmless.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/order-status-sweep
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pawlink/petcircle_backend/config"
	"github.com/pawlink/petcircle_backend/models"
	"github.com/pawlink/petcircle_backend/queue"
)

func main() {
	ctx := context.Background()
	logger := config.GetLogger()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	cutoff := time.Now().UTC().Add(-queue.OrderPromotionAge)
	ids, err := models.FindPromotableOrderIds(ctx, cutoff)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list promotable orders: %v\n", err)
		os.Exit(1)
	}
	if len(ids) == 0 {
		fmt.Println("no orders to promote")
		return
	}

	q := queue.NewJobQueue(db, logger)
	enqueued := 0
	for _, id := range ids {
		if _, err := q.Enqueue(ctx, queue.UpdateOrderStatusJob{OrderId: id}); err != nil {
			fmt.Fprintf(os.Stderr, "failed to enqueue order %d: %v\n", id, err)
			continue
		}
		enqueued++
	}
	fmt.Printf("enqueued %d of %d promotable orders\n", enqueued, len(ids))
}
