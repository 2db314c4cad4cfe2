package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pawlink/petcircle_backend/config"
)

// event names pushed to clients
const (
	EventNewNotification    = "new-notification"
	EventAdoptRequestStatus = "adopt-request-status"
	EventContractConfirmed  = "contract-confirmed"
)

func UserChannel(userId int) string {
	return fmt.Sprintf("user-%d-notifications", userId)
}

func PostChannel(postId int) string {
	return fmt.Sprintf("adopt-pet-%d", postId)
}

type message struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Notifier pushes realtime events over Redis PUBLISH. Delivery is best
// effort; a push failure is logged by the caller and never fails the
// operation that triggered it.
type Notifier struct{}

func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) Trigger(ctx context.Context, channel string, event string, payload interface{}) error {
	body, err := json.Marshal(message{Event: event, Payload: payload})
	if err != nil {
		return err
	}
	return config.PublishRedisMessage(ctx, channel, body)
}
