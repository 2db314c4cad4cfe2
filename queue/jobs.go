package queue

import (
	"fmt"

	"github.com/pawlink/petcircle_backend/utils"
)

type JobKind string

const (
	JobKindPetAdoption    JobKind = "PET_ADOPTION"
	JobKindFindPet        JobKind = "FIND_PET"
	JobKindOrderProcessed JobKind = "ORDER_PROCESSED"
	JobKindUpdateStatus   JobKind = "UPDATE_STATUS"
)

// Job is the closed set of background work variants. Every variant carries
// its own typed payload; dispatch is an exhaustive type switch in the
// handlers, never a stringly-typed lookup.
type Job interface {
	Kind() JobKind
	// SerializationKey groups jobs that must not run concurrently.
	// Jobs with different keys may interleave freely.
	SerializationKey() string
}

type PetAdoptionJob struct {
	PostId  int    `json:"post_id"`
	City    string `json:"city"`
	PetType string `json:"pet_type"`
	PetName string `json:"pet_name"`
}

func (PetAdoptionJob) Kind() JobKind { return JobKindPetAdoption }
func (j PetAdoptionJob) SerializationKey() string {
	return fmt.Sprintf("post-%d", j.PostId)
}

type FindPetJob struct {
	PostId  int    `json:"post_id"`
	City    string `json:"city"`
	PetType string `json:"pet_type"`
}

func (FindPetJob) Kind() JobKind { return JobKindFindPet }
func (j FindPetJob) SerializationKey() string {
	return fmt.Sprintf("lost-pet-post-%d", j.PostId)
}

type OrderProcessedJob struct {
	OrderId int `json:"order_id"`
}

func (OrderProcessedJob) Kind() JobKind { return JobKindOrderProcessed }
func (j OrderProcessedJob) SerializationKey() string {
	return fmt.Sprintf("order-%d", j.OrderId)
}

type UpdateOrderStatusJob struct {
	OrderId int `json:"order_id"`
}

func (UpdateOrderStatusJob) Kind() JobKind { return JobKindUpdateStatus }
func (j UpdateOrderStatusJob) SerializationKey() string {
	return fmt.Sprintf("order-%d", j.OrderId)
}

// UnknownKindError marks a payload that no handler can ever process.
// The worker treats it as terminal instead of retrying.
type UnknownKindError struct {
	Kind string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown job kind %q", e.Kind)
}

// DecodeJob turns a stored (kind, payload) pair back into its typed variant.
func DecodeJob(kind string, payload []byte) (Job, error) {
	switch JobKind(kind) {
	case JobKindPetAdoption:
		var j PetAdoptionJob
		if err := utils.UnmarshalFromJSON(payload, &j); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return j, nil
	case JobKindFindPet:
		var j FindPetJob
		if err := utils.UnmarshalFromJSON(payload, &j); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return j, nil
	case JobKindOrderProcessed:
		var j OrderProcessedJob
		if err := utils.UnmarshalFromJSON(payload, &j); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return j, nil
	case JobKindUpdateStatus:
		var j UpdateOrderStatusJob
		if err := utils.UnmarshalFromJSON(payload, &j); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return j, nil
	default:
		return nil, &UnknownKindError{Kind: kind}
	}
}
