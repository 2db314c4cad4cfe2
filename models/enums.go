package models

import "fmt"

type PostStatus string

const (
	PostStatusAvailable PostStatus = "available"
	PostStatusAdopted   PostStatus = "adopted"
)

type RequestType string

const (
	RequestTypeReclaimPet RequestType = "reclaim-pet"
	RequestTypeAdoptPet   RequestType = "adopt-pet"
)

func ParseRequestType(s string) (RequestType, error) {
	switch s {
	case "reclaim-pet":
		return RequestTypeReclaimPet, nil
	case "adopt-pet":
		return RequestTypeAdoptPet, nil
	default:
		return "", fmt.Errorf("invalid request type %q", s)
	}
}

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

func ParseRequestStatus(s string) (RequestStatus, error) {
	switch s {
	case "pending":
		return RequestStatusPending, nil
	case "approved":
		return RequestStatusApproved, nil
	case "rejected":
		return RequestStatusRejected, nil
	default:
		return "", fmt.Errorf("invalid request status %q", s)
	}
}

type ContractStatus string

const (
	ContractStatusPending   ContractStatus = "pending"
	ContractStatusConfirmed ContractStatus = "confirmed"
	ContractStatusCancelled ContractStatus = "cancelled"
)

type NotificationStatus string

const (
	NotificationStatusUnseen NotificationStatus = "unseen"
	NotificationStatusSeen   NotificationStatus = "seen"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusSuccess   OrderStatus = "success"
)

// Outbox publish statuses for JobRecord.PublishStatus.
// Keep these as strings (DB values).
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// Outbox processing statuses for JobRecord.ProcessingStatus.
// These represent worker-side handling state (distinct from PublishStatus).
const (
	OutboxProcessStatusPending    = "PENDING"
	OutboxProcessStatusProcessing = "PROCESSING"
	OutboxProcessStatusSucceeded  = "SUCCEEDED"
	OutboxProcessStatusFailed     = "FAILED"
	OutboxProcessStatusDead       = "DEAD"
)
