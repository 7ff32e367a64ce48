package domain

import "time"

// NotificationType identifies the lifecycle transition that produced a
// notification. The literals are part of the wire contract.
type NotificationType string

const (
	TypeFoundItemSubmitted NotificationType = "FOUND_ITEM_SUBMITTED"
	TypeFoundItemApproved  NotificationType = "FOUND_ITEM_APPROVED"
	TypeFoundItemRejected  NotificationType = "FOUND_ITEM_REJECTED"
	TypeClaimSubmitted     NotificationType = "CLAIM_SUBMITTED"
	TypeClaimApproved      NotificationType = "CLAIM_APPROVED"
	TypeClaimRejected      NotificationType = "CLAIM_REJECTED"

	// TypeAdminMessage is the manually composed admin notification. It
	// shares the persisted shape but carries no lifecycle back-reference.
	TypeAdminMessage NotificationType = "ADMIN_MESSAGE"
)

// Notification is a one-way message record. Created exactly once per
// (transition, recipient) pair; only the read/delivered flags mutate after.
type Notification struct {
	NotificationID string           `json:"id" dynamodbav:"notification_id"`
	UserID         string           `json:"user_id" dynamodbav:"user_id"`
	UserEmail      string           `json:"user_email" dynamodbav:"user_email"`
	Type           NotificationType `json:"type" dynamodbav:"type"`
	Title          string           `json:"title" dynamodbav:"title"`
	Message        string           `json:"message" dynamodbav:"message"`
	ItemID         string           `json:"item_id,omitempty" dynamodbav:"item_id"`
	RequestID      string           `json:"request_id,omitempty" dynamodbav:"request_id"`
	CreatedAt      time.Time        `json:"timestamp" dynamodbav:"created_at"`
	Read           bool             `json:"read" dynamodbav:"read"`
	Delivered      bool             `json:"delivered" dynamodbav:"delivered"`
}

// ComposeRequest is the admin manual-compose payload. Exactly one of
// Broadcast, Role or UserID selects the recipient set.
type ComposeRequest struct {
	Title     string `json:"title" validate:"required"`
	Message   string `json:"message" validate:"required"`
	Broadcast bool   `json:"broadcast"`
	Role      string `json:"role"`
	UserID    string `json:"user_id"`
}
