package domain

import "time"

// ActivityLog is an immutable audit entry appended on every administrative
// mutation. Never updated or deleted by the application.
type ActivityLog struct {
	LogID         string            `json:"id" dynamodbav:"log_id"`
	ActionType    string            `json:"action_type" dynamodbav:"action_type"`
	Description   string            `json:"description" dynamodbav:"description"`
	ActorEmail    string            `json:"actor_email" dynamodbav:"actor_email"`
	ActorRole     Role              `json:"actor_role" dynamodbav:"actor_role"`
	TargetType    string            `json:"target_type" dynamodbav:"target_type"`
	TargetID      string            `json:"target_id" dynamodbav:"target_id"`
	PreviousValue string            `json:"previous_value,omitempty" dynamodbav:"previous_value"`
	NewValue      string            `json:"new_value,omitempty" dynamodbav:"new_value"`
	CreatedAt     time.Time         `json:"timestamp" dynamodbav:"created_at"`
	DeviceInfo    string            `json:"device_info,omitempty" dynamodbav:"device_info"`
	IPAddress     string            `json:"ip_address,omitempty" dynamodbav:"ip_address"`
	Metadata      map[string]string `json:"metadata,omitempty" dynamodbav:"metadata"`
}

// Audit action types.
const (
	ActionItemApproved  = "ITEM_APPROVED"
	ActionItemRejected  = "ITEM_REJECTED"
	ActionClaimApproved = "CLAIM_APPROVED"
	ActionClaimRejected = "CLAIM_REJECTED"
	ActionDonationReady = "DONATION_READY"
	ActionItemDonated   = "ITEM_DONATED"
)

// Audit target types.
const (
	TargetItem  = "item"
	TargetClaim = "claim"
)
