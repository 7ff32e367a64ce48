package domain

import "time"

// ClaimStatus is the claim-request lifecycle status. Approved and Rejected
// are terminal.
type ClaimStatus string

const (
	ClaimPending  ClaimStatus = "Pending"
	ClaimApproved ClaimStatus = "Approved"
	ClaimRejected ClaimStatus = "Rejected"
)

// ClaimRequest is a user's assertion of ownership over a found item. It
// refers to the item by id only and must re-resolve it on every transition.
type ClaimRequest struct {
	RequestID        string      `json:"request_id" dynamodbav:"request_id"`
	ItemID           string      `json:"item_id" dynamodbav:"item_id"`
	ItemName         string      `json:"item_name" dynamodbav:"item_name"`
	UserID           string      `json:"user_id" dynamodbav:"user_id"`
	UserEmail        string      `json:"user_email" dynamodbav:"user_email"`
	UserName         string      `json:"user_name" dynamodbav:"user_name"`
	UserPhone        string      `json:"user_phone,omitempty" dynamodbav:"user_phone"`
	Reason           string      `json:"reason" dynamodbav:"reason"`
	ProofDescription string      `json:"proof_description,omitempty" dynamodbav:"proof_description"`
	Status           ClaimStatus `json:"status" dynamodbav:"status"`
	RequestDate      time.Time   `json:"request_date" dynamodbav:"request_date"`
	ReviewedBy       string      `json:"reviewed_by,omitempty" dynamodbav:"reviewed_by"`
	ReviewDate       *time.Time  `json:"review_date,omitempty" dynamodbav:"review_date"`
	ReviewNotes      string      `json:"review_notes,omitempty" dynamodbav:"review_notes"`
}

// SubmitClaimRequest is the claim-submission payload.
type SubmitClaimRequest struct {
	Reason           string `json:"reason" validate:"required,min=10"`
	ProofDescription string `json:"proof_description"`
	UserName         string `json:"user_name" validate:"required"`
	UserPhone        string `json:"user_phone"`
}
