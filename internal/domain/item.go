package domain

import "time"

// ItemStatus is the canonical item lifecycle status. The free-text literals
// are the wire values; NormalizeStatus aliases the legacy SCREAMING_SNAKE
// donation scheme onto them at the read boundary.
type ItemStatus string

const (
	StatusPendingApproval ItemStatus = "Pending Approval"
	StatusApproved        ItemStatus = "Approved"
	StatusRejected        ItemStatus = "Rejected"
	StatusRequested       ItemStatus = "Requested"
	StatusReturned        ItemStatus = "Returned"
	StatusDonationPending ItemStatus = "Donation Pending"
	StatusDonationReady   ItemStatus = "Donation Ready"
	StatusDonated         ItemStatus = "Donated"
)

// legacyStatuses maps the enum-style literals written by the old admin item
// model onto the canonical free-text values.
var legacyStatuses = map[string]ItemStatus{
	"DONATION_PENDING": StatusDonationPending,
	"DONATION_READY":   StatusDonationReady,
	"DONATED":          StatusDonated,
}

// NormalizeStatus converts a stored status string to its canonical value.
// Unknown strings pass through unchanged so malformed rows stay visible.
func NormalizeStatus(raw string) ItemStatus {
	if s, ok := legacyStatuses[raw]; ok {
		return s
	}
	return ItemStatus(raw)
}

// IsTerminal reports whether no further lifecycle transitions are permitted.
func (s ItemStatus) IsTerminal() bool {
	return s == StatusRejected || s == StatusDonated
}

// InDonationTrack reports whether the item has entered the donation sub-lifecycle.
func (s ItemStatus) InDonationTrack() bool {
	return s == StatusDonationPending || s == StatusDonationReady || s == StatusDonated
}

// Item is a reported lost or found object. Exclusively owned by the item
// lifecycle service; nothing else writes it.
type Item struct {
	ItemID      string     `json:"id" dynamodbav:"item_id"`
	Name        string     `json:"name" dynamodbav:"name"`
	Description string     `json:"description" dynamodbav:"description"`
	Category    string     `json:"category" dynamodbav:"category"`
	Location    string     `json:"location" dynamodbav:"location"`
	ContactInfo string     `json:"contact_info" dynamodbav:"contact_info"`
	IsLost      bool       `json:"is_lost" dynamodbav:"is_lost"`
	Status      ItemStatus `json:"status" dynamodbav:"status"`
	UserID      string     `json:"user_id" dynamodbav:"user_id"`
	UserEmail   string     `json:"user_email" dynamodbav:"user_email"`
	ImageURL    string     `json:"image_url,omitempty" dynamodbav:"image_url"`
	ReportedAt  time.Time  `json:"timestamp" dynamodbav:"reported_at"`

	ApprovedBy     string     `json:"approved_by,omitempty" dynamodbav:"approved_by"`
	ApprovalDate   *time.Time `json:"approval_date,omitempty" dynamodbav:"approval_date"`
	RequestedBy    string     `json:"requested_by,omitempty" dynamodbav:"requested_by"`
	RequestedAt    *time.Time `json:"requested_at,omitempty" dynamodbav:"requested_at"`
	ReturnedAt     *time.Time `json:"returned_at,omitempty" dynamodbav:"returned_at"`
	LastModifiedBy string     `json:"last_modified_by,omitempty" dynamodbav:"last_modified_by"`
	LastModifiedAt *time.Time `json:"last_modified_at,omitempty" dynamodbav:"last_modified_at"`

	// Donation track.
	MarkedReadyBy     string     `json:"marked_ready_by,omitempty" dynamodbav:"marked_ready_by"`
	MarkedReadyAt     *time.Time `json:"marked_ready_at,omitempty" dynamodbav:"marked_ready_at"`
	DonatedBy         string     `json:"donated_by,omitempty" dynamodbav:"donated_by"`
	DonatedAt         *time.Time `json:"donated_at,omitempty" dynamodbav:"donated_at"`
	DonationRecipient string     `json:"donation_recipient,omitempty" dynamodbav:"donation_recipient"`
	EstimatedValue    float64    `json:"estimated_value,omitempty" dynamodbav:"estimated_value"`
}

// CreateItemRequest is the report-submission payload.
type CreateItemRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description" validate:"required"`
	Category    string `json:"category" validate:"required"`
	Location    string `json:"location" validate:"required"`
	ContactInfo string `json:"contact_info" validate:"required"`
	IsLost      bool   `json:"is_lost"`
	ImageURL    string `json:"image_url"`
}

// DonateRequest is the mark-donated payload.
type DonateRequest struct {
	Recipient      string  `json:"recipient" validate:"required,min=3"`
	EstimatedValue float64 `json:"estimated_value" validate:"gte=0,lte=1000000"`
}

// DonationStats is the read-side aggregation over donation-track items.
type DonationStats struct {
	CountByStatus map[ItemStatus]int `json:"count_by_status"`
	TotalValue    float64            `json:"total_value"`
	AverageAgeDay float64            `json:"average_age_days"`
	TopCategory   string             `json:"top_category"`
}
