package domain

import "time"

// Redacted replaces fields a regular caller may not see.
const Redacted = "[hidden]"

// ViewableItem is the read-boundary projection of an Item. Location, contact
// info and the exact report date are redacted for regular callers; the stored
// record is never mutated.
type ViewableItem struct {
	ItemID      string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Location    string     `json:"location"`
	ContactInfo string     `json:"contact_info"`
	IsLost      bool       `json:"is_lost"`
	Status      ItemStatus `json:"status"`
	ImageURL    string     `json:"image_url,omitempty"`
	ReportedAt  string     `json:"timestamp"`
}

// FilterForRole projects an item for the given caller role. Staff see every
// field; regular users get the redaction marker for location and contact info
// and only the report month for the date.
func FilterForRole(item *Item, role Role) ViewableItem {
	v := ViewableItem{
		ItemID:      item.ItemID,
		Name:        item.Name,
		Description: item.Description,
		Category:    item.Category,
		Location:    item.Location,
		ContactInfo: item.ContactInfo,
		IsLost:      item.IsLost,
		Status:      NormalizeStatus(string(item.Status)),
		ImageURL:    item.ImageURL,
		ReportedAt:  item.ReportedAt.UTC().Format(time.RFC3339),
	}
	if !role.IsStaff() {
		v.Location = Redacted
		v.ContactInfo = Redacted
		v.ReportedAt = item.ReportedAt.UTC().Format("2006-01")
	}
	return v
}
