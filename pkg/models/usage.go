package models

// UsageRecord is a user's total engagement with one source item, in minutes.
type UsageRecord struct {
	ItemID  string  `json:"item_id" validate:"required,max=64"`
	Minutes float64 `json:"minutes" validate:"gte=0"`
}
