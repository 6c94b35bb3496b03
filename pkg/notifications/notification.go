package notifications

import (
	"maps"
	"time"
)

// Category is the kind of a stored notification.
type Category string

const (
	CategoryPlanUpdate  Category = "plan_update"
	CategoryPriceChange Category = "price_change"
	CategoryUsageAlert  Category = "usage_alert"
	CategoryNFTReceived Category = "nft_received"
	CategorySystem      Category = "system"
)

// Categories lists every category in a stable order.
var Categories = []Category{
	CategoryPlanUpdate,
	CategoryPriceChange,
	CategoryUsageAlert,
	CategoryNFTReceived,
	CategorySystem,
}

func (c Category) Valid() bool {
	switch c {
	case CategoryPlanUpdate, CategoryPriceChange, CategoryUsageAlert, CategoryNFTReceived, CategorySystem:
		return true
	}
	return false
}

// Channel returns the presentation channel id for the category.
func (c Category) Channel() string {
	switch c {
	case CategoryPlanUpdate:
		return "plan-updates"
	case CategoryPriceChange:
		return "price-alerts"
	case CategoryUsageAlert:
		return "usage-alerts"
	case CategoryNFTReceived:
		return "nft-notifications"
	default:
		return "system"
	}
}

// Priority represents the notification priority level.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	}
	return false
}

// Notification is a stored, user-visible notification.
type Notification struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Type      Category       `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Read      bool           `json:"read"`
	Priority  Priority       `json:"priority"`
}

// Clone returns a copy that shares nothing mutable at the top level with n.
func (n Notification) Clone() Notification {
	if n.Data != nil {
		n.Data = maps.Clone(n.Data)
	}
	return n
}

// Request describes a notification to create. Data is attached verbatim.
type Request struct {
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Category Category       `json:"type"`
	Priority Priority       `json:"priority"`
	Data     map[string]any `json:"data,omitempty"`
}
