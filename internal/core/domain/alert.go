package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AlertKind string

const (
	AlertOutOfStock   AlertKind = "out-of-stock"
	AlertLowStock     AlertKind = "low-stock"
	AlertExpiringSoon AlertKind = "expiring-soon"
	AlertExpired      AlertKind = "expired"
	AlertSummary      AlertKind = "summary"
	AlertItemAdded    AlertKind = "item-added"
	AlertItemUpdated  AlertKind = "item-updated"
	AlertItemDeleted  AlertKind = "item-deleted"
	AlertBulk         AlertKind = "bulk-operation"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Alert is an immutable notification derived from the replica.
type Alert struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"owner_id"`
	Kind            AlertKind `json:"kind"`
	Severity        Severity  `json:"severity"`
	ItemID          string    `json:"item_id,omitempty"`
	Title           string    `json:"title"`
	Message         string    `json:"message"`
	CurrentValue    float64   `json:"current_value"`
	Threshold       float64   `json:"threshold"`
	Percentage      float64   `json:"percentage,omitempty"`
	DaysUntilExpiry int       `json:"days_until_expiry,omitempty"`
	DedupKey        string    `json:"dedup_key"`
	CreatedAt       time.Time `json:"created_at"`
}

// InventoryStats aggregates a replica snapshot.
type InventoryStats struct {
	TotalItems       int             `json:"total_items"`
	TotalValue       decimal.Decimal `json:"total_value"`
	CountsByCategory map[string]int  `json:"counts_by_category"`
	LowStockCount    int             `json:"low_stock_count"`
	OutOfStockCount  int             `json:"out_of_stock_count"`
	ExpiringCount    int             `json:"expiring_count"`
	ExpiredCount     int             `json:"expired_count"`
}
