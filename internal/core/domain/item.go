package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Item is one inventory record owned by a single tenant.
type Item struct {
	ID         string          `json:"id"`
	OwnerID    string          `json:"owner_id"`
	Name       string          `json:"name"`
	Category   string          `json:"category"`
	Unit       string          `json:"unit"`
	Supplier   string          `json:"supplier,omitempty"`
	Stock      float64         `json:"stock"`
	Minimum    float64         `json:"minimum"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	ExpiryDate *time.Time      `json:"expiry_date,omitempty"`
	Purchase   *PurchaseInfo   `json:"purchase,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// PurchaseInfo records how the item was bought when it comes in packages.
type PurchaseInfo struct {
	Quantity  float64         `json:"quantity"`
	Unit      string          `json:"unit"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

// Validate reports whether a record received from the remote store or the
// event stream is well-formed enough to enter the replica.
func (i Item) Validate() error {
	switch {
	case strings.TrimSpace(i.ID) == "":
		return fmt.Errorf("%w: missing id", ErrMalformedRecord)
	case strings.TrimSpace(i.OwnerID) == "":
		return fmt.Errorf("%w: item %s has no owner", ErrMalformedRecord, i.ID)
	case strings.TrimSpace(i.Name) == "":
		return fmt.Errorf("%w: item %s has no name", ErrMalformedRecord, i.ID)
	case i.Stock < 0 || i.Minimum < 0:
		return fmt.Errorf("%w: item %s has negative quantities", ErrMalformedRecord, i.ID)
	}
	return nil
}

// ItemFields carries the caller-supplied fields of a new item.
type ItemFields struct {
	Name       string          `json:"name"`
	Category   string          `json:"category"`
	Unit       string          `json:"unit"`
	Supplier   string          `json:"supplier,omitempty"`
	Stock      float64         `json:"stock"`
	Minimum    float64         `json:"minimum"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	ExpiryDate *time.Time      `json:"expiry_date,omitempty"`
	Purchase   *PurchaseInfo   `json:"purchase,omitempty"`
}

func (f ItemFields) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if strings.TrimSpace(f.Category) == "" {
		return &ValidationError{Field: "category", Reason: "is required"}
	}
	if err := nonNegative("stock", f.Stock); err != nil {
		return err
	}
	if err := nonNegative("minimum", f.Minimum); err != nil {
		return err
	}
	if f.UnitCost.IsNegative() {
		return &ValidationError{Field: "unit_cost", Reason: "must not be negative"}
	}
	return validatePurchase(f.Purchase)
}

// ItemPatch is a partial update. Nil fields are left untouched on the remote
// record; owner id is deliberately absent.
type ItemPatch struct {
	Name        *string          `json:"name,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Unit        *string          `json:"unit,omitempty"`
	Supplier    *string          `json:"supplier,omitempty"`
	Stock       *float64         `json:"stock,omitempty"`
	Minimum     *float64         `json:"minimum,omitempty"`
	UnitCost    *decimal.Decimal `json:"unit_cost,omitempty"`
	ExpiryDate  *time.Time       `json:"expiry_date,omitempty"`
	ClearExpiry bool             `json:"clear_expiry,omitempty"`
	Purchase    *PurchaseInfo    `json:"purchase,omitempty"`
}

// IsEmpty reports whether the patch would change nothing.
func (p ItemPatch) IsEmpty() bool {
	return p.Name == nil && p.Category == nil && p.Unit == nil && p.Supplier == nil &&
		p.Stock == nil && p.Minimum == nil && p.UnitCost == nil &&
		p.ExpiryDate == nil && !p.ClearExpiry && p.Purchase == nil
}

func (p ItemPatch) Validate() error {
	if p.IsEmpty() {
		return &ValidationError{Field: "patch", Reason: "has no fields"}
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if p.Category != nil && strings.TrimSpace(*p.Category) == "" {
		return &ValidationError{Field: "category", Reason: "must not be empty"}
	}
	if p.Stock != nil {
		if err := nonNegative("stock", *p.Stock); err != nil {
			return err
		}
	}
	if p.Minimum != nil {
		if err := nonNegative("minimum", *p.Minimum); err != nil {
			return err
		}
	}
	if p.UnitCost != nil && p.UnitCost.IsNegative() {
		return &ValidationError{Field: "unit_cost", Reason: "must not be negative"}
	}
	if p.ExpiryDate != nil && p.ClearExpiry {
		return &ValidationError{Field: "expiry_date", Reason: "cannot be set and cleared together"}
	}
	return validatePurchase(p.Purchase)
}

// Apply returns a copy of item with the patch fields written over it.
func (p ItemPatch) Apply(item Item) Item {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Category != nil {
		item.Category = *p.Category
	}
	if p.Unit != nil {
		item.Unit = *p.Unit
	}
	if p.Supplier != nil {
		item.Supplier = *p.Supplier
	}
	if p.Stock != nil {
		item.Stock = *p.Stock
	}
	if p.Minimum != nil {
		item.Minimum = *p.Minimum
	}
	if p.UnitCost != nil {
		item.UnitCost = *p.UnitCost
	}
	if p.ExpiryDate != nil {
		expiry := *p.ExpiryDate
		item.ExpiryDate = &expiry
	}
	if p.ClearExpiry {
		item.ExpiryDate = nil
	}
	if p.Purchase != nil {
		purchase := *p.Purchase
		item.Purchase = &purchase
	}
	return item
}

func nonNegative(field string, v float64) error {
	if v < 0 {
		return &ValidationError{Field: field, Reason: "must not be negative"}
	}
	return nil
}

func validatePurchase(p *PurchaseInfo) error {
	if p == nil {
		return nil
	}
	if err := nonNegative("purchase.quantity", p.Quantity); err != nil {
		return err
	}
	if p.TotalCost.IsNegative() {
		return &ValidationError{Field: "purchase.total_cost", Reason: "must not be negative"}
	}
	return nil
}
