package model

import (
	"github.com/google/uuid"
)

// PriceTier is a named pricing profile such as Self-Pay or Insurance.
type PriceTier struct {
	ID     uuid.UUID `db:"id" json:"id"`
	Name   string    `db:"name" json:"name"`
	Active bool      `db:"active" json:"active"`
}

// CatalogItem is a medication or service with an optional base price.
type CatalogItem struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ItemType  ItemType  `db:"item_type" json:"item_type"`
	Name      string    `db:"name" json:"name"`
	Unit      *string   `db:"unit" json:"unit,omitempty"`
	BasePrice *Money    `db:"base_price" json:"base_price,omitempty"`
}

type TierWarning string

const TierWarningNoTierAssigned TierWarning = "no_tier_assigned"

// PriceResolution is the outcome of the two-level tier/base lookup.
type PriceResolution struct {
	ItemID   uuid.UUID   `json:"item_id"`
	ItemType ItemType    `json:"item_type"`
	TierID   *uuid.UUID  `json:"tier_id,omitempty"`
	Price    Money       `json:"price"`
	Source   PriceSource `json:"source"`
	Warning  TierWarning `json:"warning,omitempty"`
}

type SetOverrideRequest struct {
	Price Money `json:"price"`
}
