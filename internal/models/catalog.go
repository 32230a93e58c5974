package models

import "time"

// Category is a tenant catalog category. The catalog is consumed read-only
// by the conversation engine; writes happen in the admin surface, which is
// outside this service.
type Category struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	TenantID  string    `json:"tenant_id" gorm:"index"`
	Name      string    `json:"name"`
	SortOrder int       `json:"sort_order"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VariantOption is one choice within a variant group, carrying its price
// modifier relative to the product base price.
type VariantOption struct {
	Label         string  `json:"label"`
	PriceModifier float64 `json:"price_modifier"`
}

// VariantGroup is a named customization axis (e.g. Size) with options.
type VariantGroup struct {
	Name    string          `json:"name"`
	Options []VariantOption `json:"options"`
}

// Product is a sellable catalog item.
type Product struct {
	ID          string  `json:"id" gorm:"primaryKey"`
	TenantID    string  `json:"tenant_id" gorm:"index"`
	CategoryID  string  `json:"category_id" gorm:"index"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	BasePrice   float64 `json:"base_price"`
	Currency    string  `json:"currency"`
	IsAvailable bool    `json:"is_available"`

	VariantGroups []VariantGroup `json:"variant_groups,omitempty" gorm:"type:jsonb;serializer:json"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
